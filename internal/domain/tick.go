package domain

import "time"

// PriceTick is a single observed trade price for a symbol, produced by the
// market data feed and consumed by the trader.
type PriceTick struct {
	Symbol string
	Price  float64
	Ts     time.Time
}
