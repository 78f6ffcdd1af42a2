package domain

import "time"

// Position represents inventory held against one tier. A Position exists iff
// its Tier is filled, partially filled, or selling.
type Position struct {
	TierID         int
	Quantity       int64
	AveragePrice   float64
	InvestedAmount float64
	OpenedAt       time.Time
}

// Account tracks the cash side of the ledger. Cash stays non-negative in
// steady state; the pre-trade check in the allocation pass enforces it.
type Account struct {
	Cash            float64
	BaselineCapital float64
}

// Profit returns realized + unrealized profit against the baseline, given the
// current mark value of all held positions.
func (a Account) Profit(markValue float64) float64 {
	return a.Cash + markValue - a.BaselineCapital
}
