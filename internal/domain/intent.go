package domain

import "time"

// IntentAction indicates whether an intent buys or sells.
type IntentAction string

const (
	IntentBuy  IntentAction = "BUY"
	IntentSell IntentAction = "SELL"
)

// OrderIntent is one batched order produced by an evaluation pass. It is
// immutable once created and consumed exactly once by the gateway: the set of
// tiers whose trigger condition was satisfied on a single price observation,
// submitted as a single aggregate order.
type OrderIntent struct {
	ID             string // UUID, assigned at creation
	Action         IntentAction
	TierIDs        []int // ordered: buys low→high, sells high→low
	Representative int   // tier whose trigger produced the batch
	Quantity       int64 // aggregate quantity across all tiers
	ReferencePrice float64
	Price          float64 // observed price that triggered the batch
	Reason         string
	CreatedAt      time.Time
}

// FillStatus is the terminal (or pending) state the gateway reports for a
// submitted order.
type FillStatus string

const (
	FillStatusFilled   FillStatus = "FILLED"
	FillStatusPartial  FillStatus = "PARTIAL"
	FillStatusRejected FillStatus = "REJECTED"
	FillStatusUnknown  FillStatus = "UNKNOWN"
)

// FillReport is the gateway's answer to a fill poll.
type FillReport struct {
	Status      FillStatus
	FilledQty   int64
	FilledPrice float64
	Reason      string
}

// Terminal reports whether the fill poll can stop.
func (r FillReport) Terminal() bool {
	return r.Status == FillStatusFilled || r.Status == FillStatusRejected
}
