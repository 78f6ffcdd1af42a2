package domain

import "time"

// EngineSnapshot is a deep-copied, read-only view of the engine's full state.
// It is what external consumers (status server, snapshot store, archiver)
// receive; mutating it never affects live engine state.
type EngineSnapshot struct {
	Symbol         string
	ReferencePrice float64
	Suspended      bool
	Account        Account
	Tiers          []Tier
	Positions      []Position
	TakenAt        time.Time
}

// HeldQuantity returns the aggregate quantity across all positions.
func (s EngineSnapshot) HeldQuantity() int64 {
	var total int64
	for _, p := range s.Positions {
		total += p.Quantity
	}
	return total
}

// Fill is one applied fill outcome, journaled for audit and archival.
type Fill struct {
	ID          string
	IntentID    string
	OrderID     string
	Symbol      string
	Action      IntentAction
	TierIDs     []int
	Quantity    int64
	Price       float64
	Proceeds    float64 // sell credit, zero for buys
	Profit      float64 // realized profit, zero for buys
	Success     bool
	Reason      string
	RecordedAt  time.Time
}
