package domain

import "time"

// TierState tracks a tier's position in the order lifecycle.
type TierState string

const (
	// TierEmpty means the tier holds nothing and is available for a buy.
	TierEmpty TierState = "empty"
	// TierLocked means an in-flight evaluation has claimed the tier.
	TierLocked TierState = "locked"
	// TierOrdering means a buy order was acknowledged and quantity reserved.
	TierOrdering TierState = "ordering"
	// TierPartialFilled means the broker confirmed less than the ordered quantity.
	TierPartialFilled TierState = "partial_filled"
	// TierFilled means the broker confirmed the full ordered quantity.
	TierFilled TierState = "filled"
	// TierSelling means a sell order was acknowledged against a filled position.
	TierSelling TierState = "selling"
	// TierSold means the sell completed; the tier returns to empty immediately after.
	TierSold TierState = "sold"
	// TierError means a gateway or validation failure; requires an explicit reset.
	TierError TierState = "error"
)

// Tier is one fixed capital slice of the grid. Exactly one Tier record exists
// per identity for the engine's lifetime; tiers are never deleted, only reset
// back to empty.
type Tier struct {
	ID          int // 1..TotalTiers, 1 is closest to the reference price
	BuyPrice    float64
	SellPrice   float64
	State       TierState
	OrderID     string
	OrderedQty  int64
	FilledQty   int64
	FilledPrice float64
	ErrorMsg    string
	RetryCount  int
	UpdatedAt   time.Time
}

// Holding reports whether the tier currently holds (or is acquiring) inventory.
func (t Tier) Holding() bool {
	switch t.State {
	case TierOrdering, TierPartialFilled, TierFilled, TierSelling:
		return true
	default:
		return false
	}
}
