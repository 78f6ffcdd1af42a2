package engine

// EventType identifies an engine fact worth notifying operators about.
type EventType string

const (
	EventReferenceUpdated  EventType = "reference_updated"
	EventOrderFilled       EventType = "order_filled"
	EventTradingSuspended  EventType = "trading_suspended"
	EventReconcileMismatch EventType = "reconcile_mismatch"
)

// Event carries the boolean/event facts the engine exposes to the alert
// channel. Formatting is the collaborator's concern.
type Event struct {
	Type     EventType
	Symbol   string
	Price    float64
	Quantity int64
	Profit   float64
	TierIDs  []int
	Message  string
}
