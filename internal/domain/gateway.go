package domain

import "context"

// OrderGateway submits orders to a broker and reports fill outcomes. The
// engine core never calls it directly; the trader drives the submit/poll
// cycle and feeds terminal outcomes back into the reconciler.
type OrderGateway interface {
	// Submit places an aggregate market order and returns the broker-assigned
	// order ID on acknowledgment.
	Submit(ctx context.Context, action IntentAction, refPrice float64, quantity int64) (orderID string, err error)
	// PollFill reports the current fill state of a submitted order.
	PollFill(ctx context.Context, orderID string) (FillReport, error)
}
