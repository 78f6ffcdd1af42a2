// Package gateway provides OrderGateway implementations. The paper gateway
// simulates a broker in memory for paper-trading mode; live exchange gateways
// can be added alongside it behind the same interface.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/gridbot/internal/domain"
)

// paperOrder is the simulated broker-side record of a submitted order.
type paperOrder struct {
	action      domain.IntentAction
	quantity    int64
	price       float64
	submittedAt time.Time
	polls       int
}

// Paper simulates order execution in memory. Orders fill at the submitted
// price after a configurable number of polls, with an optional partial-fill
// ratio and rejection flag for exercising failure handling.
type Paper struct {
	mu     sync.Mutex
	orders map[string]*paperOrder
	logger *slog.Logger

	// FillAfterPolls is how many PollFill calls return UNKNOWN before the
	// order reports a terminal status. Zero fills on the first poll.
	FillAfterPolls int
	// PartialRatio, when in (0, 1), fills only that fraction of the ordered
	// quantity (rounded down, minimum 1).
	PartialRatio float64
	// RejectAll makes every order report REJECTED instead of filling.
	RejectAll bool
	// Slippage shifts the fill price by the given fraction (positive raises
	// buy fills, lowers sell fills would need a negative value).
	Slippage float64
}

// NewPaper creates a paper gateway that fills every order in full at the
// submitted price on the first poll.
func NewPaper(logger *slog.Logger) *Paper {
	return &Paper{
		orders: make(map[string]*paperOrder),
		logger: logger.With(slog.String("component", "paper_gateway")),
	}
}

// Submit records the order and returns a synthetic order ID.
func (p *Paper) Submit(ctx context.Context, action domain.IntentAction, refPrice float64, quantity int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if quantity <= 0 {
		return "", fmt.Errorf("gateway: %w: quantity %d", domain.ErrValidation, quantity)
	}

	id := "paper-" + uuid.New().String()

	p.mu.Lock()
	p.orders[id] = &paperOrder{
		action:      action,
		quantity:    quantity,
		price:       refPrice,
		submittedAt: time.Now().UTC(),
	}
	p.mu.Unlock()

	p.logger.Info("order accepted",
		slog.String("order_id", id),
		slog.String("action", string(action)),
		slog.Int64("quantity", quantity),
		slog.Float64("price", refPrice),
	)
	return id, nil
}

// PollFill reports the simulated fill state of a previously submitted order.
func (p *Paper) PollFill(ctx context.Context, orderID string) (domain.FillReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.FillReport{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ord, ok := p.orders[orderID]
	if !ok {
		return domain.FillReport{}, fmt.Errorf("gateway: order %s: %w", orderID, domain.ErrNotFound)
	}

	ord.polls++
	if ord.polls <= p.FillAfterPolls {
		return domain.FillReport{Status: domain.FillStatusUnknown}, nil
	}

	if p.RejectAll {
		return domain.FillReport{
			Status: domain.FillStatusRejected,
			Reason: "rejected by paper gateway",
		}, nil
	}

	qty := ord.quantity
	status := domain.FillStatusFilled
	if p.PartialRatio > 0 && p.PartialRatio < 1 {
		qty = int64(float64(ord.quantity) * p.PartialRatio)
		if qty < 1 {
			qty = 1
		}
		if qty < ord.quantity {
			status = domain.FillStatusPartial
		}
	}

	price := ord.price
	if p.Slippage != 0 {
		price = price * (1 + p.Slippage)
	}

	return domain.FillReport{
		Status:      status,
		FilledQty:   qty,
		FilledPrice: price,
	}, nil
}

// Compile-time interface check.
var _ domain.OrderGateway = (*Paper)(nil)
