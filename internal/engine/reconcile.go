package engine

import (
	"log/slog"
	"math"

	"github.com/alanyoungcy/gridbot/internal/domain"
)

// reconcileEpsilon bounds the floating-point drift tolerated when checking
// that per-tier cash effects sum to the reported total.
const reconcileEpsilon = 1e-6

// ConfirmResult summarizes the ledger effects of one Confirm call. Callers
// observe reconciliation outcomes through this summary and state snapshots;
// the engine's error taxonomy never escapes as returned errors.
type ConfirmResult struct {
	Applied  bool
	Quantity int64   // quantity applied to the ledger
	Proceeds float64 // cash credited (sell) or debited (buy, negative)
	Profit   float64 // realized profit, sells only
	Mismatch bool    // distributed quantities did not sum to the reported total
}

// Acknowledge records a broker acknowledgment for an intent: buy tiers move
// locked -> ordering with their per-tier share of the ordered quantity, sell
// tiers move filled -> selling. Call it after a successful Submit and before
// fill polling.
func (e *Engine) Acknowledge(intent domain.OrderIntent, orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch intent.Action {
	case domain.IntentBuy:
		shares := splitQuantity(intent.Quantity, len(intent.TierIDs))
		for i, id := range intent.TierIDs {
			e.book.MarkOrdering(id, orderID, shares[i])
		}
	case domain.IntentSell:
		for _, id := range intent.TierIDs {
			e.book.MarkSelling(id, orderID)
		}
	}
}

// Confirm applies a terminal gateway outcome for an intent back into the tier
// state machine and the ledger. On failure every affected tier lands in error
// (buys) or returns to filled (sells) and no ledger mutation occurs. On
// success the fill is distributed across the intent's tiers with the
// base-plus-remainder rule.
func (e *Engine) Confirm(intent domain.OrderIntent, orderID string, filledQty int64, filledPrice float64, success bool, errMsg string) ConfirmResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !success {
		e.confirmFailureLocked(intent, errMsg)
		return ConfirmResult{}
	}

	switch intent.Action {
	case domain.IntentBuy:
		return e.confirmBuyLocked(intent, orderID, filledQty, filledPrice)
	case domain.IntentSell:
		return e.confirmSellLocked(intent, orderID, filledQty, filledPrice)
	default:
		e.logger.Error("confirm with unknown intent action",
			slog.String("intent", intent.ID),
			slog.String("action", string(intent.Action)),
		)
		return ConfirmResult{}
	}
}

// confirmFailureLocked handles success=false outcomes. Buy tiers are
// unlocked (when still locked) and marked error with the gateway's message;
// they are not auto-retried and require an explicit reset. Sell tiers return
// to filled so their positions stay sellable on the next trigger.
func (e *Engine) confirmFailureLocked(intent domain.OrderIntent, errMsg string) {
	for _, id := range intent.TierIDs {
		switch intent.Action {
		case domain.IntentBuy:
			e.book.MarkError(id, errMsg)
		case domain.IntentSell:
			if t, ok := e.book.Tier(id); ok && t.State == domain.TierSelling {
				e.book.RestoreFilled(id)
			}
		}
	}
	e.logger.Warn("intent confirmed failed",
		slog.String("intent", intent.ID),
		slog.String("action", string(intent.Action)),
		slog.Int("tiers", len(intent.TierIDs)),
		slog.String("reason", errMsg),
	)
}

func (e *Engine) confirmBuyLocked(intent domain.OrderIntent, orderID string, filledQty int64, filledPrice float64) ConfirmResult {
	if filledQty <= 0 || filledPrice <= 0 {
		e.confirmFailureLocked(intent, "zero-quantity fill reported as success")
		return ConfirmResult{}
	}

	n := len(intent.TierIDs)
	orderedShares := splitQuantity(intent.Quantity, n)
	filledShares := splitQuantity(filledQty, n)

	var debited float64
	var applied int64
	for i, id := range intent.TierIDs {
		// Direct-confirm compatibility: a tier still locked (no separate
		// acknowledgment) synthesizes its ordering step here.
		if t, ok := e.book.Tier(id); ok && t.State == domain.TierLocked {
			e.book.MarkOrdering(id, orderID, orderedShares[i])
		}
		if !e.book.MarkFilled(id, filledShares[i], filledPrice) {
			continue
		}
		if filledShares[i] <= 0 {
			// A short fill can starve the tail tiers entirely; they hold no
			// position and wait in partial_filled for operator review.
			e.logger.Warn("tier received zero fill share",
				slog.Int("tier", id),
				slog.String("intent", intent.ID),
			)
			continue
		}
		e.openPositionLocked(id, filledShares[i], filledPrice)
		e.account.Cash -= float64(filledShares[i]) * filledPrice
		debited += float64(filledShares[i]) * filledPrice
		applied += filledShares[i]
	}

	mismatch := applied != filledQty || math.Abs(debited-float64(filledQty)*filledPrice) > reconcileEpsilon
	if mismatch {
		e.logger.Error("CRITICAL: buy reconciliation mismatch",
			slog.String("intent", intent.ID),
			slog.Int64("reported_qty", filledQty),
			slog.Int64("applied_qty", applied),
			slog.Float64("debited", debited),
			slog.String("error", domain.ErrReconcileMismatch.Error()),
		)
		e.emit(Event{Type: EventReconcileMismatch, Quantity: filledQty - applied, Message: "buy fill distribution mismatch"})
	}

	e.checkSuspensionLocked(e.cfg.TotalTiers)
	e.emit(Event{
		Type:     EventOrderFilled,
		Price:    filledPrice,
		Quantity: applied,
		TierIDs:  intent.TierIDs,
	})
	return ConfirmResult{
		Applied:  true,
		Quantity: applied,
		Proceeds: -debited,
		Mismatch: mismatch,
	}
}

// confirmSellLocked processes sell tiers from highest id to lowest, reading
// each live position before removing it. Profit always derives from
// invested_amount, never from notional order price, so repeated partial
// fills at different prices stay correct. Any unmet quantity is left on the
// last tier processed, which returns toward filled.
func (e *Engine) confirmSellLocked(intent domain.OrderIntent, orderID string, filledQty int64, filledPrice float64) ConfirmResult {
	if filledQty <= 0 || filledPrice <= 0 {
		e.confirmFailureLocked(intent, "zero-quantity fill reported as success")
		return ConfirmResult{}
	}

	remaining := filledQty
	var proceeds, profit float64
	var removed int64
	for _, id := range intent.TierIDs {
		if t, ok := e.book.Tier(id); ok && t.State == domain.TierFilled {
			e.book.MarkSelling(id, orderID)
		}
		pos, ok := e.positions[id]
		if !ok {
			e.logger.Error("CRITICAL: selling tier without position",
				slog.Int("tier", id),
				slog.String("intent", intent.ID),
			)
			continue
		}
		if remaining <= 0 {
			// Unmet sell quantity stays on this tier.
			e.book.RestoreFilled(id)
			continue
		}

		sellQty := pos.Quantity
		if sellQty > remaining {
			sellQty = remaining
		}
		investedShare := pos.InvestedAmount * float64(sellQty) / float64(pos.Quantity)
		tierProceeds := filledPrice * float64(sellQty)

		e.account.Cash += tierProceeds
		proceeds += tierProceeds
		profit += tierProceeds - investedShare
		remaining -= sellQty
		removed += sellQty

		if sellQty == pos.Quantity {
			delete(e.positions, id)
			e.book.MarkSold(id)
		} else {
			pos.Quantity -= sellQty
			pos.InvestedAmount -= investedShare
			e.book.RestoreFilled(id)
			e.book.SyncFilledQty(id, pos.Quantity)
		}
	}

	mismatch := remaining > 0
	if mismatch {
		e.logger.Error("CRITICAL: sell reconciliation mismatch, fill exceeds held quantity",
			slog.String("intent", intent.ID),
			slog.Int64("reported_qty", filledQty),
			slog.Int64("removed_qty", removed),
			slog.String("error", domain.ErrReconcileMismatch.Error()),
		)
		e.emit(Event{Type: EventReconcileMismatch, Quantity: remaining, Message: "sell fill exceeds held quantity"})
	}

	e.emit(Event{
		Type:     EventOrderFilled,
		Price:    filledPrice,
		Quantity: removed,
		Profit:   profit,
		TierIDs:  intent.TierIDs,
	})
	return ConfirmResult{
		Applied:  true,
		Quantity: removed,
		Proceeds: proceeds,
		Profit:   profit,
		Mismatch: mismatch,
	}
}

// splitQuantity divides total across n recipients: everyone receives
// total/n, the first takes the remainder on top.
func splitQuantity(total int64, n int) []int64 {
	shares := make([]int64, n)
	if n == 0 {
		return shares
	}
	base := total / int64(n)
	rem := total % int64(n)
	for i := range shares {
		shares[i] = base
	}
	shares[0] += rem
	return shares
}
