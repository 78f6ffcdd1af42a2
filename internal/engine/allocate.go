package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/gridbot/internal/domain"
)

// Evaluate processes one price observation and returns zero, one, or two
// batched order intents: at most one sell batch and one buy batch. It only
// reserves (locks) tiers and validates quantities; ledger mutation happens
// exclusively in Confirm once a real fill is reported.
func (e *Engine) Evaluate(observed float64) []domain.OrderIntent {
	e.mu.Lock()
	defer e.mu.Unlock()

	if observed <= 0 {
		return nil
	}

	e.maybeRaiseReferenceLocked(observed)
	if !e.refSet {
		return nil
	}

	var intents []domain.OrderIntent
	if sell := e.sellPassLocked(observed); sell != nil {
		intents = append(intents, *sell)
	}
	if buy := e.buyPassLocked(observed); buy != nil {
		intents = append(intents, *buy)
	}
	return intents
}

// maybeRaiseReferenceLocked applies the reference-price update policy: the
// high-water mark only increases, and only while aggregate held quantity is
// zero (or when it was never set).
func (e *Engine) maybeRaiseReferenceLocked(observed float64) {
	if e.refSet && observed <= e.refPrice {
		return
	}
	if e.heldQuantityLocked() > 0 {
		return
	}
	e.setReferenceLocked(observed)
}

// sellPassLocked scans filled tiers from highest id to lowest and batches
// every tier whose sell trigger the observed price meets.
func (e *Engine) sellPassLocked(observed float64) *domain.OrderIntent {
	filled := e.book.TiersByState(domain.TierFilled)

	var tierIDs []int
	var quantity int64
	var repTrigger float64
	for i := len(filled) - 1; i >= 0; i-- {
		t := filled[i]
		if t.SellPrice > observed {
			continue
		}
		pos, ok := e.positions[t.ID]
		if !ok || pos.Quantity <= 0 {
			e.logger.Warn("filled tier without position skipped in sell pass",
				slog.Int("tier", t.ID),
			)
			continue
		}
		if len(tierIDs) == 0 {
			repTrigger = t.SellPrice
		}
		tierIDs = append(tierIDs, t.ID)
		quantity += pos.Quantity
	}
	if len(tierIDs) == 0 {
		return nil
	}

	return &domain.OrderIntent{
		ID:             uuid.New().String(),
		Action:         domain.IntentSell,
		TierIDs:        tierIDs,
		Representative: tierIDs[0],
		Quantity:       quantity,
		ReferencePrice: e.refPrice,
		Price:          observed,
		Reason:         fmt.Sprintf("sell trigger at %.4f reached by %.4f", repTrigger, observed),
		CreatedAt:      time.Now().UTC(),
	}
}

// buyPassLocked scans empty tiers from lowest id upward, locking each whose
// buy trigger the observed price crosses, up to MaxBatchOrders. The whole
// batch is authorized against available cash or not at all: on an
// insufficient-funds result every tier locked this pass is restored to empty.
func (e *Engine) buyPassLocked(observed float64) *domain.OrderIntent {
	if e.suspended {
		return nil
	}

	var tierIDs []int
	var quantity int64
	for id := 1; id <= e.cfg.TotalTiers; id++ {
		if id == 1 && !e.cfg.TradeTierOne {
			continue
		}
		if e.cfg.MaxBatchOrders > 0 && len(tierIDs) >= e.cfg.MaxBatchOrders {
			break
		}
		t, ok := e.book.Tier(id)
		if !ok || t.State != domain.TierEmpty {
			continue
		}
		if t.BuyPrice < observed {
			continue
		}
		if !e.book.TryLockForBuy(id) {
			continue
		}
		qty := int64(e.cfg.CapitalPerTier / observed)
		if qty < 1 {
			qty = 1
		}
		if err := e.validateQuantity(observed, qty); err != nil {
			e.logger.Warn("tier skipped by order validation",
				slog.Int("tier", id),
				slog.Int64("qty", qty),
				slog.Float64("price", observed),
				slog.String("error", err.Error()),
			)
			e.book.Unlock(id, domain.TierEmpty)
			continue
		}
		tierIDs = append(tierIDs, id)
		quantity += qty
	}
	if len(tierIDs) == 0 {
		return nil
	}

	// Aggregate pre-trade cash check. Partial authorization is never
	// permitted: either the whole batch fits or every tier unlocks.
	cost := float64(quantity) * observed
	if cost > e.account.Cash {
		e.logger.Warn("buy batch aborted, insufficient funds",
			slog.Float64("cost", cost),
			slog.Float64("cash", e.account.Cash),
			slog.Int("tiers", len(tierIDs)),
			slog.String("error", domain.ErrInsufficientFunds.Error()),
		)
		for _, id := range tierIDs {
			e.book.Unlock(id, domain.TierEmpty)
		}
		return nil
	}

	return &domain.OrderIntent{
		ID:             uuid.New().String(),
		Action:         domain.IntentBuy,
		TierIDs:        tierIDs,
		Representative: tierIDs[0],
		Quantity:       quantity,
		ReferencePrice: e.refPrice,
		Price:          observed,
		Reason:         fmt.Sprintf("buy triggers down to tier %d reached by %.4f", tierIDs[len(tierIDs)-1], observed),
		CreatedAt:      time.Now().UTC(),
	}
}

// validateQuantity rejects candidate quantities that fail sanity checks:
// price below the minimum floor, quantity outside (0, MaxOrderQty], or a
// quantity more than 10x the naive expectation, which guards against
// unit or format errors producing absurd order sizes.
func (e *Engine) validateQuantity(price float64, qty int64) error {
	if price < e.cfg.MinPrice {
		return fmt.Errorf("%w: price %.4f below floor %.4f", domain.ErrValidation, price, e.cfg.MinPrice)
	}
	if qty <= 0 {
		return fmt.Errorf("%w: non-positive quantity %d", domain.ErrValidation, qty)
	}
	if e.cfg.MaxOrderQty > 0 && qty > e.cfg.MaxOrderQty {
		return fmt.Errorf("%w: quantity %d exceeds ceiling %d", domain.ErrValidation, qty, e.cfg.MaxOrderQty)
	}
	expected := e.cfg.CapitalPerTier / price
	if float64(qty) > expected*10 {
		return fmt.Errorf("%w: quantity %d exceeds 10x expected %.2f", domain.ErrValidation, qty, expected)
	}
	return nil
}
