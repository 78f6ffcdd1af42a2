package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/gridbot/internal/domain"
)

// allowedTransitions is the authoritative state table. A transition absent
// from this map is illegal and is rejected as a logged no-op, so a caller bug
// cannot corrupt tier invariants.
var allowedTransitions = map[domain.TierState][]domain.TierState{
	domain.TierEmpty:  {domain.TierLocked, domain.TierError},
	domain.TierLocked: {domain.TierOrdering, domain.TierEmpty, domain.TierFilled, domain.TierError},
	domain.TierOrdering: {
		domain.TierPartialFilled, domain.TierFilled, domain.TierError,
	},
	domain.TierPartialFilled: {domain.TierSelling, domain.TierError},
	domain.TierFilled:        {domain.TierSelling},
	domain.TierSelling:       {domain.TierSold, domain.TierFilled, domain.TierError},
	domain.TierSold:          {domain.TierEmpty},
	domain.TierError:         {domain.TierEmpty, domain.TierOrdering},
}

// TierBook owns the authoritative state of every tier. It is the sole
// mutation surface for tier records and guards each mutation with its own
// mutex, so TryLockForBuy stays atomic even for callers that bypass the
// engine's evaluation lock.
type TierBook struct {
	mu     sync.Mutex
	tiers  []*domain.Tier // index i holds tier i+1
	logger *slog.Logger
}

// NewTierBook creates a book of total tiers, all empty, with trigger prices
// computed from the ladder and reference price. A zero refPrice leaves
// trigger prices unset until the first reference update.
func NewTierBook(total int, ladder Ladder, refPrice float64, logger *slog.Logger) *TierBook {
	tiers := make([]*domain.Tier, total)
	for i := range tiers {
		t := &domain.Tier{
			ID:        i + 1,
			State:     domain.TierEmpty,
			UpdatedAt: time.Now().UTC(),
		}
		if refPrice > 0 {
			t.BuyPrice = ladder.BuyPrice(refPrice, t.ID)
			t.SellPrice = ladder.SellPrice(refPrice, t.ID)
		}
		tiers[i] = t
	}
	return &TierBook{
		tiers:  tiers,
		logger: logger.With(slog.String("component", "tier_book")),
	}
}

// Len returns the number of tiers.
func (b *TierBook) Len() int {
	return len(b.tiers)
}

func (b *TierBook) tier(id int) *domain.Tier {
	if id < 1 || id > len(b.tiers) {
		return nil
	}
	return b.tiers[id-1]
}

func transitionAllowed(from, to domain.TierState) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transition applies a state change if the table permits it. Illegal requests
// are logged and dropped. Callers must hold b.mu.
func (b *TierBook) transition(t *domain.Tier, to domain.TierState) bool {
	if !transitionAllowed(t.State, to) {
		b.logger.Warn("illegal tier transition rejected",
			slog.Int("tier", t.ID),
			slog.String("from", string(t.State)),
			slog.String("to", string(to)),
			slog.String("error", domain.ErrIllegalTransition.Error()),
		)
		return false
	}
	t.State = to
	t.UpdatedAt = time.Now().UTC()
	return true
}

// TryLockForBuy atomically claims an empty tier for an in-flight evaluation.
// Of two concurrent callers racing for the same tier, exactly one succeeds;
// the other observes the locked state and gets false.
func (b *TierBook) TryLockForBuy(id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.tier(id)
	if t == nil || t.State != domain.TierEmpty {
		return false
	}
	return b.transition(t, domain.TierLocked)
}

// Unlock rolls a locked tier back to the given state when its owning
// evaluation abandons it (validation failure, insufficient funds).
func (b *TierBook) Unlock(id int, restore domain.TierState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.tier(id)
	if t == nil {
		return
	}
	if t.State != domain.TierLocked {
		b.logger.Warn("unlock on non-locked tier ignored",
			slog.Int("tier", id),
			slog.String("state", string(t.State)),
		)
		return
	}
	if b.transition(t, restore) {
		t.OrderID = ""
		t.OrderedQty = 0
	}
}

// MarkOrdering records the broker-assigned order ID and the exact quantity
// requested for this tier (not the whole batch) on a locked tier.
func (b *TierBook) MarkOrdering(id int, orderID string, orderedQty int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.tier(id)
	if t == nil || !b.transition(t, domain.TierOrdering) {
		return false
	}
	t.OrderID = orderID
	t.OrderedQty = orderedQty
	return true
}

// MarkFilled applies a broker-confirmed quantity to an ordering tier. A full
// fill lands on filled, a short fill on partial_filled. A fill exceeding the
// ordered quantity is a validation failure fatal for the tier: it moves to
// error instead.
func (b *TierBook) MarkFilled(id int, filledQty int64, filledPrice float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.tier(id)
	if t == nil {
		return false
	}
	if filledQty > t.OrderedQty {
		b.logger.Error("fill exceeds ordered quantity",
			slog.Int("tier", id),
			slog.Int64("ordered", t.OrderedQty),
			slog.Int64("filled", filledQty),
		)
		b.markErrorLocked(t, "filled quantity exceeds ordered quantity")
		return false
	}
	target := domain.TierFilled
	if filledQty < t.OrderedQty {
		target = domain.TierPartialFilled
	}
	if !b.transition(t, target) {
		return false
	}
	t.FilledQty = filledQty
	t.FilledPrice = filledPrice
	t.ErrorMsg = ""
	return true
}

// MarkSelling records a sell order acknowledged against a filled tier.
func (b *TierBook) MarkSelling(id int, orderID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.tier(id)
	if t == nil || !b.transition(t, domain.TierSelling) {
		return false
	}
	t.OrderID = orderID
	return true
}

// MarkSold completes a sell and immediately resets the tier to empty, making
// it available for the next buy cycle.
func (b *TierBook) MarkSold(id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.tier(id)
	if t == nil || !b.transition(t, domain.TierSold) {
		return false
	}
	b.resetLocked(t)
	return true
}

// RestoreFilled returns a selling tier to filled. Used when a sell attempt
// fails, or when a partial exit leaves quantity on the tier.
func (b *TierBook) RestoreFilled(id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.tier(id)
	if t == nil || !b.transition(t, domain.TierFilled) {
		return false
	}
	t.OrderID = ""
	return true
}

// SyncFilledQty lowers a filled tier's recorded quantity after a partial exit
// so the book matches the remaining position.
func (b *TierBook) SyncFilledQty(id int, qty int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.tier(id)
	if t == nil || t.State != domain.TierFilled {
		return false
	}
	t.FilledQty = qty
	t.UpdatedAt = time.Now().UTC()
	return true
}

// MarkError transitions a tier to error, recording the message and bumping the
// retry counter. Permitted from every state except filled and sold.
func (b *TierBook) MarkError(id int, msg string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.tier(id)
	if t == nil {
		return false
	}
	return b.markErrorLocked(t, msg)
}

func (b *TierBook) markErrorLocked(t *domain.Tier, msg string) bool {
	// Locked tiers unlock first so the error path matches the documented
	// LOCKED -> EMPTY -> ERROR recovery chain.
	if t.State == domain.TierLocked {
		if !b.transition(t, domain.TierEmpty) {
			return false
		}
	}
	if !b.transition(t, domain.TierError) {
		return false
	}
	t.ErrorMsg = msg
	t.RetryCount++
	return true
}

// ResetTier returns an error tier to empty after operator intervention.
func (b *TierBook) ResetTier(id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.tier(id)
	if t == nil || t.State != domain.TierError {
		return false
	}
	if !b.transition(t, domain.TierEmpty) {
		return false
	}
	b.resetLocked(t)
	return true
}

func (b *TierBook) resetLocked(t *domain.Tier) {
	t.State = domain.TierEmpty
	t.OrderID = ""
	t.OrderedQty = 0
	t.FilledQty = 0
	t.FilledPrice = 0
	t.ErrorMsg = ""
	t.UpdatedAt = time.Now().UTC()
}

// Tier returns a copy of one tier record.
func (b *TierBook) Tier(id int) (domain.Tier, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.tier(id)
	if t == nil {
		return domain.Tier{}, false
	}
	return *t, true
}

// TiersByState returns deep-copied snapshots of every tier in the given
// state, in ascending tier order. Callers can never mutate live state through
// the returned slice.
func (b *TierBook) TiersByState(state domain.TierState) []domain.Tier {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.Tier
	for _, t := range b.tiers {
		if t.State == state {
			out = append(out, *t)
		}
	}
	return out
}

// Snapshot returns a deep copy of every tier in ascending order.
func (b *TierBook) Snapshot() []domain.Tier {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.Tier, len(b.tiers))
	for i, t := range b.tiers {
		out[i] = *t
	}
	return out
}

// Reprice recomputes every tier's trigger prices in place from a new
// reference price. State, order IDs, and quantities are preserved: in-flight
// or filled tiers must never be reset by a reference-price change.
func (b *TierBook) Reprice(ladder Ladder, refPrice float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range b.tiers {
		t.BuyPrice = ladder.BuyPrice(refPrice, t.ID)
		t.SellPrice = ladder.SellPrice(refPrice, t.ID)
		t.UpdatedAt = time.Now().UTC()
	}
}
