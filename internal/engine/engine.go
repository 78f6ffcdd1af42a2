// Package engine implements the tiered, price-triggered capital-allocation
// core: the tier state machine, the price ladder, the allocation pass that
// turns price observations into batched order intents, and the fill
// reconciler that applies broker outcomes back into the ledger.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/gridbot/internal/domain"
)

// Config holds the engine's startup parameters.
type Config struct {
	Symbol                string
	TotalTiers            int
	BuyIntervalRate       float64
	SellTargetRate        float64
	CapitalPerTier        float64
	TradeTierOne          bool // tier 1 buys are skipped unless enabled
	MaxBatchOrders        int  // bounds batch size during a price gap
	MinPrice              float64
	MaxOrderQty           int64
	InitialReferencePrice float64
	InitialCash           float64
}

// Engine owns one instrument's full allocation state: the tier book, the
// position ledger, the cash account, and the reference price. One engine
// instance exists per tradable instrument, with lifecycle equal to the
// engine's lifetime; there are no ambient globals.
//
// Every public method takes the engine mutex once at entry and holds it end
// to end, so two price observations arriving concurrently from separate I/O
// callbacks never interleave ladder evaluation. The tier book carries its own
// mutex as defense in depth for callers that bypass Evaluate. Engine methods
// perform no blocking I/O.
type Engine struct {
	mu sync.Mutex

	cfg    Config
	ladder Ladder
	book   *TierBook

	positions map[int]*domain.Position
	account   domain.Account

	refPrice  float64
	refSet    bool
	suspended bool

	onEvent func(Event)
	logger  *slog.Logger
}

// New creates an engine with all tiers empty. A positive initial reference
// price seeds the ladder immediately; otherwise the first observation while
// flat sets it.
func New(cfg Config, logger *slog.Logger) *Engine {
	ladder := Ladder{
		BuyIntervalRate: cfg.BuyIntervalRate,
		SellTargetRate:  cfg.SellTargetRate,
		TotalTiers:      cfg.TotalTiers,
	}
	e := &Engine{
		cfg:       cfg,
		ladder:    ladder,
		book:      NewTierBook(cfg.TotalTiers, ladder, cfg.InitialReferencePrice, logger),
		positions: make(map[int]*domain.Position),
		account: domain.Account{
			Cash:            cfg.InitialCash,
			BaselineCapital: cfg.InitialCash,
		},
		logger: logger.With(slog.String("component", "engine"), slog.String("symbol", cfg.Symbol)),
	}
	if cfg.InitialReferencePrice > 0 {
		e.refPrice = cfg.InitialReferencePrice
		e.refSet = true
	}
	return e
}

// OnEvent registers the sink that receives engine events (reference updates,
// fills, suspension, reconcile mismatches). The sink is invoked synchronously
// under the engine lock and must not call back into the engine.
func (e *Engine) OnEvent(fn func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEvent = fn
}

func (e *Engine) emit(ev Event) {
	if e.onEvent != nil {
		ev.Symbol = e.cfg.Symbol
		e.onEvent(ev)
	}
}

// Book exposes the tier book for direct state-machine access (tests, status
// handlers). All book methods hand out deep copies.
func (e *Engine) Book() *TierBook {
	return e.book
}

// ReferencePrice returns the current high-water mark and whether it is set.
func (e *Engine) ReferencePrice() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refPrice, e.refSet
}

// RestoreReference seeds the reference price from persisted state at startup.
// It is ignored once a reference is already set or inventory is held.
func (e *Engine) RestoreReference(price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.refSet || price <= 0 || e.heldQuantityLocked() > 0 {
		return
	}
	e.setReferenceLocked(price)
}

// Suspended reports whether the emergency stop has tripped.
func (e *Engine) Suspended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suspended
}

// Resume clears the emergency stop after an explicit operator reset.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.suspended {
		return
	}
	e.suspended = false
	e.logger.Info("trading resumed by operator")
}

// ResetTier returns an error tier to empty after operator intervention.
func (e *Engine) ResetTier(id int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.ResetTier(id)
}

// Snapshot returns a deep-copied, read-only view of the engine's full state.
func (e *Engine) Snapshot() domain.EngineSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := domain.EngineSnapshot{
		Symbol:         e.cfg.Symbol,
		ReferencePrice: e.refPrice,
		Suspended:      e.suspended,
		Account:        e.account,
		Tiers:          e.book.Snapshot(),
		TakenAt:        time.Now().UTC(),
	}
	snap.Positions = make([]domain.Position, 0, len(e.positions))
	for _, t := range snap.Tiers {
		if p, ok := e.positions[t.ID]; ok {
			snap.Positions = append(snap.Positions, *p)
		}
	}
	return snap
}

// ForceFill synthesizes a full locked -> ordering -> filled sequence for one
// tier, bypassing the gateway round-trip while preserving state-machine
// invariants. Used by tests and by operators importing an existing position.
func (e *Engine) ForceFill(tierID int, qty int64, price float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if qty <= 0 || price <= 0 {
		return false
	}
	if !e.book.TryLockForBuy(tierID) {
		return false
	}
	orderID := "synthetic-" + uuid.New().String()
	if !e.book.MarkOrdering(tierID, orderID, qty) {
		e.book.Unlock(tierID, domain.TierEmpty)
		return false
	}
	if !e.book.MarkFilled(tierID, qty, price) {
		return false
	}
	e.openPositionLocked(tierID, qty, price)
	e.account.Cash -= float64(qty) * price
	e.checkSuspensionLocked(tierID)
	e.logger.Info("synthetic fill applied",
		slog.Int("tier", tierID),
		slog.Int64("qty", qty),
		slog.Float64("price", price),
	)
	return true
}

// --- helpers below require e.mu held ---

func (e *Engine) heldQuantityLocked() int64 {
	var total int64
	for _, p := range e.positions {
		total += p.Quantity
	}
	return total
}

// setReferenceLocked installs a new reference price and recomputes every
// tier's trigger prices in place. Tier state, order IDs, and quantities are
// untouched.
func (e *Engine) setReferenceLocked(price float64) {
	e.refPrice = price
	e.refSet = true
	e.book.Reprice(e.ladder, price)
	e.logger.Info("reference price updated", slog.Float64("reference", price))
	e.emit(Event{Type: EventReferenceUpdated, Price: price})
}

func (e *Engine) openPositionLocked(tierID int, qty int64, price float64) {
	e.positions[tierID] = &domain.Position{
		TierID:         tierID,
		Quantity:       qty,
		AveragePrice:   price,
		InvestedAmount: float64(qty) * price,
		OpenedAt:       time.Now().UTC(),
	}
}

// checkSuspensionLocked trips the emergency stop when the worst (highest
// index) tier reaches filled. Buys stay refused until an operator resumes.
func (e *Engine) checkSuspensionLocked(tierID int) {
	if tierID != e.cfg.TotalTiers || e.suspended {
		return
	}
	if t, ok := e.book.Tier(tierID); ok && t.State == domain.TierFilled {
		e.suspended = true
		e.logger.Error("worst tier filled, trading suspended",
			slog.Int("tier", tierID),
		)
		e.emit(Event{
			Type:    EventTradingSuspended,
			TierIDs: []int{tierID},
			Message: fmt.Sprintf("worst tier %d filled, trading suspended", tierID),
		})
	}
}
