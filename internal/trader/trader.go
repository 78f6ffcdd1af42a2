// Package trader drives the order lifecycle: it consumes price ticks from a
// channel, runs them through the allocation engine, submits the resulting
// intents to the gateway, polls each order to a terminal state, and feeds the
// outcome back into the engine's reconciler. It also journals applied fills
// and persists periodic state snapshots.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/gridbot/internal/domain"
	"github.com/alanyoungcy/gridbot/internal/engine"
)

// timeoutReason is the failure reason recorded when an order produced no fill
// within the poll budget. Operators are expected to check the order manually
// before resetting the affected tiers.
var timeoutReason = domain.ErrFillTimeout.Error() + " - manual verification required"

// Config holds the trader's submission and polling parameters.
type Config struct {
	Symbol           string
	PollRetries      int
	PollInterval     time.Duration
	SnapshotInterval time.Duration
	SubmitRateLimit  int // submissions per second, 0 disables limiting
}

// Trader owns the submit/poll/confirm cycle for a single engine.
type Trader struct {
	cfg     Config
	eng     *engine.Engine
	gateway domain.OrderGateway
	ticks   <-chan domain.PriceTick
	logger  *slog.Logger

	// Optional collaborators; nil disables the corresponding behavior.
	limiter   domain.RateLimiter
	prices    domain.PriceCache
	refs      domain.ReferenceStore
	fills     domain.FillStore
	snapshots domain.SnapshotStore
}

// New creates a Trader reading ticks from the given channel.
func New(cfg Config, eng *engine.Engine, gw domain.OrderGateway, ticks <-chan domain.PriceTick, logger *slog.Logger) *Trader {
	return &Trader{
		cfg:     cfg,
		eng:     eng,
		gateway: gw,
		ticks:   ticks,
		logger:  logger.With(slog.String("component", "trader")),
	}
}

// SetRateLimiter enables distributed submission rate limiting.
func (t *Trader) SetRateLimiter(rl domain.RateLimiter) { t.limiter = rl }

// SetPriceCache enables publishing each observed tick to the price cache.
func (t *Trader) SetPriceCache(pc domain.PriceCache) { t.prices = pc }

// SetReferenceStore enables reference price persistence across restarts.
func (t *Trader) SetReferenceStore(rs domain.ReferenceStore) { t.refs = rs }

// SetFillStore enables fill journaling.
func (t *Trader) SetFillStore(fs domain.FillStore) { t.fills = fs }

// SetSnapshotStore enables periodic snapshot persistence.
func (t *Trader) SetSnapshotStore(ss domain.SnapshotStore) { t.snapshots = ss }

// Restore loads the persisted reference price, if any, into the engine.
// Called once before Run so a restart resumes from the prior high-water mark.
func (t *Trader) Restore(ctx context.Context) {
	if t.refs == nil {
		return
	}
	price, err := t.refs.GetReference(ctx, t.cfg.Symbol)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			t.logger.Warn("reference restore failed", slog.String("error", err.Error()))
		}
		return
	}
	if price > 0 {
		t.eng.RestoreReference(price)
		t.logger.Info("reference price restored", slog.Float64("price", price))
	}
}

// Run processes ticks until the context is cancelled. It persists a final
// snapshot on shutdown.
func (t *Trader) Run(ctx context.Context) error {
	t.logger.Info("trader started", slog.String("symbol", t.cfg.Symbol))
	defer t.logger.Info("trader stopped")

	interval := t.cfg.SnapshotInterval
	if interval <= 0 {
		interval = time.Minute
	}
	snapTicker := time.NewTicker(interval)
	defer snapTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.persistState(context.WithoutCancel(ctx))
			return ctx.Err()

		case tick, ok := <-t.ticks:
			if !ok {
				t.persistState(context.WithoutCancel(ctx))
				return nil
			}
			t.process(ctx, tick)

		case <-snapTicker.C:
			t.persistState(ctx)
		}
	}
}

// process runs one tick through evaluation and executes any resulting intents.
func (t *Trader) process(ctx context.Context, tick domain.PriceTick) {
	if tick.Symbol != "" && tick.Symbol != t.cfg.Symbol {
		return
	}

	if t.prices != nil {
		if err := t.prices.SetPrice(ctx, t.cfg.Symbol, tick.Price, tick.Ts); err != nil {
			t.logger.Warn("price cache update failed", slog.String("error", err.Error()))
		}
	}

	intents := t.eng.Evaluate(tick.Price)
	for _, intent := range intents {
		t.execute(ctx, intent)
	}
}

// execute submits a single intent and drives it to a terminal outcome.
func (t *Trader) execute(ctx context.Context, intent domain.OrderIntent) {
	log := t.logger.With(
		slog.String("intent_id", intent.ID),
		slog.String("action", string(intent.Action)),
		slog.Int64("quantity", intent.Quantity),
		slog.Float64("price", intent.Price),
	)

	if err := t.waitSubmitSlot(ctx); err != nil {
		log.Warn("rate limit wait aborted", slog.String("error", err.Error()))
		t.confirmAndJournal(ctx, intent, "", 0, 0, false, "submission aborted: "+err.Error())
		return
	}

	orderID, err := t.gateway.Submit(ctx, intent.Action, intent.Price, intent.Quantity)
	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrGatewayFailure, err)
		log.Error("order submission failed", slog.String("error", err.Error()))
		t.confirmAndJournal(ctx, intent, "", 0, 0, false, "submission failed: "+err.Error())
		return
	}
	log = log.With(slog.String("order_id", orderID))
	log.Info("order submitted", slog.String("reason", intent.Reason))

	t.eng.Acknowledge(intent, orderID)

	report := t.pollToTerminal(ctx, orderID, log)
	switch {
	case report.Status == domain.FillStatusFilled,
		report.Status == domain.FillStatusPartial && report.FilledQty > 0:
		t.confirmAndJournal(ctx, intent, orderID, report.FilledQty, report.FilledPrice, true, report.Reason)
	case report.Status == domain.FillStatusRejected:
		reason := report.Reason
		if reason == "" {
			reason = "order rejected"
		}
		t.confirmAndJournal(ctx, intent, orderID, 0, 0, false, reason)
	default:
		log.Error("order produced no fill within poll budget")
		t.confirmAndJournal(ctx, intent, orderID, 0, 0, false, timeoutReason)
	}
}

// pollToTerminal polls the gateway up to PollRetries times at PollInterval,
// then makes one final grace check. The last observed report is returned even
// when non-terminal so a partial fill inside the budget is still applied.
func (t *Trader) pollToTerminal(ctx context.Context, orderID string, log *slog.Logger) domain.FillReport {
	var last domain.FillReport

	poll := func() (domain.FillReport, bool) {
		rep, err := t.gateway.PollFill(ctx, orderID)
		if err != nil {
			log.Warn("fill poll failed", slog.String("error", err.Error()))
			return last, false
		}
		return rep, true
	}

	for i := 0; i < t.cfg.PollRetries; i++ {
		if rep, ok := poll(); ok {
			last = rep
			if rep.Terminal() {
				return rep
			}
		}
		if !t.sleep(ctx, t.cfg.PollInterval) {
			return last
		}
	}

	// Final grace check after the last interval elapsed.
	if rep, ok := poll(); ok {
		last = rep
	}
	return last
}

// waitSubmitSlot blocks until the distributed rate limiter grants a
// submission slot, or returns immediately when limiting is disabled.
func (t *Trader) waitSubmitSlot(ctx context.Context) error {
	if t.limiter == nil || t.cfg.SubmitRateLimit <= 0 {
		return nil
	}
	key := "submit:" + t.cfg.Symbol
	for {
		allowed, err := t.limiter.Allow(ctx, key, t.cfg.SubmitRateLimit, time.Second)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		if !t.sleep(ctx, 100*time.Millisecond) {
			return ctx.Err()
		}
	}
}

// confirmAndJournal feeds a terminal outcome into the engine and journals the
// applied result.
func (t *Trader) confirmAndJournal(ctx context.Context, intent domain.OrderIntent, orderID string, qty int64, price float64, success bool, reason string) {
	result := t.eng.Confirm(intent, orderID, qty, price, success, reason)

	if t.fills == nil {
		return
	}
	fill := domain.Fill{
		ID:         uuid.New().String(),
		IntentID:   intent.ID,
		OrderID:    orderID,
		Symbol:     t.cfg.Symbol,
		Action:     intent.Action,
		TierIDs:    intent.TierIDs,
		Quantity:   result.Quantity,
		Price:      price,
		Proceeds:   result.Proceeds,
		Profit:     result.Profit,
		Success:    success,
		Reason:     reason,
		RecordedAt: time.Now().UTC(),
	}
	if err := t.fills.Create(ctx, fill); err != nil {
		t.logger.Warn("fill journal write failed",
			slog.String("intent_id", intent.ID),
			slog.String("error", err.Error()),
		)
	}
}

// persistState saves a snapshot and the current reference price.
func (t *Trader) persistState(ctx context.Context) {
	snap := t.eng.Snapshot()

	if t.snapshots != nil {
		if err := t.snapshots.SaveSnapshot(ctx, snap); err != nil {
			t.logger.Warn("snapshot save failed", slog.String("error", err.Error()))
		}
	}
	if t.refs != nil && snap.ReferencePrice > 0 {
		if err := t.refs.SetReference(ctx, t.cfg.Symbol, snap.ReferencePrice); err != nil {
			t.logger.Warn("reference save failed", slog.String("error", err.Error()))
		}
	}
}

// sleep waits for d, returning false if the context was cancelled first.
func (t *Trader) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
