package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/gridbot/internal/domain"
	"github.com/alanyoungcy/gridbot/internal/engine"
	"github.com/alanyoungcy/gridbot/internal/feed"
	"github.com/alanyoungcy/gridbot/internal/gateway"
	"github.com/alanyoungcy/gridbot/internal/notify"
	"github.com/alanyoungcy/gridbot/internal/server"
	"github.com/alanyoungcy/gridbot/internal/server/handler"
	"github.com/alanyoungcy/gridbot/internal/trader"
)

// tradeLockTTL bounds how long a crashed instance keeps the per-symbol trading
// guard. A clean shutdown releases it immediately.
const tradeLockTTL = time.Hour

// archiveCheckInterval is how often trade mode looks for fills old enough to
// move to object storage.
const archiveCheckInterval = 24 * time.Hour

// TradeMode runs the full trading loop against the live market feed: the
// allocation engine, the trader's submit/poll/confirm cycle, periodic fill
// archival, and the status HTTP server. A Redis lock guarantees at most one
// trading instance per symbol.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	// At most one trading instance per symbol. The guard frees itself after
	// the TTL if this process dies without unlocking.
	unlock, err := deps.LockManager.Acquire(ctx, "trader:"+a.cfg.Engine.Symbol, tradeLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("app: another instance is already trading %s", a.cfg.Engine.Symbol)
		}
		return fmt.Errorf("app: acquire trade lock: %w", err)
	}
	a.closers = append(a.closers, unlock)

	g, ctx := errgroup.WithContext(ctx)

	eng := a.buildEngine()
	a.startEventBridge(ctx, g, eng, deps.Notifier)

	ticks := make(chan domain.PriceTick, 256)
	wsFeed := feed.NewTradeFeed(
		a.cfg.Feed.WsURL,
		a.cfg.Engine.Symbol,
		a.cfg.Feed.ReconnectBackoff.Duration,
		ticks,
		a.logger,
	)
	g.Go(func() error {
		defer wsFeed.Close()
		return wsFeed.Run(ctx)
	})

	// Execution gateway. Order placement runs through the simulated gateway
	// until a venue adapter is configured; fills track the live feed prices.
	gw := gateway.NewPaper(a.logger)
	a.logger.InfoContext(ctx, "trade mode uses simulated execution; no venue adapter configured")

	tr := trader.New(trader.Config{
		Symbol:           a.cfg.Engine.Symbol,
		PollRetries:      a.cfg.Trader.PollRetries,
		PollInterval:     a.cfg.Trader.PollInterval.Duration,
		SnapshotInterval: a.cfg.Trader.SnapshotInterval.Duration,
		SubmitRateLimit:  a.cfg.Trader.SubmitRateLimit,
	}, eng, gw, ticks, a.logger)
	tr.SetRateLimiter(deps.RateLimiter)
	tr.SetPriceCache(deps.PriceCache)
	tr.SetReferenceStore(deps.ReferenceStore)
	tr.SetFillStore(deps.FillStore)
	tr.SetSnapshotStore(deps.SnapshotStore)
	tr.Restore(ctx)

	g.Go(func() error {
		return tr.Run(ctx)
	})

	if deps.Archiver != nil && a.cfg.S3.RetentionDays > 0 {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps.Archiver)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, handler.EngineSource(eng), eng, deps.FillStore)
	}

	return g.Wait()
}

// PaperMode runs the same trading loop self-contained: a simulated price feed
// (or the live one when a WebSocket URL is configured), the simulated
// execution gateway, and no external stores. Fills and snapshots stay in
// memory.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode")

	g, ctx := errgroup.WithContext(ctx)

	eng := a.buildEngine()
	a.startEventBridge(ctx, g, eng, deps.Notifier)

	ticks := make(chan domain.PriceTick, 256)
	if a.cfg.Feed.WsURL != "" {
		wsFeed := feed.NewTradeFeed(
			a.cfg.Feed.WsURL,
			a.cfg.Engine.Symbol,
			a.cfg.Feed.ReconnectBackoff.Duration,
			ticks,
			a.logger,
		)
		g.Go(func() error {
			defer wsFeed.Close()
			return wsFeed.Run(ctx)
		})
	} else {
		startPrice := a.cfg.Engine.InitialReferencePrice
		if startPrice <= 0 {
			startPrice = 100
		}
		sim := feed.NewSimulator(a.cfg.Engine.Symbol, startPrice, 0, 0, ticks, a.logger)
		g.Go(func() error {
			return sim.Run(ctx)
		})
	}

	gw := gateway.NewPaper(a.logger)

	tr := trader.New(trader.Config{
		Symbol:           a.cfg.Engine.Symbol,
		PollRetries:      a.cfg.Trader.PollRetries,
		PollInterval:     a.cfg.Trader.PollInterval.Duration,
		SnapshotInterval: a.cfg.Trader.SnapshotInterval.Duration,
		SubmitRateLimit:  a.cfg.Trader.SubmitRateLimit,
	}, eng, gw, ticks, a.logger)

	g.Go(func() error {
		return tr.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, handler.EngineSource(eng), eng, nil)
	}

	return g.Wait()
}

// MonitorMode serves the status API from persisted state without running a
// trading loop. Status endpoints return the latest snapshot the trading
// instance wrote; engine controls are rejected.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	if !a.cfg.Server.Enabled {
		return fmt.Errorf("app: monitor mode requires server.enabled")
	}

	g, ctx := errgroup.WithContext(ctx)

	src := handler.StoreSource(deps.SnapshotStore, a.cfg.Engine.Symbol)
	a.startHTTPServer(ctx, g, src, nil, deps.FillStore)

	return g.Wait()
}

// buildEngine constructs the allocation engine from configuration.
func (a *App) buildEngine() *engine.Engine {
	return engine.New(engine.Config{
		Symbol:                a.cfg.Engine.Symbol,
		TotalTiers:            a.cfg.Engine.TotalTiers,
		BuyIntervalRate:       a.cfg.Engine.BuyIntervalRate,
		SellTargetRate:        a.cfg.Engine.SellTargetRate,
		CapitalPerTier:        a.cfg.Engine.CapitalPerTier,
		TradeTierOne:          a.cfg.Engine.TradeTierOne,
		MaxBatchOrders:        a.cfg.Engine.MaxBatchOrders,
		MinPrice:              a.cfg.Engine.MinPrice,
		MaxOrderQty:           a.cfg.Engine.MaxOrderQty,
		InitialReferencePrice: a.cfg.Engine.InitialReferencePrice,
		InitialCash:           a.cfg.Engine.InitialCash,
	}, a.logger)
}

// startEventBridge forwards engine events to the notifier. The engine emits
// events synchronously under its lock, so the sink only enqueues; a separate
// goroutine does the HTTP delivery. Events are dropped when the queue is full
// rather than stalling the engine.
func (a *App) startEventBridge(ctx context.Context, g *errgroup.Group, eng *engine.Engine, notifier *notify.Notifier) {
	events := make(chan engine.Event, 64)
	eng.OnEvent(func(ev engine.Event) {
		select {
		case events <- ev:
		default:
			a.logger.Warn("event queue full, dropping event", slog.String("type", string(ev.Type)))
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev := <-events:
				title, message := notify.FormatEvent(ev)
				if err := notifier.Notify(ctx, string(ev.Type), title, message); err != nil {
					a.logger.Warn("notification failed",
						slog.String("type", string(ev.Type)),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})
}

// archiveLoop periodically moves fills older than the retention window to
// object storage. One check runs immediately at startup so a long-stopped bot
// catches up without waiting a day.
func (a *App) archiveLoop(ctx context.Context, archiver domain.Archiver) error {
	ticker := time.NewTicker(archiveCheckInterval)
	defer ticker.Stop()

	run := func() {
		cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.S3.RetentionDays)
		n, err := archiver.ArchiveBefore(ctx, cutoff)
		if err != nil {
			a.logger.Warn("fill archival failed",
				slog.Time("cutoff", cutoff),
				slog.String("error", err.Error()),
			)
			return
		}
		if n > 0 {
			a.logger.Info("fills archived", slog.Int("count", n), slog.Time("cutoff", cutoff))
		}
	}

	run()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			run()
		}
	}
}

// startHTTPServer adds the status HTTP server to the errgroup, with a
// companion goroutine that shuts it down when the context is cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	src handler.SnapshotSource,
	ctrl handler.EngineController,
	fills domain.FillStore,
) {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Status: handler.NewStatusHandler(src, ctrl, a.logger),
	}
	if fills != nil {
		handlers.Fills = handler.NewFillHandler(fills, a.cfg.Engine.Symbol, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:   a.cfg.Server.Port,
		APIKey: a.cfg.Server.APIKey,
	}, handlers, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("http server shutdown failed", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}
