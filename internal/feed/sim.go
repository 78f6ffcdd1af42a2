package feed

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/alanyoungcy/gridbot/internal/domain"
)

const (
	defaultSimInterval   = 500 * time.Millisecond
	defaultSimVolatility = 0.002
)

// Simulator publishes a random-walk price series for paper trading without a
// live market connection. Each step moves the price by a uniform fraction in
// [-volatility, +volatility] of the current price.
type Simulator struct {
	symbol     string
	price      float64
	interval   time.Duration
	volatility float64
	rng        *rand.Rand
	out        chan<- domain.PriceTick
	logger     *slog.Logger
}

// NewSimulator creates a simulator starting at startPrice. Zero interval and
// volatility fall back to defaults.
func NewSimulator(symbol string, startPrice float64, interval time.Duration, volatility float64, out chan<- domain.PriceTick, logger *slog.Logger) *Simulator {
	if interval <= 0 {
		interval = defaultSimInterval
	}
	if volatility <= 0 {
		volatility = defaultSimVolatility
	}
	return &Simulator{
		symbol:     symbol,
		price:      startPrice,
		interval:   interval,
		volatility: volatility,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		out:        out,
		logger:     logger.With(slog.String("component", "sim_feed")),
	}
}

// Run emits one tick per interval until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info("simulated feed started",
		slog.String("symbol", s.symbol),
		slog.Float64("start_price", s.price),
	)
	defer s.logger.Info("simulated feed stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.price = s.step(s.price)
			tick := domain.PriceTick{
				Symbol: s.symbol,
				Price:  s.price,
				Ts:     time.Now().UTC(),
			}
			select {
			case s.out <- tick:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// step applies one random-walk move, never letting the price reach zero.
func (s *Simulator) step(price float64) float64 {
	move := (s.rng.Float64()*2 - 1) * s.volatility
	next := price * (1 + move)
	if next <= 0 {
		return price
	}
	return next
}
