// Package sweeper periodically expires open invoices whose payment window
// has passed.
package sweeper

import (
	"context"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/rs/zerolog"
)

const DefaultInterval = 30 * time.Second

// Expirer expires open invoices past their deadline and reports how many
// changed.
type Expirer interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// Config configures a Sweeper. Interval, Clock and NewTicker default to
// DefaultInterval, the system clock and a real ticker.
type Config struct {
	Invoices  Expirer
	Interval  time.Duration
	Clock     clock.Clock
	Logger    zerolog.Logger
	NewTicker func(time.Duration) ticker.Ticker
}

// Sweeper expires open invoices on a fixed interval.
type Sweeper struct {
	invoices Expirer
	interval time.Duration
	clock    clock.Clock
	logger   zerolog.Logger
	ticker   ticker.Ticker
}

// New creates a Sweeper. The ticker stays paused until Start.
func New(cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = func(d time.Duration) ticker.Ticker { return ticker.New(d) }
	}

	return &Sweeper{
		invoices: cfg.Invoices,
		interval: cfg.Interval,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With().Str("component", "invoice_sweeper").Logger(),
		ticker:   cfg.NewTicker(cfg.Interval),
	}
}

// Start sweeps once per tick until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.ticker.Resume()
	defer s.ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("invoice sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("invoice sweeper stopped")
			return
		case <-s.ticker.Ticks():
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single pass.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	n, err := s.invoices.SweepExpired(ctx, s.clock.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to expire invoices")
		return 0
	}
	if n > 0 {
		s.logger.Info().Int64("expired", n).Msg("expired open invoices")
	}
	return n
}
