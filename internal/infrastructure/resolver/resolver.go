// Package resolver periodically settles the outcome of Lightning payments
// whose dispatch ended without a verdict from the node.
package resolver

import (
	"context"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
	"github.com/rs/zerolog"
)

const DefaultInterval = time.Minute

// Payments resolves up to limit pending payments and reports how many left
// the pending state.
type Payments interface {
	ResolvePayments(ctx context.Context, limit int) (int, error)
}

// Config configures a Resolver.
type Config struct {
	Payments  Payments
	Interval  time.Duration
	BatchSize int
	Logger    zerolog.Logger
	NewTicker func(time.Duration) ticker.Ticker
}

// Resolver runs one resolution pass per tick.
type Resolver struct {
	payments  Payments
	interval  time.Duration
	batchSize int
	logger    zerolog.Logger
	ticker    ticker.Ticker
}

func New(cfg Config) *Resolver {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = func(d time.Duration) ticker.Ticker { return ticker.New(d) }
	}

	return &Resolver{
		payments:  cfg.Payments,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger.With().Str("component", "payment_resolver").Logger(),
		ticker:    cfg.NewTicker(cfg.Interval),
	}
}

// Start resolves once per tick until ctx is cancelled.
func (r *Resolver) Start(ctx context.Context) {
	r.ticker.Resume()
	defer r.ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("payment resolver started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("payment resolver stopped")
			return
		case <-r.ticker.Ticks():
			r.Resolve(ctx)
		}
	}
}

// Resolve runs a single pass.
func (r *Resolver) Resolve(ctx context.Context) int {
	n, err := r.payments.ResolvePayments(ctx, r.batchSize)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to resolve pending payments")
	}
	if n > 0 {
		r.logger.Info().Int("resolved", n).Msg("resolved pending payments")
	}
	return n
}
