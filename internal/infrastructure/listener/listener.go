// Package listener connects node event streams to the reconciliation
// engine.
package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lightningnetwork/lnd/subscribe"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"github.com/iho/satledger/internal/domain"
)

const (
	DefaultWorkers             = 16
	DefaultPollInterval        = time.Minute
	DefaultSettlementPollLimit = 100
)

// NodeStreams is what the listener consumes from one node.
type NodeStreams interface {
	SubscribeInvoiceSettlements(ctx context.Context) (<-chan domain.InvoiceSettlement, <-chan error)
	SubscribeTransactions(ctx context.Context) (<-chan domain.ChainTransaction, <-chan error)
	RecentTransactions(ctx context.Context, depth int32) ([]domain.ChainTransaction, error)
	RecentSettlements(ctx context.Context, limit uint64) ([]domain.InvoiceSettlement, error)
}

// Handler applies node events to the ledger.
type Handler interface {
	HandleChainTransaction(ctx context.Context, nodeID string, tx domain.ChainTransaction) error
	HandleInvoiceSettlement(ctx context.Context, nodeID string, s domain.InvoiceSettlement) error
}

// Config configures a Listener.
type Config struct {
	Nodes   map[string]NodeStreams
	Handler Handler
	Logger  zerolog.Logger

	// Workers bounds concurrent event handling.
	Workers int
	// PollInterval is how often recent transactions and settled invoices
	// are re-read, so deeper confirmations are noticed and settlements that
	// failed to book are retried.
	PollInterval time.Duration
	// PollDepth is how many blocks back each poll looks.
	PollDepth int32
	// SettlementPollLimit is how many of the newest invoices each poll reads.
	SettlementPollLimit uint64

	NewTicker  func(time.Duration) ticker.Ticker
	NewBackOff func() backoff.BackOff
}

// Listener keeps one subscription per node stream, resubscribing with
// backoff when a stream fails, and hands events to a worker pool.
type Listener struct {
	cfg  Config
	pool *ants.Pool
	log  zerolog.Logger

	wg sync.WaitGroup
}

// New creates a Listener and its worker pool.
func New(cfg Config) (*Listener, error) {
	if cfg.Handler == nil {
		return nil, errors.New("listener needs a handler")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollDepth <= 0 {
		cfg.PollDepth = 12
	}
	if cfg.SettlementPollLimit == 0 {
		cfg.SettlementPollLimit = DefaultSettlementPollLimit
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = func(d time.Duration) ticker.Ticker { return ticker.New(d) }
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = time.Minute
			b.MaxElapsedTime = 0
			return b
		}
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &Listener{
		cfg:  cfg,
		pool: pool,
		log:  cfg.Logger.With().Str("component", "listener").Logger(),
	}, nil
}

// Run starts every stream and blocks until ctx is cancelled and all
// in-flight events are handled.
func (l *Listener) Run(ctx context.Context) {
	for id, node := range l.cfg.Nodes {
		id, node := id, node
		l.spawn(func() { l.invoiceLoop(ctx, id, node) })
		l.spawn(func() { l.transactionLoop(ctx, id, node) })
		l.spawn(func() { l.pollLoop(ctx, id, node) })
	}

	l.log.Info().Int("nodes", len(l.cfg.Nodes)).Int("workers", l.cfg.Workers).Msg("listener started")

	<-ctx.Done()
	l.wg.Wait()
	l.pool.Release()
	l.log.Info().Msg("listener stopped")
}

// WatchNodeEvents triggers a catch-up poll whenever a node becomes active.
// It returns when the subscription is cancelled or ctx ends.
func (l *Listener) WatchNodeEvents(ctx context.Context, client *subscribe.Client) {
	for {
		select {
		case update, ok := <-client.Updates():
			if !ok {
				return
			}
			ev, ok := update.(domain.NodeStatusEvent)
			if !ok || ev.Kind != domain.NodeEventStarted {
				continue
			}
			node, ok := l.cfg.Nodes[ev.NodeID]
			if !ok {
				continue
			}
			l.log.Info().Str("node_id", ev.NodeID).Msg("node started, catching up on transactions and settlements")
			l.poll(ctx, ev.NodeID, node)
		case <-client.Quit():
			return
		case <-ctx.Done():
			return
		}
	}
}

func (l *Listener) spawn(fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn()
	}()
}

func (l *Listener) invoiceLoop(ctx context.Context, nodeID string, node NodeStreams) {
	l.resubscribe(ctx, nodeID, "invoices", func() error {
		settlements, errs := node.SubscribeInvoiceSettlements(ctx)
		for s := range settlements {
			l.dispatchSettlement(ctx, nodeID, s)
		}
		return <-errs
	})
}

func (l *Listener) transactionLoop(ctx context.Context, nodeID string, node NodeStreams) {
	l.resubscribe(ctx, nodeID, "transactions", func() error {
		txs, errs := node.SubscribeTransactions(ctx)
		for tx := range txs {
			l.dispatchTx(ctx, nodeID, tx)
		}
		return <-errs
	})
}

func (l *Listener) pollLoop(ctx context.Context, nodeID string, node NodeStreams) {
	t := l.cfg.NewTicker(l.cfg.PollInterval)
	t.Resume()
	defer t.Stop()

	for {
		select {
		case <-t.Ticks():
			l.poll(ctx, nodeID, node)
		case <-ctx.Done():
			return
		}
	}
}

func (l *Listener) poll(ctx context.Context, nodeID string, node NodeStreams) {
	txs, err := node.RecentTransactions(ctx, l.cfg.PollDepth)
	if err != nil {
		if ctx.Err() == nil {
			l.log.Warn().Err(err).Str("node_id", nodeID).Msg("failed to list recent transactions")
		}
	}
	for _, tx := range txs {
		l.dispatchTx(ctx, nodeID, tx)
	}

	settlements, err := node.RecentSettlements(ctx, l.cfg.SettlementPollLimit)
	if err != nil {
		if ctx.Err() == nil {
			l.log.Warn().Err(err).Str("node_id", nodeID).Msg("failed to list recent settlements")
		}
		return
	}
	for _, s := range settlements {
		l.dispatchSettlement(ctx, nodeID, s)
	}
}

func (l *Listener) dispatchSettlement(ctx context.Context, nodeID string, s domain.InvoiceSettlement) {
	l.submit(ctx, nodeID, "invoice", s.PaymentHash, func(ctx context.Context) error {
		return l.cfg.Handler.HandleInvoiceSettlement(ctx, nodeID, s)
	})
}

func (l *Listener) dispatchTx(ctx context.Context, nodeID string, tx domain.ChainTransaction) {
	l.submit(ctx, nodeID, "transaction", tx.Hash, func(ctx context.Context) error {
		return l.cfg.Handler.HandleChainTransaction(ctx, nodeID, tx)
	})
}

// resubscribe runs subscribe until ctx ends. A stream that ends with an
// error is reopened after a backoff delay; a healthy stream resets it.
func (l *Listener) resubscribe(ctx context.Context, nodeID, stream string, subscribe func() error) {
	b := backoff.WithContext(l.cfg.NewBackOff(), ctx)

	for {
		started := time.Now()
		err := subscribe()
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > time.Minute {
			b.Reset()
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			l.log.Error().Err(err).Str("node_id", nodeID).Str("stream", stream).Msg("giving up on node stream")
			return
		}
		l.log.Warn().Err(err).
			Str("node_id", nodeID).
			Str("stream", stream).
			Dur("retry_in", wait).
			Msg("node stream ended, resubscribing")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

// submit hands an event to the pool. Handling errors are logged; the
// event is handled again when the next poll lists it.
func (l *Listener) submit(ctx context.Context, nodeID, kind, hash string, handle func(context.Context) error) {
	l.wg.Add(1)
	err := l.pool.Submit(func() {
		defer l.wg.Done()
		if err := handle(ctx); err != nil && ctx.Err() == nil {
			l.log.Error().Err(err).
				Str("node_id", nodeID).
				Str("kind", kind).
				Str("hash", hash).
				Msg("failed to handle node event")
		}
	})
	if err != nil {
		l.wg.Done()
		l.log.Error().Err(err).Str("node_id", nodeID).Str("hash", hash).Msg("failed to submit node event")
	}
}
