package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/satledger/internal/usecase"
)

// DefaultLockTimeout bounds how long a ledger write waits for a journal
// row another settlement holds.
const DefaultLockTimeout = 5 * time.Second

type txBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// TxManager implements usecase.TransactionManager. A journal insert, its
// legs and its outbox event commit together in one read-committed
// transaction; settlements serialize on the journal row lock instead of
// the isolation level.
type TxManager struct {
	pool        txBeginner
	lockTimeout time.Duration
}

// TxOption customizes a TxManager.
type TxOption func(*TxManager)

// WithLockTimeout sets the lock timeout of every transaction. Zero disables
// it.
func WithLockTimeout(d time.Duration) TxOption {
	return func(m *TxManager) { m.lockTimeout = d }
}

func NewTxManager(pool *pgxpool.Pool, opts ...TxOption) *TxManager {
	return newTxManagerWithPool(pool, opts...)
}

func newTxManagerWithPool(pool txBeginner, opts ...TxOption) *TxManager {
	m := &TxManager{pool: pool, lockTimeout: DefaultLockTimeout}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin opens a ledger transaction. A lock wait past the timeout fails
// with SQLSTATE 55P03, which the Retrier replays.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}

	if m.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", m.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("set lock timeout: %w", err)
		}
	}

	return &Tx{tx: tx}, nil
}

// Tx is one open ledger transaction. Repositories reach the pgx handle
// through PgxTx.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *Tx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

func (t *Tx) PgxTx() pgx.Tx {
	return t.tx
}
