package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/infrastructure/postgres/generated"
	"github.com/iho/satledger/internal/usecase"
)

// JournalRepository implements usecase.JournalRepository.
type JournalRepository struct {
	queries *generated.Queries
}

// NewJournalRepository creates a new JournalRepository.
func NewJournalRepository(db generated.DBTX) *JournalRepository {
	return &JournalRepository{queries: generated.New(db)}
}

// Insert writes the journal row and its legs. The partial unique index on
// hash turns a concurrent duplicate into domain.ErrDuplicateHash; journals
// without a hash never conflict.
func (r *JournalRepository) Insert(ctx context.Context, tx usecase.Transaction, set *domain.LegSet) error {
	q, err := queriesFor(tx)
	if err != nil {
		return err
	}

	err = q.CreateLedgerTransaction(ctx, generated.CreateLedgerTransactionParams{
		ID:        set.TransactionID,
		Hash:      set.Hash,
		Type:      string(set.Type),
		Pending:   set.Pending,
		CreatedAt: timeToPgTimestamptz(set.CreatedAt),
		SettledAt: optionalTimestamptz(set.SettledAt),
	})
	if err != nil {
		if isHashConflict(err) {
			return domain.ErrDuplicateHash
		}
		return fmt.Errorf("insert transaction %s: %w", set.TransactionID, err)
	}

	for _, leg := range set.Legs {
		if err := q.CreateLedgerEntry(ctx, entryParams(leg)); err != nil {
			return fmt.Errorf("insert leg %s: %w", leg.AccountPath, err)
		}
	}

	return nil
}

// GetByHash loads the journal recorded for hash.
func (r *JournalRepository) GetByHash(ctx context.Context, hash string) (*domain.LegSet, error) {
	row, err := r.queries.GetLedgerTransactionByHash(ctx, hash)
	if err != nil {
		return nil, notFound(err)
	}
	return r.load(ctx, r.queries, row)
}

// GetByHashForUpdate loads and row-locks the journal recorded for hash.
func (r *JournalRepository) GetByHashForUpdate(ctx context.Context, tx usecase.Transaction, hash string) (*domain.LegSet, error) {
	q, err := queriesFor(tx)
	if err != nil {
		return nil, err
	}

	row, err := q.GetLedgerTransactionByHashForUpdate(ctx, hash)
	if err != nil {
		return nil, notFound(err)
	}
	return r.load(ctx, q, row)
}

// GetByIDForUpdate loads and row-locks a journal by id.
func (r *JournalRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.LegSet, error) {
	q, err := queriesFor(tx)
	if err != nil {
		return nil, err
	}

	row, err := q.GetLedgerTransactionByIDForUpdate(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return r.load(ctx, q, row)
}

// Settle flips the journal to settled and writes the final legs.
func (r *JournalRepository) Settle(ctx context.Context, tx usecase.Transaction, set *domain.LegSet) error {
	q, err := queriesFor(tx)
	if err != nil {
		return err
	}

	n, err := q.SettleLedgerTransaction(ctx, generated.SettleLedgerTransactionParams{
		ID:        set.TransactionID,
		SettledAt: optionalTimestamptz(set.SettledAt),
	})
	if err != nil {
		return fmt.Errorf("settle transaction %s: %w", set.TransactionID, err)
	}
	if n == 0 {
		return domain.ErrNotPending
	}

	for _, leg := range set.Legs {
		if err := q.SettleLedgerEntry(ctx, entryParams(leg)); err != nil {
			return fmt.Errorf("settle leg %s: %w", leg.AccountPath, err)
		}
	}

	return nil
}

func (r *JournalRepository) load(ctx context.Context, q *generated.Queries, row generated.LedgerTransaction) (*domain.LegSet, error) {
	entries, err := q.GetEntriesByTransaction(ctx, row.ID)
	if err != nil {
		return nil, fmt.Errorf("load legs of %s: %w", row.ID, err)
	}
	return rowsToLegSet(row, entries), nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrTransactionNotFound
	}
	return err
}
