package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/infrastructure/postgres/generated"
	"github.com/iho/satledger/internal/usecase"
)

const maxListLimit = 1000

// EntryRepository implements usecase.EntryRepository.
type EntryRepository struct {
	queries *generated.Queries
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(db generated.DBTX) *EntryRepository {
	return &EntryRepository{queries: generated.New(db)}
}

// Balance sums the legs of one account under the requested view.
func (r *EntryRepository) Balance(ctx context.Context, query usecase.BalanceQuery) (int64, error) {
	view := query.View
	if view == "" {
		view = usecase.BalanceSpendable
	}

	return r.queries.GetAccountBalance(ctx, generated.GetAccountBalanceParams{
		AccountPath: query.AccountPath,
		Currency:    string(query.Currency),
		AsOf:        optionalTimestamptz(query.AsOf),
		View:        string(view),
	})
}

// List returns matching legs, newest first.
func (r *EntryRepository) List(ctx context.Context, filter usecase.EntryFilter) ([]*domain.LedgerEntry, error) {
	var pending pgtype.Bool
	if filter.Pending != nil {
		pending = pgtype.Bool{Bool: *filter.Pending, Valid: true}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = maxListLimit
	}

	rows, err := r.queries.ListLedgerEntries(ctx, generated.ListLedgerEntriesParams{
		AccountPath: filter.AccountPath,
		WalletID:    filter.WalletID,
		Hash:        filter.Hash,
		Type:        string(filter.Type),
		Pending:     pending,
		Limit:       int32(limit),
		Offset:      int32(filter.Offset),
	})
	if err != nil {
		return nil, err
	}

	entries := make([]*domain.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, rowToEntry(row))
	}

	return entries, nil
}
