package postgres

import (
	"context"

	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/infrastructure/postgres/generated"
	"github.com/iho/satledger/internal/usecase"
)

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	queries *generated.Queries
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db generated.DBTX) *LedgerRepository {
	return &LedgerRepository{queries: generated.New(db)}
}

// CheckConsistency totals every currency across all legs and counts the
// journals whose legs do not cancel out.
func (r *LedgerRepository) CheckConsistency(ctx context.Context) (*usecase.ConsistencyReport, error) {
	rows, err := r.queries.CheckLedgerConsistency(ctx)
	if err != nil {
		return nil, err
	}

	report := &usecase.ConsistencyReport{Totals: make(map[domain.Currency]int64, len(rows))}
	for _, row := range rows {
		report.Totals[domain.Currency(row.Currency)] = row.Total
		report.UnbalancedTransactions += row.Unbalanced
	}

	return report, nil
}
