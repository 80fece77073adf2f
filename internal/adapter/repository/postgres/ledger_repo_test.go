package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/iho/satledger/internal/domain"
)

func TestLedgerRepositoryCheckConsistency(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery("name: CheckLedgerConsistency").
		WillReturnRows(pgxmock.NewRows([]string{"currency", "total", "unbalanced"}).
			AddRow("BTC", int64(0), int64(0)).
			AddRow("USD", int64(7), int64(2)))

	report, err := NewLedgerRepository(mock).CheckConsistency(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Totals[domain.CurrencyBTC] != 0 || report.Totals[domain.CurrencyUSD] != 7 {
		t.Fatalf("unexpected totals: %+v", report.Totals)
	}
	if report.UnbalancedTransactions != 2 {
		t.Fatalf("unbalanced = %d, want 2", report.UnbalancedTransactions)
	}

	assertExpectations(t, mock)
}
