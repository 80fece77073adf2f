package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/iho/satledger/internal/domain"
)

func TestWalletRepositoryGetByAddress(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock := newMockPool(t)
	mock.ExpectQuery("name: GetWalletByAddress").
		WithArgs("bc1qalice").
		WillReturnRows(pgxmock.NewRows([]string{"id", "currency", "created_at"}).
			AddRow("alice", "BTC", timeToPgTimestamptz(now)))
	mock.ExpectQuery("name: GetWalletByAddress").
		WithArgs("bc1qexternal").
		WillReturnError(pgx.ErrNoRows)

	repo := NewWalletRepository(mock)

	wallet, err := repo.GetByAddress(context.Background(), "bc1qalice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wallet.ID != "alice" || wallet.Currency != domain.CurrencyBTC {
		t.Fatalf("unexpected wallet: %+v", wallet)
	}

	_, err = repo.GetByAddress(context.Background(), "bc1qexternal")
	if !errors.Is(err, domain.ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}

	assertExpectations(t, mock)
}

func TestWalletRepositoryCreate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock := newMockPool(t)
	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec("name: CreateWallet").
		WithArgs("alice", "BTC", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("name: AddWalletAddress").
		WithArgs("bc1qalice", "alice", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	tx, err := newTxManagerWithPool(mock, WithLockTimeout(0)).Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	err = NewWalletRepository(mock).Create(ctx, tx, domain.Wallet{ID: "alice", Currency: domain.CurrencyBTC}, []string{"bc1qalice"}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	assertExpectations(t, mock)
}
