package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"

	"github.com/iho/satledger/internal/domain"
)

var entryColumns = []string{
	"id", "transaction_id", "account_path", "wallet_id", "currency", "amount", "pending", "hash", "type",
	"fee", "fee_usd", "usd", "memo", "memo_from_payer", "fee_bearer", "fee_known_in_advance",
	"payment_hash", "address", "tx_hash", "pubkey", "recipient_wallet_id", "timestamp", "settled_at",
}

// errPgUnique marks cases expecting a raw unique violation.
var errPgUnique = errors.New("unique violation")

var transactionColumns = []string{"id", "hash", "type", "pending", "created_at", "settled_at"}

func sampleSet(now time.Time) *domain.LegSet {
	return &domain.LegSet{
		TransactionID: "tx-1",
		Hash:          "abc123",
		Type:          domain.TxTypeOnchainPayment,
		Pending:       true,
		CreatedAt:     now,
		Legs: []*domain.LedgerEntry{
			{ID: "tx-1-0", TransactionID: "tx-1", AccountPath: domain.WalletAccountPath("alice"), WalletID: "alice", Currency: domain.CurrencyBTC, Amount: -1500, Pending: true, Hash: "abc123", Type: domain.TxTypeOnchainPayment, Fee: 500, FeeBearer: true, Timestamp: now},
			{ID: "tx-1-1", TransactionID: "tx-1", AccountPath: domain.AccountReserve, Currency: domain.CurrencyBTC, Amount: 1000, Pending: true, Hash: "abc123", Type: domain.TxTypeOnchainPayment, Timestamp: now},
			{ID: "tx-1-2", TransactionID: "tx-1", AccountPath: domain.AccountBankFee, Currency: domain.CurrencyBTC, Amount: 500, Pending: true, Hash: "abc123", Type: domain.TxTypeOnchainPayment, Timestamp: now},
		},
	}
}

func entryRow(rows *pgxmock.Rows, leg *domain.LedgerEntry) *pgxmock.Rows {
	return rows.AddRow(
		leg.ID, leg.TransactionID, leg.AccountPath, leg.WalletID, string(leg.Currency), leg.Amount, leg.Pending, leg.Hash, string(leg.Type),
		leg.Fee, decimalToNumeric(decimal.Zero), decimalToNumeric(decimal.Zero), leg.Memo, leg.MemoFromPayer, leg.FeeBearer, leg.FeeKnownInAdvance,
		leg.PaymentHash, leg.Address, leg.TxHash, leg.Pubkey, leg.RecipientWalletID, timeToPgTimestamptz(leg.Timestamp), pgtype.Timestamptz{},
	)
}

func TestJournalRepositoryInsert(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		setup   func(mock pgxmock.PgxPoolIface)
		wantErr error
	}{
		{
			name: "journal and legs written",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("name: CreateLedgerTransaction").
					WithArgs("tx-1", "abc123", "onchain_payment", true, pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				for i := 0; i < 3; i++ {
					mock.ExpectExec("name: CreateLedgerEntry").WillReturnResult(pgxmock.NewResult("INSERT", 1))
				}
			},
		},
		{
			name: "hash already recorded",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("name: CreateLedgerTransaction").
					WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "ledger_transactions_hash_key"})
			},
			wantErr: domain.ErrDuplicateHash,
		},
		{
			name: "transaction id collision is not a duplicate hash",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("name: CreateLedgerTransaction").
					WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "ledger_transactions_pkey"})
			},
			wantErr: errPgUnique,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			mock.ExpectBeginTx(readCommitted)
			tt.setup(mock)

			tx, err := newTxManagerWithPool(mock, WithLockTimeout(0)).Begin(ctx)
			if err != nil {
				t.Fatalf("begin: %v", err)
			}

			repo := NewJournalRepository(mock)
			err = repo.Insert(ctx, tx, sampleSet(now))
			if tt.wantErr == errPgUnique {
				if err == nil || errors.Is(err, domain.ErrDuplicateHash) {
					t.Fatalf("expected a plain storage error, got %v", err)
				}
			} else if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}

			assertExpectations(t, mock)
		})
	}
}

func TestJournalRepositoryGetByHash(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	set := sampleSet(now)

	mock := newMockPool(t)
	mock.ExpectQuery("name: GetLedgerTransactionByHash :one").
		WithArgs("abc123").
		WillReturnRows(pgxmock.NewRows(transactionColumns).
			AddRow("tx-1", "abc123", "onchain_payment", true, timeToPgTimestamptz(now), pgtype.Timestamptz{}))

	rows := pgxmock.NewRows(entryColumns)
	for _, leg := range set.Legs {
		rows = entryRow(rows, leg)
	}
	mock.ExpectQuery("name: GetEntriesByTransaction").WithArgs("tx-1").WillReturnRows(rows)

	got, err := NewJournalRepository(mock).GetByHash(ctx, "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.TransactionID != "tx-1" || !got.Pending || got.SettledAt != nil {
		t.Fatalf("unexpected journal: %+v", got)
	}
	if len(got.Legs) != 3 {
		t.Fatalf("expected 3 legs, got %d", len(got.Legs))
	}
	if bearer := got.FeeBearerLeg(); bearer == nil || bearer.Amount != -1500 || bearer.Fee != 500 {
		t.Fatalf("fee bearer not restored: %+v", bearer)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("loaded journal does not balance: %v", err)
	}

	assertExpectations(t, mock)
}

func TestJournalRepositoryGetByHashNotFound(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery("name: GetLedgerTransactionByHash :one").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	_, err := NewJournalRepository(mock).GetByHash(context.Background(), "missing")
	if !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}

	assertExpectations(t, mock)
}

func TestJournalRepositorySettle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{name: "pending journal settled", affected: 1},
		{name: "already settled", affected: 0, wantErr: domain.ErrNotPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := sampleSet(now)
			if err := set.Settle(450, decimal.Zero, now.Add(time.Hour)); err != nil {
				t.Fatalf("settle in memory: %v", err)
			}

			mock := newMockPool(t)
			mock.ExpectBeginTx(readCommitted)
			mock.ExpectExec("name: SettleLedgerTransaction").
				WithArgs("tx-1", pgxmock.AnyArg()).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))
			if tt.wantErr == nil {
				for range set.Legs {
					mock.ExpectExec("name: SettleLedgerEntry").WillReturnResult(pgxmock.NewResult("INSERT", 1))
				}
			}

			tx, err := newTxManagerWithPool(mock, WithLockTimeout(0)).Begin(ctx)
			if err != nil {
				t.Fatalf("begin: %v", err)
			}

			err = NewJournalRepository(mock).Settle(ctx, tx, set)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}

			assertExpectations(t, mock)
		})
	}
}

func TestJournalRepositoryRejectsForeignTransaction(t *testing.T) {
	mock := newMockPool(t)

	err := NewJournalRepository(mock).Insert(context.Background(), fakeTx{}, sampleSet(time.Now()))
	if err == nil {
		t.Fatalf("expected error for non-postgres transaction")
	}
}

type fakeTx struct{}

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }
