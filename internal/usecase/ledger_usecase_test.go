package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"

	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/usecase"
	"github.com/iho/satledger/internal/usecase/mocks"
)

func pendingSend(hash string, amount, fee int64) *domain.LegSet {
	legs := []*domain.LedgerEntry{
		{AccountPath: domain.WalletAccountPath(alice), Currency: domain.CurrencyBTC, Amount: -(amount + fee), Fee: fee, FeeBearer: true},
		{AccountPath: domain.AccountReserve, Currency: domain.CurrencyBTC, Amount: amount},
	}
	if fee > 0 {
		legs = append(legs, &domain.LedgerEntry{AccountPath: domain.AccountBankFee, Currency: domain.CurrencyBTC, Amount: fee})
	}
	return &domain.LegSet{Hash: hash, Type: domain.TxTypeOnchainPayment, Pending: true, Legs: legs}
}

func TestLedgerUseCase_RecordTransaction(t *testing.T) {
	tests := []struct {
		name      string
		existing  *domain.LegSet
		set       *domain.LegSet
		wantErr   error
		wantTotal int64
	}{
		{
			name: "balanced transaction is written",
			set: &domain.LegSet{
				Hash: "h1",
				Type: domain.TxTypeOnchainReceipt,
				Legs: []*domain.LedgerEntry{
					{AccountPath: domain.AccountReserve, Currency: domain.CurrencyBTC, Amount: -500},
					{AccountPath: domain.WalletAccountPath(alice), Currency: domain.CurrencyBTC, Amount: 500},
				},
			},
			wantTotal: 500,
		},
		{
			name: "unbalanced transaction is rejected",
			set: &domain.LegSet{
				Type: domain.TxTypeOnchainReceipt,
				Legs: []*domain.LedgerEntry{
					{AccountPath: domain.AccountReserve, Currency: domain.CurrencyBTC, Amount: -500},
					{AccountPath: domain.WalletAccountPath(alice), Currency: domain.CurrencyBTC, Amount: 499},
				},
			},
			wantErr: domain.ErrUnbalancedTransaction,
		},
		{
			name: "single leg is rejected",
			set: &domain.LegSet{
				Type: domain.TxTypeOnchainReceipt,
				Legs: []*domain.LedgerEntry{
					{AccountPath: domain.WalletAccountPath(alice), Currency: domain.CurrencyBTC},
				},
			},
			wantErr: domain.ErrUnbalancedTransaction,
		},
		{
			name: "hash owned by settled transaction",
			existing: &domain.LegSet{
				Hash: "h2",
				Type: domain.TxTypeOnchainReceipt,
				Legs: []*domain.LedgerEntry{
					{AccountPath: domain.AccountReserve, Currency: domain.CurrencyBTC, Amount: -100},
					{AccountPath: domain.WalletAccountPath(alice), Currency: domain.CurrencyBTC, Amount: 100},
				},
			},
			set: &domain.LegSet{
				Hash: "h2",
				Type: domain.TxTypeOnchainReceipt,
				Legs: []*domain.LedgerEntry{
					{AccountPath: domain.AccountReserve, Currency: domain.CurrencyBTC, Amount: -100},
					{AccountPath: domain.WalletAccountPath(alice), Currency: domain.CurrencyBTC, Amount: 100},
				},
			},
			wantErr:   domain.ErrDuplicateHash,
			wantTotal: 100,
		},
		{
			name:     "hash owned by pending transaction",
			existing: pendingSend("h3", 1000, 0),
			set:      pendingSend("h3", 1000, 0),
			wantErr:  domain.ErrHashPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			if tt.existing != nil {
				if _, err := h.ledger.RecordTransaction(ctx, tt.existing); err != nil {
					t.Fatalf("seed: %v", err)
				}
			}

			id, err := h.ledger.RecordTransaction(ctx, tt.set)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if id == "" {
					t.Fatalf("expected transaction id")
				}
			}

			got := h.balance(t, domain.WalletAccountPath(alice), domain.CurrencyBTC, usecase.BalanceSettled)
			if got != tt.wantTotal {
				t.Fatalf("settled balance = %d, want %d", got, tt.wantTotal)
			}
			h.assertConsistent(t)
		})
	}
}

func TestLedgerUseCase_RecordTransactionStampsLegs(t *testing.T) {
	h := newHarness(t)

	set := pendingSend("stamp", 1000, 10)
	id, err := h.ledger.RecordTransaction(context.Background(), set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, leg := range set.Legs {
		if leg.ID == "" || leg.TransactionID != id {
			t.Fatalf("leg not stamped: %+v", leg)
		}
		if !leg.Pending || leg.Hash != "stamp" || leg.Type != domain.TxTypeOnchainPayment {
			t.Fatalf("transaction fields not copied: %+v", leg)
		}
		if !leg.Timestamp.Equal(testStart) {
			t.Fatalf("timestamp = %v, want %v", leg.Timestamp, testStart)
		}
	}
	if set.Legs[0].WalletID != alice {
		t.Fatalf("wallet id = %q, want %q", set.Legs[0].WalletID, alice)
	}
	if set.Legs[1].WalletID != "" {
		t.Fatalf("system leg got wallet id %q", set.Legs[1].WalletID)
	}

	events := h.store.Events()
	if len(events) != 1 || events[0].EventType != domain.EventTypeTransactionRecorded {
		t.Fatalf("expected one recorded event, got %+v", events)
	}
}

func TestLedgerUseCase_BalanceViews(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, alice, 5000)

	// Pending debit of 1000 + 10 fee and a pending credit of 700.
	if _, err := h.ledger.RecordTransaction(ctx, pendingSend("out", 1000, 10)); err != nil {
		t.Fatalf("send: %v", err)
	}
	_, err := h.ledger.RecordTransaction(ctx, &domain.LegSet{
		Hash:    "in",
		Type:    domain.TxTypeOnchainReceipt,
		Pending: true,
		Legs: []*domain.LedgerEntry{
			{AccountPath: domain.AccountReserve, Currency: domain.CurrencyBTC, Amount: -700},
			{AccountPath: domain.WalletAccountPath(alice), Currency: domain.CurrencyBTC, Amount: 700},
		},
	})
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}

	path := domain.WalletAccountPath(alice)
	tests := []struct {
		view usecase.BalanceView
		want int64
	}{
		{view: usecase.BalanceSettled, want: 5000},
		{view: usecase.BalanceIncludingPending, want: 5000 - 1010 + 700},
		{view: usecase.BalanceSpendable, want: 5000 - 1010},
	}

	for _, tt := range tests {
		t.Run(string(tt.view), func(t *testing.T) {
			if got := h.balance(t, path, domain.CurrencyBTC, tt.view); got != tt.want {
				t.Fatalf("balance = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLedgerUseCase_BalanceAsOf(t *testing.T) {
	h := newHarness(t)
	h.fund(t, alice, 5000)

	h.clock.SetTime(testStart.Add(time.Hour))
	h.fund(t, alice, 300)

	asOf := testStart.Add(time.Minute)
	got, err := h.ledger.GetBalance(context.Background(), usecase.BalanceQuery{
		AccountPath: domain.WalletAccountPath(alice),
		Currency:    domain.CurrencyBTC,
		AsOf:        &asOf,
		View:        usecase.BalanceSettled,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 5000 {
		t.Fatalf("balance as of %v = %d, want 5000", asOf, got)
	}
}

func TestLedgerUseCase_SettlePending(t *testing.T) {
	tests := []struct {
		name       string
		quotedFee  int64
		finalFee   int64
		wantWallet int64
		wantFee    int64
	}{
		{name: "final fee above quote", quotedFee: 100, finalFee: 150, wantWallet: -10150, wantFee: 150},
		{name: "final fee below quote", quotedFee: 100, finalFee: 40, wantWallet: -10040, wantFee: 40},
		{name: "fee leg appended when nothing was quoted", quotedFee: 0, finalFee: 25, wantWallet: -10025, wantFee: 25},
		{name: "fee unchanged", quotedFee: 40, finalFee: 40, wantWallet: -10040, wantFee: 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			id, err := h.ledger.RecordTransaction(ctx, pendingSend("tx-"+tt.name, 10000, tt.quotedFee))
			if err != nil {
				t.Fatalf("record: %v", err)
			}

			confirmedAt := testStart.Add(time.Hour)
			set, err := h.ledger.SettlePending(ctx, usecase.SettleInput{
				TransactionID: id,
				FinalFee:      tt.finalFee,
				FeeUsd:        decimal.RequireFromString("0.02"),
				ConfirmedAt:   confirmedAt,
			})
			if err != nil {
				t.Fatalf("settle: %v", err)
			}
			if set.Pending || set.SettledAt == nil || !set.SettledAt.Equal(confirmedAt) {
				t.Fatalf("set not settled: %+v", set)
			}

			path := domain.WalletAccountPath(alice)
			if got := h.balance(t, path, domain.CurrencyBTC, usecase.BalanceSettled); got != tt.wantWallet {
				t.Fatalf("wallet = %d, want %d", got, tt.wantWallet)
			}
			if got := h.balance(t, domain.AccountBankFee, domain.CurrencyBTC, usecase.BalanceSettled); got != tt.wantFee {
				t.Fatalf("fee account = %d, want %d", got, tt.wantFee)
			}
			if got := h.balance(t, domain.AccountReserve, domain.CurrencyBTC, usecase.BalanceSettled); got != 10000 {
				t.Fatalf("reserve = %d, want 10000", got)
			}
			for _, leg := range set.Legs {
				if leg.Fee != tt.finalFee || !leg.FeeUsd.Equal(decimal.RequireFromString("0.02")) {
					t.Fatalf("leg fee not updated: %+v", leg)
				}
			}
			h.assertConsistent(t)

			_, err = h.ledger.SettlePending(ctx, usecase.SettleInput{TransactionID: id, FinalFee: tt.finalFee})
			if !errors.Is(err, domain.ErrNotPending) {
				t.Fatalf("second settle: expected ErrNotPending, got %v", err)
			}
		})
	}
}

func TestLedgerUseCase_SettlePendingUnknown(t *testing.T) {
	h := newHarness(t)

	_, err := h.ledger.SettlePending(context.Background(), usecase.SettleInput{TransactionID: "missing"})
	if !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestLedgerUseCase_ListEntries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.fund(t, alice, 1000)
	h.clock.SetTime(testStart.Add(time.Minute))
	h.fund(t, bob, 2000)
	h.clock.SetTime(testStart.Add(2 * time.Minute))
	if _, err := h.ledger.RecordTransaction(ctx, pendingSend("p", 100, 0)); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := h.ledger.ListEntries(ctx, usecase.EntryFilter{WalletID: alice})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Hash != "p" {
		t.Fatalf("expected newest entry first, got %+v", entries[0])
	}

	pending := true
	entries, err = h.ledger.ListEntries(ctx, usecase.EntryFilter{Pending: &pending})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected both legs of the pending send, got %d", len(entries))
	}

	if _, err := h.ledger.ListEntries(ctx, usecase.EntryFilter{Limit: -1}); !errors.Is(err, domain.ErrInvalidPageParam) {
		t.Fatalf("expected ErrInvalidPageParam, got %v", err)
	}
}

func TestLedgerUseCase_RecordTransactionRollsBackOnStorageError(t *testing.T) {
	ctrl := gomock.NewController(t)

	txManager := mocks.NewMockTransactionManager(ctrl)
	tx := mocks.NewMockTransaction(ctrl)
	journal := mocks.NewMockJournalRepository(ctrl)
	outbox := mocks.NewMockOutboxRepository(ctrl)
	idGen := mocks.NewMockIDGenerator(ctrl)

	idGen.EXPECT().Generate().Return("id").AnyTimes()
	txManager.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	journal.EXPECT().GetByHashForUpdate(gomock.Any(), tx, "h").Return(nil, domain.ErrTransactionNotFound)
	journal.EXPECT().Insert(gomock.Any(), tx, gomock.Any()).Return(errors.New("db down"))
	tx.EXPECT().Rollback(gomock.Any()).Return(nil)

	uc := usecase.NewLedgerUseCase(txManager, journal, nil, nil, outbox, idGen)

	_, err := uc.RecordTransaction(context.Background(), &domain.LegSet{
		Hash: "h",
		Type: domain.TxTypeOnchainReceipt,
		Legs: []*domain.LedgerEntry{
			{AccountPath: domain.AccountReserve, Currency: domain.CurrencyBTC, Amount: -1},
			{AccountPath: domain.WalletAccountPath(alice), Currency: domain.CurrencyBTC, Amount: 1},
		},
	})
	if err == nil || err.Error() != "db down" {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestLedgerUseCase_RecordTransactionRetries(t *testing.T) {
	ctrl := gomock.NewController(t)

	retrier := mocks.NewMockRetrier(ctrl)
	retrier.EXPECT().Retry(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, op func() error) error {
		if err := op(); err == nil {
			t.Fatalf("expected first attempt to fail")
		}
		return op()
	})

	txManager := mocks.NewMockTransactionManager(ctrl)
	tx := mocks.NewMockTransaction(ctrl)
	journal := mocks.NewMockJournalRepository(ctrl)
	outbox := mocks.NewMockOutboxRepository(ctrl)

	txManager.EXPECT().Begin(gomock.Any()).Return(tx, nil).Times(2)
	journal.EXPECT().GetByHashForUpdate(gomock.Any(), tx, "h").Return(nil, domain.ErrTransactionNotFound).Times(2)
	gomock.InOrder(
		journal.EXPECT().Insert(gomock.Any(), tx, gomock.Any()).Return(errors.New("serialization failure")),
		journal.EXPECT().Insert(gomock.Any(), tx, gomock.Any()).Return(nil),
	)
	outbox.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(nil)
	tx.EXPECT().Commit(gomock.Any()).Return(nil)
	tx.EXPECT().Rollback(gomock.Any()).Return(nil).Times(2)

	uc := usecase.NewLedgerUseCase(txManager, journal, nil, nil, outbox, &seqIDs{},
		usecase.WithLedgerRetrier(retrier),
	)

	_, err := uc.RecordTransaction(context.Background(), &domain.LegSet{
		Hash: "h",
		Type: domain.TxTypeOnchainReceipt,
		Legs: []*domain.LedgerEntry{
			{AccountPath: domain.AccountReserve, Currency: domain.CurrencyBTC, Amount: -1},
			{AccountPath: domain.WalletAccountPath(alice), Currency: domain.CurrencyBTC, Amount: 1},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLedgerUseCase_CheckConsistency(t *testing.T) {
	tests := []struct {
		name        string
		report      *usecase.ConsistencyReport
		repoErr     error
		want        bool
		expectedErr error
	}{
		{
			name:   "balanced ledger",
			report: &usecase.ConsistencyReport{Totals: map[domain.Currency]int64{domain.CurrencyBTC: 0, domain.CurrencyUSD: 0}},
			want:   true,
		},
		{
			name:        "repo error surfaces",
			repoErr:     errors.New("db down"),
			expectedErr: errors.New("db down"),
		},
		{
			name:        "non-zero currency total",
			report:      &usecase.ConsistencyReport{Totals: map[domain.Currency]int64{domain.CurrencyBTC: 10}},
			expectedErr: domain.ErrInconsistentLedger,
		},
		{
			name:        "unbalanced journal",
			report:      &usecase.ConsistencyReport{Totals: map[domain.Currency]int64{}, UnbalancedTransactions: 1},
			expectedErr: domain.ErrInconsistentLedger,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := mocks.NewMockLedgerRepository(ctrl)
			repo.EXPECT().CheckConsistency(gomock.Any()).Return(tt.report, tt.repoErr)

			uc := usecase.NewLedgerUseCase(nil, nil, nil, repo, nil, nil)
			report, err := uc.CheckConsistency(context.Background())

			if tt.expectedErr != nil {
				if err == nil || err.Error() != tt.expectedErr.Error() {
					t.Fatalf("expected error %v, got %v", tt.expectedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if report.Consistent != tt.want {
				t.Fatalf("Consistent = %v, want %v", report.Consistent, tt.want)
			}
		})
	}
}
