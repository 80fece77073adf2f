package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func pendingSendSet(amount, fee int64) *LegSet {
	return &LegSet{
		TransactionID: "tx-1",
		Hash:          "hash-1",
		Type:          TxTypeOnchainPayment,
		Pending:       true,
		Legs: []*LedgerEntry{
			{AccountPath: WalletAccountPath("alice"), Currency: CurrencyBTC, Amount: -(amount + fee), Fee: fee, FeeBearer: true},
			{AccountPath: AccountReserve, Currency: CurrencyBTC, Amount: amount, Fee: fee},
			{AccountPath: AccountBankFee, Currency: CurrencyBTC, Amount: fee, Fee: fee},
		},
	}
}

func TestLegSet_Validate(t *testing.T) {
	tests := []struct {
		name        string
		legs        []*LedgerEntry
		expectError bool
	}{
		{
			name: "balanced two legs",
			legs: []*LedgerEntry{
				{AccountPath: WalletAccountPath("a"), Currency: CurrencyBTC, Amount: -100},
				{AccountPath: WalletAccountPath("b"), Currency: CurrencyBTC, Amount: 100},
			},
		},
		{
			name: "single leg",
			legs: []*LedgerEntry{
				{AccountPath: WalletAccountPath("a"), Currency: CurrencyBTC, Amount: 0},
			},
			expectError: true,
		},
		{
			name: "unbalanced",
			legs: []*LedgerEntry{
				{AccountPath: WalletAccountPath("a"), Currency: CurrencyBTC, Amount: -100},
				{AccountPath: WalletAccountPath("b"), Currency: CurrencyBTC, Amount: 99},
			},
			expectError: true,
		},
		{
			name: "balanced overall but not per currency",
			legs: []*LedgerEntry{
				{AccountPath: WalletAccountPath("a"), Currency: CurrencyBTC, Amount: -100},
				{AccountPath: WalletAccountPath("b"), Currency: CurrencyUSD, Amount: 100},
			},
			expectError: true,
		},
		{
			name: "balanced per currency with conversion",
			legs: []*LedgerEntry{
				{AccountPath: AccountReserve, Currency: CurrencyBTC, Amount: -2000},
				{AccountPath: DealerAccountPath(CurrencyBTC), Currency: CurrencyBTC, Amount: 2000},
				{AccountPath: DealerAccountPath(CurrencyUSD), Currency: CurrencyUSD, Amount: -60},
				{AccountPath: WalletAccountPath("b"), Currency: CurrencyUSD, Amount: 60},
			},
		},
		{
			name: "duplicate account",
			legs: []*LedgerEntry{
				{AccountPath: WalletAccountPath("a"), Currency: CurrencyBTC, Amount: -100},
				{AccountPath: WalletAccountPath("a"), Currency: CurrencyBTC, Amount: 100},
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := &LegSet{Legs: tt.legs}
			err := set.Validate()

			if tt.expectError && !errors.Is(err, ErrUnbalancedTransaction) {
				t.Fatalf("expected ErrUnbalancedTransaction, got %v", err)
			}
			if !tt.expectError && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLegSet_SettleAbsorbsFeeDifference(t *testing.T) {
	set := pendingSendSet(10040, 300)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := set.Settle(180, decimal.RequireFromString("0.11"), at); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	if set.Pending {
		t.Fatal("expected set to be settled")
	}
	if got := set.Leg(WalletAccountPath("alice")).Amount; got != -(10040 + 180) {
		t.Fatalf("expected payer leg -10220, got %d", got)
	}
	if got := set.Leg(AccountReserve).Amount; got != 10040 {
		t.Fatalf("payee leg must not change, got %d", got)
	}
	if got := set.Leg(AccountBankFee).Amount; got != 180 {
		t.Fatalf("expected fee leg 180, got %d", got)
	}
	for _, leg := range set.Legs {
		if leg.Pending || leg.SettledAt == nil || !leg.SettledAt.Equal(at) {
			t.Fatalf("leg %s not settled: %+v", leg.AccountPath, leg)
		}
		if leg.Fee != 180 {
			t.Fatalf("expected fee 180 on %s, got %d", leg.AccountPath, leg.Fee)
		}
	}
}

func TestLegSet_SettleAddsFeeLegWhenMissing(t *testing.T) {
	set := &LegSet{
		TransactionID: "tx-2",
		Pending:       true,
		Legs: []*LedgerEntry{
			{AccountPath: WalletAccountPath("bob"), Currency: CurrencyBTC, Amount: 5000, FeeBearer: true},
			{AccountPath: AccountReserve, Currency: CurrencyBTC, Amount: -5000},
		},
	}

	if err := set.Settle(10, decimal.Zero, time.Now()); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	if len(set.Legs) != 3 {
		t.Fatalf("expected fee leg to be appended, got %d legs", len(set.Legs))
	}
	if got := set.Leg(WalletAccountPath("bob")).Amount; got != 4990 {
		t.Fatalf("expected 4990, got %d", got)
	}
}

func TestLegSet_SettleTwiceFails(t *testing.T) {
	set := pendingSendSet(100, 1)
	if err := set.Settle(1, decimal.Zero, time.Now()); err != nil {
		t.Fatalf("first settle failed: %v", err)
	}

	if err := set.Settle(1, decimal.Zero, time.Now()); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
}

func TestLegSet_StampDerivesWalletID(t *testing.T) {
	set := pendingSendSet(100, 1)
	set.CreatedAt = time.Now()
	set.Stamp()

	payer := set.Leg(WalletAccountPath("alice"))
	if payer.WalletID != "alice" || payer.TransactionID != "tx-1" || payer.Hash != "hash-1" {
		t.Fatalf("unexpected stamped leg: %+v", payer)
	}
	if reserve := set.Leg(AccountReserve); reserve.WalletID != "" {
		t.Fatalf("system leg must not carry a wallet id, got %q", reserve.WalletID)
	}
}
