package domain

import "testing"

func TestWalletIDFromPath(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		wantID string
		wantOK bool
	}{
		{name: "wallet account", path: WalletAccountPath("w1"), wantID: "w1", wantOK: true},
		{name: "reserve", path: AccountReserve},
		{name: "fee account", path: AccountBankFee},
		{name: "dealer", path: DealerAccountPath(CurrencyUSD)},
		{name: "empty wallet id", path: "Liabilities:Wallets:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := WalletIDFromPath(tt.path)
			if ok != tt.wantOK || id != tt.wantID {
				t.Errorf("WalletIDFromPath(%q) = %q, %v; want %q, %v", tt.path, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestIsSystemAccount(t *testing.T) {
	for _, path := range []string{AccountReserve, AccountBankFee, DealerAccountPath(CurrencyBTC)} {
		if !IsSystemAccount(path) {
			t.Errorf("expected %s to be a system account", path)
		}
	}

	if IsSystemAccount(WalletAccountPath("w1")) {
		t.Error("wallet account reported as system account")
	}
}
