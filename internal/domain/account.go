package domain

import "strings"

// System account paths.
const (
	// AccountReserve holds the funds custodied by the backing nodes. It is
	// the counterparty of every external send and receive.
	AccountReserve = "Assets:Reserve:Lightning"
	// AccountBankFee collects network fees paid by wallets.
	AccountBankFee = "Revenue:Bank:Fees"

	dealerAccountPrefix = "Liabilities:Dealer:"
	walletAccountPrefix = "Liabilities:Wallets:"
)

// Account identifies a ledger participant. Balances are derived from entries.
type Account struct {
	Path     string
	Currency Currency
}

// Wallet is a customer wallet as known to the account directory.
type Wallet struct {
	ID       string
	Currency Currency
}

// AccountPath returns the ledger account of the wallet.
func (w Wallet) AccountPath() string {
	return WalletAccountPath(w.ID)
}

// WalletAccountPath returns the ledger account path of a wallet.
func WalletAccountPath(walletID string) string {
	return walletAccountPrefix + walletID
}

// DealerAccountPath returns the conversion account used for USD wallets.
// There is one per currency so a conversion can carry a leg in each.
func DealerAccountPath(c Currency) string {
	return dealerAccountPrefix + string(c)
}

// WalletIDFromPath extracts the wallet id from a wallet account path.
func WalletIDFromPath(path string) (string, bool) {
	if !strings.HasPrefix(path, walletAccountPrefix) {
		return "", false
	}

	id := strings.TrimPrefix(path, walletAccountPrefix)
	if id == "" {
		return "", false
	}

	return id, true
}

// IsSystemAccount reports whether the path belongs to the service itself.
func IsSystemAccount(path string) bool {
	return path == AccountReserve || path == AccountBankFee || strings.HasPrefix(path, dealerAccountPrefix)
}
