package usecase

import (
	"context"

	"github.com/iho/satledger/internal/domain"
)

// GetBalance returns the spendable balance of a wallet. An empty currency
// selects the wallet's own currency.
func (uc *ReconciliationUseCase) GetBalance(ctx context.Context, walletID string, currency domain.Currency) (int64, error) {
	return uc.WalletBalance(ctx, walletID, currency, BalanceSpendable)
}

// WalletBalance returns a wallet balance in the requested view.
func (uc *ReconciliationUseCase) WalletBalance(ctx context.Context, walletID string, currency domain.Currency, view BalanceView) (int64, error) {
	if err := domain.ValidateWalletID(walletID); err != nil {
		return 0, err
	}

	wallet, err := uc.directory.Wallet(ctx, walletID)
	if err != nil {
		return 0, err
	}
	if currency == "" {
		currency = wallet.Currency
	}
	if currency != wallet.Currency {
		return 0, domain.ErrCurrencyMismatch
	}

	return uc.ledger.GetBalance(ctx, BalanceQuery{
		AccountPath: wallet.AccountPath(),
		Currency:    currency,
		View:        view,
	})
}

// Wallet looks up a wallet by id.
func (uc *ReconciliationUseCase) Wallet(ctx context.Context, walletID string) (*domain.Wallet, error) {
	if err := domain.ValidateWalletID(walletID); err != nil {
		return nil, err
	}
	return uc.directory.Wallet(ctx, walletID)
}

// ListTransactions returns a wallet's history newest first, with memos
// filtered by the visibility policy.
func (uc *ReconciliationUseCase) ListTransactions(ctx context.Context, walletID string, limit, offset int) ([]domain.WalletTransaction, error) {
	if err := domain.ValidateWalletID(walletID); err != nil {
		return nil, err
	}

	wallet, err := uc.directory.Wallet(ctx, walletID)
	if err != nil {
		return nil, err
	}

	entries, err := uc.ledger.ListEntries(ctx, EntryFilter{
		AccountPath: wallet.AccountPath(),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return nil, err
	}

	policy := uc.invoices.MemoPolicy()
	history := make([]domain.WalletTransaction, 0, len(entries))
	for _, e := range entries {
		history = append(history, domain.ProjectEntry(e, policy))
	}

	return history, nil
}
