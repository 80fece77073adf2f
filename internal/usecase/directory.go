package usecase

import (
	"context"
	"errors"

	"github.com/iho/satledger/internal/domain"
)

// Directory resolves destinations to the wallets that own them: deposit
// addresses through the wallet store, invoices through the invoice store.
type Directory struct {
	wallets  WalletRepository
	invoices InvoiceRepository
}

// NewDirectory creates a new Directory.
func NewDirectory(wallets WalletRepository, invoices InvoiceRepository) *Directory {
	return &Directory{wallets: wallets, invoices: invoices}
}

// Wallet returns the wallet with the given id.
func (d *Directory) Wallet(ctx context.Context, walletID string) (*domain.Wallet, error) {
	return d.wallets.GetByID(ctx, walletID)
}

// ResolveOwner returns the wallet owning dest, or nil when it is external.
func (d *Directory) ResolveOwner(ctx context.Context, dest domain.Destination) (*domain.Wallet, error) {
	switch dest.Kind {
	case domain.DestinationOnchain:
		w, err := d.wallets.GetByAddress(ctx, dest.Address)
		if errors.Is(err, domain.ErrWalletNotFound) {
			return nil, nil
		}
		return w, err

	case domain.DestinationLightning:
		inv, err := d.invoices.GetByPaymentHash(ctx, dest.PaymentHash)
		if errors.Is(err, domain.ErrInvoiceNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return d.wallets.GetByID(ctx, inv.WalletID)

	default:
		return nil, domain.ErrInvalidDestination
	}
}
