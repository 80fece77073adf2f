package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/infrastructure/postgres/generated"
	"github.com/iho/satledger/internal/usecase"
)

// WalletRepository implements usecase.WalletRepository.
type WalletRepository struct {
	queries *generated.Queries
}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(db generated.DBTX) *WalletRepository {
	return &WalletRepository{queries: generated.New(db)}
}

// Create registers a wallet and the on-chain addresses it owns.
func (r *WalletRepository) Create(ctx context.Context, tx usecase.Transaction, wallet domain.Wallet, addresses []string, at time.Time) error {
	q, err := queriesFor(tx)
	if err != nil {
		return err
	}

	if err := q.CreateWallet(ctx, generated.CreateWalletParams{
		ID:        wallet.ID,
		Currency:  string(wallet.Currency),
		CreatedAt: timeToPgTimestamptz(at),
	}); err != nil {
		return fmt.Errorf("create wallet %s: %w", wallet.ID, err)
	}

	for _, addr := range addresses {
		if err := q.AddWalletAddress(ctx, generated.AddWalletAddressParams{
			Address:   addr,
			WalletID:  wallet.ID,
			CreatedAt: timeToPgTimestamptz(at),
		}); err != nil {
			return fmt.Errorf("add address %s: %w", addr, err)
		}
	}

	return nil
}

// GetByID returns the wallet or domain.ErrWalletNotFound.
func (r *WalletRepository) GetByID(ctx context.Context, id string) (*domain.Wallet, error) {
	row, err := r.queries.GetWallet(ctx, id)
	if err != nil {
		return nil, walletNotFound(err)
	}
	return rowToWallet(row), nil
}

// GetByAddress returns the wallet owning an on-chain address.
func (r *WalletRepository) GetByAddress(ctx context.Context, address string) (*domain.Wallet, error) {
	row, err := r.queries.GetWalletByAddress(ctx, address)
	if err != nil {
		return nil, walletNotFound(err)
	}
	return rowToWallet(row), nil
}

func rowToWallet(row generated.Wallet) *domain.Wallet {
	return &domain.Wallet{ID: row.ID, Currency: domain.Currency(row.Currency)}
}

func walletNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrWalletNotFound
	}
	return err
}
