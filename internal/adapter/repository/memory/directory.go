package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iho/satledger/internal/domain"
)

// WalletRepository keeps wallets and the addresses they own.
type WalletRepository struct {
	mu        sync.RWMutex
	wallets   map[string]domain.Wallet
	addresses map[string]string
}

// NewWalletRepository creates an empty WalletRepository.
func NewWalletRepository() *WalletRepository {
	return &WalletRepository{
		wallets:   make(map[string]domain.Wallet),
		addresses: make(map[string]string),
	}
}

// Add registers a wallet and its deposit addresses.
func (r *WalletRepository) Add(w domain.Wallet, addresses ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.wallets[w.ID] = w
	for _, a := range addresses {
		r.addresses[a] = w.ID
	}
}

func (r *WalletRepository) GetByID(ctx context.Context, id string) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.wallets[id]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	return &w, nil
}

func (r *WalletRepository) GetByAddress(ctx context.Context, address string) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.addresses[address]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	w := r.wallets[id]
	return &w, nil
}

// InvoiceRepository keeps invoices keyed by payment hash.
type InvoiceRepository struct {
	mu       sync.RWMutex
	invoices map[string]domain.Invoice
}

// NewInvoiceRepository creates an empty InvoiceRepository.
func NewInvoiceRepository() *InvoiceRepository {
	return &InvoiceRepository{invoices: make(map[string]domain.Invoice)}
}

func (r *InvoiceRepository) Save(ctx context.Context, invoice *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.invoices[invoice.PaymentHash] = *invoice
	return nil
}

func (r *InvoiceRepository) GetByPaymentHash(ctx context.Context, hash string) (*domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inv, ok := r.invoices[hash]
	if !ok {
		return nil, domain.ErrInvoiceNotFound
	}
	return &inv, nil
}

func (r *InvoiceRepository) ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]*domain.Invoice, error) {
	r.mu.RLock()
	var invoices []*domain.Invoice
	for _, inv := range r.invoices {
		if inv.WalletID == walletID {
			copied := inv
			invoices = append(invoices, &copied)
		}
	}
	r.mu.RUnlock()

	sort.Slice(invoices, func(i, j int) bool {
		return invoices[i].CreatedAt.After(invoices[j].CreatedAt)
	})

	if offset >= len(invoices) {
		return []*domain.Invoice{}, nil
	}
	invoices = invoices[offset:]
	if limit > 0 && limit < len(invoices) {
		invoices = invoices[:limit]
	}
	return invoices, nil
}

func (r *InvoiceRepository) ExpireOpen(ctx context.Context, now time.Time) ([]*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*domain.Invoice
	for hash, inv := range r.invoices {
		if inv.MarkExpired(now) {
			r.invoices[hash] = inv
			copied := inv
			expired = append(expired, &copied)
		}
	}
	return expired, nil
}

// PaymentRepository keeps outgoing payments keyed by payment hash.
type PaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]domain.Payment
}

// NewPaymentRepository creates an empty PaymentRepository.
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{payments: make(map[string]domain.Payment)}
}

func (r *PaymentRepository) Save(ctx context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *payment
	copied.HopPubkeys = append([]string(nil), payment.HopPubkeys...)
	r.payments[payment.PaymentHash] = copied
	return nil
}

func (r *PaymentRepository) GetByPaymentHash(ctx context.Context, hash string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[hash]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return &p, nil
}

func (r *PaymentRepository) ListPending(ctx context.Context, limit int) ([]*domain.Payment, error) {
	r.mu.RLock()
	var pending []*domain.Payment
	for _, p := range r.payments {
		if p.Status == domain.PaymentPending {
			copied := p
			pending = append(pending, &copied)
		}
	}
	r.mu.RUnlock()

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && limit < len(pending) {
		pending = pending[:limit]
	}
	return pending, nil
}
