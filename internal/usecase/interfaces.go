package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/satledger/internal/domain"
)

// JournalRepository persists ledger transactions together with their legs.
type JournalRepository interface {
	// Insert writes the journal row and every leg. A second transaction with
	// the same hash must fail with domain.ErrDuplicateHash.
	Insert(ctx context.Context, tx Transaction, set *domain.LegSet) error
	GetByHash(ctx context.Context, hash string) (*domain.LegSet, error)
	GetByHashForUpdate(ctx context.Context, tx Transaction, hash string) (*domain.LegSet, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.LegSet, error)
	// Settle stores the settled legs, inserting legs that did not exist yet.
	Settle(ctx context.Context, tx Transaction, set *domain.LegSet) error
}

// EntryRepository reads ledger legs.
type EntryRepository interface {
	Balance(ctx context.Context, query BalanceQuery) (int64, error)
	List(ctx context.Context, filter EntryFilter) ([]*domain.LedgerEntry, error)
}

// LedgerRepository defines data access for ledger-wide operations.
type LedgerRepository interface {
	CheckConsistency(ctx context.Context) (*ConsistencyReport, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	DeletePublished(ctx context.Context, before time.Time) error
}

// InvoiceRepository stores invoices keyed by payment hash.
type InvoiceRepository interface {
	// Save inserts or replaces the invoice with the same payment hash.
	Save(ctx context.Context, invoice *domain.Invoice) error
	GetByPaymentHash(ctx context.Context, hash string) (*domain.Invoice, error)
	ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]*domain.Invoice, error)
	// ExpireOpen marks open invoices whose expiration passed as expired and
	// returns them in their new state.
	ExpireOpen(ctx context.Context, now time.Time) ([]*domain.Invoice, error)
}

// PaymentRepository stores outgoing Lightning payments keyed by payment hash.
type PaymentRepository interface {
	// Save inserts or replaces the payment with the same payment hash.
	Save(ctx context.Context, payment *domain.Payment) error
	GetByPaymentHash(ctx context.Context, hash string) (*domain.Payment, error)
	// ListPending returns unresolved payments, oldest first.
	ListPending(ctx context.Context, limit int) ([]*domain.Payment, error)
}

// WalletRepository resolves wallets and the on-chain addresses they own.
type WalletRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Wallet, error)
	GetByAddress(ctx context.Context, address string) (*domain.Wallet, error)
}

// AccountDirectory tells which wallet, if any, owns a destination.
type AccountDirectory interface {
	// ResolveOwner returns nil when the destination is external.
	ResolveOwner(ctx context.Context, dest domain.Destination) (*domain.Wallet, error)
	Wallet(ctx context.Context, walletID string) (*domain.Wallet, error)
}

// DestinationParser decodes addresses and payment requests.
type DestinationParser interface {
	Parse(raw string) (domain.Destination, error)
}

// NodeInvoiceRequest is the invoice handed to a Lightning node.
type NodeInvoiceRequest struct {
	AmountSats int64
	Memo       string
	Expiry     time.Duration
}

// NodeInvoice is what a node returns for a created invoice.
type NodeInvoice struct {
	PaymentRequest string
	PaymentHash    string
}

// LightningNode is the subset of a Lightning daemon the core relies on.
type LightningNode interface {
	CreateInvoice(ctx context.Context, req NodeInvoiceRequest) (*NodeInvoice, error)
	SubscribeInvoiceSettlements(ctx context.Context) (<-chan domain.InvoiceSettlement, <-chan error)
	GetWalletStatus(ctx context.Context) (bool, error)
	PayInvoiceOrAddress(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchResult, error)
	EstimateFee(ctx context.Context, dest domain.Destination, amount int64) (int64, error)
	// LookupPayment reports what the node knows of an outgoing payment, or
	// domain.ErrPaymentNotFound.
	LookupPayment(ctx context.Context, paymentHash string) (*domain.NodePayment, error)
}

// NodePool maps node ids to their clients.
type NodePool map[string]LightningNode

// NodeSelector picks an active node able to serve a role.
type NodeSelector interface {
	SelectActive(role domain.NodeRole) (string, error)
}

// RateSource prices one bitcoin in the given currency.
type RateSource interface {
	Rate(ctx context.Context, currency domain.Currency, at time.Time) (decimal.Decimal, error)
}

// Ledger is the ledger surface the reconciliation engine writes through.
type Ledger interface {
	RecordTransaction(ctx context.Context, set *domain.LegSet) (string, error)
	FindByHash(ctx context.Context, hash string) (*domain.LegSet, error)
	SettlePending(ctx context.Context, input SettleInput) (*domain.LegSet, error)
	GetBalance(ctx context.Context, query BalanceQuery) (int64, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]*domain.LedgerEntry, error)
}

// InvoiceBook is the invoice surface the reconciliation engine relies on.
type InvoiceBook interface {
	GetInvoice(ctx context.Context, paymentHash string) (*domain.Invoice, error)
	MarkSettled(ctx context.Context, paymentHash string, amount int64, at time.Time) (*domain.Invoice, error)
	MemoPolicy() domain.MemoPolicy
}

// Retrier retries operations that failed with transient storage errors.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a key so a failed request can be retried.
	Release(ctx context.Context, key string) error
}
