package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/rs/zerolog"

	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/infrastructure/metrics"
)

// InvoiceUseCase manages the lifecycle of receive invoices.
type InvoiceUseCase struct {
	invoiceRepo InvoiceRepository
	directory   AccountDirectory
	selector    NodeSelector
	nodes       NodePool
	rates       RateSource
	txManager   TransactionManager
	outboxRepo  OutboxRepository
	idGen       IDGenerator
	policy      domain.MemoPolicy
	clock       clock.Clock
	locks       *KeyedMutex
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// InvoiceDeps groups the collaborators of an InvoiceUseCase.
type InvoiceDeps struct {
	InvoiceRepo InvoiceRepository
	Directory   AccountDirectory
	Selector    NodeSelector
	Nodes       NodePool
	Rates       RateSource
	TxManager   TransactionManager
	OutboxRepo  OutboxRepository
	IDGen       IDGenerator
	Policy      domain.MemoPolicy
	Clock       clock.Clock
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
}

// NewInvoiceUseCase creates a new InvoiceUseCase.
func NewInvoiceUseCase(deps InvoiceDeps) *InvoiceUseCase {
	c := deps.Clock
	if c == nil {
		c = clock.NewDefaultClock()
	}
	policy := deps.Policy
	if policy.Thresholds == nil {
		policy = domain.DefaultMemoPolicy()
	}

	return &InvoiceUseCase{
		invoiceRepo: deps.InvoiceRepo,
		directory:   deps.Directory,
		selector:    deps.Selector,
		nodes:       deps.Nodes,
		rates:       deps.Rates,
		txManager:   deps.TxManager,
		outboxRepo:  deps.OutboxRepo,
		idGen:       deps.IDGen,
		policy:      policy,
		clock:       c,
		locks:       NewKeyedMutex(),
		logger:      deps.Logger,
		metrics:     deps.Metrics,
	}
}

// CreateInvoiceInput represents input for creating a receive invoice.
// Currency defaults to the wallet's currency; Amount nil creates a
// zero-amount invoice.
type CreateInvoiceInput struct {
	WalletID string
	Currency domain.Currency
	Amount   *int64
	Memo     string
}

// CreateInvoice creates an invoice on an active receive-capable node and stores it.
func (uc *InvoiceUseCase) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*domain.Invoice, error) {
	if err := domain.ValidateWalletID(input.WalletID); err != nil {
		return nil, err
	}
	if input.Amount != nil {
		if err := domain.ValidateAmount(*input.Amount); err != nil {
			return nil, err
		}
	}

	wallet, err := uc.directory.Wallet(ctx, input.WalletID)
	if err != nil {
		return nil, err
	}

	currency := input.Currency
	if currency == "" {
		currency = wallet.Currency
	}
	if currency != wallet.Currency {
		return nil, domain.ErrCurrencyMismatch
	}

	now := uc.clock.Now().UTC()
	inv, err := domain.NewInvoice(wallet.ID, currency, input.Amount, input.Memo, now)
	if err != nil {
		return nil, err
	}

	if inv.Amount != nil {
		inv.AmountSats, err = uc.toSats(ctx, currency, *inv.Amount, now)
		if err != nil {
			return nil, err
		}
	}

	nodeID, err := uc.selector.SelectActive(domain.NodeRoleReceiveOnly)
	if err != nil {
		return nil, err
	}
	node, ok := uc.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not configured", domain.ErrNoActiveNode, nodeID)
	}

	created, err := node.CreateInvoice(ctx, NodeInvoiceRequest{
		AmountSats: inv.AmountSats,
		Memo:       inv.Memo,
		Expiry:     inv.ExpiresAt.Sub(now),
	})
	if err != nil {
		return nil, fmt.Errorf("create invoice on %s: %w", nodeID, err)
	}

	inv.PaymentHash = created.PaymentHash
	inv.PaymentRequest = created.PaymentRequest
	inv.NodeID = nodeID

	if err := uc.invoiceRepo.Save(ctx, inv); err != nil {
		return nil, err
	}

	uc.emit(ctx, domain.EventTypeInvoiceCreated, inv, now)
	if uc.metrics != nil {
		uc.metrics.InvoicesCreated.WithLabelValues(string(currency)).Inc()
	}
	uc.logger.Info().
		Str("payment_hash", inv.PaymentHash).
		Str("wallet_id", inv.WalletID).
		Str("node", nodeID).
		Msg("invoice created")

	return inv, nil
}

func (uc *InvoiceUseCase) toSats(ctx context.Context, currency domain.Currency, amount int64, at time.Time) (int64, error) {
	switch currency {
	case domain.CurrencyBTC:
		return amount, nil
	case domain.CurrencyUSD:
		rate, err := uc.rates.Rate(ctx, domain.CurrencyUSD, at)
		if err != nil {
			return 0, fmt.Errorf("price invoice: %w", err)
		}
		return centsToSats(amount, rate)
	default:
		return 0, domain.ErrInvalidCurrency
	}
}

// ClassifyVisibility decides whether a memo received with amount is shown.
func (uc *InvoiceUseCase) ClassifyVisibility(currency domain.Currency, amountReceived int64, memo string) domain.Visibility {
	return uc.policy.Classify(currency, amountReceived, memo)
}

// MemoPolicy returns the configured visibility thresholds.
func (uc *InvoiceUseCase) MemoPolicy() domain.MemoPolicy {
	return uc.policy
}

// GetInvoice returns the invoice with the given payment hash.
func (uc *InvoiceUseCase) GetInvoice(ctx context.Context, paymentHash string) (*domain.Invoice, error) {
	if err := domain.ValidateHash(paymentHash); err != nil {
		return nil, err
	}
	return uc.invoiceRepo.GetByPaymentHash(ctx, paymentHash)
}

// ListWalletInvoices lists a wallet's invoices newest first.
func (uc *InvoiceUseCase) ListWalletInvoices(ctx context.Context, walletID string, limit, offset int) ([]*domain.Invoice, error) {
	if err := domain.ValidateWalletID(walletID); err != nil {
		return nil, err
	}
	limit, offset, err := domain.ValidatePagination(limit, offset)
	if err != nil {
		return nil, err
	}
	return uc.invoiceRepo.ListByWallet(ctx, walletID, limit, offset)
}

// MarkSettled records the realized amount of an invoice. It succeeds past the
// advisory expiration and after a sweep marked the invoice expired. Marking
// an already settled invoice again is a no-op.
func (uc *InvoiceUseCase) MarkSettled(ctx context.Context, paymentHash string, amount int64, at time.Time) (*domain.Invoice, error) {
	unlock := uc.locks.Lock(paymentHash)
	defer unlock()

	inv, err := uc.invoiceRepo.GetByPaymentHash(ctx, paymentHash)
	if err != nil {
		return nil, err
	}

	if err := inv.MarkSettled(amount, at.UTC()); err != nil {
		if errors.Is(err, domain.ErrInvoiceAlreadySettled) {
			return inv, nil
		}
		return nil, err
	}

	if err := uc.invoiceRepo.Save(ctx, inv); err != nil {
		return nil, err
	}

	uc.emit(ctx, domain.EventTypeInvoiceSettled, inv, at)

	return inv, nil
}

// SweepExpired marks open invoices past their expiration as expired and
// returns how many changed.
func (uc *InvoiceUseCase) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	expired, err := uc.invoiceRepo.ExpireOpen(ctx, now.UTC())
	if err != nil {
		return 0, err
	}

	for _, inv := range expired {
		uc.emit(ctx, domain.EventTypeInvoiceExpired, inv, now)
	}

	count := int64(len(expired))
	if count > 0 {
		if uc.metrics != nil {
			uc.metrics.InvoicesExpired.Add(float64(count))
		}
		uc.logger.Info().Int64("count", count).Msg("expired invoices swept")
	}

	return count, nil
}

// emit writes an invoice event to the outbox. Invoices live outside the SQL
// store, so a failed event is logged and the invoice change stands.
func (uc *InvoiceUseCase) emit(ctx context.Context, eventType string, inv *domain.Invoice, at time.Time) {
	if uc.txManager == nil || uc.outboxRepo == nil {
		return
	}

	err := func() error {
		tx, err := uc.txManager.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if err := uc.outboxRepo.Create(ctx, tx, domain.NewInvoiceEvent(uc.idGen.Generate(), eventType, inv, at.UTC())); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}()
	if err != nil {
		uc.logger.Warn().
			Err(err).
			Str("event_type", eventType).
			Str("payment_hash", inv.PaymentHash).
			Msg("failed to write invoice event")
	}
}
