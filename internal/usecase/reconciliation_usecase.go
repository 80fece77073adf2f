package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/infrastructure/metrics"
)

// ReconciliationUseCase is the payment reconciliation engine. It turns sends
// and external settlement events into ledger transactions.
type ReconciliationUseCase struct {
	ledger    Ledger
	invoices  InvoiceBook
	payments  PaymentRepository
	directory AccountDirectory
	parser    DestinationParser
	selector  NodeSelector
	nodes     NodePool
	rates     RateSource
	cache     Cache
	clock     clock.Clock
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	targetConfirmations int32
	dispatchTimeout     time.Duration
	feeCapBasisPoints   int64
	settledEventTTL     time.Duration
	paymentGracePeriod  time.Duration

	hashLocks   *KeyedMutex
	walletLocks *KeyedMutex
}

// ReconciliationDeps groups the collaborators of a ReconciliationUseCase.
// Payments, Cache, Clock, Metrics and the numeric settings are optional.
type ReconciliationDeps struct {
	Ledger    Ledger
	Invoices  InvoiceBook
	Payments  PaymentRepository
	Directory AccountDirectory
	Parser    DestinationParser
	Selector  NodeSelector
	Nodes     NodePool
	Rates     RateSource
	Cache     Cache
	Clock     clock.Clock
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics

	TargetConfirmations int32
	DispatchTimeout     time.Duration
	FeeCapBasisPoints   int64
	// SettledEventTTL is how long terminal events stay in the dedup cache.
	SettledEventTTL time.Duration
	// PaymentGracePeriod is how long a payment unknown to its node stays
	// pending before it is voided.
	PaymentGracePeriod time.Duration
}

// NewReconciliationUseCase creates a new ReconciliationUseCase.
func NewReconciliationUseCase(deps ReconciliationDeps) *ReconciliationUseCase {
	uc := &ReconciliationUseCase{
		ledger:              deps.Ledger,
		invoices:            deps.Invoices,
		payments:            deps.Payments,
		directory:           deps.Directory,
		parser:              deps.Parser,
		selector:            deps.Selector,
		nodes:               deps.Nodes,
		rates:               deps.Rates,
		cache:               deps.Cache,
		clock:               deps.Clock,
		logger:              deps.Logger,
		metrics:             deps.Metrics,
		targetConfirmations: deps.TargetConfirmations,
		dispatchTimeout:     deps.DispatchTimeout,
		feeCapBasisPoints:   deps.FeeCapBasisPoints,
		settledEventTTL:     deps.SettledEventTTL,
		paymentGracePeriod:  deps.PaymentGracePeriod,
		hashLocks:           NewKeyedMutex(),
		walletLocks:         NewKeyedMutex(),
	}

	if uc.clock == nil {
		uc.clock = clock.NewDefaultClock()
	}
	if uc.targetConfirmations <= 0 {
		uc.targetConfirmations = DefaultTargetConfirmations
	}
	if uc.dispatchTimeout <= 0 {
		uc.dispatchTimeout = DefaultDispatchTimeout
	}
	if uc.feeCapBasisPoints <= 0 {
		uc.feeCapBasisPoints = DefaultLightningFeeCapBasisPoints
	}
	if uc.settledEventTTL <= 0 {
		uc.settledEventTTL = SettledEventTTL
	}
	if uc.paymentGracePeriod <= 0 {
		uc.paymentGracePeriod = DefaultPaymentGracePeriod
	}

	return uc
}

// ReconcileSettlement applies one settlement event to the ledger. Applying
// the same event again leaves the ledger unchanged and returns nil.
func (uc *ReconciliationUseCase) ReconcileSettlement(ctx context.Context, ev domain.SettlementEvent) error {
	if err := ev.Validate(); err != nil {
		uc.countEvent(ev.Kind, "invalid")
		return err
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = uc.clock.Now().UTC()
	}

	cacheKey := settledEventKey(ev)
	if uc.seen(ctx, cacheKey) {
		uc.countEvent(ev.Kind, "duplicate")
		return nil
	}

	unlock := uc.hashLocks.Lock(ev.Hash)
	defer unlock()

	// booked is true once the ledger reflects the event; only then is a
	// terminal event safe to skip on redelivery.
	var (
		booked bool
		err    error
	)
	switch ev.Kind {
	case domain.SettlementChainObserved:
		err = uc.onChainObserved(ctx, ev)
	case domain.SettlementChainConfirmed:
		booked, err = uc.onChainConfirmed(ctx, ev)
	case domain.SettlementInvoiceSettled:
		booked, err = uc.onInvoiceSettled(ctx, ev)
	}

	if errors.Is(err, domain.ErrDuplicateHash) || errors.Is(err, domain.ErrHashPending) {
		uc.logger.Debug().
			Str("kind", string(ev.Kind)).
			Str("hash", ev.Hash).
			Msg("settlement event already applied")
		booked, err = true, nil
	}
	if err != nil {
		uc.countEvent(ev.Kind, "error")
		uc.logger.Error().
			Err(err).
			Str("kind", string(ev.Kind)).
			Str("hash", ev.Hash).
			Str("node", ev.NodeID).
			Msg("failed to reconcile settlement event")
		return err
	}

	if booked && cacheKey != "" {
		uc.remember(ctx, cacheKey)
	}
	uc.countEvent(ev.Kind, "applied")

	return nil
}

// HandleChainTransaction normalizes a chain watcher update into an observed
// or confirmed event depending on the target confirmation depth.
func (uc *ReconciliationUseCase) HandleChainTransaction(ctx context.Context, nodeID string, tx domain.ChainTransaction) error {
	kind := domain.SettlementChainObserved
	if tx.Confirmations >= uc.targetConfirmations {
		kind = domain.SettlementChainConfirmed
	}

	return uc.ReconcileSettlement(ctx, domain.SettlementEvent{
		Kind:          kind,
		Hash:          tx.Hash,
		Outputs:       tx.Outputs,
		Fee:           tx.Fee,
		Confirmations: tx.Confirmations,
		BlockHeight:   tx.BlockHeight,
		NodeID:        nodeID,
		OccurredAt:    tx.Timestamp,
	})
}

// HandleInvoiceSettlement turns a node's invoice settlement into an event.
func (uc *ReconciliationUseCase) HandleInvoiceSettlement(ctx context.Context, nodeID string, s domain.InvoiceSettlement) error {
	return uc.ReconcileSettlement(ctx, domain.SettlementEvent{
		Kind:       domain.SettlementInvoiceSettled,
		Hash:       s.PaymentHash,
		Amount:     s.Amount,
		NodeID:     nodeID,
		OccurredAt: s.SettledAt,
	})
}

func (uc *ReconciliationUseCase) onChainObserved(ctx context.Context, ev domain.SettlementEvent) error {
	exists, err := uc.hashRecorded(ctx, ev.Hash)
	if err != nil || exists {
		return err
	}

	set, err := uc.receiptSet(ctx, ev, true)
	if err != nil || set == nil {
		return err
	}

	_, err = uc.ledger.RecordTransaction(ctx, set)
	return err
}

func (uc *ReconciliationUseCase) onChainConfirmed(ctx context.Context, ev domain.SettlementEvent) (bool, error) {
	existing, err := uc.ledger.FindByHash(ctx, ev.Hash)
	if err != nil && !errors.Is(err, domain.ErrTransactionNotFound) {
		return false, err
	}

	if existing == nil {
		// The observed event was missed; book the receipt as settled. A
		// transaction without wallet outputs may still be one of our sends
		// that is not recorded yet, so it stays uncached.
		set, err := uc.receiptSet(ctx, ev, false)
		if err != nil || set == nil {
			return false, err
		}
		if _, err := uc.ledger.RecordTransaction(ctx, set); err != nil {
			return false, err
		}
		return true, nil
	}

	if !existing.Pending {
		return true, nil
	}

	var fee int64
	if existing.Type == domain.TxTypeOnchainPayment {
		fee = existing.Fee()
		if ev.Fee > 0 {
			fee = ev.Fee
		}
	}

	_, err = uc.ledger.SettlePending(ctx, SettleInput{
		TransactionID: existing.TransactionID,
		FinalFee:      fee,
		FeeUsd:        uc.usdValue(ctx, domain.CurrencyBTC, fee, ev.OccurredAt),
		ConfirmedAt:   ev.OccurredAt,
	})
	if errors.Is(err, domain.ErrNotPending) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if fee > 0 && uc.metrics != nil {
		uc.metrics.FeesCharged.Add(float64(fee))
	}

	return true, nil
}

// receiptSet builds the credit legs of wallet-owned outputs. It returns nil
// when no output belongs to a wallet.
func (uc *ReconciliationUseCase) receiptSet(ctx context.Context, ev domain.SettlementEvent, pending bool) (*domain.LegSet, error) {
	credits := make(map[string]*domain.LedgerEntry)
	var order []string
	var total int64

	for _, out := range ev.Outputs {
		if out.Amount <= 0 || out.Address == "" {
			continue
		}

		owner, err := uc.directory.ResolveOwner(ctx, domain.Destination{
			Raw:     out.Address,
			Kind:    domain.DestinationOnchain,
			Address: out.Address,
		})
		if err != nil {
			return nil, err
		}
		if owner == nil {
			continue
		}
		if owner.Currency != domain.CurrencyBTC {
			uc.logger.Warn().
				Str("wallet_id", owner.ID).
				Str("address", out.Address).
				Msg("on-chain output owned by non-BTC wallet ignored")
			continue
		}

		path := owner.AccountPath()
		leg, ok := credits[path]
		if !ok {
			leg = &domain.LedgerEntry{
				AccountPath: path,
				Currency:    domain.CurrencyBTC,
				Address:     out.Address,
				TxHash:      ev.Hash,
			}
			credits[path] = leg
			order = append(order, path)
		}
		leg.Amount += out.Amount
		total += out.Amount
	}

	if len(order) == 0 {
		uc.logger.Debug().Str("hash", ev.Hash).Msg("chain transaction has no wallet outputs")
		return nil, nil
	}

	set := &domain.LegSet{
		Hash:    ev.Hash,
		Type:    domain.TxTypeOnchainReceipt,
		Pending: pending,
		Legs: []*domain.LedgerEntry{{
			AccountPath: domain.AccountReserve,
			Currency:    domain.CurrencyBTC,
			Amount:      -total,
			TxHash:      ev.Hash,
		}},
	}
	for _, path := range order {
		leg := credits[path]
		leg.Usd = uc.usdValue(ctx, domain.CurrencyBTC, leg.Amount, ev.OccurredAt)
		set.Legs = append(set.Legs, leg)
	}

	if !pending {
		at := ev.OccurredAt
		set.SettledAt = &at
	}

	return set, nil
}

func (uc *ReconciliationUseCase) onInvoiceSettled(ctx context.Context, ev domain.SettlementEvent) (bool, error) {
	existing, err := uc.ledger.FindByHash(ctx, ev.Hash)
	if err != nil && !errors.Is(err, domain.ErrTransactionNotFound) {
		return false, err
	}
	if existing != nil {
		// The credit is booked; make sure the invoice caught up.
		credited := ev.Amount
		for _, leg := range existing.Legs {
			if leg.WalletID != "" && leg.Amount > 0 {
				credited = leg.Amount
			}
		}
		if _, err := uc.invoices.MarkSettled(ctx, ev.Hash, credited, ev.OccurredAt); err != nil && !errors.Is(err, domain.ErrInvoiceNotFound) {
			return false, err
		}
		return true, nil
	}

	inv, err := uc.invoices.GetInvoice(ctx, ev.Hash)
	if err != nil {
		return false, err
	}

	credited := ev.Amount
	receiver := domain.WalletAccountPath(inv.WalletID)
	usd := uc.usdValue(ctx, domain.CurrencyBTC, ev.Amount, ev.OccurredAt)

	set := &domain.LegSet{
		Hash: ev.Hash,
		Type: domain.TxTypeInvoice,
	}

	switch inv.Currency {
	case domain.CurrencyBTC:
		set.Legs = []*domain.LedgerEntry{
			{AccountPath: domain.AccountReserve, Currency: domain.CurrencyBTC, Amount: -ev.Amount},
			{AccountPath: receiver, Currency: domain.CurrencyBTC, Amount: ev.Amount, Memo: inv.Memo, Usd: usd},
		}
	case domain.CurrencyUSD:
		credited, err = uc.invoiceCents(ctx, inv, ev)
		if err != nil {
			return false, err
		}
		usd = decimal.New(credited, -2)
		set.Legs = []*domain.LedgerEntry{
			{AccountPath: domain.AccountReserve, Currency: domain.CurrencyBTC, Amount: -ev.Amount},
			{AccountPath: domain.DealerAccountPath(domain.CurrencyBTC), Currency: domain.CurrencyBTC, Amount: ev.Amount},
			{AccountPath: domain.DealerAccountPath(domain.CurrencyUSD), Currency: domain.CurrencyUSD, Amount: -credited},
			{AccountPath: receiver, Currency: domain.CurrencyUSD, Amount: credited, Memo: inv.Memo, Usd: usd},
		}
	default:
		return false, fmt.Errorf("%w: invoice %s", domain.ErrInvalidCurrency, inv.PaymentHash)
	}

	for _, leg := range set.Legs {
		leg.PaymentHash = ev.Hash
	}
	at := ev.OccurredAt
	set.SettledAt = &at

	if _, err := uc.ledger.RecordTransaction(ctx, set); err != nil {
		return false, err
	}

	// The credit is booked; a failed invoice update is retried by the
	// duplicate path on redelivery.
	if _, err := uc.invoices.MarkSettled(ctx, ev.Hash, credited, ev.OccurredAt); err != nil {
		return false, err
	}
	return true, nil
}

// invoiceCents is what a USD wallet receives for a settled invoice: the
// fixed amount it asked for, or the realized sats at the settlement rate.
func (uc *ReconciliationUseCase) invoiceCents(ctx context.Context, inv *domain.Invoice, ev domain.SettlementEvent) (int64, error) {
	if inv.Amount != nil {
		return *inv.Amount, nil
	}

	rate, err := uc.rates.Rate(ctx, domain.CurrencyUSD, ev.OccurredAt)
	if err != nil {
		return 0, fmt.Errorf("price settlement %s: %w", ev.Hash, err)
	}

	cents := satsToCents(ev.Amount, rate)
	if cents <= 0 {
		return 0, fmt.Errorf("%w: %d sats is worth less than a cent", domain.ErrInvalidAmount, ev.Amount)
	}

	return cents, nil
}

func (uc *ReconciliationUseCase) hashRecorded(ctx context.Context, hash string) (bool, error) {
	_, err := uc.ledger.FindByHash(ctx, hash)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrTransactionNotFound):
		return false, nil
	default:
		return false, err
	}
}

// usdValue prices an amount in dollars. A missing rate yields zero; the
// valuation never blocks a ledger write.
func (uc *ReconciliationUseCase) usdValue(ctx context.Context, currency domain.Currency, amount int64, at time.Time) decimal.Decimal {
	if amount == 0 {
		return decimal.Zero
	}
	if currency == domain.CurrencyUSD {
		return decimal.New(amount, -2)
	}
	if uc.rates == nil {
		return decimal.Zero
	}

	rate, err := uc.rates.Rate(ctx, domain.CurrencyUSD, at)
	if err != nil {
		uc.logger.Warn().Err(err).Msg("exchange rate unavailable, usd value left at zero")
		return decimal.Zero
	}

	return satsToUsd(amount, rate)
}

// settledEventKey is the cache key of terminal events. Observed events are
// not terminal and are never cached.
func settledEventKey(ev domain.SettlementEvent) string {
	if ev.Kind == domain.SettlementChainObserved {
		return ""
	}
	return "settlement:" + string(ev.Kind) + ":" + ev.Hash
}

func (uc *ReconciliationUseCase) seen(ctx context.Context, key string) bool {
	if uc.cache == nil || key == "" {
		return false
	}
	value, err := uc.cache.Get(ctx, key)
	return err == nil && value != nil
}

func (uc *ReconciliationUseCase) remember(ctx context.Context, key string) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Set(ctx, key, []byte("1"), uc.settledEventTTL); err != nil {
		uc.logger.Warn().Err(err).Str("key", key).Msg("failed to cache settlement event")
	}
}

func (uc *ReconciliationUseCase) countEvent(kind domain.SettlementKind, outcome string) {
	if uc.metrics != nil {
		uc.metrics.SettlementEvents.WithLabelValues(string(kind), outcome).Inc()
	}
}
