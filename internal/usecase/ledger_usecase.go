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

// BalanceView selects which legs count towards a balance.
type BalanceView string

const (
	// BalanceSettled counts settled legs only.
	BalanceSettled BalanceView = "settled"
	// BalanceIncludingPending counts every leg.
	BalanceIncludingPending BalanceView = "including_pending"
	// BalanceSpendable counts settled legs and pending debits. Pending
	// credits are not spendable until they settle.
	BalanceSpendable BalanceView = "spendable"
)

// ParseBalanceView parses a view name; an empty string selects spendable.
func ParseBalanceView(s string) (BalanceView, error) {
	switch BalanceView(s) {
	case "":
		return BalanceSpendable, nil
	case BalanceSettled, BalanceIncludingPending, BalanceSpendable:
		return BalanceView(s), nil
	default:
		return "", fmt.Errorf("unknown balance view %q", s)
	}
}

// BalanceQuery selects the legs summed into a balance.
type BalanceQuery struct {
	AccountPath string
	Currency    domain.Currency
	AsOf        *time.Time
	View        BalanceView
}

// EntryFilter narrows a ledger entry listing. Zero values match everything.
type EntryFilter struct {
	AccountPath string
	WalletID    string
	Hash        string
	Type        domain.TxType
	Pending     *bool
	Limit       int
	Offset      int
}

// ConsistencyReport is the outcome of a ledger-wide balance check.
type ConsistencyReport struct {
	Totals                 map[domain.Currency]int64
	UnbalancedTransactions int64
	Consistent             bool
}

// SettleInput finalizes a pending transaction.
type SettleInput struct {
	TransactionID string
	FinalFee      int64
	FeeUsd        decimal.Decimal
	ConfirmedAt   time.Time
}

// LedgerUseCase is the double-entry ledger. It is the only writer of entries.
type LedgerUseCase struct {
	txManager   TransactionManager
	journalRepo JournalRepository
	entryRepo   EntryRepository
	ledgerRepo  LedgerRepository
	outboxRepo  OutboxRepository
	idGen       IDGenerator
	retrier     Retrier
	clock       clock.Clock
	locks       *KeyedMutex
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// LedgerOption configures a LedgerUseCase.
type LedgerOption func(*LedgerUseCase)

// WithLedgerRetrier retries writes that fail with transient storage errors.
func WithLedgerRetrier(r Retrier) LedgerOption {
	return func(uc *LedgerUseCase) { uc.retrier = r }
}

// WithLedgerClock overrides the wall clock.
func WithLedgerClock(c clock.Clock) LedgerOption {
	return func(uc *LedgerUseCase) { uc.clock = c }
}

// WithLedgerLogger sets the logger.
func WithLedgerLogger(l zerolog.Logger) LedgerOption {
	return func(uc *LedgerUseCase) { uc.logger = l }
}

// WithLedgerMetrics enables ledger metrics.
func WithLedgerMetrics(m *metrics.Metrics) LedgerOption {
	return func(uc *LedgerUseCase) { uc.metrics = m }
}

// NewLedgerUseCase creates a new LedgerUseCase.
func NewLedgerUseCase(
	txManager TransactionManager,
	journalRepo JournalRepository,
	entryRepo EntryRepository,
	ledgerRepo LedgerRepository,
	outboxRepo OutboxRepository,
	idGen IDGenerator,
	opts ...LedgerOption,
) *LedgerUseCase {
	uc := &LedgerUseCase{
		txManager:   txManager,
		journalRepo: journalRepo,
		entryRepo:   entryRepo,
		ledgerRepo:  ledgerRepo,
		outboxRepo:  outboxRepo,
		idGen:       idGen,
		clock:       clock.NewDefaultClock(),
		locks:       NewKeyedMutex(),
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// RecordTransaction atomically writes a balanced leg set and returns its id.
// A hash owned by a settled transaction yields domain.ErrDuplicateHash and one
// owned by a pending transaction yields domain.ErrHashPending.
func (uc *LedgerUseCase) RecordTransaction(ctx context.Context, set *domain.LegSet) (string, error) {
	now := uc.clock.Now().UTC()

	if set.TransactionID == "" {
		set.TransactionID = uc.idGen.Generate()
	}
	if set.CreatedAt.IsZero() {
		set.CreatedAt = now
	}
	if !set.Pending && set.SettledAt == nil {
		settledAt := set.CreatedAt
		set.SettledAt = &settledAt
	}
	set.Stamp()
	uc.assignLegIDs(set)

	if err := set.Validate(); err != nil {
		uc.logger.Error().
			Err(err).
			Str("transaction_id", set.TransactionID).
			Str("type", string(set.Type)).
			Msg("rejected unbalanced transaction")
		uc.countError("unbalanced")
		return "", err
	}

	lockKey := "tx:" + set.TransactionID
	if set.Hash != "" {
		lockKey = "hash:" + set.Hash
	}
	unlock := uc.locks.Lock(lockKey)
	defer unlock()

	start := time.Now()
	err := uc.withRetry(ctx, func() error {
		return uc.insert(ctx, set, now)
	})
	if uc.metrics != nil {
		uc.metrics.LedgerWriteDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateHash):
			uc.countError("duplicate_hash")
		case errors.Is(err, domain.ErrHashPending):
			uc.countError("hash_pending")
		default:
			uc.countError("storage")
		}
		return "", err
	}

	if uc.metrics != nil {
		uc.metrics.TransactionsRecorded.WithLabelValues(string(set.Type), fmt.Sprint(set.Pending)).Inc()
	}
	uc.logger.Debug().
		Str("transaction_id", set.TransactionID).
		Str("hash", set.Hash).
		Str("type", string(set.Type)).
		Bool("pending", set.Pending).
		Msg("transaction recorded")

	return set.TransactionID, nil
}

func (uc *LedgerUseCase) insert(ctx context.Context, set *domain.LegSet, now time.Time) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return err
	}
	defer tx.Rollback(txCtx)

	if set.Hash != "" {
		existing, err := uc.journalRepo.GetByHashForUpdate(txCtx, tx, set.Hash)
		switch {
		case err == nil && existing.Pending:
			return domain.ErrHashPending
		case err == nil:
			return domain.ErrDuplicateHash
		case !errors.Is(err, domain.ErrTransactionNotFound):
			return err
		}
	}

	if err := uc.journalRepo.Insert(txCtx, tx, set); err != nil {
		return err
	}

	if err := uc.outboxRepo.Create(txCtx, tx, domain.NewTransactionEvent(uc.idGen.Generate(), set, now)); err != nil {
		return err
	}

	return tx.Commit(txCtx)
}

// FindByHash returns the transaction owning a settlement hash.
func (uc *LedgerUseCase) FindByHash(ctx context.Context, hash string) (*domain.LegSet, error) {
	if hash == "" {
		return nil, domain.ErrTransactionNotFound
	}
	return uc.journalRepo.GetByHash(ctx, hash)
}

// SettlePending finalizes a pending transaction with its realized fee.
// The fee bearer and the fee account absorb the difference to the fee booked
// at send time; other legs keep their amounts.
func (uc *LedgerUseCase) SettlePending(ctx context.Context, input SettleInput) (*domain.LegSet, error) {
	if input.FinalFee < 0 {
		return nil, fmt.Errorf("%w: negative fee %d", domain.ErrInvalidAmount, input.FinalFee)
	}

	confirmedAt := input.ConfirmedAt
	if confirmedAt.IsZero() {
		confirmedAt = uc.clock.Now().UTC()
	}

	unlock := uc.locks.Lock("tx:" + input.TransactionID)
	defer unlock()

	var settled *domain.LegSet
	err := uc.withRetry(ctx, func() error {
		set, err := uc.settle(ctx, input, confirmedAt)
		settled = set
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrUnbalancedTransaction) {
			uc.logger.Error().
				Err(err).
				Str("transaction_id", input.TransactionID).
				Msg("settlement would unbalance transaction")
			uc.countError("unbalanced")
		}
		return settled, err
	}

	if uc.metrics != nil {
		uc.metrics.TransactionsSettled.Inc()
	}
	uc.logger.Debug().
		Str("transaction_id", settled.TransactionID).
		Int64("fee", input.FinalFee).
		Msg("transaction settled")

	return settled, nil
}

func (uc *LedgerUseCase) settle(ctx context.Context, input SettleInput, confirmedAt time.Time) (*domain.LegSet, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(txCtx)

	set, err := uc.journalRepo.GetByIDForUpdate(txCtx, tx, input.TransactionID)
	if err != nil {
		return nil, err
	}
	if !set.Pending {
		return set, domain.ErrNotPending
	}

	if err := set.Settle(input.FinalFee, input.FeeUsd, confirmedAt); err != nil {
		return nil, err
	}
	uc.assignLegIDs(set)

	if err := uc.journalRepo.Settle(txCtx, tx, set); err != nil {
		return nil, err
	}

	if err := uc.outboxRepo.Create(txCtx, tx, domain.NewTransactionEvent(uc.idGen.Generate(), set, confirmedAt)); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return set, nil
}

// GetBalance sums the legs of an account in one currency.
func (uc *LedgerUseCase) GetBalance(ctx context.Context, query BalanceQuery) (int64, error) {
	if query.AccountPath == "" {
		return 0, domain.ErrWalletNotFound
	}
	if query.View == "" {
		query.View = BalanceSpendable
	}
	return uc.entryRepo.Balance(ctx, query)
}

// ListEntries lists ledger legs newest first.
func (uc *LedgerUseCase) ListEntries(ctx context.Context, filter EntryFilter) ([]*domain.LedgerEntry, error) {
	limit, offset, err := domain.ValidatePagination(filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	filter.Limit = limit
	filter.Offset = offset

	return uc.entryRepo.List(ctx, filter)
}

// CheckConsistency verifies that every currency sums to zero across the
// ledger and that no journal is unbalanced.
func (uc *LedgerUseCase) CheckConsistency(ctx context.Context) (*ConsistencyReport, error) {
	report, err := uc.ledgerRepo.CheckConsistency(ctx)
	if err != nil {
		return nil, err
	}

	report.Consistent = report.UnbalancedTransactions == 0
	for _, total := range report.Totals {
		if total != 0 {
			report.Consistent = false
		}
	}

	if !report.Consistent {
		uc.logger.Error().
			Interface("totals", report.Totals).
			Int64("unbalanced_transactions", report.UnbalancedTransactions).
			Msg("ledger inconsistency detected")
		return report, domain.ErrInconsistentLedger
	}

	return report, nil
}

func (uc *LedgerUseCase) assignLegIDs(set *domain.LegSet) {
	for _, leg := range set.Legs {
		if leg.ID == "" {
			leg.ID = uc.idGen.Generate()
		}
		leg.TransactionID = set.TransactionID
	}
}

func (uc *LedgerUseCase) withRetry(ctx context.Context, op func() error) error {
	if uc.retrier == nil {
		return op()
	}
	return uc.retrier.Retry(ctx, op)
}

func (uc *LedgerUseCase) countError(kind string) {
	if uc.metrics != nil {
		uc.metrics.LedgerErrors.WithLabelValues(kind).Inc()
	}
}
