package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iho/satledger/internal/domain"
)

// SendInput represents a send from a wallet to an address or invoice.
// Amount may be zero when the invoice fixes the amount.
type SendInput struct {
	SourceWallet string
	Destination  string
	Amount       int64
	Memo         string
}

// SendResult describes the ledger transaction created by a send.
type SendResult struct {
	TransactionID string
	Hash          string
	Type          domain.TxType
	Amount        int64
	Fee           int64
	Settled       bool
	Pending       bool
}

// Send moves funds out of a wallet. Destinations owned by another wallet are
// settled internally without fees; everything else goes through a node.
func (uc *ReconciliationUseCase) Send(ctx context.Context, input SendInput) (*SendResult, error) {
	start := time.Now()

	if err := domain.ValidateWalletID(input.SourceWallet); err != nil {
		return nil, err
	}
	if input.Amount < 0 {
		return nil, domain.ErrInvalidAmount
	}
	if err := domain.ValidateMemo(input.Memo); err != nil {
		return nil, err
	}

	dest, err := uc.parser.Parse(input.Destination)
	if err != nil {
		return nil, err
	}

	source, err := uc.directory.Wallet(ctx, input.SourceWallet)
	if err != nil {
		return nil, err
	}

	owner, err := uc.directory.ResolveOwner(ctx, dest)
	if err != nil {
		return nil, err
	}

	// Serializes the balance check and the write for one wallet.
	unlock := uc.walletLocks.Lock(source.ID)
	defer unlock()

	var result *SendResult
	route := "external"
	if owner != nil {
		route = "on_us"
		result, err = uc.sendOnUs(ctx, source, owner, dest, input)
	} else {
		result, err = uc.sendExternal(ctx, source, dest, input)
	}

	if uc.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		uc.metrics.Sends.WithLabelValues(route, outcome).Inc()
		uc.metrics.SendDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			uc.metrics.SendAmount.Observe(float64(result.Amount))
		}
	}
	if err != nil {
		uc.logger.Warn().
			Err(err).
			Str("wallet_id", source.ID).
			Str("route", route).
			Msg("send failed")
		return nil, err
	}

	uc.logger.Info().
		Str("wallet_id", source.ID).
		Str("transaction_id", result.TransactionID).
		Str("type", string(result.Type)).
		Int64("amount", result.Amount).
		Int64("fee", result.Fee).
		Bool("pending", result.Pending).
		Msg("send recorded")

	return result, nil
}

func (uc *ReconciliationUseCase) sendOnUs(
	ctx context.Context,
	source, receiver *domain.Wallet,
	dest domain.Destination,
	input SendInput,
) (*SendResult, error) {
	if receiver.ID == source.ID {
		return nil, domain.ErrSelfPayment
	}
	if receiver.Currency != source.Currency {
		return nil, domain.ErrCurrencyMismatch
	}

	amount := input.Amount
	txType := domain.TxTypeOnchainOnUs
	var inv *domain.Invoice

	if dest.Kind == domain.DestinationLightning {
		txType = domain.TxTypeLightningOnUs

		var err error
		inv, err = uc.invoices.GetInvoice(ctx, dest.PaymentHash)
		if err != nil {
			return nil, err
		}
		if inv.State == domain.InvoiceStateSettled {
			return nil, domain.ErrInvoiceAlreadySettled
		}
		if amount, err = resolveAmount(amount, inv.Amount); err != nil {
			return nil, err
		}
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	if err := uc.ensureSpendable(ctx, source, amount); err != nil {
		return nil, err
	}

	now := uc.clock.Now().UTC()
	usd := uc.usdValue(ctx, source.Currency, amount, now)

	sender := &domain.LedgerEntry{
		AccountPath:       source.AccountPath(),
		Currency:          source.Currency,
		Amount:            -amount,
		Memo:              input.Memo,
		MemoFromPayer:     input.Memo,
		RecipientWalletID: receiver.ID,
		FeeKnownInAdvance: true,
		Usd:               usd,
	}
	// The receiver's leg carries no payer memo.
	credit := &domain.LedgerEntry{
		AccountPath:       receiver.AccountPath(),
		Currency:          receiver.Currency,
		Amount:            amount,
		RecipientWalletID: receiver.ID,
		FeeKnownInAdvance: true,
		Usd:               usd,
	}

	set := &domain.LegSet{
		Type:      txType,
		CreatedAt: now,
		Legs:      []*domain.LedgerEntry{sender, credit},
	}
	switch dest.Kind {
	case domain.DestinationLightning:
		set.Hash = dest.PaymentHash
		credit.Memo = inv.Memo
		sender.PaymentHash = dest.PaymentHash
		credit.PaymentHash = dest.PaymentHash
	case domain.DestinationOnchain:
		sender.Address = dest.Address
		credit.Address = dest.Address
	}

	txID, err := uc.ledger.RecordTransaction(ctx, set)
	if err != nil {
		return nil, err
	}

	if inv != nil {
		if _, err := uc.invoices.MarkSettled(ctx, inv.PaymentHash, amount, now); err != nil {
			return nil, fmt.Errorf("mark invoice %s settled: %w", inv.PaymentHash, err)
		}
	}

	return &SendResult{
		TransactionID: txID,
		Hash:          set.Hash,
		Type:          txType,
		Amount:        amount,
		Settled:       true,
	}, nil
}

func (uc *ReconciliationUseCase) sendExternal(
	ctx context.Context,
	source *domain.Wallet,
	dest domain.Destination,
	input SendInput,
) (*SendResult, error) {
	if source.Currency != domain.CurrencyBTC {
		return nil, domain.ErrCurrencyMismatch
	}

	amount := input.Amount
	if dest.Kind == domain.DestinationLightning {
		var err error
		if amount, err = resolveAmount(amount, dest.Amount); err != nil {
			return nil, err
		}
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	nodeID, err := uc.selector.SelectActive(domain.NodeRoleSendCapable)
	if err != nil {
		return nil, err
	}
	node, ok := uc.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not configured", domain.ErrNoActiveNode, nodeID)
	}

	fee, err := uc.quoteFee(ctx, node, dest, amount)
	if err != nil {
		return nil, err
	}

	if err := uc.ensureSpendable(ctx, source, amount+fee); err != nil {
		return nil, err
	}

	var payment *domain.Payment
	if dest.Kind == domain.DestinationLightning && uc.payments != nil {
		if payment, err = uc.startPayment(ctx, source, nodeID, dest, amount, fee, input.Memo); err != nil {
			return nil, err
		}
	}

	dispatched, err := uc.dispatch(ctx, node, domain.DispatchRequest{
		Destination: dest,
		Amount:      amount,
		MaxFee:      fee,
		Memo:        input.Memo,
	})
	if err != nil {
		if payment != nil {
			uc.abandonPayment(ctx, payment, err)
		}
		return nil, fmt.Errorf("dispatch via %s: %w", nodeID, err)
	}

	result, err := uc.bookSend(ctx, source, dest, amount, fee, input.Memo, dispatched)
	if err != nil {
		return nil, err
	}

	if payment != nil {
		if err := payment.Succeed(result.Fee, dispatched.HopPubkeys, result.TransactionID, uc.clock.Now().UTC()); err != nil {
			return nil, err
		}
		if err := uc.payments.Save(ctx, payment); err != nil {
			// The ledger is already right; the record is advisory.
			uc.logger.Error().Err(err).Str("payment_hash", payment.PaymentHash).Msg("failed to record payment outcome")
		}
	}

	return result, nil
}

// startPayment records a Lightning payment as pending before it reaches the
// node, so an outcome lost to a timeout can be resolved later.
func (uc *ReconciliationUseCase) startPayment(
	ctx context.Context,
	source *domain.Wallet,
	nodeID string,
	dest domain.Destination,
	amount, maxFee int64,
	memo string,
) (*domain.Payment, error) {
	existing, err := uc.payments.GetByPaymentHash(ctx, dest.PaymentHash)
	switch {
	case err == nil && existing.Status != domain.PaymentFailed:
		return nil, fmt.Errorf("%w: payment %s is %s", domain.ErrDuplicateHash, dest.PaymentHash, existing.Status)
	case err != nil && !errors.Is(err, domain.ErrPaymentNotFound):
		return nil, err
	}

	payment, err := domain.NewPayment(source.ID, nodeID, dest, amount, maxFee, memo, uc.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := uc.payments.Save(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// abandonPayment voids a payment the node refused. Any other dispatch error
// leaves the outcome unknown and the payment pending for ResolvePayments.
func (uc *ReconciliationUseCase) abandonPayment(ctx context.Context, payment *domain.Payment, dispatchErr error) {
	if !errors.Is(dispatchErr, domain.ErrPaymentFailed) {
		uc.logger.Warn().
			Err(dispatchErr).
			Str("payment_hash", payment.PaymentHash).
			Msg("payment outcome unknown, left pending")
		return
	}

	if err := payment.Fail(dispatchErr.Error(), uc.clock.Now().UTC()); err != nil {
		return
	}
	if err := uc.payments.Save(ctx, payment); err != nil {
		uc.logger.Error().Err(err).Str("payment_hash", payment.PaymentHash).Msg("failed to record payment failure")
	}
}

// bookSend writes the ledger transaction of a dispatched send and settles it
// right away when the node already reported the settlement.
func (uc *ReconciliationUseCase) bookSend(
	ctx context.Context,
	source *domain.Wallet,
	dest domain.Destination,
	amount, fee int64,
	memo string,
	dispatched *domain.DispatchResult,
) (*SendResult, error) {
	now := uc.clock.Now().UTC()
	txType := domain.TxTypeOnchainPayment
	if dest.Kind == domain.DestinationLightning {
		txType = domain.TxTypePayment
	}

	var pubkey string
	if n := len(dispatched.HopPubkeys); n > 0 {
		pubkey = dispatched.HopPubkeys[n-1]
	}

	debit := &domain.LedgerEntry{
		AccountPath:       source.AccountPath(),
		Currency:          domain.CurrencyBTC,
		Amount:            -(amount + fee),
		Fee:               fee,
		FeeBearer:         true,
		FeeKnownInAdvance: dest.Kind == domain.DestinationOnchain,
		Memo:              memo,
		Usd:               uc.usdValue(ctx, domain.CurrencyBTC, amount, now),
	}
	legs := []*domain.LedgerEntry{
		debit,
		{AccountPath: domain.AccountReserve, Currency: domain.CurrencyBTC, Amount: amount, Fee: fee},
	}
	if fee > 0 {
		legs = append(legs, &domain.LedgerEntry{
			AccountPath: domain.AccountBankFee,
			Currency:    domain.CurrencyBTC,
			Amount:      fee,
			Fee:         fee,
		})
	}
	for _, leg := range legs {
		switch dest.Kind {
		case domain.DestinationLightning:
			leg.PaymentHash = dest.PaymentHash
			leg.Pubkey = pubkey
		case domain.DestinationOnchain:
			leg.Address = dest.Address
			leg.TxHash = dispatched.Hash
		}
	}

	set := &domain.LegSet{
		Hash:      dispatched.Hash,
		Type:      txType,
		Pending:   true,
		CreatedAt: now,
		Legs:      legs,
	}

	txID, err := uc.ledger.RecordTransaction(ctx, set)
	if err != nil {
		// The node already moved the funds; this needs an operator.
		uc.logger.Error().
			Err(err).
			Str("wallet_id", source.ID).
			Str("hash", dispatched.Hash).
			Int64("amount", amount).
			Msg("payment dispatched but not recorded")
		return nil, err
	}

	result := &SendResult{
		TransactionID: txID,
		Hash:          dispatched.Hash,
		Type:          txType,
		Amount:        amount,
		Fee:           fee,
		Pending:       true,
	}

	if dispatched.SettledAt == nil {
		return result, nil
	}

	settled, err := uc.ledger.SettlePending(ctx, SettleInput{
		TransactionID: txID,
		FinalFee:      dispatched.Fee,
		FeeUsd:        uc.usdValue(ctx, domain.CurrencyBTC, dispatched.Fee, *dispatched.SettledAt),
		ConfirmedAt:   *dispatched.SettledAt,
	})
	if err != nil {
		return nil, err
	}
	if uc.metrics != nil {
		uc.metrics.FeesCharged.Add(float64(settled.Fee()))
	}

	result.Fee = settled.Fee()
	result.Pending = false
	result.Settled = true

	return result, nil
}

// quoteFee returns the fee charged up front. On-chain fees come from the
// node's estimate; Lightning fees are capped at a share of the amount.
func (uc *ReconciliationUseCase) quoteFee(ctx context.Context, node LightningNode, dest domain.Destination, amount int64) (int64, error) {
	if dest.Kind == domain.DestinationLightning {
		return (amount*uc.feeCapBasisPoints + 9999) / 10000, nil
	}

	fee, err := node.EstimateFee(ctx, dest, amount)
	if err != nil {
		return 0, fmt.Errorf("estimate fee: %w", err)
	}
	if fee < 0 {
		return 0, fmt.Errorf("%w: negative fee estimate %d", domain.ErrInvalidAmount, fee)
	}

	return fee, nil
}

func (uc *ReconciliationUseCase) dispatch(ctx context.Context, node LightningNode, req domain.DispatchRequest) (*domain.DispatchResult, error) {
	dispatchCtx, cancel := context.WithTimeout(ctx, uc.dispatchTimeout)
	defer cancel()

	res, err := node.PayInvoiceOrAddress(dispatchCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(dispatchCtx.Err(), context.DeadlineExceeded) {
			return nil, domain.ErrDispatchTimeout
		}
		return nil, err
	}
	if res == nil || res.Hash == "" {
		return nil, fmt.Errorf("node returned no settlement hash")
	}

	return res, nil
}

func (uc *ReconciliationUseCase) ensureSpendable(ctx context.Context, wallet *domain.Wallet, required int64) error {
	balance, err := uc.ledger.GetBalance(ctx, BalanceQuery{
		AccountPath: wallet.AccountPath(),
		Currency:    wallet.Currency,
		View:        BalanceSpendable,
	})
	if err != nil {
		return err
	}
	if balance < required {
		return fmt.Errorf("%w: spendable %d, required %d", domain.ErrInsufficientBalance, balance, required)
	}
	return nil
}

// resolveAmount reconciles the requested amount with an amount fixed by the
// destination. Zero means "whatever the destination asks for".
func resolveAmount(requested int64, fixed *int64) (int64, error) {
	if fixed == nil {
		return requested, nil
	}
	if requested == 0 {
		return *fixed, nil
	}
	if requested != *fixed {
		return 0, fmt.Errorf("%w: requested %d, invoice asks %d", domain.ErrAmountMismatch, requested, *fixed)
	}
	return requested, nil
}
