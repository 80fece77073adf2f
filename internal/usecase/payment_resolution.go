package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iho/satledger/internal/domain"
)

// GetPayment returns the record of an outgoing Lightning payment.
func (uc *ReconciliationUseCase) GetPayment(ctx context.Context, paymentHash string) (*domain.Payment, error) {
	if uc.payments == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return uc.payments.GetByPaymentHash(ctx, paymentHash)
}

// ResolvePayments asks the nodes about Lightning payments whose dispatch
// outcome was never learned. A payment the node delivered is booked to the
// ledger if it is not there yet; a payment the node failed, or never heard
// of within the grace period, is voided. It returns how many payments left
// the pending state.
func (uc *ReconciliationUseCase) ResolvePayments(ctx context.Context, limit int) (int, error) {
	if uc.payments == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = DefaultPaymentResolveBatch
	}

	pending, err := uc.payments.ListPending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending payments: %w", err)
	}

	resolved := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		outcome, err := uc.resolvePayment(ctx, p.WalletID, p.PaymentHash)
		if err != nil {
			uc.logger.Warn().Err(err).Str("payment_hash", p.PaymentHash).Msg("failed to resolve payment")
			continue
		}
		if outcome == "" {
			continue
		}
		resolved++
		if uc.metrics != nil {
			uc.metrics.PaymentsResolved.WithLabelValues(outcome).Inc()
		}
	}

	return resolved, nil
}

// resolvePayment returns the outcome it recorded, or "" when the payment is
// still in flight.
func (uc *ReconciliationUseCase) resolvePayment(ctx context.Context, walletID, hash string) (string, error) {
	// A send from the same wallet must not race the booking.
	unlock := uc.walletLocks.Lock(walletID)
	defer unlock()

	payment, err := uc.payments.GetByPaymentHash(ctx, hash)
	if err != nil {
		return "", err
	}
	if payment.Status != domain.PaymentPending {
		return "", nil
	}

	node, ok := uc.nodes[payment.NodeID]
	if !ok {
		return "", fmt.Errorf("%w: %s is not configured", domain.ErrNoActiveNode, payment.NodeID)
	}

	now := uc.clock.Now().UTC()
	np, err := node.LookupPayment(ctx, hash)
	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
		if now.Sub(payment.CreatedAt) < uc.paymentGracePeriod {
			return "", nil
		}
		return uc.voidPayment(ctx, payment, "payment unknown to node", now)
	case err != nil:
		return "", fmt.Errorf("look up payment on %s: %w", payment.NodeID, err)
	}

	switch np.Status {
	case domain.PaymentFailed:
		return uc.voidPayment(ctx, payment, np.FailureReason, now)
	case domain.PaymentSucceeded:
		return uc.completePayment(ctx, payment, np, now)
	default:
		return "", nil
	}
}

func (uc *ReconciliationUseCase) voidPayment(ctx context.Context, payment *domain.Payment, reason string, now time.Time) (string, error) {
	if err := payment.Fail(reason, now); err != nil {
		return "", err
	}
	if err := uc.payments.Save(ctx, payment); err != nil {
		return "", err
	}

	uc.logger.Info().
		Str("payment_hash", payment.PaymentHash).
		Str("wallet_id", payment.WalletID).
		Str("reason", reason).
		Msg("payment voided")
	return string(domain.PaymentFailed), nil
}

func (uc *ReconciliationUseCase) completePayment(ctx context.Context, payment *domain.Payment, np *domain.NodePayment, now time.Time) (string, error) {
	var txID string

	existing, err := uc.ledger.FindByHash(ctx, payment.PaymentHash)
	switch {
	case err == nil:
		txID = existing.TransactionID
	case errors.Is(err, domain.ErrTransactionNotFound):
		source, err := uc.directory.Wallet(ctx, payment.WalletID)
		if err != nil {
			return "", err
		}
		settledAt := now
		if np.SettledAt != nil {
			settledAt = *np.SettledAt
		}
		res, err := uc.bookSend(ctx, source, payment.Destination(), payment.Amount, payment.MaxFee, payment.Memo, &domain.DispatchResult{
			Hash:       payment.PaymentHash,
			Fee:        np.Fee,
			SettledAt:  &settledAt,
			HopPubkeys: np.HopPubkeys,
		})
		if err != nil {
			return "", err
		}
		txID = res.TransactionID
	default:
		return "", err
	}

	if err := payment.Succeed(np.Fee, np.HopPubkeys, txID, now); err != nil {
		return "", err
	}
	if err := uc.payments.Save(ctx, payment); err != nil {
		return "", err
	}

	uc.logger.Info().
		Str("payment_hash", payment.PaymentHash).
		Str("wallet_id", payment.WalletID).
		Str("transaction_id", txID).
		Int64("fee", np.Fee).
		Msg("payment resolved as delivered")
	return string(domain.PaymentSucceeded), nil
}
