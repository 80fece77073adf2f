package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/usecase"
)

func (h *harness) addExternalInvoice(hash string, amount int64) string {
	raw := "lnbc-ext-" + hash[:8]
	h.parser[raw] = domain.Destination{
		Raw:         raw,
		Kind:        domain.DestinationLightning,
		PaymentHash: hash,
		Amount:      int64Ptr(amount),
	}
	return raw
}

func (h *harness) payment(t *testing.T, hash string) *domain.Payment {
	t.Helper()

	p, err := h.payments.GetByPaymentHash(context.Background(), hash)
	if err != nil {
		t.Fatalf("payment %s: %v", hash, err)
	}
	return p
}

func TestReconciliationUseCase_SendLightningRecordsPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, alice, 20000)
	raw := h.addExternalInvoice(payHash, 10040)

	settledAt := testStart.Add(time.Second)
	h.node.EXPECT().PayInvoiceOrAddress(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchResult, error) {
			p := h.payment(t, payHash)
			if p.Status != domain.PaymentPending || p.NodeID != "lnd1" {
				t.Fatalf("payment not pending before dispatch: %+v", p)
			}
			return &domain.DispatchResult{
				Hash:       payHash,
				Fee:        3,
				SettledAt:  &settledAt,
				HopPubkeys: []string{"02hop", "03dest"},
			}, nil
		})

	res, err := h.engine.Send(ctx, usecase.SendInput{SourceWallet: alice, Destination: raw, Memo: "rent"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	p := h.payment(t, payHash)
	if p.Status != domain.PaymentSucceeded || p.TransactionID != res.TransactionID || p.Fee != 3 {
		t.Fatalf("unexpected payment: %+v", p)
	}
	if p.DestinationPubkey() != "03dest" {
		t.Fatalf("destination pubkey = %q", p.DestinationPubkey())
	}

	set, err := h.ledger.FindByHash(ctx, payHash)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	for _, leg := range set.Legs {
		if leg.Pubkey != "03dest" {
			t.Fatalf("leg %s pubkey = %q, want 03dest", leg.AccountPath, leg.Pubkey)
		}
	}
}

func TestReconciliationUseCase_SendLightningFailureVoidsPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, alice, 20000)
	raw := h.addExternalInvoice(payHash, 10040)

	h.node.EXPECT().PayInvoiceOrAddress(gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("%w: no route", domain.ErrPaymentFailed))

	_, err := h.engine.Send(ctx, usecase.SendInput{SourceWallet: alice, Destination: raw})
	if !errors.Is(err, domain.ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}

	p := h.payment(t, payHash)
	if p.Status != domain.PaymentFailed || p.ResolvedAt == nil {
		t.Fatalf("payment not voided: %+v", p)
	}
	if _, err := h.ledger.FindByHash(ctx, payHash); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Fatalf("failed payment reached the ledger: %v", err)
	}

	// A failed payment may be attempted again.
	settledAt := testStart.Add(time.Second)
	h.node.EXPECT().PayInvoiceOrAddress(gomock.Any(), gomock.Any()).
		Return(&domain.DispatchResult{Hash: payHash, Fee: 1, SettledAt: &settledAt}, nil)

	if _, err := h.engine.Send(ctx, usecase.SendInput{SourceWallet: alice, Destination: raw}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := h.payment(t, payHash).Status; got != domain.PaymentSucceeded {
		t.Fatalf("status after retry = %s", got)
	}
}

func TestReconciliationUseCase_SendRejectsPaymentInFlight(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, alice, 20000)
	raw := h.addExternalInvoice(payHash, 10040)

	h.node.EXPECT().PayInvoiceOrAddress(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("connection reset"))

	if _, err := h.engine.Send(ctx, usecase.SendInput{SourceWallet: alice, Destination: raw}); err == nil {
		t.Fatal("expected dispatch error")
	}
	if got := h.payment(t, payHash).Status; got != domain.PaymentPending {
		t.Fatalf("status = %s, want pending", got)
	}

	_, err := h.engine.Send(ctx, usecase.SendInput{SourceWallet: alice, Destination: raw})
	if !errors.Is(err, domain.ErrDuplicateHash) {
		t.Fatalf("expected ErrDuplicateHash, got %v", err)
	}
}

func TestReconciliationUseCase_ResolvePaymentsBooksLateSuccess(t *testing.T) {
	h := newHarness(t)
	h.rebuildEngine(func(d *usecase.ReconciliationDeps) {
		d.DispatchTimeout = 20 * time.Millisecond
	})
	ctx := context.Background()
	h.fund(t, alice, 20000)
	raw := h.addExternalInvoice(payHash, 10040)

	h.node.EXPECT().PayInvoiceOrAddress(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	_, err := h.engine.Send(ctx, usecase.SendInput{SourceWallet: alice, Destination: raw, Memo: "rent"})
	if !errors.Is(err, domain.ErrDispatchTimeout) {
		t.Fatalf("expected ErrDispatchTimeout, got %v", err)
	}
	if _, err := h.ledger.FindByHash(ctx, payHash); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Fatalf("timed out send reached the ledger: %v", err)
	}

	settledAt := testStart.Add(30 * time.Second)
	h.node.EXPECT().LookupPayment(gomock.Any(), payHash).Return(&domain.NodePayment{
		PaymentHash: payHash,
		Status:      domain.PaymentSucceeded,
		Fee:         3,
		HopPubkeys:  []string{"02hop", "03dest"},
		SettledAt:   &settledAt,
	}, nil)

	resolved, err := h.engine.ResolvePayments(ctx, 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("resolved = %d, want 1", resolved)
	}

	if got := h.balance(t, domain.WalletAccountPath(alice), domain.CurrencyBTC, usecase.BalanceSettled); got != 20000-10043 {
		t.Fatalf("settled = %d, want %d", got, 20000-10043)
	}
	set, err := h.ledger.FindByHash(ctx, payHash)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if set.Pending || set.Legs[0].Pubkey != "03dest" || set.Legs[0].Memo != "rent" {
		t.Fatalf("unexpected booking: %+v", set.Legs[0])
	}

	p := h.payment(t, payHash)
	if p.Status != domain.PaymentSucceeded || p.TransactionID != set.TransactionID {
		t.Fatalf("unexpected payment: %+v", p)
	}

	// Nothing is left to resolve.
	resolved, err = h.engine.ResolvePayments(ctx, 0)
	if err != nil || resolved != 0 {
		t.Fatalf("second pass resolved %d, err %v", resolved, err)
	}
	h.assertConsistent(t)
}

func TestReconciliationUseCase_ResolvePaymentsVoidsUndelivered(t *testing.T) {
	failedHash := "d000000000000000000000000000000000000000000000000000000000000002"

	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, alice, 50000)
	rawLost := h.addExternalInvoice(payHash, 1000)
	rawFailed := h.addExternalInvoice(failedHash, 2000)

	h.node.EXPECT().PayInvoiceOrAddress(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("connection reset")).Times(2)
	for _, raw := range []string{rawLost, rawFailed} {
		if _, err := h.engine.Send(ctx, usecase.SendInput{SourceWallet: alice, Destination: raw}); err == nil {
			t.Fatal("expected dispatch error")
		}
	}

	// Inside the grace period an unknown payment stays pending; a failed
	// one is voided right away.
	h.node.EXPECT().LookupPayment(gomock.Any(), payHash).Return(nil, domain.ErrPaymentNotFound)
	h.node.EXPECT().LookupPayment(gomock.Any(), failedHash).Return(&domain.NodePayment{
		PaymentHash:   failedHash,
		Status:        domain.PaymentFailed,
		FailureReason: "FAILURE_REASON_NO_ROUTE",
	}, nil)

	resolved, err := h.engine.ResolvePayments(ctx, 10)
	if err != nil || resolved != 1 {
		t.Fatalf("resolved %d, err %v", resolved, err)
	}
	if p := h.payment(t, failedHash); p.Status != domain.PaymentFailed || p.FailureReason != "FAILURE_REASON_NO_ROUTE" {
		t.Fatalf("unexpected payment: %+v", p)
	}
	if got := h.payment(t, payHash).Status; got != domain.PaymentPending {
		t.Fatalf("status = %s, want pending", got)
	}

	h.clock.SetTime(testStart.Add(usecase.DefaultPaymentGracePeriod + time.Minute))
	h.node.EXPECT().LookupPayment(gomock.Any(), payHash).Return(nil, domain.ErrPaymentNotFound)

	resolved, err = h.engine.ResolvePayments(ctx, 10)
	if err != nil || resolved != 1 {
		t.Fatalf("resolved %d, err %v", resolved, err)
	}
	if got := h.payment(t, payHash).Status; got != domain.PaymentFailed {
		t.Fatalf("status = %s, want failed", got)
	}

	if got := h.balance(t, domain.WalletAccountPath(alice), domain.CurrencyBTC, usecase.BalanceSettled); got != 50000 {
		t.Fatalf("settled = %d, want 50000", got)
	}
}

func TestReconciliationUseCase_ResolvePaymentsKeepsInFlight(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, alice, 20000)
	raw := h.addExternalInvoice(payHash, 1000)

	h.node.EXPECT().PayInvoiceOrAddress(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))
	if _, err := h.engine.Send(ctx, usecase.SendInput{SourceWallet: alice, Destination: raw}); err == nil {
		t.Fatal("expected dispatch error")
	}

	h.clock.SetTime(testStart.Add(time.Hour))
	h.node.EXPECT().LookupPayment(gomock.Any(), payHash).Return(&domain.NodePayment{
		PaymentHash: payHash,
		Status:      domain.PaymentPending,
	}, nil)

	resolved, err := h.engine.ResolvePayments(ctx, 0)
	if err != nil || resolved != 0 {
		t.Fatalf("resolved %d, err %v", resolved, err)
	}
	if got := h.payment(t, payHash).Status; got != domain.PaymentPending {
		t.Fatalf("status = %s, want pending", got)
	}
}
