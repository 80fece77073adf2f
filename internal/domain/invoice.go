package domain

import (
	"fmt"
	"time"
)

// InvoiceState is the settlement state of an invoice.
type InvoiceState string

const (
	InvoiceStateOpen    InvoiceState = "open"
	InvoiceStateSettled InvoiceState = "settled"
	InvoiceStateExpired InvoiceState = "expired"
)

// Invoice is a request to receive funds into a wallet. Amount is nil for
// zero-amount invoices; the realized amount then comes from the settlement.
type Invoice struct {
	PaymentHash    string
	PaymentRequest string
	WalletID       string
	Currency       Currency
	Amount         *int64
	AmountSats     int64
	Memo           string
	NodeID         string
	State          InvoiceState
	SettledAmount  int64
	CreatedAt      time.Time
	ExpiresAt      time.Time
	SettledAt      *time.Time
}

// NewInvoice builds an open invoice whose expiration follows the currency policy.
func NewInvoice(walletID string, currency Currency, amount *int64, memo string, now time.Time) (*Invoice, error) {
	if walletID == "" {
		return nil, ErrWalletNotFound
	}
	if amount != nil && *amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := ValidateMemo(memo); err != nil {
		return nil, err
	}

	delay, err := ExpirationDelay(currency)
	if err != nil {
		return nil, err
	}

	return &Invoice{
		WalletID:  walletID,
		Currency:  currency,
		Amount:    amount,
		Memo:      memo,
		State:     InvoiceStateOpen,
		CreatedAt: now,
		ExpiresAt: now.Add(delay),
	}, nil
}

// IsZeroAmount reports whether the payer chooses the amount.
func (i *Invoice) IsZeroAmount() bool {
	return i.Amount == nil
}

// IsPastExpiry reports whether the advisory expiration has passed.
func (i *Invoice) IsPastExpiry(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// MarkSettled records the realized amount. Expiration does not block
// settlement; the network's own expiry is authoritative.
func (i *Invoice) MarkSettled(amount int64, at time.Time) error {
	if i.State == InvoiceStateSettled {
		return ErrInvoiceAlreadySettled
	}
	if amount <= 0 {
		return fmt.Errorf("%w: settled amount %d", ErrInvalidAmount, amount)
	}

	settledAt := at
	i.State = InvoiceStateSettled
	i.SettledAmount = amount
	i.SettledAt = &settledAt

	return nil
}

// MarkExpired transitions an open invoice past its expiration to expired.
func (i *Invoice) MarkExpired(now time.Time) bool {
	if i.State != InvoiceStateOpen || !i.IsPastExpiry(now) {
		return false
	}
	i.State = InvoiceStateExpired
	return true
}
