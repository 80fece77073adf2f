package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Visibility is the outcome of the memo spam filter.
type Visibility string

const (
	MemoVisible    Visibility = "visible"
	MemoSuppressed Visibility = "suppressed"
)

// MemoPolicy hides memos attached to tiny receives. Thresholds are in minor
// units per currency; a currency without a threshold shows every memo.
type MemoPolicy struct {
	Thresholds map[Currency]int64
}

// DefaultMemoPolicy returns the thresholds used in production.
func DefaultMemoPolicy() MemoPolicy {
	return MemoPolicy{Thresholds: map[Currency]int64{
		CurrencyBTC: 1000,
		CurrencyUSD: 5,
	}}
}

// Classify decides whether a memo received with amount may be displayed.
func (p MemoPolicy) Classify(currency Currency, amount int64, memo string) Visibility {
	if memo == "" {
		return MemoSuppressed
	}
	if amount < p.Thresholds[currency] {
		return MemoSuppressed
	}
	return MemoVisible
}

// WalletTransaction is a ledger leg as shown in a wallet's history.
type WalletTransaction struct {
	ID            string
	TransactionID string
	WalletID      string
	Type          TxType
	Currency      Currency
	Amount        int64
	Fee           int64
	FeeUsd        decimal.Decimal
	Usd           decimal.Decimal
	Pending       bool
	Hash          string
	Description   string
	Address       string
	PaymentHash   string
	Timestamp     time.Time
}

// ProjectEntry builds the history view of a wallet leg. The sender sees its
// own memo. The receiver sees the memo on its own leg (its invoice memo)
// only at or above the policy threshold, and never the payer's note;
// otherwise the description is the type.
func ProjectEntry(e *LedgerEntry, policy MemoPolicy) WalletTransaction {
	description := string(e.Type)

	if e.IsDebit() {
		if e.Memo != "" {
			description = e.Memo
		}
	} else {
		if policy.Classify(e.Currency, e.Amount, e.Memo) == MemoVisible {
			description = e.Memo
		}
	}

	return WalletTransaction{
		ID:            e.ID,
		TransactionID: e.TransactionID,
		WalletID:      e.WalletID,
		Type:          e.Type,
		Currency:      e.Currency,
		Amount:        e.Amount,
		Fee:           e.Fee,
		FeeUsd:        e.FeeUsd,
		Usd:           e.Usd,
		Pending:       e.Pending,
		Hash:          e.Hash,
		Description:   description,
		Address:       e.Address,
		PaymentHash:   e.PaymentHash,
		Timestamp:     e.Timestamp,
	}
}
