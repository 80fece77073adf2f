package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TxType classifies a ledger transaction.
type TxType string

const (
	TxTypeInvoice          TxType = "invoice"
	TxTypePayment          TxType = "payment"
	TxTypeOnchainPayment   TxType = "onchain_payment"
	TxTypeOnchainReceipt   TxType = "onchain_receipt"
	TxTypeOnchainOnUs      TxType = "onchain_on_us"
	TxTypeLightningOnUs    TxType = "lightning_on_us"
	TxTypeFeeReimbursement TxType = "fee_reimbursement"
	TxTypeEscrow           TxType = "escrow"
)

// LedgerEntry is one leg of a double-entry transaction. Amount is signed and
// expressed in the currency's minor unit; a positive amount credits the account.
type LedgerEntry struct {
	ID            string
	TransactionID string
	AccountPath   string
	WalletID      string
	Currency      Currency
	Amount        int64
	Pending       bool
	Hash          string
	Fee           int64
	FeeUsd        decimal.Decimal
	Usd           decimal.Decimal
	Type          TxType
	// Memo is visible to the owner of this leg only.
	Memo string
	// MemoFromPayer records the note a payer attached, on the payer's own
	// leg. It is never projected to the receiving wallet.
	MemoFromPayer     string
	FeeBearer         bool
	FeeKnownInAdvance bool
	PaymentHash       string
	Address           string
	TxHash            string
	Pubkey            string
	RecipientWalletID string
	Timestamp         time.Time
	SettledAt         *time.Time
}

// IsDebit reports whether the leg takes value out of the account.
func (e *LedgerEntry) IsDebit() bool {
	return e.Amount < 0
}

// LegSet is the set of legs making up one ledger transaction.
type LegSet struct {
	TransactionID string
	Hash          string
	Type          TxType
	Pending       bool
	Legs          []*LedgerEntry
	CreatedAt     time.Time
	SettledAt     *time.Time
}

// Validate enforces the double-entry law: at least two legs, one leg per
// account, and a zero sum per currency.
func (s *LegSet) Validate() error {
	if len(s.Legs) < 2 {
		return fmt.Errorf("%w: need at least two legs, got %d", ErrUnbalancedTransaction, len(s.Legs))
	}

	seen := make(map[string]struct{}, len(s.Legs))
	for _, leg := range s.Legs {
		if leg.AccountPath == "" || leg.Currency == "" {
			return fmt.Errorf("%w: leg without account or currency", ErrUnbalancedTransaction)
		}
		if _, ok := seen[leg.AccountPath]; ok {
			return fmt.Errorf("%w: duplicate leg for %s", ErrUnbalancedTransaction, leg.AccountPath)
		}
		seen[leg.AccountPath] = struct{}{}
	}

	for currency, sum := range s.Sums() {
		if sum != 0 {
			return fmt.Errorf("%w: %s legs sum to %d", ErrUnbalancedTransaction, currency, sum)
		}
	}

	return nil
}

// Sums returns the signed total of the legs per currency.
func (s *LegSet) Sums() map[Currency]int64 {
	sums := make(map[Currency]int64)
	for _, leg := range s.Legs {
		sums[leg.Currency] += leg.Amount
	}
	return sums
}

// Leg returns the leg booked on the given account, or nil.
func (s *LegSet) Leg(accountPath string) *LedgerEntry {
	for _, leg := range s.Legs {
		if leg.AccountPath == accountPath {
			return leg
		}
	}
	return nil
}

// FeeBearerLeg returns the leg that absorbs fee changes, or nil.
func (s *LegSet) FeeBearerLeg() *LedgerEntry {
	for _, leg := range s.Legs {
		if leg.FeeBearer {
			return leg
		}
	}
	return nil
}

// Fee is the fee currently charged to the fee bearer.
func (s *LegSet) Fee() int64 {
	if bearer := s.FeeBearerLeg(); bearer != nil {
		return bearer.Fee
	}
	return 0
}

// Stamp copies the transaction-level fields onto every leg.
func (s *LegSet) Stamp() {
	for _, leg := range s.Legs {
		leg.TransactionID = s.TransactionID
		leg.Hash = s.Hash
		leg.Type = s.Type
		leg.Pending = s.Pending
		if leg.Timestamp.IsZero() {
			leg.Timestamp = s.CreatedAt
		}
		if id, ok := WalletIDFromPath(leg.AccountPath); ok {
			leg.WalletID = id
		}
		if !s.Pending && leg.SettledAt == nil && s.SettledAt != nil {
			settledAt := *s.SettledAt
			leg.SettledAt = &settledAt
		}
	}
}

// Settle turns a pending leg set into a settled one. The difference between
// the fee charged at send time and finalFee moves between the fee bearer and
// the fee account; every other leg keeps its amount.
func (s *LegSet) Settle(finalFee int64, feeUsd decimal.Decimal, at time.Time) error {
	if !s.Pending {
		return ErrNotPending
	}
	if finalFee < 0 {
		return fmt.Errorf("%w: negative fee %d", ErrInvalidAmount, finalFee)
	}

	if bearer := s.FeeBearerLeg(); bearer != nil {
		delta := finalFee - bearer.Fee
		if delta != 0 {
			feeLeg := s.Leg(AccountBankFee)
			if feeLeg == nil {
				feeLeg = &LedgerEntry{
					AccountPath: AccountBankFee,
					Currency:    bearer.Currency,
					Timestamp:   at,
				}
				s.Legs = append(s.Legs, feeLeg)
			}
			bearer.Amount -= delta
			feeLeg.Amount += delta
		}
	} else if finalFee != 0 {
		return fmt.Errorf("%w: no leg can absorb fee %d", ErrUnbalancedTransaction, finalFee)
	}

	settledAt := at
	s.Pending = false
	s.SettledAt = &settledAt
	for _, leg := range s.Legs {
		leg.Pending = false
		leg.Fee = finalFee
		leg.FeeUsd = feeUsd
		leg.SettledAt = &settledAt
	}
	s.Stamp()

	return s.Validate()
}
