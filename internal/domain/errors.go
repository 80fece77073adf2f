package domain

import "errors"

var (
	// Ledger errors
	ErrUnbalancedTransaction = errors.New("transaction legs do not sum to zero")
	ErrDuplicateHash         = errors.New("settlement hash already recorded")
	ErrHashPending           = errors.New("pending transaction already recorded for hash")
	ErrNotPending            = errors.New("transaction is not pending")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrInconsistentLedger    = errors.New("ledger is inconsistent")

	// Payment errors
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSelfPayment         = errors.New("cannot send to own wallet")
	ErrNoActiveNode        = errors.New("no active node available")
	ErrDispatchTimeout     = errors.New("payment dispatch timed out")
	ErrInvalidDestination  = errors.New("invalid destination")
	ErrAmountMismatch      = errors.New("amount does not match invoice amount")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrCurrencyMismatch    = errors.New("cannot transfer between different currencies")
	ErrPaymentFailed       = errors.New("payment failed")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrPaymentResolved     = errors.New("payment already resolved")

	// Invoice errors
	ErrInvoiceNotFound       = errors.New("invoice not found")
	ErrInvoiceAlreadySettled = errors.New("invoice already settled")

	// Directory errors
	ErrWalletNotFound = errors.New("wallet not found")
)
