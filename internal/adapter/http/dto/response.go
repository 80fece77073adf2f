package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/usecase"
)

// SendPaymentResponse represents the outcome of a send.
type SendPaymentResponse struct {
	TransactionID string `json:"transaction_id"`
	Hash          string `json:"hash"`
	Type          string `json:"type"`
	Amount        int64  `json:"amount"`
	Fee           int64  `json:"fee"`
	Status        string `json:"status"`
}

// SendResultFromUseCase converts a send result to response.
func SendResultFromUseCase(r *usecase.SendResult) *SendPaymentResponse {
	status := "settled"
	if r.Pending {
		status = "pending"
	}
	return &SendPaymentResponse{
		TransactionID: r.TransactionID,
		Hash:          r.Hash,
		Type:          string(r.Type),
		Amount:        r.Amount,
		Fee:           r.Fee,
		Status:        status,
	}
}

// PaymentResponse represents an outgoing Lightning payment.
type PaymentResponse struct {
	PaymentHash       string     `json:"payment_hash"`
	WalletID          string     `json:"wallet_id"`
	Amount            int64      `json:"amount"`
	Fee               int64      `json:"fee"`
	Status            string     `json:"status"`
	DestinationPubkey string     `json:"destination_pubkey,omitempty"`
	TransactionID     string     `json:"transaction_id,omitempty"`
	FailureReason     string     `json:"failure_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
}

// PaymentFromDomain converts a domain payment to response.
func PaymentFromDomain(p *domain.Payment) *PaymentResponse {
	return &PaymentResponse{
		PaymentHash:       p.PaymentHash,
		WalletID:          p.WalletID,
		Amount:            p.Amount,
		Fee:               p.Fee,
		Status:            string(p.Status),
		DestinationPubkey: p.DestinationPubkey(),
		TransactionID:     p.TransactionID,
		FailureReason:     p.FailureReason,
		CreatedAt:         p.CreatedAt,
		ResolvedAt:        p.ResolvedAt,
	}
}

// InvoiceResponse represents an invoice in API responses.
type InvoiceResponse struct {
	PaymentHash    string     `json:"payment_hash"`
	PaymentRequest string     `json:"payment_request"`
	WalletID       string     `json:"wallet_id"`
	Currency       string     `json:"currency"`
	Amount         *int64     `json:"amount,omitempty"`
	AmountSats     int64      `json:"amount_sats,omitempty"`
	Memo           string     `json:"memo,omitempty"`
	State          string     `json:"state"`
	SettledAmount  int64      `json:"settled_amount,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	SettledAt      *time.Time `json:"settled_at,omitempty"`
}

// InvoiceFromDomain converts domain invoice to response.
func InvoiceFromDomain(inv *domain.Invoice) *InvoiceResponse {
	return &InvoiceResponse{
		PaymentHash:    inv.PaymentHash,
		PaymentRequest: inv.PaymentRequest,
		WalletID:       inv.WalletID,
		Currency:       string(inv.Currency),
		Amount:         inv.Amount,
		AmountSats:     inv.AmountSats,
		Memo:           inv.Memo,
		State:          string(inv.State),
		SettledAmount:  inv.SettledAmount,
		CreatedAt:      inv.CreatedAt,
		ExpiresAt:      inv.ExpiresAt,
		SettledAt:      inv.SettledAt,
	}
}

// BalanceResponse is a wallet balance in the currency's minor unit.
type BalanceResponse struct {
	WalletID string `json:"wallet_id"`
	Currency string `json:"currency"`
	Unit     string `json:"unit"`
	View     string `json:"view"`
	Balance  int64  `json:"balance"`
}

// WalletTransactionResponse is one row of a wallet's history.
type WalletTransactionResponse struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	Type          string          `json:"type"`
	Currency      string          `json:"currency"`
	Amount        int64           `json:"amount"`
	Fee           int64           `json:"fee"`
	FeeUsd        decimal.Decimal `json:"fee_usd"`
	Usd           decimal.Decimal `json:"usd"`
	Pending       bool            `json:"pending"`
	Hash          string          `json:"hash"`
	Description   string          `json:"description"`
	Address       string          `json:"address,omitempty"`
	PaymentHash   string          `json:"payment_hash,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// WalletTransactionsFromDomain converts a wallet history to responses.
func WalletTransactionsFromDomain(txs []domain.WalletTransaction) []*WalletTransactionResponse {
	result := make([]*WalletTransactionResponse, len(txs))
	for i, t := range txs {
		result[i] = &WalletTransactionResponse{
			ID:            t.ID,
			TransactionID: t.TransactionID,
			Type:          string(t.Type),
			Currency:      string(t.Currency),
			Amount:        t.Amount,
			Fee:           t.Fee,
			FeeUsd:        t.FeeUsd,
			Usd:           t.Usd,
			Pending:       t.Pending,
			Hash:          t.Hash,
			Description:   t.Description,
			Address:       t.Address,
			PaymentHash:   t.PaymentHash,
			Timestamp:     t.Timestamp,
		}
	}
	return result
}

// EntryResponse represents a ledger leg in API responses.
type EntryResponse struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	AccountPath   string          `json:"account_path"`
	Currency      string          `json:"currency"`
	Amount        int64           `json:"amount"`
	Pending       bool            `json:"pending"`
	Hash          string          `json:"hash"`
	Type          string          `json:"type"`
	Fee           int64           `json:"fee"`
	FeeUsd        decimal.Decimal `json:"fee_usd"`
	Timestamp     time.Time       `json:"timestamp"`
	SettledAt     *time.Time      `json:"settled_at,omitempty"`
}

// EntryFromDomain converts domain entry to response.
func EntryFromDomain(e *domain.LedgerEntry) *EntryResponse {
	return &EntryResponse{
		ID:            e.ID,
		TransactionID: e.TransactionID,
		AccountPath:   e.AccountPath,
		Currency:      string(e.Currency),
		Amount:        e.Amount,
		Pending:       e.Pending,
		Hash:          e.Hash,
		Type:          string(e.Type),
		Fee:           e.Fee,
		FeeUsd:        e.FeeUsd,
		Timestamp:     e.Timestamp,
		SettledAt:     e.SettledAt,
	}
}

// EntriesFromDomain converts domain entries to responses.
func EntriesFromDomain(entries []*domain.LedgerEntry) []*EntryResponse {
	result := make([]*EntryResponse, len(entries))
	for i, e := range entries {
		result[i] = EntryFromDomain(e)
	}
	return result
}

// ConsistencyResponse reports the ledger-wide balance check.
type ConsistencyResponse struct {
	Status                 string           `json:"status"`
	Consistent             bool             `json:"consistent"`
	Totals                 map[string]int64 `json:"totals"`
	UnbalancedTransactions int64            `json:"unbalanced_transactions"`
}

// ConsistencyFromUseCase converts a consistency report to response.
func ConsistencyFromUseCase(r *usecase.ConsistencyReport) *ConsistencyResponse {
	resp := &ConsistencyResponse{
		Status:                 "consistent",
		Consistent:             r.Consistent,
		Totals:                 make(map[string]int64, len(r.Totals)),
		UnbalancedTransactions: r.UnbalancedTransactions,
	}
	if !r.Consistent {
		resp.Status = "inconsistent"
	}
	for currency, total := range r.Totals {
		resp.Totals[string(currency)] = total
	}
	return resp
}

// NodeResponse is one backing node's health.
type NodeResponse struct {
	ID          string     `json:"id"`
	Role        string     `json:"role"`
	State       string     `json:"state"`
	Active      bool       `json:"active"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
}

// NodesFromDomain converts node snapshots to responses.
func NodesFromDomain(nodes []domain.NodeConnection) []*NodeResponse {
	result := make([]*NodeResponse, len(nodes))
	for i, n := range nodes {
		resp := &NodeResponse{
			ID:     n.ID,
			Role:   string(n.Role),
			State:  string(n.State),
			Active: n.Active,
		}
		if !n.LastChecked.IsZero() {
			checked := n.LastChecked
			resp.LastChecked = &checked
		}
		result[i] = resp
	}
	return result
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
