package dto

import (
	"fmt"
	"time"

	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/usecase"
)

// SendPaymentRequest represents a request to send from a wallet.
type SendPaymentRequest struct {
	WalletID    string `json:"wallet_id"`
	Destination string `json:"destination"`
	Amount      int64  `json:"amount,omitempty"`
	Memo        string `json:"memo,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *SendPaymentRequest) ToUseCaseInput() usecase.SendInput {
	return usecase.SendInput{
		SourceWallet: r.WalletID,
		Destination:  r.Destination,
		Amount:       r.Amount,
		Memo:         r.Memo,
	}
}

// CreateInvoiceRequest represents a request to create a receive invoice.
// A missing amount creates a zero-amount invoice; a missing currency uses
// the wallet's own.
type CreateInvoiceRequest struct {
	WalletID string `json:"wallet_id"`
	Currency string `json:"currency,omitempty"`
	Amount   *int64 `json:"amount,omitempty"`
	Memo     string `json:"memo,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateInvoiceRequest) ToUseCaseInput() (usecase.CreateInvoiceInput, error) {
	input := usecase.CreateInvoiceInput{
		WalletID: r.WalletID,
		Amount:   r.Amount,
		Memo:     r.Memo,
	}
	if r.Currency != "" {
		currency, err := domain.ParseCurrency(r.Currency)
		if err != nil {
			return usecase.CreateInvoiceInput{}, err
		}
		input.Currency = currency
	}
	return input, nil
}

// SettlementRequest is a normalized settlement event pushed by a watcher.
type SettlementRequest struct {
	Kind          string          `json:"kind"`
	Hash          string          `json:"hash"`
	Outputs       []OutputRequest `json:"outputs,omitempty"`
	Amount        int64           `json:"amount,omitempty"`
	Fee           int64           `json:"fee,omitempty"`
	Confirmations int32           `json:"confirmations,omitempty"`
	BlockHeight   int32           `json:"block_height,omitempty"`
	NodeID        string          `json:"node_id,omitempty"`
	OccurredAt    *time.Time      `json:"occurred_at,omitempty"`
}

// OutputRequest is one on-chain output.
type OutputRequest struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

// ToDomain converts and validates the event. A missing timestamp is
// filled with now.
func (r *SettlementRequest) ToDomain(now time.Time) (domain.SettlementEvent, error) {
	ev := domain.SettlementEvent{
		Kind:          domain.SettlementKind(r.Kind),
		Hash:          r.Hash,
		Amount:        r.Amount,
		Fee:           r.Fee,
		Confirmations: r.Confirmations,
		BlockHeight:   r.BlockHeight,
		NodeID:        r.NodeID,
		OccurredAt:    now,
	}
	if r.OccurredAt != nil {
		ev.OccurredAt = *r.OccurredAt
	}
	for _, o := range r.Outputs {
		if o.Amount <= 0 {
			return domain.SettlementEvent{}, fmt.Errorf("%w: output amount %d", domain.ErrInvalidAmount, o.Amount)
		}
		ev.Outputs = append(ev.Outputs, domain.ChainOutput{Address: o.Address, Amount: o.Amount})
	}
	if err := ev.Validate(); err != nil {
		return domain.SettlementEvent{}, err
	}
	return ev, nil
}
