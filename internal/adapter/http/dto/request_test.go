package dto

import (
	"errors"
	"testing"
	"time"

	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/usecase"
)

func TestSendPaymentRequest_ToUseCaseInput(t *testing.T) {
	req := &SendPaymentRequest{
		WalletID:    "alice",
		Destination: "bc1qexample",
		Amount:      5000,
		Memo:        "rent",
	}

	got := req.ToUseCaseInput()
	want := usecase.SendInput{
		SourceWallet: "alice",
		Destination:  "bc1qexample",
		Amount:       5000,
		Memo:         "rent",
	}

	if got != want {
		t.Fatalf("ToUseCaseInput() = %+v, want %+v", got, want)
	}
}

func TestCreateInvoiceRequest_ToUseCaseInput(t *testing.T) {
	amount := int64(2500)

	tests := []struct {
		name        string
		request     *CreateInvoiceRequest
		want        domain.Currency
		expectError bool
	}{
		{
			name:    "lowercase currency",
			request: &CreateInvoiceRequest{WalletID: "alice", Currency: "usd", Amount: &amount},
			want:    domain.CurrencyUSD,
		},
		{
			name:    "wallet currency when empty",
			request: &CreateInvoiceRequest{WalletID: "alice"},
			want:    "",
		},
		{
			name:        "unknown currency",
			request:     &CreateInvoiceRequest{WalletID: "alice", Currency: "EUR"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.request.ToUseCaseInput()

			if tt.expectError {
				if !errors.Is(err, domain.ErrInvalidCurrency) {
					t.Fatalf("expected ErrInvalidCurrency, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Currency != tt.want || got.WalletID != tt.request.WalletID || got.Amount != tt.request.Amount {
				t.Fatalf("ToUseCaseInput() = %+v", got)
			}
		})
	}
}

func TestSettlementRequest_ToDomain(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name    string
		request *SettlementRequest
		wantAt  time.Time
		wantErr error
	}{
		{
			name: "chain confirmed with outputs",
			request: &SettlementRequest{
				Kind:          string(domain.SettlementChainConfirmed),
				Hash:          "tx1",
				Outputs:       []OutputRequest{{Address: "bc1qa", Amount: 1000}},
				Confirmations: 6,
				OccurredAt:    &earlier,
			},
			wantAt: earlier,
		},
		{
			name: "invoice settled defaults timestamp",
			request: &SettlementRequest{
				Kind:   string(domain.SettlementInvoiceSettled),
				Hash:   "ab",
				Amount: 100,
			},
			wantAt: now,
		},
		{
			name: "invoice without amount",
			request: &SettlementRequest{
				Kind: string(domain.SettlementInvoiceSettled),
				Hash: "ab",
			},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name: "non-positive output",
			request: &SettlementRequest{
				Kind:    string(domain.SettlementChainObserved),
				Hash:    "tx2",
				Outputs: []OutputRequest{{Address: "bc1qa", Amount: 0}},
			},
			wantErr: domain.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := tt.request.ToDomain(now)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !ev.OccurredAt.Equal(tt.wantAt) {
				t.Fatalf("OccurredAt = %v, want %v", ev.OccurredAt, tt.wantAt)
			}
			if len(ev.Outputs) != len(tt.request.Outputs) {
				t.Fatalf("outputs = %+v", ev.Outputs)
			}
		})
	}

	bad := &SettlementRequest{Kind: "mystery", Hash: "x"}
	if _, err := bad.ToDomain(now); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
