package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/satledger/internal/adapter/http/dto"
	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/usecase"
)

// PaymentService sends funds out of a wallet.
type PaymentService interface {
	Send(ctx context.Context, input usecase.SendInput) (*usecase.SendResult, error)
	GetPayment(ctx context.Context, paymentHash string) (*domain.Payment, error)
}

// PaymentHandler handles outgoing payments.
type PaymentHandler struct {
	payments PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(payments PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Send pays a Lightning invoice or an on-chain address. A settled payment
// answers 201; one still waiting for confirmations answers 202.
func (h *PaymentHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req dto.SendPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	result, err := h.payments.Send(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, "failed to send payment", err)
		return
	}

	status := http.StatusCreated
	if result.Pending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, dto.SendResultFromUseCase(result))
}

// Get reports the state of an outgoing Lightning payment.
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if hash == "" {
		writeError(w, http.StatusBadRequest, "missing payment hash", "")
		return
	}

	p, err := h.payments.GetPayment(r.Context(), hash)
	if err != nil {
		writeDomainError(w, "failed to get payment", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PaymentFromDomain(p))
}
