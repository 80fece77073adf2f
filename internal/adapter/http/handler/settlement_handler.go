package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/iho/satledger/internal/adapter/http/dto"
	"github.com/iho/satledger/internal/domain"
)

// SettlementService applies normalized settlement events.
type SettlementService interface {
	ReconcileSettlement(ctx context.Context, ev domain.SettlementEvent) error
}

// SettlementHandler accepts settlement events pushed by an external
// watcher. Redelivery of an already applied event is answered like the
// first delivery.
type SettlementHandler struct {
	engine SettlementService
	clock  clock.Clock
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(engine SettlementService, clk clock.Clock) *SettlementHandler {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &SettlementHandler{engine: engine, clock: clk}
}

// Reconcile applies one settlement event.
func (h *SettlementHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req dto.SettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	ev, err := req.ToDomain(h.clock.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid settlement event", err.Error())
		return
	}

	if err := h.engine.ReconcileSettlement(r.Context(), ev); err != nil {
		writeDomainError(w, "failed to reconcile settlement", err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"hash":   ev.Hash,
	})
}
