package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/iho/satledger/internal/adapter/http/dto"
	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/usecase"
)

// LedgerService exposes ledger-wide inspection.
type LedgerService interface {
	CheckConsistency(ctx context.Context) (*usecase.ConsistencyReport, error)
	ListEntries(ctx context.Context, filter usecase.EntryFilter) ([]*domain.LedgerEntry, error)
}

// LedgerHandler handles ledger-wide operations.
type LedgerHandler struct {
	ledger LedgerService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledger LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// CheckConsistency checks if the ledger is consistent.
func (h *LedgerHandler) CheckConsistency(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.CheckConsistency(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrInconsistentLedger) && report != nil {
			writeJSON(w, http.StatusConflict, dto.ConsistencyFromUseCase(report))
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to check consistency", "")
		return
	}

	writeJSON(w, http.StatusOK, dto.ConsistencyFromUseCase(report))
}

// ListEntries lists ledger legs filtered by account, wallet, hash, type
// and pending flag.
func (h *LedgerHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := usecase.EntryFilter{
		AccountPath: q.Get("account"),
		WalletID:    q.Get("wallet_id"),
		Hash:        q.Get("hash"),
		Type:        domain.TxType(q.Get("type")),
		Limit:       parseIntQuery(r, "limit", 50),
		Offset:      parseIntQuery(r, "offset", 0),
	}
	if raw := q.Get("pending"); raw != "" {
		pending, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid pending flag", err.Error())
			return
		}
		filter.Pending = &pending
	}

	entries, err := h.ledger.ListEntries(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "failed to list entries", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EntriesFromDomain(entries))
}
