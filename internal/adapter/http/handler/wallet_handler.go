package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/satledger/internal/adapter/http/dto"
	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/usecase"
)

// WalletService answers balance and history queries for a wallet.
type WalletService interface {
	Wallet(ctx context.Context, walletID string) (*domain.Wallet, error)
	WalletBalance(ctx context.Context, walletID string, currency domain.Currency, view usecase.BalanceView) (int64, error)
	ListTransactions(ctx context.Context, walletID string, limit, offset int) ([]domain.WalletTransaction, error)
}

// WalletHandler handles wallet-related HTTP requests.
type WalletHandler struct {
	wallets WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(wallets WalletService) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// Balance returns a wallet balance. ?currency= defaults to the wallet's
// currency and ?view= to the spendable view.
func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "id")
	if walletID == "" {
		writeError(w, http.StatusBadRequest, "missing wallet ID", "")
		return
	}

	var currency domain.Currency
	if code := r.URL.Query().Get("currency"); code != "" {
		c, err := domain.ParseCurrency(code)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid currency", err.Error())
			return
		}
		currency = c
	}

	view, err := usecase.ParseBalanceView(r.URL.Query().Get("view"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid balance view", err.Error())
		return
	}

	wallet, err := h.wallets.Wallet(r.Context(), walletID)
	if err != nil {
		writeDomainError(w, "failed to get wallet", err)
		return
	}
	if currency == "" {
		currency = wallet.Currency
	}

	balance, err := h.wallets.WalletBalance(r.Context(), walletID, currency, view)
	if err != nil {
		writeDomainError(w, "failed to get balance", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BalanceResponse{
		WalletID: walletID,
		Currency: string(currency),
		Unit:     currency.MinorUnit(),
		View:     string(view),
		Balance:  balance,
	})
}

// Transactions lists a wallet's history newest first.
func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "id")
	if walletID == "" {
		writeError(w, http.StatusBadRequest, "missing wallet ID", "")
		return
	}

	limit := parseIntQuery(r, "limit", 20)
	offset := parseIntQuery(r, "offset", 0)

	txs, err := h.wallets.ListTransactions(r.Context(), walletID, limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.WalletTransactionsFromDomain(txs))
}
