package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/iho/satledger/internal/adapter/http/handler"
	apimiddleware "github.com/iho/satledger/internal/adapter/http/middleware"
	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/usecase"
)

func TestNewRouter_HealthEndpointAvailable(t *testing.T) {
	router := NewRouter(newRouterConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /health to return 200, got %d", rec.Code)
	}
}

func TestNewRouter_RateLimiterBlocksExcessRequests(t *testing.T) {
	rl := apimiddleware.NewRateLimiter(1, 1, nil)
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.RateLimiter = rl
	}))

	req1 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req1.RemoteAddr = "1.2.3.4:1234"
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req2.RemoteAddr = "1.2.3.4:1234"
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", rec2.Code)
	}
}

func TestNewRouter_IdempotencyMiddlewareInvokesStore(t *testing.T) {
	store := &stubIdempotencyStore{}
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.IdempotencyStore = store
	}))

	body := `{"wallet_id":"alice","destination":"lnbc1","amount":100}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apimiddleware.IdempotencyKeyHeader, "key-123")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if !store.checkCalled {
		t.Fatalf("expected idempotency store to be used")
	}
	if rec.Code != http.StatusCreated || !store.updated {
		t.Fatalf("expected stored 201, got %d (updated=%v)", rec.Code, store.updated)
	}
}

func TestNewRouter_WalletBalanceRoute(t *testing.T) {
	router := NewRouter(newRouterConfig())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/wallets/alice/balance?view=settled", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"balance":77`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestNewRouter_RegistersKeyRoutes(t *testing.T) {
	router := NewRouter(newRouterConfig())

	chiRoutes, ok := router.(chi.Router)
	if !ok {
		t.Fatal("router does not implement chi.Routes")
	}

	seen := map[string]bool{}
	if err := chi.Walk(chiRoutes, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		seen[method+" "+route] = true
		return nil
	}); err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	expected := []string{
		"GET /health",
		"GET /ready",
		"GET /metrics",
		"POST /api/v1/payments",
		"GET /api/v1/payments/{hash}",
		"POST /api/v1/invoices/",
		"GET /api/v1/invoices/{hash}",
		"POST /api/v1/settlements",
		"GET /api/v1/wallets/{id}/balance",
		"GET /api/v1/wallets/{id}/transactions",
		"GET /api/v1/nodes/health",
		"GET /api/v1/ledger/consistency",
		"GET /api/v1/ledger/entries",
	}

	for _, route := range expected {
		if !seen[route] {
			t.Fatalf("expected route %s to be registered, have %v", route, seen)
		}
	}
}

func newRouterConfig(opts ...func(*RouterConfig)) RouterConfig {
	cfg := RouterConfig{
		PaymentHandler:    handler.NewPaymentHandler(stubPayments{}),
		InvoiceHandler:    handler.NewInvoiceHandler(stubInvoices{}),
		SettlementHandler: handler.NewSettlementHandler(stubSettlements{}, nil),
		WalletHandler:     handler.NewWalletHandler(stubWallets{}),
		NodeHandler:       handler.NewNodeHandler(stubNodes{}),
		LedgerHandler:     handler.NewLedgerHandler(stubLedger{}),
		HealthHandler:     handler.NewHealthHandler(),
		Logger:            zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

type stubPayments struct{}

func (stubPayments) Send(ctx context.Context, input usecase.SendInput) (*usecase.SendResult, error) {
	return &usecase.SendResult{TransactionID: "tx", Settled: true, Amount: input.Amount}, nil
}

func (stubPayments) GetPayment(ctx context.Context, hash string) (*domain.Payment, error) {
	return &domain.Payment{PaymentHash: hash, Status: domain.PaymentPending}, nil
}

type stubInvoices struct{}

func (stubInvoices) CreateInvoice(ctx context.Context, input usecase.CreateInvoiceInput) (*domain.Invoice, error) {
	return &domain.Invoice{PaymentHash: "hash", WalletID: input.WalletID}, nil
}

func (stubInvoices) GetInvoice(ctx context.Context, hash string) (*domain.Invoice, error) {
	return &domain.Invoice{PaymentHash: hash}, nil
}

type stubSettlements struct{}

func (stubSettlements) ReconcileSettlement(ctx context.Context, ev domain.SettlementEvent) error {
	return nil
}

type stubWallets struct{}

func (stubWallets) Wallet(ctx context.Context, walletID string) (*domain.Wallet, error) {
	return &domain.Wallet{ID: walletID, Currency: domain.CurrencyBTC}, nil
}

func (stubWallets) WalletBalance(ctx context.Context, walletID string, currency domain.Currency, view usecase.BalanceView) (int64, error) {
	return 77, nil
}

func (stubWallets) ListTransactions(ctx context.Context, walletID string, limit, offset int) ([]domain.WalletTransaction, error) {
	return nil, nil
}

type stubNodes struct{}

func (stubNodes) Nodes() []domain.NodeConnection { return nil }

type stubLedger struct{}

func (stubLedger) CheckConsistency(ctx context.Context) (*usecase.ConsistencyReport, error) {
	return &usecase.ConsistencyReport{Consistent: true}, nil
}

func (stubLedger) ListEntries(ctx context.Context, filter usecase.EntryFilter) ([]*domain.LedgerEntry, error) {
	return nil, nil
}

type stubIdempotencyStore struct {
	checkCalled bool
	updated     bool
}

func (s *stubIdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	s.checkCalled = true
	return false, nil, nil
}

func (s *stubIdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	s.updated = true
	return nil
}

func (s *stubIdempotencyStore) Release(ctx context.Context, key string) error {
	return nil
}
