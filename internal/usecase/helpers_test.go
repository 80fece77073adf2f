package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"

	"github.com/iho/satledger/internal/adapter/repository/memory"
	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/usecase"
	"github.com/iho/satledger/internal/usecase/mocks"
)

var testStart = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

const (
	alice = "alice"
	bob   = "bob"
	carol = "carol-usd"

	aliceAddress = "bc1qalice0000000000000000000000000000000"
	bobAddress   = "bc1qbob00000000000000000000000000000000"
	externalAddr = "bc1qexternal0000000000000000000000000000"
)

// seqIDs hands out increasing ids so listings sort deterministically.
type seqIDs struct {
	n atomic.Int64
}

func (s *seqIDs) Generate() string {
	return fmt.Sprintf("id-%012d", s.n.Add(1))
}

type stubSelector struct {
	nodeID string
	err    error
}

func (s *stubSelector) SelectActive(role domain.NodeRole) (string, error) {
	return s.nodeID, s.err
}

type stubParser map[string]domain.Destination

func (p stubParser) Parse(raw string) (domain.Destination, error) {
	dest, ok := p[raw]
	if !ok {
		return domain.Destination{}, domain.ErrInvalidDestination
	}
	return dest, nil
}

type fixedRate struct {
	usdPerBTC decimal.Decimal
}

func (r fixedRate) Rate(ctx context.Context, currency domain.Currency, at time.Time) (decimal.Decimal, error) {
	return r.usdPerBTC, nil
}

type harness struct {
	store    *memory.Store
	wallets  *memory.WalletRepository
	invoices *memory.InvoiceRepository
	payments *memory.PaymentRepository
	ledger   *usecase.LedgerUseCase
	invoice  *usecase.InvoiceUseCase
	engine   *usecase.ReconciliationUseCase
	node     *mocks.MockLightningNode
	selector *stubSelector
	parser   stubParser
	clock    *clock.TestClock
	deps     usecase.ReconciliationDeps
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ctrl := gomock.NewController(t)
	h := &harness{
		store:    memory.NewStore(),
		wallets:  memory.NewWalletRepository(),
		invoices: memory.NewInvoiceRepository(),
		payments: memory.NewPaymentRepository(),
		node:     mocks.NewMockLightningNode(ctrl),
		selector: &stubSelector{nodeID: "lnd1"},
		parser: stubParser{
			aliceAddress: {Raw: aliceAddress, Kind: domain.DestinationOnchain, Address: aliceAddress},
			bobAddress:   {Raw: bobAddress, Kind: domain.DestinationOnchain, Address: bobAddress},
			externalAddr: {Raw: externalAddr, Kind: domain.DestinationOnchain, Address: externalAddr},
		},
		clock: clock.NewTestClock(testStart),
	}

	h.wallets.Add(domain.Wallet{ID: alice, Currency: domain.CurrencyBTC}, aliceAddress)
	h.wallets.Add(domain.Wallet{ID: bob, Currency: domain.CurrencyBTC}, bobAddress)
	h.wallets.Add(domain.Wallet{ID: carol, Currency: domain.CurrencyUSD})

	ids := &seqIDs{}
	rates := fixedRate{usdPerBTC: decimal.NewFromInt(50000)}
	nodes := usecase.NodePool{"lnd1": h.node}
	directory := usecase.NewDirectory(h.wallets, h.invoices)

	h.ledger = usecase.NewLedgerUseCase(h.store, h.store, h.store, h.store, h.store, ids,
		usecase.WithLedgerClock(h.clock),
	)
	h.invoice = usecase.NewInvoiceUseCase(usecase.InvoiceDeps{
		InvoiceRepo: h.invoices,
		Directory:   directory,
		Selector:    h.selector,
		Nodes:       nodes,
		Rates:       rates,
		TxManager:   h.store,
		OutboxRepo:  h.store,
		IDGen:       ids,
		Clock:       h.clock,
		Logger:      zerolog.Nop(),
	})
	h.deps = usecase.ReconciliationDeps{
		Ledger:    h.ledger,
		Invoices:  h.invoice,
		Payments:  h.payments,
		Directory: directory,
		Parser:    h.parser,
		Selector:  h.selector,
		Nodes:     nodes,
		Rates:     rates,
		Clock:     h.clock,
		Logger:    zerolog.Nop(),
	}
	h.engine = usecase.NewReconciliationUseCase(h.deps)

	return h
}

// rebuildEngine recreates the engine with adjusted dependencies.
func (h *harness) rebuildEngine(adjust func(*usecase.ReconciliationDeps)) {
	deps := h.deps
	adjust(&deps)
	h.engine = usecase.NewReconciliationUseCase(deps)
}

// fund credits a BTC wallet through a settled on-chain receipt.
func (h *harness) fund(t *testing.T, walletID string, amount int64) {
	t.Helper()

	_, err := h.ledger.RecordTransaction(context.Background(), &domain.LegSet{
		Hash: fmt.Sprintf("%064x", amount) + walletID,
		Type: domain.TxTypeOnchainReceipt,
		Legs: []*domain.LedgerEntry{
			{AccountPath: domain.AccountReserve, Currency: domain.CurrencyBTC, Amount: -amount},
			{AccountPath: domain.WalletAccountPath(walletID), Currency: domain.CurrencyBTC, Amount: amount},
		},
	})
	if err != nil {
		t.Fatalf("fund %s: %v", walletID, err)
	}
}

func (h *harness) balance(t *testing.T, path string, currency domain.Currency, view usecase.BalanceView) int64 {
	t.Helper()

	got, err := h.ledger.GetBalance(context.Background(), usecase.BalanceQuery{
		AccountPath: path,
		Currency:    currency,
		View:        view,
	})
	if err != nil {
		t.Fatalf("balance of %s: %v", path, err)
	}
	return got
}

func (h *harness) assertConsistent(t *testing.T) {
	t.Helper()

	report, err := h.ledger.CheckConsistency(context.Background())
	if err != nil {
		t.Fatalf("ledger inconsistent: %v (%+v)", err, report)
	}
}

// addInvoice registers an open invoice directly in the invoice store.
func (h *harness) addInvoice(t *testing.T, walletID string, currency domain.Currency, amount *int64, memo string) *domain.Invoice {
	t.Helper()

	inv, err := domain.NewInvoice(walletID, currency, amount, memo, h.clock.Now())
	if err != nil {
		t.Fatalf("new invoice: %v", err)
	}
	inv.PaymentHash = fmt.Sprintf("%064x", len(h.parser)+1)
	inv.PaymentRequest = "lnbc-" + inv.PaymentHash
	if err := h.invoices.Save(context.Background(), inv); err != nil {
		t.Fatalf("save invoice: %v", err)
	}

	h.parser[inv.PaymentRequest] = domain.Destination{
		Raw:         inv.PaymentRequest,
		Kind:        domain.DestinationLightning,
		PaymentHash: inv.PaymentHash,
	}
	return inv
}

func int64Ptr(v int64) *int64 {
	return &v
}

// mapCache is an in-process usecase.Cache.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (c *mapCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errors.New("cache miss")
	}
	return v, nil
}

func (c *mapCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *mapCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}
