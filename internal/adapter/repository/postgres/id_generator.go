package postgres

import (
	"crypto/rand"
	"sync"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/oklog/ulid/v2"
)

// ULIDGenerator issues ids for journal transactions, legs, invoices and
// outbox events. Ids sort in creation order, including ids minted in the
// same millisecond, so keyset listings follow the ledger's write order.
type ULIDGenerator struct {
	mu      sync.Mutex
	clock   clock.Clock
	entropy *ulid.MonotonicEntropy
}

// NewULIDGenerator creates a ULIDGenerator stamping ids with clk.
func NewULIDGenerator(clk clock.Clock) *ULIDGenerator {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &ULIDGenerator{
		clock:   clk,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(g.clock.Now()), g.entropy).String()
}
