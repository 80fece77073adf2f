package postgres

import (
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/oklog/ulid/v2"
)

func TestULIDGeneratorOrdersIdsWithinOneMillisecond(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	gen := NewULIDGenerator(clock.NewTestClock(now))

	prev := gen.Generate()
	for i := 0; i < 100; i++ {
		next := gen.Generate()
		if next <= prev {
			t.Fatalf("id %d not increasing: %s <= %s", i, next, prev)
		}
		prev = next
	}

	id, err := ulid.ParseStrict(prev)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !ulid.Time(id.Time()).Equal(now) {
		t.Fatalf("id time = %v, want %v", ulid.Time(id.Time()), now)
	}
}
