package rates

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redislib "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"

	"github.com/iho/satledger/internal/adapter/repository/redis"
	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/usecase/mocks"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestStatic(t *testing.T) {
	if _, err := NewStatic(decimal.Zero); err == nil {
		t.Fatalf("expected error for zero rate")
	}

	s, err := NewStatic(decimal.NewFromInt(50000))
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}

	rate, err := s.Rate(context.Background(), domain.CurrencyUSD, now)
	if err != nil || !rate.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("Rate(USD) = %s, %v", rate, err)
	}

	if _, err := s.Rate(context.Background(), domain.CurrencyBTC, now); !errors.Is(err, domain.ErrInvalidCurrency) {
		t.Fatalf("expected ErrInvalidCurrency, got %v", err)
	}
}

func newCache(t *testing.T) (*redis.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redislib.NewClient(&redislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return redis.NewCache(client), mr
}

func TestCachedHitsSourceOncePerTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockRateSource(ctrl)
	cache, mr := newCache(t)

	source.EXPECT().Rate(gomock.Any(), domain.CurrencyUSD, now).Return(decimal.RequireFromString("61234.5"), nil).Times(2)

	c := NewCached(source, cache, time.Minute, zerolog.Nop())
	for i := 0; i < 3; i++ {
		rate, err := c.Rate(context.Background(), domain.CurrencyUSD, now)
		if err != nil || rate.String() != "61234.5" {
			t.Fatalf("Rate = %s, %v", rate, err)
		}
	}

	mr.FastForward(2 * time.Minute)
	if _, err := c.Rate(context.Background(), domain.CurrencyUSD, now); err != nil {
		t.Fatalf("Rate after expiry: %v", err)
	}
}

func TestCachedPropagatesSourceErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockRateSource(ctrl)
	cache, mr := newCache(t)

	boom := errors.New("feed down")
	source.EXPECT().Rate(gomock.Any(), domain.CurrencyUSD, now).Return(decimal.Zero, boom)

	c := NewCached(source, cache, time.Minute, zerolog.Nop())
	if _, err := c.Rate(context.Background(), domain.CurrencyUSD, now); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("failed lookups must not be cached, keys: %v", mr.Keys())
	}
}

func TestCachedSurvivesCacheOutage(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockRateSource(ctrl)
	cache, mr := newCache(t)
	mr.Close()

	source.EXPECT().Rate(gomock.Any(), domain.CurrencyUSD, now).Return(decimal.NewFromInt(50000), nil)

	c := NewCached(source, cache, time.Minute, zerolog.Nop())
	rate, err := c.Rate(context.Background(), domain.CurrencyUSD, now)
	if err != nil || !rate.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("Rate = %s, %v", rate, err)
	}
}
