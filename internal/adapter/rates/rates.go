// Package rates prices bitcoin in fiat for USD valuation and for USD
// denominated invoices.
package rates

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/usecase"
)

// Static returns a fixed configured USD price.
type Static struct {
	usdPerBTC decimal.Decimal
}

// NewStatic creates a fixed-price source.
func NewStatic(usdPerBTC decimal.Decimal) (*Static, error) {
	if !usdPerBTC.IsPositive() {
		return nil, fmt.Errorf("usd rate must be positive, got %s", usdPerBTC)
	}
	return &Static{usdPerBTC: usdPerBTC}, nil
}

// Rate implements usecase.RateSource.
func (s *Static) Rate(ctx context.Context, currency domain.Currency, at time.Time) (decimal.Decimal, error) {
	if currency != domain.CurrencyUSD {
		return decimal.Zero, fmt.Errorf("%w: no rate for %s", domain.ErrInvalidCurrency, currency)
	}
	return s.usdPerBTC, nil
}

// Cached memoizes another source in a shared cache for ttl.
type Cached struct {
	source usecase.RateSource
	cache  usecase.Cache
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCached wraps source with cache.
func NewCached(source usecase.RateSource, cache usecase.Cache, ttl time.Duration, logger zerolog.Logger) *Cached {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cached{source: source, cache: cache, ttl: ttl, logger: logger}
}

// Rate returns the cached price when present. Cache failures fall back to
// the wrapped source.
func (c *Cached) Rate(ctx context.Context, currency domain.Currency, at time.Time) (decimal.Decimal, error) {
	key := "rate:" + string(currency)

	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("currency", string(currency)).Msg("rate cache read failed")
	}
	if err == nil && raw != nil {
		if rate, perr := decimal.NewFromString(string(raw)); perr == nil {
			return rate, nil
		}
	}

	rate, err := c.source.Rate(ctx, currency, at)
	if err != nil {
		return decimal.Zero, err
	}

	if err := c.cache.Set(ctx, key, []byte(rate.String()), c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("currency", string(currency)).Msg("rate cache write failed")
	}
	return rate, nil
}
