package domain

import (
	"fmt"
	"strings"
	"time"
)

// Currency is a ledger currency. Amounts are kept in the currency's minor unit.
type Currency string

const (
	CurrencyBTC Currency = "BTC"
	CurrencyUSD Currency = "USD"
)

// Currencies lists every supported currency.
func Currencies() []Currency {
	return []Currency{CurrencyBTC, CurrencyUSD}
}

// ParseCurrency converts a currency code into a Currency.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	switch c {
	case CurrencyBTC, CurrencyUSD:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
}

// MinorUnit returns the name of the currency's smallest unit.
func (c Currency) MinorUnit() string {
	switch c {
	case CurrencyBTC:
		return "sats"
	case CurrencyUSD:
		return "cents"
	default:
		return ""
	}
}

// ExpirationDelay is the invoice expiration policy. It depends on the
// currency only: USD invoices are priced at creation time and go stale fast.
func ExpirationDelay(c Currency) (time.Duration, error) {
	switch c {
	case CurrencyBTC:
		return 24 * time.Hour, nil
	case CurrencyUSD:
		return 2 * time.Minute, nil
	default:
		return 0, fmt.Errorf("%w: no expiration policy for %q", ErrInvalidCurrency, c)
	}
}
