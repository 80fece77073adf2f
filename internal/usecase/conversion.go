package usecase

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const satsPerBTC = 100_000_000

var (
	decSatsPerBTC = decimal.NewFromInt(satsPerBTC)
	decCents      = decimal.NewFromInt(100)
)

// satsToUsd values sats in dollars at usdPerBTC.
func satsToUsd(sats int64, usdPerBTC decimal.Decimal) decimal.Decimal {
	if sats == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(sats).Mul(usdPerBTC).Div(decSatsPerBTC).Round(8)
}

// satsToCents converts sats to whole cents, rounding half away from zero.
func satsToCents(sats int64, usdPerBTC decimal.Decimal) int64 {
	return satsToUsd(sats, usdPerBTC).Mul(decCents).Round(0).IntPart()
}

// centsToSats converts cents to sats, rounding up so the payer covers the amount.
func centsToSats(cents int64, usdPerBTC decimal.Decimal) (int64, error) {
	if !usdPerBTC.IsPositive() {
		return 0, fmt.Errorf("invalid exchange rate %s", usdPerBTC)
	}
	return decimal.NewFromInt(cents).Mul(decSatsPerBTC).Div(usdPerBTC.Mul(decCents)).Ceil().IntPart(), nil
}
