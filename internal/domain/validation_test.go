package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateAmount(t *testing.T) {
	t.Parallel()

	t.Run("positive amount", func(t *testing.T) {
		if err := ValidateAmount(10040); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("zero rejected", func(t *testing.T) {
		if err := ValidateAmount(0); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
	})

	t.Run("above supply rejected", func(t *testing.T) {
		if err := ValidateAmount(MaxAmountSats + 1); !errors.Is(err, ErrAmountTooLarge) {
			t.Fatalf("expected ErrAmountTooLarge, got %v", err)
		}
	})
}

func TestValidateMemo(t *testing.T) {
	t.Parallel()

	if err := ValidateMemo(strings.Repeat("a", MaxMemoLength)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := ValidateMemo(strings.Repeat("a", MaxMemoLength+1)); !errors.Is(err, ErrMemoTooLong) {
		t.Fatalf("expected ErrMemoTooLong, got %v", err)
	}
}

func TestValidateWalletID(t *testing.T) {
	t.Parallel()

	if err := ValidateWalletID("01HZX3Q9P0W4K2"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	for _, id := range []string{"", "   ", "wallet;drop", strings.Repeat("x", MaxIDLength+1)} {
		if err := ValidateWalletID(id); !errors.Is(err, ErrInvalidIDFormat) {
			t.Fatalf("expected ErrInvalidIDFormat for %q, got %v", id, err)
		}
	}
}

func TestValidateHash(t *testing.T) {
	t.Parallel()

	if err := ValidateHash(strings.Repeat("ab", 32)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := ValidateHash("ABCD"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestValidatePagination(t *testing.T) {
	t.Parallel()

	limit, offset, err := ValidatePagination(0, 0)
	if err != nil || limit != 50 || offset != 0 {
		t.Fatalf("unexpected defaults: limit=%d offset=%d err=%v", limit, offset, err)
	}

	limit, _, _ = ValidatePagination(5000, 0)
	if limit != 1000 {
		t.Fatalf("expected limit capped at 1000, got %d", limit)
	}

	if _, _, err := ValidatePagination(-1, 0); !errors.Is(err, ErrInvalidPageParam) {
		t.Fatalf("expected ErrInvalidPageParam, got %v", err)
	}
}

func TestParseCurrency(t *testing.T) {
	t.Parallel()

	c, err := ParseCurrency(" btc ")
	if err != nil || c != CurrencyBTC {
		t.Fatalf("expected BTC, got %q err=%v", c, err)
	}

	if _, err := ParseCurrency("EUR"); !errors.Is(err, ErrInvalidCurrency) {
		t.Fatalf("expected ErrInvalidCurrency, got %v", err)
	}
}
