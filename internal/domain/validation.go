package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Validation errors
var (
	ErrInvalidCurrency  = errors.New("invalid currency code")
	ErrAmountTooLarge   = errors.New("amount exceeds maximum allowed")
	ErrMemoTooLong      = errors.New("memo exceeds maximum length")
	ErrInvalidIDFormat  = errors.New("invalid ID format")
	ErrInvalidHash      = errors.New("invalid settlement hash")
	ErrInvalidPageParam = errors.New("invalid pagination parameter")
)

// Validation constants
const (
	MaxMemoLength = 1024
	// MaxAmountSats is the total bitcoin supply in satoshis.
	MaxAmountSats = 21_000_000 * 100_000_000
	MaxIDLength   = 128
)

var (
	idRegex   = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)
	hashRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// ValidateAmount validates a send or invoice amount in minor units.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	if amount > MaxAmountSats {
		return fmt.Errorf("%w: maximum amount is %d", ErrAmountTooLarge, int64(MaxAmountSats))
	}

	return nil
}

// ValidateMemo validates a user supplied memo.
func ValidateMemo(memo string) error {
	if utf8.RuneCountInString(memo) > MaxMemoLength {
		return fmt.Errorf("%w: %d characters allowed", ErrMemoTooLong, MaxMemoLength)
	}
	return nil
}

// ValidateWalletID validates a wallet identifier.
func ValidateWalletID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > MaxIDLength || !idRegex.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidIDFormat, id)
	}
	return nil
}

// ValidateHash validates a hex encoded 32 byte hash (txid or payment hash).
func ValidateHash(hash string) error {
	if !hashRegex.MatchString(hash) {
		return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int, error) {
	const MaxPageSize = 1000
	const DefaultPageSize = 50

	if limit < 0 || offset < 0 {
		return 0, 0, ErrInvalidPageParam
	}

	if limit == 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	return limit, offset, nil
}
