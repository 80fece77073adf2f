package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from blocking tables
	DefaultTransactionTimeout = 10 * time.Second

	// DefaultDispatchTimeout bounds a payment handed to a node.
	DefaultDispatchTimeout = 60 * time.Second

	// DefaultTargetConfirmations is the depth at which on-chain transfers settle.
	DefaultTargetConfirmations = 6

	// DefaultLightningFeeCapBasisPoints caps routing fees at 0.5% of the amount.
	DefaultLightningFeeCapBasisPoints = 50

	// DefaultPaymentGracePeriod is how long a payment the node has no record
	// of stays pending before it is voided.
	DefaultPaymentGracePeriod = 10 * time.Minute

	// DefaultPaymentResolveBatch bounds the payments one resolution pass reads.
	DefaultPaymentResolveBatch = 100

	// SettledEventTTL is how long a handled terminal settlement event is remembered in the cache.
	SettledEventTTL = 24 * time.Hour

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour
)
