package domain

import (
	"fmt"
	"time"
)

// SettlementKind is the kind of a normalized settlement event.
type SettlementKind string

const (
	SettlementChainObserved  SettlementKind = "chain_observed"
	SettlementChainConfirmed SettlementKind = "chain_confirmed"
	SettlementInvoiceSettled SettlementKind = "invoice_settled"
)

// ChainOutput is one output of an on-chain transaction.
type ChainOutput struct {
	Address string
	Amount  int64
}

// SettlementEvent is the normalized form of chain and Lightning events.
// Hash is the transaction hash for chain events and the payment hash for
// invoice settlements.
type SettlementEvent struct {
	Kind          SettlementKind
	Hash          string
	Outputs       []ChainOutput
	Amount        int64
	Fee           int64
	Confirmations int32
	BlockHeight   int32
	NodeID        string
	OccurredAt    time.Time
}

// Validate checks that the event carries what its kind needs.
func (e *SettlementEvent) Validate() error {
	if e.Hash == "" {
		return fmt.Errorf("settlement event without hash")
	}

	switch e.Kind {
	case SettlementChainObserved, SettlementChainConfirmed:
		if e.Fee < 0 {
			return fmt.Errorf("%w: negative fee", ErrInvalidAmount)
		}
		return nil
	case SettlementInvoiceSettled:
		if e.Amount <= 0 {
			return fmt.Errorf("%w: settled amount %d", ErrInvalidAmount, e.Amount)
		}
		return nil
	default:
		return fmt.Errorf("unknown settlement kind %q", e.Kind)
	}
}

// ChainTransaction is a transaction update reported by a chain watcher.
type ChainTransaction struct {
	Hash          string
	Outputs       []ChainOutput
	Confirmations int32
	Fee           int64
	BlockHeight   int32
	Timestamp     time.Time
}

// InvoiceSettlement is a settled invoice reported by a Lightning node.
type InvoiceSettlement struct {
	PaymentHash string
	Amount      int64
	SettledAt   time.Time
}

// DestinationKind tells on-chain addresses and Lightning invoices apart.
type DestinationKind string

const (
	DestinationOnchain   DestinationKind = "onchain"
	DestinationLightning DestinationKind = "lightning"
)

// Destination is a parsed send target.
type Destination struct {
	Raw         string
	Kind        DestinationKind
	Address     string
	PaymentHash string
	// Amount is set when a Lightning invoice fixes the amount, in sats.
	Amount *int64
}

// DispatchRequest is a payment handed to a backing node.
type DispatchRequest struct {
	Destination Destination
	Amount      int64
	MaxFee      int64
	Memo        string
}

// DispatchResult is what a node reports after accepting a payment.
// SettledAt is nil when the payment still awaits confirmation. HopPubkeys
// lists the route of a Lightning payment, destination last.
type DispatchResult struct {
	Hash       string
	Fee        int64
	SettledAt  *time.Time
	HopPubkeys []string
}
