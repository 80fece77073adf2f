package domain

import (
	"fmt"
	"time"
)

// PaymentStatus is the lifecycle state of an outgoing Lightning payment.
// A payment leaves pending exactly once.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment records an outgoing Lightning payment from the moment it is handed
// to a node. A payment whose dispatch outcome is unknown stays pending until
// the node reports it as succeeded or failed.
type Payment struct {
	PaymentHash    string
	PaymentRequest string
	WalletID       string
	NodeID         string
	Amount         int64
	MaxFee         int64
	Fee            int64
	Memo           string
	Status         PaymentStatus
	HopPubkeys     []string
	TransactionID  string
	FailureReason  string
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

// NewPayment starts the record of a payment about to be dispatched.
func NewPayment(walletID, nodeID string, dest Destination, amount, maxFee int64, memo string, now time.Time) (*Payment, error) {
	if dest.Kind != DestinationLightning || dest.PaymentHash == "" {
		return nil, fmt.Errorf("%w: payment record needs a payment hash", ErrInvalidDestination)
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	return &Payment{
		PaymentHash:    dest.PaymentHash,
		PaymentRequest: dest.Raw,
		WalletID:       walletID,
		NodeID:         nodeID,
		Amount:         amount,
		MaxFee:         maxFee,
		Memo:           memo,
		Status:         PaymentPending,
		CreatedAt:      now,
	}, nil
}

// Destination rebuilds the send target of the payment.
func (p *Payment) Destination() Destination {
	return Destination{
		Raw:         p.PaymentRequest,
		Kind:        DestinationLightning,
		PaymentHash: p.PaymentHash,
	}
}

// DestinationPubkey is the node the payment was delivered to: the last hop
// of the route, or empty when the route is unknown.
func (p *Payment) DestinationPubkey() string {
	if len(p.HopPubkeys) == 0 {
		return ""
	}
	return p.HopPubkeys[len(p.HopPubkeys)-1]
}

// Succeed marks the payment delivered and links it to its ledger transaction.
func (p *Payment) Succeed(fee int64, hops []string, transactionID string, at time.Time) error {
	if p.Status != PaymentPending {
		return fmt.Errorf("%w: payment %s is %s", ErrPaymentResolved, p.PaymentHash, p.Status)
	}
	p.Status = PaymentSucceeded
	p.Fee = fee
	p.HopPubkeys = hops
	p.TransactionID = transactionID
	p.ResolvedAt = &at
	return nil
}

// Fail voids the payment. No ledger transaction exists for a failed payment.
func (p *Payment) Fail(reason string, at time.Time) error {
	if p.Status != PaymentPending {
		return fmt.Errorf("%w: payment %s is %s", ErrPaymentResolved, p.PaymentHash, p.Status)
	}
	p.Status = PaymentFailed
	p.FailureReason = reason
	p.ResolvedAt = &at
	return nil
}

// NodePayment is a node's view of an outgoing payment.
type NodePayment struct {
	PaymentHash   string
	Status        PaymentStatus
	Fee           int64
	HopPubkeys    []string
	FailureReason string
	SettledAt     *time.Time
}
