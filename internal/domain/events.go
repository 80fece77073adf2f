package domain

import "time"

// Event types
const (
	EventTypeTransactionRecorded = "transaction.recorded"
	EventTypeTransactionSettled  = "transaction.settled"
	EventTypeInvoiceCreated      = "invoice.created"
	EventTypeInvoiceSettled      = "invoice.settled"
	EventTypeInvoiceExpired      = "invoice.expired"
)

// Aggregate types
const (
	AggregateTypeTransaction = "transaction"
	AggregateTypeInvoice     = "invoice"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// NewTransactionEvent builds the outbox record for a leg set.
func NewTransactionEvent(id string, set *LegSet, at time.Time) *OutboxEvent {
	event := &OutboxEvent{
		ID:            id,
		AggregateID:   set.TransactionID,
		AggregateType: AggregateTypeTransaction,
		CreatedAt:     at,
	}

	if set.Pending || set.SettledAt == nil {
		event.EventType = EventTypeTransactionRecorded
		event.Payload = map[string]any{
			"transaction_id": set.TransactionID,
			"hash":           set.Hash,
			"type":           string(set.Type),
			"pending":        set.Pending,
			"legs":           len(set.Legs),
		}
		return event
	}

	feeUsd := "0"
	if bearer := set.FeeBearerLeg(); bearer != nil {
		feeUsd = bearer.FeeUsd.String()
	}
	event.EventType = EventTypeTransactionSettled
	event.Payload = map[string]any{
		"transaction_id": set.TransactionID,
		"hash":           set.Hash,
		"fee":            set.Fee(),
		"fee_usd":        feeUsd,
		"settled_at":     set.SettledAt.UTC().Format(time.RFC3339Nano),
	}

	return event
}

// NewInvoiceEvent builds the outbox record for an invoice state change.
func NewInvoiceEvent(id, eventType string, inv *Invoice, at time.Time) *OutboxEvent {
	payload := map[string]any{
		"payment_hash": inv.PaymentHash,
		"wallet_id":    inv.WalletID,
		"currency":     string(inv.Currency),
		"state":        string(inv.State),
		"expires_at":   inv.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}
	if inv.Amount != nil {
		payload["amount"] = *inv.Amount
	}
	if inv.SettledAt != nil {
		payload["settled_amount"] = inv.SettledAmount
		payload["settled_at"] = inv.SettledAt.UTC().Format(time.RFC3339Nano)
	}

	return &OutboxEvent{
		ID:            id,
		AggregateID:   inv.PaymentHash,
		AggregateType: AggregateTypeInvoice,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     at,
	}
}
