package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/iho/satledger/internal/domain"
)

// Writer is the subset of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// eventEnvelope is the wire form of an outbox event.
type eventEnvelope struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   string         `json:"aggregate_id"`
	CreatedAt     time.Time      `json:"created_at"`
	Payload       map[string]any `json:"payload"`
}

// OutboxPublisher publishes outbox events to a topic, keyed by aggregate id
// so events of one transaction or invoice stay on one partition.
type OutboxPublisher struct {
	writer Writer
	topic  string
	logger zerolog.Logger
}

// NewOutboxPublisher builds a synchronous writer for the events topic.
func NewOutboxPublisher(brokers []string, topic string, logger zerolog.Logger) (*OutboxPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are not configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka events topic is not configured")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}

	return NewOutboxPublisherWithWriter(writer, topic, logger), nil
}

// NewOutboxPublisherWithWriter wraps an existing writer.
func NewOutboxPublisherWithWriter(w Writer, topic string, logger zerolog.Logger) *OutboxPublisher {
	return &OutboxPublisher{
		writer: w,
		topic:  topic,
		logger: logger.With().Str("topic", topic).Logger(),
	}
}

// Publish writes one event and waits for the broker to acknowledge it.
func (p *OutboxPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	value, err := json.Marshal(eventEnvelope{
		ID:            event.ID,
		Type:          event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		CreatedAt:     event.CreatedAt.UTC(),
		Payload:       event.Payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event %s to %s: %w", event.ID, p.topic, err)
	}

	p.logger.Debug().Str("event_id", event.ID).Str("event_type", event.EventType).Msg("event written")
	return nil
}

// Close flushes and closes the writer.
func (p *OutboxPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for %s: %w", p.topic, err)
	}
	return nil
}
