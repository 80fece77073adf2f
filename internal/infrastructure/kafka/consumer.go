package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/iho/satledger/internal/domain"
)

// Reader is the subset of kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// SettlementHandler applies one normalized settlement event.
type SettlementHandler func(ctx context.Context, ev domain.SettlementEvent) error

// SettlementMessage is the JSON form of a settlement event on the topic.
type SettlementMessage struct {
	Kind          string          `json:"kind"`
	Hash          string          `json:"hash"`
	Outputs       []OutputMessage `json:"outputs,omitempty"`
	Amount        int64           `json:"amount,omitempty"`
	Fee           int64           `json:"fee,omitempty"`
	Confirmations int32           `json:"confirmations,omitempty"`
	BlockHeight   int32           `json:"block_height,omitempty"`
	NodeID        string          `json:"node_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// OutputMessage is one on-chain output.
type OutputMessage struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

// Event converts the message into a validated domain event.
func (m SettlementMessage) Event() (domain.SettlementEvent, error) {
	ev := domain.SettlementEvent{
		Kind:          domain.SettlementKind(m.Kind),
		Hash:          m.Hash,
		Amount:        m.Amount,
		Fee:           m.Fee,
		Confirmations: m.Confirmations,
		BlockHeight:   m.BlockHeight,
		NodeID:        m.NodeID,
		OccurredAt:    m.OccurredAt,
	}
	for _, o := range m.Outputs {
		ev.Outputs = append(ev.Outputs, domain.ChainOutput{Address: o.Address, Amount: o.Amount})
	}
	if err := ev.Validate(); err != nil {
		return domain.SettlementEvent{}, err
	}
	return ev, nil
}

// ConsumerConfig configures the settlement consumer.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// MaxRetryElapsed bounds one round of retries of a failing event. After
	// a round fails the event is held and tried again later.
	MaxRetryElapsed time.Duration
}

// SettlementConsumer feeds settlement events from a topic into the
// reconciliation engine. Offsets are committed only after the handler
// succeeds or the message is undecodable. A message that keeps failing
// blocks the consumer, so no later offset is ever committed past it.
type SettlementConsumer struct {
	reader          Reader
	handler         SettlementHandler
	logger          zerolog.Logger
	maxRetryElapsed time.Duration
	holdBackOff     func() backoff.BackOff
}

// NewSettlementConsumer creates a group reader for the settlement topic.
func NewSettlementConsumer(cfg ConsumerConfig, handler SettlementHandler, logger zerolog.Logger) *SettlementConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})

	c := NewSettlementConsumerWithReader(reader, handler, logger.With().Str("topic", cfg.Topic).Logger())
	if cfg.MaxRetryElapsed > 0 {
		c.maxRetryElapsed = cfg.MaxRetryElapsed
	}
	return c
}

// NewSettlementConsumerWithReader wraps an existing reader.
func NewSettlementConsumerWithReader(r Reader, handler SettlementHandler, logger zerolog.Logger) *SettlementConsumer {
	return &SettlementConsumer{
		reader:          r,
		handler:         handler,
		logger:          logger.With().Str("component", "settlement_consumer").Logger(),
		maxRetryElapsed: 30 * time.Second,
		holdBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = time.Minute
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Run consumes until ctx is cancelled.
func (c *SettlementConsumer) Run(ctx context.Context) error {
	c.logger.Info().Msg("settlement consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info().Msg("settlement consumer stopped")
				return ctx.Err()
			}
			c.logger.Error().Err(err).Msg("failed to fetch settlement message")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		if err := c.process(ctx, msg); err != nil {
			c.logger.Info().Msg("settlement consumer stopped")
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit settlement message")
		}
	}
}

// process handles msg until it succeeds or ctx ends. The only error it
// returns is the context's.
func (c *SettlementConsumer) process(ctx context.Context, msg kafka.Message) error {
	hold := c.holdBackOff()

	for attempt := 1; ; attempt++ {
		err := c.handle(ctx, msg)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := hold.NextBackOff()
		c.logger.Error().Err(err).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("settlement message not processed, holding offset")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *SettlementConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var m SettlementMessage
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		c.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("dropping undecodable settlement message")
		return nil
	}
	ev, err := m.Event()
	if err != nil {
		c.logger.Warn().Err(err).Str("hash", m.Hash).Msg("dropping invalid settlement message")
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = c.maxRetryElapsed

	op := func() error {
		err := c.handler(ctx, ev)
		if err == nil || errors.Is(err, domain.ErrDuplicateHash) {
			return nil
		}
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("settlement %s: %w", ev.Hash, err)
	}
	return nil
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrUnbalancedTransaction) ||
		errors.Is(err, domain.ErrInvalidAmount) ||
		errors.Is(err, domain.ErrInvoiceNotFound)
}

// Close closes the reader.
func (c *SettlementConsumer) Close() error {
	return c.reader.Close()
}
