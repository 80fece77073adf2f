package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iho/satledger/internal/domain"
)

// PaymentCollection is the collection outgoing payments are stored in.
const PaymentCollection = "payments"

type paymentDocument struct {
	PaymentHash    string     `bson:"payment_hash"`
	PaymentRequest string     `bson:"payment_request"`
	WalletID       string     `bson:"wallet_id"`
	NodeID         string     `bson:"node_id"`
	Amount         int64      `bson:"amount"`
	MaxFee         int64      `bson:"max_fee"`
	Fee            int64      `bson:"fee"`
	Memo           string     `bson:"memo"`
	Status         string     `bson:"status"`
	HopPubkeys     []string   `bson:"hop_pubkeys,omitempty"`
	TransactionID  string     `bson:"transaction_id,omitempty"`
	FailureReason  string     `bson:"failure_reason,omitempty"`
	CreatedAt      time.Time  `bson:"created_at"`
	ResolvedAt     *time.Time `bson:"resolved_at,omitempty"`
}

// PaymentRepository implements usecase.PaymentRepository on MongoDB.
type PaymentRepository struct {
	collection *mongo.Collection
	logger     zerolog.Logger
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(db *mongo.Database, logger zerolog.Logger) *PaymentRepository {
	return &PaymentRepository{
		collection: db.Collection(PaymentCollection),
		logger:     logger,
	}
}

// EnsureIndexes creates the unique payment hash index and the index the
// resolution pass scans.
func (r *PaymentRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "payment_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create payment indexes: %w", err)
	}
	return nil
}

// Save upserts the payment keyed by payment hash.
func (r *PaymentRepository) Save(ctx context.Context, payment *domain.Payment) error {
	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"payment_hash": payment.PaymentHash},
		toPaymentDocument(payment),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		r.logger.Error().Err(err).Str("payment_hash", payment.PaymentHash).Msg("failed to save payment")
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

// GetByPaymentHash returns the payment or domain.ErrPaymentNotFound.
func (r *PaymentRepository) GetByPaymentHash(ctx context.Context, hash string) (*domain.Payment, error) {
	var doc paymentDocument
	err := r.collection.FindOne(ctx, bson.M{"payment_hash": hash}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return fromPaymentDocument(doc), nil
}

// ListPending returns unresolved payments, oldest first.
func (r *PaymentRepository) ListPending(ctx context.Context, limit int) ([]*domain.Payment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"status": string(domain.PaymentPending)}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []paymentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode payments: %w", err)
	}

	payments := make([]*domain.Payment, 0, len(docs))
	for _, doc := range docs {
		payments = append(payments, fromPaymentDocument(doc))
	}
	return payments, nil
}

func toPaymentDocument(p *domain.Payment) paymentDocument {
	return paymentDocument{
		PaymentHash:    p.PaymentHash,
		PaymentRequest: p.PaymentRequest,
		WalletID:       p.WalletID,
		NodeID:         p.NodeID,
		Amount:         p.Amount,
		MaxFee:         p.MaxFee,
		Fee:            p.Fee,
		Memo:           p.Memo,
		Status:         string(p.Status),
		HopPubkeys:     p.HopPubkeys,
		TransactionID:  p.TransactionID,
		FailureReason:  p.FailureReason,
		CreatedAt:      p.CreatedAt,
		ResolvedAt:     p.ResolvedAt,
	}
}

func fromPaymentDocument(doc paymentDocument) *domain.Payment {
	return &domain.Payment{
		PaymentHash:    doc.PaymentHash,
		PaymentRequest: doc.PaymentRequest,
		WalletID:       doc.WalletID,
		NodeID:         doc.NodeID,
		Amount:         doc.Amount,
		MaxFee:         doc.MaxFee,
		Fee:            doc.Fee,
		Memo:           doc.Memo,
		Status:         domain.PaymentStatus(doc.Status),
		HopPubkeys:     doc.HopPubkeys,
		TransactionID:  doc.TransactionID,
		FailureReason:  doc.FailureReason,
		CreatedAt:      doc.CreatedAt.UTC(),
		ResolvedAt:     utcPtr(doc.ResolvedAt),
	}
}
