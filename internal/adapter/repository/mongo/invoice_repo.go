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

// InvoiceCollection is the collection invoices are stored in.
const InvoiceCollection = "invoices"

type invoiceDocument struct {
	PaymentHash    string     `bson:"payment_hash"`
	PaymentRequest string     `bson:"payment_request"`
	WalletID       string     `bson:"wallet_id"`
	Currency       string     `bson:"currency"`
	Amount         *int64     `bson:"amount,omitempty"`
	AmountSats     int64      `bson:"amount_sats"`
	Memo           string     `bson:"memo"`
	NodeID         string     `bson:"node_id"`
	State          string     `bson:"state"`
	SettledAmount  int64      `bson:"settled_amount"`
	CreatedAt      time.Time  `bson:"created_at"`
	ExpiresAt      time.Time  `bson:"expires_at"`
	SettledAt      *time.Time `bson:"settled_at,omitempty"`
}

// InvoiceRepository implements usecase.InvoiceRepository on MongoDB.
type InvoiceRepository struct {
	collection *mongo.Collection
	logger     zerolog.Logger
}

// NewInvoiceRepository creates a new InvoiceRepository.
func NewInvoiceRepository(db *mongo.Database, logger zerolog.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		collection: db.Collection(InvoiceCollection),
		logger:     logger,
	}
}

// EnsureIndexes creates the unique payment hash index and the lookup
// indexes used by listings and the expiry sweep.
func (r *InvoiceRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "payment_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "wallet_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "state", Value: 1}, {Key: "expires_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create invoice indexes: %w", err)
	}
	return nil
}

// Save upserts the invoice keyed by payment hash.
func (r *InvoiceRepository) Save(ctx context.Context, invoice *domain.Invoice) error {
	doc := toDocument(invoice)

	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"payment_hash": invoice.PaymentHash},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		r.logger.Error().Err(err).Str("payment_hash", invoice.PaymentHash).Msg("failed to save invoice")
		return fmt.Errorf("failed to save invoice: %w", err)
	}

	return nil
}

// GetByPaymentHash returns the invoice or domain.ErrInvoiceNotFound.
func (r *InvoiceRepository) GetByPaymentHash(ctx context.Context, hash string) (*domain.Invoice, error) {
	var doc invoiceDocument
	err := r.collection.FindOne(ctx, bson.M{"payment_hash": hash}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return fromDocument(doc), nil
}

// ListByWallet returns a wallet's invoices, newest first.
func (r *InvoiceRepository) ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]*domain.Invoice, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"wallet_id": walletID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []invoiceDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode invoices: %w", err)
	}

	invoices := make([]*domain.Invoice, 0, len(docs))
	for _, doc := range docs {
		invoices = append(invoices, fromDocument(doc))
	}
	return invoices, nil
}

// ExpireOpen flips open invoices past expiration to expired one at a time,
// so an invoice settled concurrently is never reported as expired.
func (r *InvoiceRepository) ExpireOpen(ctx context.Context, now time.Time) ([]*domain.Invoice, error) {
	filter := bson.M{
		"state":      string(domain.InvoiceStateOpen),
		"expires_at": bson.M{"$lte": now},
	}
	update := bson.M{"$set": bson.M{"state": string(domain.InvoiceStateExpired)}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var expired []*domain.Invoice
	for {
		var doc invoiceDocument
		err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return expired, nil
		}
		if err != nil {
			return expired, fmt.Errorf("failed to expire invoices: %w", err)
		}
		expired = append(expired, fromDocument(doc))
	}
}

func toDocument(inv *domain.Invoice) invoiceDocument {
	return invoiceDocument{
		PaymentHash:    inv.PaymentHash,
		PaymentRequest: inv.PaymentRequest,
		WalletID:       inv.WalletID,
		Currency:       string(inv.Currency),
		Amount:         inv.Amount,
		AmountSats:     inv.AmountSats,
		Memo:           inv.Memo,
		NodeID:         inv.NodeID,
		State:          string(inv.State),
		SettledAmount:  inv.SettledAmount,
		CreatedAt:      inv.CreatedAt,
		ExpiresAt:      inv.ExpiresAt,
		SettledAt:      inv.SettledAt,
	}
}

func fromDocument(doc invoiceDocument) *domain.Invoice {
	return &domain.Invoice{
		PaymentHash:    doc.PaymentHash,
		PaymentRequest: doc.PaymentRequest,
		WalletID:       doc.WalletID,
		Currency:       domain.Currency(doc.Currency),
		Amount:         doc.Amount,
		AmountSats:     doc.AmountSats,
		Memo:           doc.Memo,
		NodeID:         doc.NodeID,
		State:          domain.InvoiceState(doc.State),
		SettledAmount:  doc.SettledAmount,
		CreatedAt:      doc.CreatedAt.UTC(),
		ExpiresAt:      doc.ExpiresAt.UTC(),
		SettledAt:      utcPtr(doc.SettledAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
