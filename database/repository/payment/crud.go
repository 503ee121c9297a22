package paymentRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"thefesta/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotPending signals a conditional update that matched no PENDING payment:
// either the payment does not exist or it already reached a terminal status.
var ErrNotPending = errors.New("payment is not pending")

// ErrRefAlreadySet signals an attempt to overwrite an existing providerRef.
var ErrRefAlreadySet = errors.New("providerRef already set")

// Create inserts a new payment record.
func (r *mongoPaymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	payment.CreatedAt = time.Now()
	payment.UpdatedAt = payment.CreatedAt

	if _, err := r.coll.InsertOne(ctx, payment); err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// GetByID returns a payment by its internal id.
func (r *mongoPaymentRepo) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetByProviderRef returns the payment joined to an aggregator transaction id.
func (r *mongoPaymentRepo) GetByProviderRef(ctx context.Context, providerRef string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.coll.FindOne(ctx, bson.M{"providerRef": providerRef}).Decode(&payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// SetProviderRef stores the aggregator transaction id. The filter excludes
// payments that already carry a ref, keeping providerRef write-once.
func (r *mongoPaymentRepo) SetProviderRef(ctx context.Context, id, providerRef string) error {
	filter := bson.M{
		"id": id,
		"$or": bson.A{
			bson.M{"providerRef": bson.M{"$exists": false}},
			bson.M{"providerRef": ""},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"providerRef": providerRef,
			"updatedAt":   time.Now(),
		},
	}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to set providerRef for payment %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrRefAlreadySet
	}
	return nil
}

// MarkTerminal conditionally moves a PENDING payment into a terminal status.
func (r *mongoPaymentRepo) MarkTerminal(ctx context.Context, id string, status models.PaymentStatus, metadata map[string]string) error {
	if !status.Terminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}

	set := bson.M{
		"status":    status,
		"updatedAt": time.Now(),
	}
	for k, v := range metadata {
		set["metadata."+k] = v
	}

	filter := bson.M{"id": id, "status": models.PaymentPending}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to mark payment %s as %s: %w", id, status, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotPending
	}
	return nil
}

// ListStalePending returns pending payments with a providerRef that have not
// been touched since the cutoff.
func (r *mongoPaymentRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int64) ([]models.Payment, error) {
	filter := bson.M{
		"status":      models.PaymentPending,
		"providerRef": bson.M{"$exists": true, "$ne": ""},
		"updatedAt":   bson.M{"$lt": cutoff},
	}
	return r.find(ctx, filter, limit, 0)
}

// ListUnreferencedPending returns pending payments whose gateway call never
// yielded a transaction id.
func (r *mongoPaymentRepo) ListUnreferencedPending(ctx context.Context, cutoff time.Time, limit int64) ([]models.Payment, error) {
	filter := bson.M{
		"status": models.PaymentPending,
		"$or": bson.A{
			bson.M{"providerRef": bson.M{"$exists": false}},
			bson.M{"providerRef": ""},
		},
		"updatedAt": bson.M{"$lt": cutoff},
	}
	return r.find(ctx, filter, limit, 0)
}

// List returns payments matching the history filter, newest first.
func (r *mongoPaymentRepo) List(ctx context.Context, hf HistoryFilter) ([]models.Payment, error) {
	filter := bson.M{}
	if hf.UserID != "" {
		filter["metadata.userId"] = hf.UserID
	}
	if hf.VendorID != "" {
		filter["metadata.vendorId"] = hf.VendorID
	}
	if hf.InvoiceID != "" {
		filter["invoiceId"] = hf.InvoiceID
	}
	if hf.Status != "" {
		filter["status"] = hf.Status
	}
	created := bson.M{}
	if !hf.From.IsZero() {
		created["$gte"] = hf.From
	}
	if !hf.To.IsZero() {
		created["$lt"] = hf.To
	}
	if len(created) > 0 {
		filter["createdAt"] = created
	}
	limit := hf.Limit
	if limit <= 0 {
		limit = 50
	}
	return r.find(ctx, filter, limit, hf.Offset)
}

func (r *mongoPaymentRepo) find(ctx context.Context, filter bson.M, limit, offset int64) ([]models.Payment, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer cursor.Close(ctx)

	var payments []models.Payment
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// IsNotFound reports whether err means the payment does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
