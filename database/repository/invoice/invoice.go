package invoiceRepo

import (
	"context"
	"fmt"
	"log"
	"time"

	"thefesta/database"
	"thefesta/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InvoiceRepository persists Invoice records.
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	GetByID(ctx context.Context, id string) (*models.Invoice, error)
	// MarkPaid conditionally moves a PENDING invoice to PAID. Matching no
	// document is not an error: the invoice may already be paid, which the
	// caller treats as a no-op.
	MarkPaid(ctx context.Context, id string) (bool, error)
}

type mongoInvoiceRepo struct {
	coll *mongo.Collection
}

// NewMongoInvoiceRepo returns an InvoiceRepository backed by MongoDB.
func NewMongoInvoiceRepo() InvoiceRepository {
	db := database.MongoClient.Database(database.DatabaseName)
	repo := &mongoInvoiceRepo{
		coll: db.Collection("invoices"),
	}
	if err := repo.ensureIndexes(); err != nil {
		log.Fatalf("invoices: failed to create indexes: %v", err)
	}
	return repo
}

func (r *mongoInvoiceRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "bookingId", Value: 1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Create inserts a new invoice.
func (r *mongoInvoiceRepo) Create(ctx context.Context, invoice *models.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.New().String()
	}
	invoice.CreatedAt = time.Now()
	invoice.UpdatedAt = invoice.CreatedAt

	if _, err := r.coll.InsertOne(ctx, invoice); err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

// GetByID returns an invoice by id.
func (r *mongoInvoiceRepo) GetByID(ctx context.Context, id string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// MarkPaid flips a pending invoice to paid; reports whether a transition
// actually happened.
func (r *mongoInvoiceRepo) MarkPaid(ctx context.Context, id string) (bool, error) {
	filter := bson.M{"id": id, "status": models.InvoicePending}
	update := bson.M{"$set": bson.M{
		"status":    models.InvoicePaid,
		"updatedAt": time.Now(),
	}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to mark invoice %s paid: %w", id, err)
	}
	return res.MatchedCount > 0, nil
}
