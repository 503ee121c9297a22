package paymentRepo

import (
	"context"
	"log"
	"time"

	"thefesta/database"
	"thefesta/models"

	"go.mongodb.org/mongo-driver/mongo"
)

// HistoryFilter narrows a payment history listing.
type HistoryFilter struct {
	UserID    string
	VendorID  string
	InvoiceID string
	Status    models.PaymentStatus
	From      time.Time
	To        time.Time
	Limit     int64
	Offset    int64
}

// PaymentRepository persists Payment records. Status writes go through
// conditional updates so a terminal status can never be overwritten.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByProviderRef(ctx context.Context, providerRef string) (*models.Payment, error)
	// SetProviderRef records the aggregator transaction id on a payment that
	// does not have one yet. A providerRef is write-once.
	SetProviderRef(ctx context.Context, id, providerRef string) error
	// MarkTerminal moves a PENDING payment to the given terminal status and
	// merges metadata. Returns mongo.ErrNoDocuments-wrapped ErrNotPending if
	// the payment was already terminal.
	MarkTerminal(ctx context.Context, id string, status models.PaymentStatus, metadata map[string]string) error
	// ListStalePending returns PENDING payments with a providerRef whose last
	// update is older than the cutoff. Fed to the reconciliation sweep.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int64) ([]models.Payment, error)
	// ListUnreferencedPending returns PENDING payments that never received a
	// providerRef (the gateway call failed transiently) older than the cutoff.
	ListUnreferencedPending(ctx context.Context, cutoff time.Time, limit int64) ([]models.Payment, error)
	List(ctx context.Context, filter HistoryFilter) ([]models.Payment, error)
}

type mongoPaymentRepo struct {
	coll *mongo.Collection
}

// NewMongoPaymentRepo returns a PaymentRepository backed by MongoDB.
func NewMongoPaymentRepo() PaymentRepository {
	db := database.MongoClient.Database(database.DatabaseName)
	repo := &mongoPaymentRepo{
		coll: db.Collection("payments"),
	}
	if err := repo.ensureIndexes(); err != nil {
		log.Fatalf("payments: failed to create indexes: %v", err)
	}
	return repo
}
