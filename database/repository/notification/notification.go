package notificationRepo

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

// NotificationRepository persists the confirmation SMS outbox.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	// SetStatus updates delivery state, optionally recording the aggregator
	// message id once the send is accepted.
	SetStatus(ctx context.Context, id string, status models.NotificationStatus, providerMessageID string) error
	// SetStatusByProviderMessageID applies an SMS delivery report.
	SetStatusByProviderMessageID(ctx context.Context, providerMessageID string, status models.NotificationStatus) error
	// ListQueuedBefore returns notifications still QUEUED past the cutoff,
	// oldest first. These were committed with their ledger transition but
	// never handed to the dispatcher, typically because the process died in
	// between.
	ListQueuedBefore(ctx context.Context, cutoff time.Time, limit int64) ([]models.Notification, error)
}

type mongoNotificationRepo struct {
	coll *mongo.Collection
}

// NewMongoNotificationRepo returns a NotificationRepository backed by MongoDB.
func NewMongoNotificationRepo() NotificationRepository {
	db := database.MongoClient.Database(database.DatabaseName)
	repo := &mongoNotificationRepo{
		coll: db.Collection("notifications"),
	}
	if err := repo.ensureIndexes(); err != nil {
		log.Fatalf("notifications: failed to create indexes: %v", err)
	}
	return repo
}

func (r *mongoNotificationRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "providerMessageId", Value: 1}}, Options: options.Index().SetSparse(true)},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Create inserts a queued notification.
func (r *mongoNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Status == "" {
		n.Status = models.NotificationQueued
	}
	n.CreatedAt = time.Now()
	n.UpdatedAt = n.CreatedAt

	if _, err := r.coll.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// GetByID returns a notification by id.
func (r *mongoNotificationRepo) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&n); err != nil {
		return nil, err
	}
	return &n, nil
}

// SetStatus updates the delivery status of a notification.
func (r *mongoNotificationRepo) SetStatus(ctx context.Context, id string, status models.NotificationStatus, providerMessageID string) error {
	set := bson.M{
		"status":    status,
		"updatedAt": time.Now(),
	}
	if providerMessageID != "" {
		set["providerMessageId"] = providerMessageID
	}
	if _, err := r.coll.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("failed to update notification %s: %w", id, err)
	}
	return nil
}

// ListQueuedBefore returns stale queued notifications for re-dispatch.
func (r *mongoNotificationRepo) ListQueuedBefore(ctx context.Context, cutoff time.Time, limit int64) ([]models.Notification, error) {
	filter := bson.M{
		"status":    models.NotificationQueued,
		"createdAt": bson.M{"$lt": cutoff},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued notifications: %w", err)
	}
	defer cur.Close(ctx)

	var out []models.Notification
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode queued notifications: %w", err)
	}
	return out, nil
}

// SetStatusByProviderMessageID applies a delivery report from the aggregator.
func (r *mongoNotificationRepo) SetStatusByProviderMessageID(ctx context.Context, providerMessageID string, status models.NotificationStatus) error {
	filter := bson.M{"providerMessageId": providerMessageID}
	update := bson.M{"$set": bson.M{
		"status":    status,
		"updatedAt": time.Now(),
	}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to apply delivery report %s: %w", providerMessageID, err)
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
