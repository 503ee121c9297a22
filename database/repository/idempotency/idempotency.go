package idemRepo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"thefesta/database"
	"thefesta/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound signals that no record exists for the key.
var ErrNotFound = errors.New("idempotency record not found")

// IdempotencyRepository stores operation results keyed by idempotency key.
// Records expire through a TTL index once the aggregator's plausible
// redelivery window has passed.
type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*models.IdempotencyRecord, error)
	Put(ctx context.Context, key string, result []byte) error
}

type mongoIdemRepo struct {
	coll *mongo.Collection
	ttl  time.Duration
}

// NewMongoIdemRepo returns an IdempotencyRepository backed by MongoDB.
func NewMongoIdemRepo(ttl time.Duration) IdempotencyRepository {
	db := database.MongoClient.Database(database.DatabaseName)
	repo := &mongoIdemRepo{
		coll: db.Collection("idempotency_records"),
		ttl:  ttl,
	}
	if err := repo.ensureIndexes(); err != nil {
		log.Fatalf("idempotency_records: failed to create indexes: %v", err)
	}
	return repo
}

func (r *mongoIdemRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{
			Keys:    bson.D{{Key: "createdAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(r.ttl.Seconds())),
		},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Get returns the stored record for key, or ErrNotFound.
func (r *mongoIdemRepo) Get(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	var record models.IdempotencyRecord
	err := r.coll.FindOne(ctx, bson.M{"key": key}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Put inserts the record. The unique index on key rejects concurrent double
// writes; callers hold the per-key lock so a duplicate here is a bug upstream.
func (r *mongoIdemRepo) Put(ctx context.Context, key string, result []byte) error {
	record := models.IdempotencyRecord{
		Key:       key,
		Result:    result,
		CreatedAt: time.Now(),
	}
	if _, err := r.coll.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to insert idempotency record: %w", err)
	}
	return nil
}
