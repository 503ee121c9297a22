package paymentRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ensureIndexes creates indexes for the lookups the reconciliation paths use.
func (r *mongoPaymentRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// providerRef is the join key between internal and aggregator state.
	// Sparse: payments only get a ref once the gateway accepts the request.
	providerRefIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "providerRef", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	}
	// The poll sweep scans by status + updatedAt.
	sweepIdx := mongo.IndexModel{
		Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "updatedAt", Value: 1},
		},
	}

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "invoiceId", Value: 1}}},
		providerRefIdx,
		sweepIdx,
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
