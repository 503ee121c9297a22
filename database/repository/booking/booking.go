package bookingRepo

import (
	"context"
	"fmt"
	"log"
	"time"

	"thefesta/database"
	"thefesta/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BookingRepository is the payment engine's view of bookings. The engine
// never mutates a booking except through TransitionStatus as a side effect
// of an invoice reaching PAID.
type BookingRepository interface {
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	// TransitionStatus moves a booking from to only if it currently holds
	// from, keeping concurrent settlements monotonic.
	TransitionStatus(ctx context.Context, id string, from, to models.BookingStatus) (bool, error)
}

type mongoBookingRepo struct {
	coll *mongo.Collection
}

// NewMongoBookingRepo returns a BookingRepository backed by MongoDB.
func NewMongoBookingRepo() BookingRepository {
	db := database.MongoClient.Database(database.DatabaseName)
	repo := &mongoBookingRepo{
		coll: db.Collection("bookings"),
	}
	if err := repo.ensureIndexes(); err != nil {
		log.Fatalf("bookings: failed to create indexes: %v", err)
	}
	return repo
}

func (r *mongoBookingRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "vendorId", Value: 1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// GetByID returns a booking by id.
func (r *mongoBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// TransitionStatus applies a compare-and-swap on the booking status.
func (r *mongoBookingRepo) TransitionStatus(ctx context.Context, id string, from, to models.BookingStatus) (bool, error) {
	filter := bson.M{"id": id, "status": from}
	update := bson.M{"$set": bson.M{
		"status":    to,
		"updatedAt": time.Now(),
	}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to transition booking %s from %s to %s: %w", id, from, to, err)
	}
	return res.MatchedCount > 0, nil
}
