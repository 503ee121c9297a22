package ledgerRepo

import (
	"context"
	"fmt"

	"thefesta/database"

	"go.mongodb.org/mongo-driver/mongo"
)

// Transactor runs a function inside a single unit of work. The context
// passed to fn carries the mongo session, so every repository call made
// with it joins the same transaction, and a failure anywhere rolls back
// the whole Payment/Invoice/Booking update.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type mongoTransactor struct {
	client *mongo.Client
}

// NewMongoTransactor returns a Transactor over the shared mongo client.
func NewMongoTransactor() Transactor {
	return &mongoTransactor{client: database.MongoClient}
}

func (t *mongoTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := t.client.StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	if err := mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sc.StartTransaction(); err != nil {
			return err
		}
		if err := fn(sc); err != nil {
			_ = sc.AbortTransaction(sc)
			return err
		}
		return sc.CommitTransaction(sc)
	}); err != nil {
		return err
	}

	return nil
}
