package utils

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
)

// HealthStatus is the snapshot served on /health: the ledger database plus
// the two redis roles the reconciliation path depends on.
type HealthStatus struct {
	Ledger    bool      `json:"ledger"`
	Cache     bool      `json:"cache"`
	Locks     bool      `json:"locks"`
	CheckedAt time.Time `json:"checkedAt"`
}

var (
	currentHealth HealthStatus
	mu            sync.RWMutex
)

// GetHealthStatus returns the latest stored health snapshot.
func GetHealthStatus() HealthStatus {
	mu.RLock()
	defer mu.RUnlock()
	return currentHealth
}

// StartHealthMonitor pings the backing stores once a minute and keeps the
// snapshot in memory, so /health never blocks on a dead dependency.
func StartHealthMonitor(cache, locks *redis.Client, mongoClient *mongo.Client) {
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()

		ctx := context.Background()

		for range ticker.C {
			snapshot := HealthStatus{
				Ledger:    mongoClient.Ping(ctx, nil) == nil,
				Cache:     cache.Ping(ctx).Err() == nil,
				Locks:     locks.Ping(ctx).Err() == nil,
				CheckedAt: time.Now(),
			}

			mu.Lock()
			currentHealth = snapshot
			mu.Unlock()
		}
	}()
}
