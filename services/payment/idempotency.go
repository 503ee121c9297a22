package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	idemRepo "thefesta/database/repository/idempotency"
	ledgerRepo "thefesta/database/repository/ledger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	lockPrefix    = "idem:lock:"
	lockTTL       = 60 * time.Second
	lockRetryWait = 100 * time.Millisecond
	lockWaitMax   = 10 * time.Second
)

// Locker is the slice of the redis client the guard locks with.
type Locker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Guard gives a logical operation at-most-once side effects despite
// at-least-once delivery. Callers with the same key are serialized on a
// redis lock; the first execution's result is persisted in the same mongo
// transaction as the operation's own writes, and later callers replay it
// without running the operation again.
type Guard struct {
	locker  Locker
	records idemRepo.IdempotencyRepository
	tx      ledgerRepo.Transactor
	logger  *zap.Logger
}

// NewGuard wires the idempotency guard.
func NewGuard(locker Locker, records idemRepo.IdempotencyRepository, tx ledgerRepo.Transactor, logger *zap.Logger) *Guard {
	return &Guard{
		locker:  locker,
		records: records,
		tx:      tx,
		logger:  logger,
	}
}

// Operation runs inside the guard. The context carries the transaction
// session: repository writes made with it commit atomically with the
// idempotency record. The returned value is what replayed callers receive.
type Operation func(ctx context.Context) (interface{}, error)

// Do executes op under key. Returns the JSON-encoded result and whether it
// was replayed from a previous execution. An error from op aborts the
// transaction and stores nothing, so the key stays available for retry.
func (g *Guard) Do(ctx context.Context, key string, op Operation) ([]byte, bool, error) {
	var (
		raw      []byte
		replayed bool
	)
	err := g.Locked(ctx, key, func(lc context.Context) error {
		var err error
		raw, replayed, err = g.Step(lc, key, op)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return raw, replayed, nil
}

// Locked runs fn while holding the per-key lock. Payment initiation uses it
// to keep the lock through the whole create-then-charge sequence, so a
// same-key retry cannot issue a second aggregator call while the first one
// is still in flight. The lock TTL bounds the critical section; it must
// outlive the gateway client timeout.
func (g *Guard) Locked(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := g.acquireLock(ctx, key); err != nil {
		return err
	}
	defer g.releaseLock(key)
	return fn(ctx)
}

// Step is the replay-or-execute core of Do. The caller must already hold
// the key's lock, normally via Locked.
func (g *Guard) Step(ctx context.Context, key string, op Operation) ([]byte, bool, error) {
	if record, err := g.records.Get(ctx, key); err == nil {
		g.logger.Debug("idempotency replay", zap.String("key", key))
		return record.Result, true, nil
	} else if err != idemRepo.ErrNotFound {
		return nil, false, fmt.Errorf("failed to look up idempotency key %s: %w", key, err)
	}

	var encoded []byte
	err := g.tx.WithTransaction(ctx, func(sc context.Context) error {
		result, err := op(sc)
		if err != nil {
			return err
		}
		encoded, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to encode result for key %s: %w", key, err)
		}
		return g.records.Put(sc, key, encoded)
	})
	if err != nil {
		return nil, false, err
	}
	return encoded, false, nil
}

// acquireLock serializes concurrent callers on the key. The TTL bounds how
// long a crashed holder can block others.
func (g *Guard) acquireLock(ctx context.Context, key string) error {
	deadline := time.Now().Add(lockWaitMax)
	for {
		ok, err := g.locker.SetNX(ctx, lockPrefix+key, 1, lockTTL).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire lock for key %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for lock on key %s", key)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryWait):
		}
	}
}

func (g *Guard) releaseLock(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.locker.Del(ctx, lockPrefix+key).Err(); err != nil {
		g.logger.Warn("failed to release idempotency lock", zap.String("key", key), zap.Error(err))
	}
}
