package cron

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"thefesta/services/payment"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// orphanRetryDelay gives the initiating write time to commit before an
// orphan event is retried once.
const orphanRetryDelay = 10 * time.Second

// InitReconcileWorker runs the async reconciliation worker in background.
// It is the single consumer of provider events: per-event idempotency and
// per-transaction locking happen inside the processor.
func InitReconcileWorker(processor *payment.Processor, gateway payment.Gateway, tasks *TaskClient, logger *zap.Logger) {
	srv := asynq.NewServer(
		RedisOpt(),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePaymentReconcile, handleReconcileTask(processor, tasks, logger))
	mux.HandleFunc(TypePaymentQuery, handleQueryTask(processor, gateway, logger))

	// Start async worker with retry logic
	go func() {
		log.Println("[ReconcileWorker] starting async worker...")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			if err := srv.Run(mux); err != nil {
				log.Printf("[ReconcileWorker] attempt %d/%d failed to start worker: %v", attempts, maxAttempts, err)

				if attempts == maxAttempts {
					log.Fatal("[ReconcileWorker] max retry attempts reached. Exiting.")
				}
				time.Sleep(time.Duration(attempts*2) * time.Second) // Exponential backoff
			} else {
				break
			}
		}
	}()
}

func handleReconcileTask(processor *payment.Processor, tasks *TaskClient, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p ReconcilePayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			logger.Error("invalid reconcile payload", zap.Error(err))
			return nil // malformed payloads are not retryable
		}

		result, err := processor.ReconcileEvent(ctx, p.Event)
		if errors.Is(err, payment.ErrOrphanEvent) {
			if p.Attempt == 0 {
				logger.Warn("orphan provider event, retrying once",
					zap.String("providerRef", p.Event.ProviderRef),
					zap.String("status", string(p.Event.Status)))
				p.Attempt++
				return tasks.EnqueueReconcile(p, orphanRetryDelay)
			}
			logger.Warn("orphan provider event discarded",
				zap.String("providerRef", p.Event.ProviderRef),
				zap.String("status", string(p.Event.Status)))
			return nil
		}
		if err != nil {
			logger.Error("reconcile failed",
				zap.String("providerRef", p.Event.ProviderRef), zap.Error(err))
			return err
		}

		logger.Info("provider event reconciled",
			zap.String("providerRef", p.Event.ProviderRef),
			zap.String("outcome", string(result.Outcome)))
		return nil
	}
}

func handleQueryTask(processor *payment.Processor, gateway payment.Gateway, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p QueryPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			logger.Error("invalid query payload", zap.Error(err))
			return nil
		}

		status, err := gateway.QueryStatus(ctx, p.ProviderRef)
		if err != nil {
			if payment.IsTransient(err) {
				return err // retried by asynq, then by the next sweep
			}
			logger.Error("status query rejected",
				zap.String("providerRef", p.ProviderRef), zap.Error(err))
			return nil
		}

		if _, err := processor.ReconcileEvent(ctx, payment.EventFromQuery(status)); err != nil && !errors.Is(err, payment.ErrOrphanEvent) {
			return err
		}
		return nil
	}
}
