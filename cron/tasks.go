package cron

import (
	"encoding/json"
	"fmt"
	"time"

	"thefesta/config"
	"thefesta/services/payment"

	"github.com/hibiken/asynq"
)

const (
	// TypePaymentReconcile carries a provider-reported status (webhook push
	// or poll result) to the reconciliation worker.
	TypePaymentReconcile = "payment:reconcile"
	// TypePaymentQuery asks the worker to look a pending payment up at the
	// aggregator and feed the answer back through reconciliation.
	TypePaymentQuery = "payment:query"
)

// ReconcilePayload is the payload of a payment:reconcile task. Attempt
// counts orphan retries: an event whose payment is not found yet gets one
// delayed redelivery before being discarded.
type ReconcilePayload struct {
	Event   payment.ProviderEvent `json:"event"`
	Attempt int                   `json:"attempt"`
}

// QueryPayload is the payload of a payment:query task.
type QueryPayload struct {
	PaymentID   string `json:"paymentId"`
	ProviderRef string `json:"providerRef"`
}

// RedisOpt builds the asynq redis connection from app config.
func RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}
}

// TaskClient enqueues reconciliation work. Both producers, the webhook
// handler and the poller, go through it, so either can be disabled
// without touching the state machine.
type TaskClient struct {
	client *asynq.Client
}

// NewTaskClient returns a TaskClient over the shared queue redis.
func NewTaskClient() *TaskClient {
	return &TaskClient{client: asynq.NewClient(RedisOpt())}
}

// EnqueueReconcile queues a provider event, optionally delayed.
func (c *TaskClient) EnqueueReconcile(p ReconcilePayload, delay time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal reconcile payload: %w", err)
	}
	var opts []asynq.Option
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	if _, err := c.client.Enqueue(asynq.NewTask(TypePaymentReconcile, data), opts...); err != nil {
		return fmt.Errorf("failed to enqueue reconcile task: %w", err)
	}
	return nil
}

// EnqueueQuery queues a status lookup for a stale pending payment.
func (c *TaskClient) EnqueueQuery(p QueryPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal query payload: %w", err)
	}
	if _, err := c.client.Enqueue(asynq.NewTask(TypePaymentQuery, data)); err != nil {
		return fmt.Errorf("failed to enqueue query task: %w", err)
	}
	return nil
}

// Close releases the underlying asynq client.
func (c *TaskClient) Close() error {
	return c.client.Close()
}
