package cron

import (
	"context"
	"sync/atomic"
	"time"

	paymentRepo "thefesta/database/repository/payment"
	"thefesta/services/notification"
	"thefesta/services/payment"

	"go.uber.org/zap"
)

// Poller is the pull-side safety net: payments still pending past the
// staleness threshold get a status query enqueued, guaranteeing
// convergence even under total webhook loss.
type Poller struct {
	payments   paymentRepo.PaymentRepository
	processor  *payment.Processor
	notifier   notification.NotificationService
	tasks      *TaskClient
	interval   time.Duration
	staleAfter time.Duration
	logger     *zap.Logger

	running atomic.Bool
}

// NewPoller wires the polling fallback.
func NewPoller(
	payments paymentRepo.PaymentRepository,
	processor *payment.Processor,
	notifier notification.NotificationService,
	tasks *TaskClient,
	interval, staleAfter time.Duration,
	logger *zap.Logger,
) *Poller {
	return &Poller{
		payments:   payments,
		processor:  processor,
		notifier:   notifier,
		tasks:      tasks,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Start runs the sweep loop until ctx is cancelled. A tick is skipped when
// the previous sweep is still running; sweeps never overlap.
func (p *Poller) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !p.running.CompareAndSwap(false, true) {
					p.logger.Warn("previous sweep still running, skipping tick")
					continue
				}
				p.sweep(ctx)
				p.running.Store(false)
			}
		}
	}()
}

// sweep enqueues a status query for every stale pending payment and
// expires the ones that never got a transaction id.
func (p *Poller) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-p.staleAfter)

	stale, err := p.payments.ListStalePending(ctx, cutoff, 200)
	if err != nil {
		p.logger.Error("sweep failed to list stale payments", zap.Error(err))
		return
	}
	for _, pay := range stale {
		if err := p.tasks.EnqueueQuery(QueryPayload{PaymentID: pay.ID, ProviderRef: pay.ProviderRef}); err != nil {
			p.logger.Error("sweep failed to enqueue query",
				zap.String("paymentId", pay.ID), zap.Error(err))
		}
	}

	expired, err := p.processor.ExpireUnreferenced(ctx, cutoff)
	if err != nil {
		p.logger.Error("sweep failed to expire unreferenced payments", zap.Error(err))
	}

	redispatched, err := p.notifier.RedispatchStale(ctx, cutoff)
	if err != nil {
		p.logger.Error("sweep failed to redispatch queued notifications", zap.Error(err))
	}

	if len(stale) > 0 || expired > 0 || redispatched > 0 {
		p.logger.Info("reconciliation sweep",
			zap.Int("queried", len(stale)),
			zap.Int("expired", expired),
			zap.Int("redispatched", redispatched))
	}
}
