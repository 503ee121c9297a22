package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	invoiceRepo "thefesta/database/repository/invoice"
	paymentRepo "thefesta/database/repository/payment"
	vendorRepo "thefesta/database/repository/vendor"
	"thefesta/models"
	"thefesta/services/notification"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Processor is the entry point for client-initiated money movement. It
// creates pending payments, drives the gateway, and feeds provider events
// through the reconciler. Callers never wait for settlement: a charge
// returns as soon as the aggregator queues the handset prompt.
type Processor struct {
	gateway    Gateway
	payments   paymentRepo.PaymentRepository
	invoices   invoiceRepo.InvoiceRepository
	vendors    vendorRepo.VendorRepository
	guard      *Guard
	reconciler *Reconciler
	notifier   notification.NotificationService
	logger     *zap.Logger
}

// NewProcessor wires the payment processor.
func NewProcessor(
	gateway Gateway,
	payments paymentRepo.PaymentRepository,
	invoices invoiceRepo.InvoiceRepository,
	vendors vendorRepo.VendorRepository,
	guard *Guard,
	reconciler *Reconciler,
	notifier notification.NotificationService,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		gateway:    gateway,
		payments:   payments,
		invoices:   invoices,
		vendors:    vendors,
		guard:      guard,
		reconciler: reconciler,
		notifier:   notifier,
		logger:     logger,
	}
}

// chargeSetup is the replayable result of the guarded creation step: the
// one payment record this idempotency key will ever produce.
type chargeSetup struct {
	PaymentID string `json:"paymentId"`
}

// ProcessCharge initiates a mobile-money collection for an invoice.
// Retrying with the same idempotency key reuses the payment record and, if
// a providerRef was already obtained, returns it without a second gateway
// call.
func (p *Processor) ProcessCharge(ctx context.Context, idempotencyKey string, req models.ChargeRequest) (*models.PaymentResult, error) {
	if !phonePattern.MatchString(req.PhoneNumber) {
		return nil, &ValidationError{Field: "phoneNumber", Reason: "not a Tanzanian mobile number"}
	}
	if req.Amount <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if idempotencyKey == "" {
		return nil, &ValidationError{Field: "Idempotency-Key", Reason: "required"}
	}

	build := func(sc context.Context) (*models.Payment, error) {
		invoice, err := p.invoices.GetByID(sc, req.InvoiceID)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, ErrInvoiceNotFound
			}
			return nil, err
		}
		if invoice.Status != models.InvoicePending {
			return nil, ErrInvoiceNotPending
		}
		if invoice.Amount != req.Amount {
			return nil, ErrAmountMismatch
		}

		method := req.Method
		if method == "" {
			if m, ok := MethodForPhone(req.PhoneNumber); ok {
				method = m
			} else {
				method = models.MethodMPesa
			}
		}

		meta := map[string]string{
			"description": req.Description,
			"phoneNumber": req.PhoneNumber,
			"bookingId":   invoice.BookingID,
		}
		for k, v := range req.Metadata {
			meta[k] = v
		}
		return &models.Payment{
			InvoiceID: req.InvoiceID,
			Amount:    req.Amount,
			Currency:  invoice.Currency,
			Method:    method,
			Status:    models.PaymentPending,
			Metadata:  meta,
		}, nil
	}

	// The per-key lock is held through the gateway round trip: a retry
	// racing a charge still in flight would otherwise replay the setup,
	// see no providerRef yet, and push a second handset prompt.
	var out *models.PaymentResult
	key := "charge:" + idempotencyKey
	err := p.guard.Locked(ctx, key, func(lc context.Context) error {
		setup, err := p.setupPayment(lc, key, build)
		if err != nil {
			return err
		}
		if done := resultIfSettled(setup); done != nil {
			out = done
			return nil
		}

		res, gwErr := p.gateway.InitiateCharge(lc, ChargeParams{
			PhoneNumber: req.PhoneNumber,
			Amount:      req.Amount,
			Currency:    setup.Currency,
			Description: req.Description,
			Metadata: map[string]string{
				"paymentId": setup.ID,
				"invoiceId": req.InvoiceID,
				"bookingId": setup.Metadata["bookingId"],
			},
		})
		out, err = p.finishInitiation(lc, setup, res, gwErr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ProcessPayout initiates a mobile-money disbursement to a vendor.
func (p *Processor) ProcessPayout(ctx context.Context, idempotencyKey string, req models.PayoutRequest) (*models.PaymentResult, error) {
	if idempotencyKey == "" {
		return nil, &ValidationError{Field: "Idempotency-Key", Reason: "required"}
	}
	currency := req.Currency
	if currency == "" {
		currency = "TZS"
	}

	var phone string
	build := func(sc context.Context) (*models.Payment, error) {
		vendor, err := p.vendors.GetByID(sc, req.VendorID)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, ErrVendorNotFound
			}
			return nil, err
		}
		if vendor.Phone == "" {
			return nil, ErrVendorNoPhone
		}
		if err := validateChargeable(vendor.Phone, req.Amount, currency); err != nil {
			return nil, err
		}
		phone = vendor.Phone

		method := models.MethodMPesa
		if m, ok := MethodForPhone(vendor.Phone); ok {
			method = m
		}
		meta := map[string]string{
			"type":        "payout",
			"vendorId":    req.VendorID,
			"phoneNumber": vendor.Phone,
			"description": req.Description,
		}
		for k, v := range req.Metadata {
			meta[k] = v
		}
		return &models.Payment{
			InvoiceID: models.PayoutInvoiceID,
			Amount:    req.Amount,
			Currency:  currency,
			Method:    method,
			Status:    models.PaymentPending,
			Metadata:  meta,
		}, nil
	}

	// Same locking discipline as ProcessCharge: one disbursement per key
	// even when retries overlap the gateway call.
	var out *models.PaymentResult
	key := "payout:" + idempotencyKey
	err := p.guard.Locked(ctx, key, func(lc context.Context) error {
		setup, err := p.setupPayment(lc, key, build)
		if err != nil {
			return err
		}
		if done := resultIfSettled(setup); done != nil {
			out = done
			return nil
		}
		if phone == "" {
			phone = setup.Metadata["phoneNumber"]
		}

		res, gwErr := p.gateway.InitiatePayout(lc, PayoutParams{
			PhoneNumber: phone,
			Amount:      req.Amount,
			Currency:    currency,
			Description: req.Description,
			Metadata: map[string]string{
				"paymentId": setup.ID,
				"vendorId":  req.VendorID,
			},
		})
		out, err = p.finishInitiation(lc, setup, res, gwErr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// setupPayment runs the guarded creation step and reloads the payment it
// produced (first execution or replay alike). The caller holds the key's
// lock via Guard.Locked.
func (p *Processor) setupPayment(ctx context.Context, key string, build func(ctx context.Context) (*models.Payment, error)) (*models.Payment, error) {
	raw, _, err := p.guard.Step(ctx, key, func(sc context.Context) (interface{}, error) {
		payment, err := build(sc)
		if err != nil {
			return nil, err
		}
		if err := p.payments.Create(sc, payment); err != nil {
			return nil, err
		}
		return chargeSetup{PaymentID: payment.ID}, nil
	})
	if err != nil {
		return nil, err
	}

	var setup chargeSetup
	if err := json.Unmarshal(raw, &setup); err != nil {
		return nil, fmt.Errorf("failed to decode idempotency result: %w", err)
	}
	payment, err := p.payments.GetByID(ctx, setup.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload payment %s: %w", setup.PaymentID, err)
	}
	return payment, nil
}

// resultIfSettled short-circuits a replayed request whose gateway call
// already happened.
func resultIfSettled(payment *models.Payment) *models.PaymentResult {
	if payment.ProviderRef == "" && !payment.Status.Terminal() {
		return nil
	}
	message := ""
	if payment.Status == models.PaymentPending {
		message = "Payment request sent successfully. Please check your phone."
	}
	return &models.PaymentResult{
		PaymentID:   payment.ID,
		ProviderRef: payment.ProviderRef,
		Status:      payment.Status,
		Message:     message,
	}
}

// finishInitiation persists the gateway's answer. Transient errors leave
// the payment pending so a caller retry (same key) or the sweep can finish
// the job; rejections are terminal for this attempt.
func (p *Processor) finishInitiation(ctx context.Context, payment *models.Payment, res *InitiateResult, gatewayErr error) (*models.PaymentResult, error) {
	if gatewayErr != nil {
		var invalid *ValidationError
		if errors.As(gatewayErr, &invalid) {
			// Out-of-bounds amount or an unsupported currency on the stored
			// invoice. Fail the payment now rather than leaving it pending
			// for the staleness sweep.
			meta := map[string]string{"error": invalid.Error()}
			if err := p.payments.MarkTerminal(ctx, payment.ID, models.PaymentFailed, meta); err != nil && !errors.Is(err, paymentRepo.ErrNotPending) {
				return nil, err
			}
			return nil, gatewayErr
		}

		var rejected *ProviderRejectedError
		if errors.As(gatewayErr, &rejected) {
			meta := map[string]string{"error": rejected.Reason}
			if err := p.payments.MarkTerminal(ctx, payment.ID, models.PaymentFailed, meta); err != nil && !errors.Is(err, paymentRepo.ErrNotPending) {
				return nil, err
			}
			return &models.PaymentResult{
				PaymentID: payment.ID,
				Status:    models.PaymentFailed,
				Message:   rejected.Reason,
			}, nil
		}
		return nil, gatewayErr
	}

	if err := p.payments.SetProviderRef(ctx, payment.ID, res.ProviderRef); err != nil {
		if errors.Is(err, paymentRepo.ErrRefAlreadySet) {
			reloaded, lerr := p.payments.GetByID(ctx, payment.ID)
			if lerr != nil {
				return nil, lerr
			}
			return resultIfSettled(reloaded), nil
		}
		return nil, err
	}

	p.logger.Info("payment initiated",
		zap.String("paymentId", payment.ID),
		zap.String("providerRef", res.ProviderRef))
	return &models.PaymentResult{
		PaymentID:   payment.ID,
		ProviderRef: res.ProviderRef,
		Status:      models.PaymentPending,
		Message:     res.Message,
	}, nil
}

// ReconcileEvent is the single funnel for provider-reported statuses,
// shared by the webhook worker, the poller and on-demand status checks.
// The guard makes redelivery a no-op; the confirmation SMS is dispatched
// only on the first, committed application.
func (p *Processor) ReconcileEvent(ctx context.Context, event ProviderEvent) (*ApplyResult, error) {
	raw, replayed, err := p.guard.Do(ctx, event.Key(), func(sc context.Context) (interface{}, error) {
		return p.reconciler.ApplyProviderStatus(sc, event)
	})
	if err != nil {
		return nil, err
	}

	var result ApplyResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode apply result: %w", err)
	}

	if !replayed && result.NotificationID != "" {
		// Fire-and-forget: a failed send never rolls back the ledger.
		go p.notifier.Dispatch(context.Background(), result.NotificationID)
	}
	return &result, nil
}

// CheckStatus returns the ledger view of a payment, asking the aggregator
// first if the payment is still pending with a transaction id.
func (p *Processor) CheckStatus(ctx context.Context, paymentID string) (*models.PaymentResult, error) {
	payment, err := p.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	if payment.Status == models.PaymentPending && payment.ProviderRef != "" {
		status, err := p.gateway.QueryStatus(ctx, payment.ProviderRef)
		if err != nil {
			// The poller will retry; report the current ledger view.
			p.logger.Warn("status query failed",
				zap.String("paymentId", paymentID), zap.Error(err))
		} else if _, err := p.ReconcileEvent(ctx, EventFromQuery(status)); err != nil {
			p.logger.Warn("status reconcile failed",
				zap.String("paymentId", paymentID), zap.Error(err))
		}
		if reloaded, err := p.payments.GetByID(ctx, paymentID); err == nil {
			payment = reloaded
		}
	}

	return &models.PaymentResult{
		PaymentID:   payment.ID,
		ProviderRef: payment.ProviderRef,
		Status:      payment.Status,
	}, nil
}

// EventFromQuery converts a gateway status lookup into a provider event.
func EventFromQuery(status *TransactionStatus) ProviderEvent {
	raw, _ := json.Marshal(status)
	return ProviderEvent{
		ProviderRef: status.ProviderRef,
		Status:      status.Status,
		Amount:      status.Amount,
		Currency:    status.Currency,
		PhoneNumber: status.PhoneNumber,
		Source:      SourcePoll,
		Raw:         raw,
	}
}

// History lists payments for a user or vendor, newest first.
func (p *Processor) History(ctx context.Context, filter paymentRepo.HistoryFilter) ([]models.Payment, error) {
	return p.payments.List(ctx, filter)
}

// Transactions fetches the aggregator-side transaction history.
func (p *Processor) Transactions(ctx context.Context, filter TransactionFilter) ([]TransactionStatus, error) {
	return p.gateway.FetchTransactions(ctx, filter)
}

// ExpireUnreferenced fails pending payments that never obtained a
// providerRef within the staleness window. Without a transaction id there
// is nothing to poll; the caller retries with a fresh payment.
func (p *Processor) ExpireUnreferenced(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := p.payments.ListUnreferencedPending(ctx, cutoff, 200)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, payment := range stale {
		meta := map[string]string{"error": "gateway initiation never completed"}
		if err := p.payments.MarkTerminal(ctx, payment.ID, models.PaymentFailed, meta); err != nil {
			if errors.Is(err, paymentRepo.ErrNotPending) {
				continue
			}
			return expired, err
		}
		expired++
		p.logger.Warn("expired unreferenced payment", zap.String("paymentId", payment.ID))
	}
	return expired, nil
}
