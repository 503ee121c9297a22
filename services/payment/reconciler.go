package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bookingRepo "thefesta/database/repository/booking"
	invoiceRepo "thefesta/database/repository/invoice"
	notificationRepo "thefesta/database/repository/notification"
	paymentRepo "thefesta/database/repository/payment"
	"thefesta/models"

	"go.uber.org/zap"
)

// Event sources, recorded in payment metadata for audit.
const (
	SourceWebhook = "webhook"
	SourcePoll    = "poll"
)

// ProviderEvent is one asynchronously reported status for a transaction,
// whether it arrived by webhook push or by a poll of the aggregator.
type ProviderEvent struct {
	ProviderRef string           `json:"transactionId"`
	Status      NormalizedStatus `json:"status"`
	Amount      float64          `json:"amount"`
	Currency    string           `json:"currencyCode"`
	PhoneNumber string           `json:"phoneNumber"`
	Source      string           `json:"source"`
	Raw         json.RawMessage  `json:"raw,omitempty"`
}

// Key is the canonical idempotency key for this event: redelivery of the
// identical notification is a no-op, while a changed status for the same
// transaction is a new event.
func (e ProviderEvent) Key() string {
	return e.ProviderRef + ":" + string(e.Status)
}

// ApplyOutcome describes what the state machine did with an event.
type ApplyOutcome string

const (
	OutcomeApplied         ApplyOutcome = "applied"          // payment settled, ledger updated
	OutcomeFailedRecorded  ApplyOutcome = "failed_recorded"  // payment marked failed
	OutcomeAlreadyTerminal ApplyOutcome = "already_terminal" // consistent redelivery, no-op
	OutcomeConflict        ApplyOutcome = "conflict"         // contradicting status, first writer kept
	OutcomeIgnored         ApplyOutcome = "ignored"          // still pending, nothing to do
)

// ApplyResult is the stored, replayable answer for one event.
type ApplyResult struct {
	Outcome        ApplyOutcome         `json:"outcome"`
	PaymentID      string               `json:"paymentId,omitempty"`
	PaymentStatus  models.PaymentStatus `json:"paymentStatus,omitempty"`
	NotificationID string               `json:"notificationId,omitempty"`
}

// Reconciler owns the canonical Payment/Invoice/Booking lifecycle. Every
// writer (webhook, poller, future admin tooling) goes through
// ApplyProviderStatus; nothing else mutates payment status.
type Reconciler struct {
	payments      paymentRepo.PaymentRepository
	invoices      invoiceRepo.InvoiceRepository
	bookings      bookingRepo.BookingRepository
	notifications notificationRepo.NotificationRepository
	policy        BookingTransitionPolicy
	logger        *zap.Logger
}

// NewReconciler wires the ledger state machine.
func NewReconciler(
	payments paymentRepo.PaymentRepository,
	invoices invoiceRepo.InvoiceRepository,
	bookings bookingRepo.BookingRepository,
	notifications notificationRepo.NotificationRepository,
	policy BookingTransitionPolicy,
	logger *zap.Logger,
) *Reconciler {
	if policy == nil {
		policy = DefaultBookingPolicy
	}
	return &Reconciler{
		payments:      payments,
		invoices:      invoices,
		bookings:      bookings,
		notifications: notifications,
		policy:        policy,
		logger:        logger,
	}
}

// ApplyProviderStatus drives one provider-reported status through the state
// machine. Callers run it inside the idempotency guard, so all writes made
// here belong to a single unit of work; a crash mid-way leaves the ledger
// untouched and the event replayable.
func (r *Reconciler) ApplyProviderStatus(ctx context.Context, event ProviderEvent) (*ApplyResult, error) {
	payment, err := r.payments.GetByProviderRef(ctx, event.ProviderRef)
	if err != nil {
		if paymentRepo.IsNotFound(err) {
			// No speculative records for unknown transactions.
			return nil, ErrOrphanEvent
		}
		return nil, fmt.Errorf("failed to look up payment for %s: %w", event.ProviderRef, err)
	}

	r.crossCheck(payment, event)

	if payment.Status.Terminal() {
		if terminalStatusFor(event.Status) == payment.Status {
			return &ApplyResult{
				Outcome:       OutcomeAlreadyTerminal,
				PaymentID:     payment.ID,
				PaymentStatus: payment.Status,
			}, nil
		}
		// First-writer-wins: a stale or contradicting redelivery is logged
		// and ignored, never treated as an error.
		r.logger.Warn("conflicting status for terminal payment",
			zap.String("paymentId", payment.ID),
			zap.String("providerRef", event.ProviderRef),
			zap.String("stored", string(payment.Status)),
			zap.String("incoming", string(event.Status)))
		return &ApplyResult{
			Outcome:       OutcomeConflict,
			PaymentID:     payment.ID,
			PaymentStatus: payment.Status,
		}, nil
	}

	switch event.Status {
	case StatusCompleted:
		return r.settle(ctx, payment, event)
	case StatusFailed, StatusCancelled:
		return r.fail(ctx, payment, event)
	default:
		// Still pending on the provider side.
		return &ApplyResult{
			Outcome:       OutcomeIgnored,
			PaymentID:     payment.ID,
			PaymentStatus: payment.Status,
		}, nil
	}
}

// settle moves Payment→SUCCEEDED, Invoice→PAID, applies the booking policy
// and queues the confirmation, all in the caller's unit of work.
func (r *Reconciler) settle(ctx context.Context, payment *models.Payment, event ProviderEvent) (*ApplyResult, error) {
	if err := r.payments.MarkTerminal(ctx, payment.ID, models.PaymentSucceeded, causalMetadata(event)); err != nil {
		if errors.Is(err, paymentRepo.ErrNotPending) {
			// Lost the race to another writer; the per-key lock makes this
			// unreachable in practice, but stay first-writer-wins anyway.
			return &ApplyResult{Outcome: OutcomeConflict, PaymentID: payment.ID}, nil
		}
		return nil, err
	}

	result := &ApplyResult{
		Outcome:       OutcomeApplied,
		PaymentID:     payment.ID,
		PaymentStatus: models.PaymentSucceeded,
	}

	if !payment.IsPayout() {
		if err := r.settleInvoice(ctx, payment); err != nil {
			return nil, err
		}
	}

	notification := buildConfirmation(payment, event)
	if err := r.notifications.Create(ctx, notification); err != nil {
		return nil, fmt.Errorf("failed to queue confirmation: %w", err)
	}
	result.NotificationID = notification.ID

	r.logger.Info("payment settled",
		zap.String("paymentId", payment.ID),
		zap.String("providerRef", event.ProviderRef),
		zap.String("source", event.Source))
	return result, nil
}

func (r *Reconciler) settleInvoice(ctx context.Context, payment *models.Payment) error {
	invoice, err := r.invoices.GetByID(ctx, payment.InvoiceID)
	if err != nil {
		return fmt.Errorf("failed to load invoice %s: %w", payment.InvoiceID, err)
	}

	transitioned, err := r.invoices.MarkPaid(ctx, invoice.ID)
	if err != nil {
		return err
	}
	if !transitioned {
		// Already paid, most likely by a replayed event racing the guard's
		// record write. The booking transition below stays conditional, so
		// re-running is harmless.
		r.logger.Warn("invoice already paid", zap.String("invoiceId", invoice.ID))
	}

	booking, err := r.bookings.GetByID(ctx, invoice.BookingID)
	if err != nil {
		return fmt.Errorf("failed to load booking %s: %w", invoice.BookingID, err)
	}
	next, ok := r.policy(booking.Status, invoice.Type)
	if !ok {
		return nil
	}
	moved, err := r.bookings.TransitionStatus(ctx, booking.ID, booking.Status, next)
	if err != nil {
		return err
	}
	if moved {
		r.logger.Info("booking transitioned",
			zap.String("bookingId", booking.ID),
			zap.String("from", string(booking.Status)),
			zap.String("to", string(next)))
	}
	return nil
}

func (r *Reconciler) fail(ctx context.Context, payment *models.Payment, event ProviderEvent) (*ApplyResult, error) {
	meta := causalMetadata(event)
	meta["failureStatus"] = string(event.Status)
	if err := r.payments.MarkTerminal(ctx, payment.ID, models.PaymentFailed, meta); err != nil {
		if errors.Is(err, paymentRepo.ErrNotPending) {
			return &ApplyResult{Outcome: OutcomeConflict, PaymentID: payment.ID}, nil
		}
		return nil, err
	}

	// The invoice stays PENDING: the caller can retry with a fresh payment.
	r.logger.Info("payment failed",
		zap.String("paymentId", payment.ID),
		zap.String("providerRef", event.ProviderRef),
		zap.String("status", string(event.Status)),
		zap.String("source", event.Source))
	return &ApplyResult{
		Outcome:       OutcomeFailedRecorded,
		PaymentID:     payment.ID,
		PaymentStatus: models.PaymentFailed,
	}, nil
}

// crossCheck compares the reported amount/currency/phone against the stored
// payment. Mismatches are logged for investigation but do not block the
// transition; the aggregator's report is the settlement truth.
func (r *Reconciler) crossCheck(payment *models.Payment, event ProviderEvent) {
	if event.Amount != 0 && event.Amount != payment.Amount {
		r.logger.Warn("webhook amount mismatch",
			zap.String("paymentId", payment.ID),
			zap.Float64("stored", payment.Amount),
			zap.Float64("reported", event.Amount))
	}
	if event.Currency != "" && event.Currency != payment.Currency {
		r.logger.Warn("webhook currency mismatch",
			zap.String("paymentId", payment.ID),
			zap.String("stored", payment.Currency),
			zap.String("reported", event.Currency))
	}
}

// causalMetadata records the event that caused a transition, for audit.
func causalMetadata(event ProviderEvent) map[string]string {
	meta := map[string]string{
		"settledBy": event.Source,
		"settledAt": time.Now().UTC().Format(time.RFC3339),
	}
	if len(event.Raw) > 0 {
		digest := sha256.Sum256(event.Raw)
		meta["eventDigest"] = hex.EncodeToString(digest[:8])
	}
	return meta
}

func terminalStatusFor(status NormalizedStatus) models.PaymentStatus {
	switch status {
	case StatusCompleted:
		return models.PaymentSucceeded
	case StatusFailed, StatusCancelled:
		return models.PaymentFailed
	default:
		return models.PaymentPending
	}
}

func buildConfirmation(payment *models.Payment, event ProviderEvent) *models.Notification {
	phone := payment.Metadata["phoneNumber"]
	if phone == "" {
		phone = event.PhoneNumber
	}
	kind := "payment_confirmation"
	message := fmt.Sprintf("Your payment of %s %.0f has been received. Thank you for using TheFesta.",
		payment.Currency, payment.Amount)
	if payment.IsPayout() {
		kind = "payout_confirmation"
		message = fmt.Sprintf("Your payout of %s %.0f has been sent to your mobile money account.",
			payment.Currency, payment.Amount)
	}
	return &models.Notification{
		RecipientPhone: phone,
		Kind:           kind,
		Message:        message,
		PaymentID:      payment.ID,
	}
}
