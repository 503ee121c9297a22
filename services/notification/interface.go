package notification

import (
	"context"
	"time"
)

// NotificationService sends user-facing confirmations. Dispatch is
// fire-and-forget from the caller's point of view: the notification record
// is already committed with the ledger transition, and a failed send only
// marks the record FAILED.
type NotificationService interface {
	// Dispatch sends the queued notification with the given id.
	Dispatch(ctx context.Context, notificationID string) error
	// ApplyDeliveryReport updates a sent notification from an aggregator
	// delivery report.
	ApplyDeliveryReport(ctx context.Context, providerMessageID, providerStatus string) error
	// RedispatchStale re-sends notifications left QUEUED past the cutoff,
	// covering a crash between the ledger commit and the initial dispatch.
	RedispatchStale(ctx context.Context, cutoff time.Time) (int, error)
}
