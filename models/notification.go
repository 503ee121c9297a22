package models

import "time"

// NotificationStatus tracks an outbound SMS through the aggregator's
// delivery reports.
type NotificationStatus string

const (
	NotificationQueued    NotificationStatus = "QUEUED"
	NotificationSent      NotificationStatus = "SENT"
	NotificationDelivered NotificationStatus = "DELIVERED"
	NotificationFailed    NotificationStatus = "FAILED"
)

// Notification is a user-facing confirmation message. Records are written
// in the same unit of work as the ledger transition that caused them; the
// actual send happens after commit and never rolls the ledger back.
type Notification struct {
	ID                string             `bson:"id" json:"id"`
	RecipientPhone    string             `bson:"recipientPhone" json:"recipientPhone"`
	Kind              string             `bson:"kind" json:"kind"`
	Message           string             `bson:"message" json:"message"`
	Status            NotificationStatus `bson:"status" json:"status"`
	ProviderMessageID string             `bson:"providerMessageId,omitempty" json:"providerMessageId,omitempty"`
	PaymentID         string             `bson:"paymentId,omitempty" json:"paymentId,omitempty"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
}
