package models

import "time"

// InvoiceStatus is the lifecycle of a billable obligation. A PAID invoice
// is immutable.
type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "PENDING"
	InvoicePaid    InvoiceStatus = "PAID"
	InvoiceVoid    InvoiceStatus = "VOID"
)

// InvoiceType drives the booking transition applied when the invoice is paid.
type InvoiceType string

const (
	InvoiceCharge  InvoiceType = "charge"
	InvoiceDeposit InvoiceType = "deposit"
	InvoicePayout  InvoiceType = "payout"
)

// Invoice is a billable obligation tied to a booking, settled by at most
// one effective successful payment.
type Invoice struct {
	ID        string        `bson:"id" json:"id"`
	BookingID string        `bson:"bookingId" json:"bookingId"`
	Amount    float64       `bson:"amount" json:"amount"`
	Currency  string        `bson:"currency" json:"currency"`
	Type      InvoiceType   `bson:"type" json:"type"`
	Status    InvoiceStatus `bson:"status" json:"status"`
	CreatedAt time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt" json:"updatedAt"`
}
