package models

import "time"

// BookingStatus is the booking lifecycle. Transitions move forward along
// INQUIRY → QUOTED → ACCEPTED → DEPOSIT_PAID → COMPLETED; CANCELLED and
// DISPUTED are the only sideways exits.
type BookingStatus string

const (
	BookingInquiry     BookingStatus = "INQUIRY"
	BookingQuoted      BookingStatus = "QUOTED"
	BookingAccepted    BookingStatus = "ACCEPTED"
	BookingDepositPaid BookingStatus = "DEPOSIT_PAID"
	BookingCompleted   BookingStatus = "COMPLETED"
	BookingDisputed    BookingStatus = "DISPUTED"
	BookingCancelled   BookingStatus = "CANCELLED"
)

// Booking links an event to a vendor. The payment engine only ever moves
// its status as a side effect of an invoice reaching PAID.
type Booking struct {
	ID         string        `bson:"id" json:"id"`
	EventID    string        `bson:"eventId" json:"eventId"`
	VendorID   string        `bson:"vendorId" json:"vendorId"`
	Status     BookingStatus `bson:"status" json:"status"`
	QuoteTotal float64       `bson:"quoteTotal,omitempty" json:"quoteTotal,omitempty"`
	DepositDue float64       `bson:"depositDue,omitempty" json:"depositDue,omitempty"`
	Notes      string        `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt  time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time     `bson:"updatedAt" json:"updatedAt"`
}
