package models

import "time"

// PaymentStatus is the internal lifecycle of a money movement.
// Terminal statuses are write-once.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentSucceeded || s == PaymentFailed
}

// PaymentMethod identifies the mobile-money network used for a payment.
type PaymentMethod string

const (
	MethodMPesa       PaymentMethod = "MPESA"
	MethodAirtelMoney PaymentMethod = "AIRTEL_MONEY"
	MethodTigoPesa    PaymentMethod = "TIGO_PESA"
	MethodHaloPesa    PaymentMethod = "HALO_PESA"
)

// PayoutInvoiceID is the sentinel invoice reference carried by vendor
// payouts, which have no billable invoice of their own.
const PayoutInvoiceID = "payout"

// Payment is a single attempted money movement (charge or payout) against
// the aggregator. ProviderRef is empty until the aggregator accepts the
// request, then globally unique and never changed.
type Payment struct {
	ID          string            `bson:"id" json:"id"`
	InvoiceID   string            `bson:"invoiceId" json:"invoiceId"`
	Amount      float64           `bson:"amount" json:"amount"`
	Currency    string            `bson:"currency" json:"currency"`
	Method      PaymentMethod     `bson:"method" json:"method"`
	ProviderRef string            `bson:"providerRef,omitempty" json:"providerRef,omitempty"`
	Status      PaymentStatus     `bson:"status" json:"status"`
	Metadata    map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt   time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time         `bson:"updatedAt" json:"updatedAt"`
}

// IsPayout reports whether this payment is an outbound vendor disbursement.
func (p *Payment) IsPayout() bool {
	return p.InvoiceID == PayoutInvoiceID
}

// ChargeRequest is a client-initiated request to collect money for an invoice.
type ChargeRequest struct {
	InvoiceID   string            `json:"invoiceId"`
	PhoneNumber string            `json:"phoneNumber"`
	Amount      float64           `json:"amount"`
	Method      PaymentMethod     `json:"method"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PayoutRequest is a request to disburse funds to a vendor.
type PayoutRequest struct {
	VendorID    string            `json:"vendorId"`
	Amount      float64           `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PaymentResult is returned to callers of charge/payout initiation. Final
// settlement arrives later via webhook or poll, never synchronously.
type PaymentResult struct {
	PaymentID   string        `json:"paymentId"`
	ProviderRef string        `json:"transactionId,omitempty"`
	Status      PaymentStatus `json:"status"`
	Message     string        `json:"message,omitempty"`
}
