package payment

import "thefesta/models"

// BookingTransitionPolicy decides which booking transition (if any) follows
// an invoice reaching PAID. The engine applies whatever the policy returns;
// business rules stay out of the state machine itself.
type BookingTransitionPolicy func(current models.BookingStatus, invoiceType models.InvoiceType) (models.BookingStatus, bool)

// DefaultBookingPolicy: a paid deposit moves an accepted booking to
// DEPOSIT_PAID; a paid final charge moves a deposit-paid booking to
// COMPLETED. Everything else leaves the booking alone.
func DefaultBookingPolicy(current models.BookingStatus, invoiceType models.InvoiceType) (models.BookingStatus, bool) {
	switch {
	case invoiceType == models.InvoiceDeposit && current == models.BookingAccepted:
		return models.BookingDepositPaid, true
	case invoiceType == models.InvoiceCharge && current == models.BookingDepositPaid:
		return models.BookingCompleted, true
	default:
		return "", false
	}
}
