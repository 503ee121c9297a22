package payment

import (
	"errors"
	"fmt"
)

// ValidationError rejects a malformed request before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransientGatewayError covers network failures, timeouts and aggregator 5xx
// responses. Retrying with the same idempotency key is safe; no ledger state
// was touched.
type TransientGatewayError struct {
	Op  string
	Err error
}

func (e *TransientGatewayError) Error() string {
	return fmt.Sprintf("transient gateway error during %s: %v", e.Op, e.Err)
}

func (e *TransientGatewayError) Unwrap() error { return e.Err }

// ProviderRejectedError is an explicit decline from the aggregator
// (insufficient funds, invalid recipient). Terminal for this attempt; a
// retry needs a new payment.
type ProviderRejectedError struct {
	Reason string
}

func (e *ProviderRejectedError) Error() string {
	return fmt.Sprintf("rejected by provider: %s", e.Reason)
}

// ErrOrphanEvent marks a provider notification whose transactionId matches
// no payment. The event is retried once after a short delay (the initiating
// write may not have committed yet) and then discarded.
var ErrOrphanEvent = errors.New("no payment matches provider transaction")

// ErrInvoiceNotFound, ErrInvoiceNotPending and ErrAmountMismatch are charge
// preconditions surfaced synchronously to the caller.
var (
	ErrInvoiceNotFound   = errors.New("invoice not found")
	ErrInvoiceNotPending = errors.New("invoice is not pending payment")
	ErrAmountMismatch    = errors.New("amount does not match invoice")
	ErrVendorNotFound    = errors.New("vendor not found")
	ErrVendorNoPhone     = errors.New("vendor has no phone number")
	ErrPaymentNotFound   = errors.New("payment not found")
)

// IsTransient reports whether the caller may retry with the same
// idempotency key.
func IsTransient(err error) bool {
	var t *TransientGatewayError
	return errors.As(err, &t)
}
