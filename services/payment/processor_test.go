package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	paymentRepo "thefesta/database/repository/payment"
	"thefesta/models"
)

func newTestProcessor(gateway Gateway, payments *mockPaymentRepo) *Processor {
	return NewProcessor(gateway, payments, new(mockInvoiceRepo), nil, nil, nil, nil, zap.NewNop())
}

func TestProcessChargeRejectsBadInput(t *testing.T) {
	p := newTestProcessor(new(mockGateway), new(mockPaymentRepo))

	cases := []struct {
		name  string
		key   string
		req   models.ChargeRequest
		field string
	}{
		{
			name:  "bad phone",
			key:   "k1",
			req:   models.ChargeRequest{InvoiceID: "inv-1", PhoneNumber: "0744123456", Amount: 50000},
			field: "phoneNumber",
		},
		{
			name:  "non-positive amount",
			key:   "k1",
			req:   models.ChargeRequest{InvoiceID: "inv-1", PhoneNumber: "+255744000001", Amount: 0},
			field: "amount",
		},
		{
			name:  "missing idempotency key",
			key:   "",
			req:   models.ChargeRequest{InvoiceID: "inv-1", PhoneNumber: "+255744000001", Amount: 50000},
			field: "Idempotency-Key",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.ProcessCharge(context.Background(), tc.key, tc.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestProcessPayoutRequiresIdempotencyKey(t *testing.T) {
	p := newTestProcessor(new(mockGateway), new(mockPaymentRepo))

	_, err := p.ProcessPayout(context.Background(), "", models.PayoutRequest{VendorID: "vnd-1", Amount: 120000})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Idempotency-Key", verr.Field)
}

func TestCheckStatusTerminalSkipsGateway(t *testing.T) {
	payments := new(mockPaymentRepo)
	gateway := new(mockGateway)
	p := newTestProcessor(gateway, payments)

	payments.On("GetByID", mock.Anything, "pay-1").Return(&models.Payment{
		ID:          "pay-1",
		ProviderRef: "ptx-100",
		Status:      models.PaymentSucceeded,
	}, nil)

	result, err := p.CheckStatus(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, result.Status)
	assert.Equal(t, "ptx-100", result.ProviderRef)
	gateway.AssertNotCalled(t, "QueryStatus", mock.Anything, mock.Anything)
}

func TestCheckStatusUnknownPayment(t *testing.T) {
	payments := new(mockPaymentRepo)
	p := newTestProcessor(new(mockGateway), payments)

	payments.On("GetByID", mock.Anything, "missing").Return(nil, mongo.ErrNoDocuments)

	_, err := p.CheckStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestFinishInitiationRejectionFailsPayment(t *testing.T) {
	payments := new(mockPaymentRepo)
	p := newTestProcessor(new(mockGateway), payments)

	pending := &models.Payment{ID: "pay-1", Status: models.PaymentPending}
	payments.On("MarkTerminal", mock.Anything, "pay-1", models.PaymentFailed, mock.MatchedBy(func(meta map[string]string) bool {
		return meta["error"] == "Insufficient balance"
	})).Return(nil)

	result, err := p.finishInitiation(context.Background(), pending, nil, &ProviderRejectedError{Reason: "Insufficient balance"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, result.Status)
	assert.Equal(t, "Insufficient balance", result.Message)
	payments.AssertExpectations(t)
}

func TestFinishInitiationValidationFailsPaymentNow(t *testing.T) {
	payments := new(mockPaymentRepo)
	p := newTestProcessor(new(mockGateway), payments)

	pending := &models.Payment{ID: "pay-1", Status: models.PaymentPending}
	payments.On("MarkTerminal", mock.Anything, "pay-1", models.PaymentFailed, mock.MatchedBy(func(meta map[string]string) bool {
		return meta["error"] != ""
	})).Return(nil)

	_, err := p.finishInitiation(context.Background(), pending, nil, &ValidationError{
		Field:  "amount",
		Reason: "below the minimum for TZS",
	})

	// The caller still sees the validation error, but the payment does not
	// linger PENDING until the staleness sweep.
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "amount", verr.Field)
	payments.AssertExpectations(t)
}

func TestFinishInitiationTransientLeavesPaymentPending(t *testing.T) {
	payments := new(mockPaymentRepo)
	p := newTestProcessor(new(mockGateway), payments)

	pending := &models.Payment{ID: "pay-1", Status: models.PaymentPending}
	_, err := p.finishInitiation(context.Background(), pending, nil, &TransientGatewayError{Op: "InitiateCharge", Err: context.DeadlineExceeded})

	assert.True(t, IsTransient(err))
	payments.AssertNotCalled(t, "MarkTerminal", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	payments.AssertNotCalled(t, "SetProviderRef", mock.Anything, mock.Anything, mock.Anything)
}

func TestFinishInitiationRecordsProviderRef(t *testing.T) {
	payments := new(mockPaymentRepo)
	p := newTestProcessor(new(mockGateway), payments)

	pending := &models.Payment{ID: "pay-1", Status: models.PaymentPending}
	payments.On("SetProviderRef", mock.Anything, "pay-1", "ptx-100").Return(nil)

	result, err := p.finishInitiation(context.Background(), pending, &InitiateResult{
		Accepted:    true,
		ProviderRef: "ptx-100",
		Message:     "Payment request sent successfully. Please check your phone.",
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, result.Status)
	assert.Equal(t, "ptx-100", result.ProviderRef)
	payments.AssertExpectations(t)
}

func TestExpireUnreferenced(t *testing.T) {
	payments := new(mockPaymentRepo)
	p := newTestProcessor(new(mockGateway), payments)

	cutoff := time.Now().Add(-2 * time.Minute)
	stale := []models.Payment{
		{ID: "pay-1", Status: models.PaymentPending},
		{ID: "pay-2", Status: models.PaymentPending},
	}
	payments.On("ListUnreferencedPending", mock.Anything, cutoff, int64(200)).Return(stale, nil)
	payments.On("MarkTerminal", mock.Anything, "pay-1", models.PaymentFailed, mock.Anything).Return(nil)
	// pay-2 lost the race to a concurrent writer; skipped, not an error.
	payments.On("MarkTerminal", mock.Anything, "pay-2", models.PaymentFailed, mock.Anything).Return(paymentRepo.ErrNotPending)

	expired, err := p.ExpireUnreferenced(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
}

func TestEventFromQuery(t *testing.T) {
	event := EventFromQuery(&TransactionStatus{
		ProviderRef: "ptx-100",
		Status:      StatusCompleted,
		Amount:      50000,
		Currency:    "TZS",
		PhoneNumber: "+255744000001",
	})

	assert.Equal(t, "ptx-100", event.ProviderRef)
	assert.Equal(t, StatusCompleted, event.Status)
	assert.Equal(t, SourcePoll, event.Source)
	assert.Equal(t, "ptx-100:completed", event.Key())
	assert.NotEmpty(t, event.Raw)
}

func TestResultIfSettled(t *testing.T) {
	assert.Nil(t, resultIfSettled(&models.Payment{ID: "pay-1", Status: models.PaymentPending}))

	replay := resultIfSettled(&models.Payment{
		ID:          "pay-1",
		ProviderRef: "ptx-100",
		Status:      models.PaymentPending,
	})
	require.NotNil(t, replay)
	assert.Equal(t, "ptx-100", replay.ProviderRef)
	assert.NotEmpty(t, replay.Message)

	settled := resultIfSettled(&models.Payment{ID: "pay-1", Status: models.PaymentSucceeded})
	require.NotNil(t, settled)
	assert.Equal(t, models.PaymentSucceeded, settled.Status)
	assert.Empty(t, settled.Message)
}
