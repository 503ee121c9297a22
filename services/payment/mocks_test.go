package payment

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	paymentRepo "thefesta/database/repository/payment"
	"thefesta/models"
)

type mockPaymentRepo struct {
	mock.Mock
}

func (m *mockPaymentRepo) Create(ctx context.Context, p *models.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockPaymentRepo) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	args := m.Called(ctx, id)
	if p := args.Get(0); p != nil {
		return p.(*models.Payment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPaymentRepo) GetByProviderRef(ctx context.Context, providerRef string) (*models.Payment, error) {
	args := m.Called(ctx, providerRef)
	if p := args.Get(0); p != nil {
		return p.(*models.Payment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPaymentRepo) SetProviderRef(ctx context.Context, id, providerRef string) error {
	args := m.Called(ctx, id, providerRef)
	return args.Error(0)
}

func (m *mockPaymentRepo) MarkTerminal(ctx context.Context, id string, status models.PaymentStatus, metadata map[string]string) error {
	args := m.Called(ctx, id, status, metadata)
	return args.Error(0)
}

func (m *mockPaymentRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int64) ([]models.Payment, error) {
	args := m.Called(ctx, cutoff, limit)
	if p := args.Get(0); p != nil {
		return p.([]models.Payment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPaymentRepo) ListUnreferencedPending(ctx context.Context, cutoff time.Time, limit int64) ([]models.Payment, error) {
	args := m.Called(ctx, cutoff, limit)
	if p := args.Get(0); p != nil {
		return p.([]models.Payment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPaymentRepo) List(ctx context.Context, filter paymentRepo.HistoryFilter) ([]models.Payment, error) {
	args := m.Called(ctx, filter)
	if p := args.Get(0); p != nil {
		return p.([]models.Payment), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockInvoiceRepo struct {
	mock.Mock
}

func (m *mockInvoiceRepo) Create(ctx context.Context, invoice *models.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *mockInvoiceRepo) GetByID(ctx context.Context, id string) (*models.Invoice, error) {
	args := m.Called(ctx, id)
	if inv := args.Get(0); inv != nil {
		return inv.(*models.Invoice), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockInvoiceRepo) MarkPaid(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type mockBookingRepo struct {
	mock.Mock
}

func (m *mockBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if b := args.Get(0); b != nil {
		return b.(*models.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBookingRepo) TransitionStatus(ctx context.Context, id string, from, to models.BookingStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

type mockNotificationRepo struct {
	mock.Mock
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	args := m.Called(ctx, n)
	if n.ID == "" {
		n.ID = "ntf-1"
	}
	return args.Error(0)
}

func (m *mockNotificationRepo) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	args := m.Called(ctx, id)
	if n := args.Get(0); n != nil {
		return n.(*models.Notification), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockNotificationRepo) SetStatus(ctx context.Context, id string, status models.NotificationStatus, providerMessageID string) error {
	args := m.Called(ctx, id, status, providerMessageID)
	return args.Error(0)
}

func (m *mockNotificationRepo) SetStatusByProviderMessageID(ctx context.Context, providerMessageID string, status models.NotificationStatus) error {
	args := m.Called(ctx, providerMessageID, status)
	return args.Error(0)
}

func (m *mockNotificationRepo) ListQueuedBefore(ctx context.Context, cutoff time.Time, limit int64) ([]models.Notification, error) {
	args := m.Called(ctx, cutoff, limit)
	if n := args.Get(0); n != nil {
		return n.([]models.Notification), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) InitiateCharge(ctx context.Context, params ChargeParams) (*InitiateResult, error) {
	args := m.Called(ctx, params)
	if r := args.Get(0); r != nil {
		return r.(*InitiateResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) InitiatePayout(ctx context.Context, params PayoutParams) (*InitiateResult, error) {
	args := m.Called(ctx, params)
	if r := args.Get(0); r != nil {
		return r.(*InitiateResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) QueryStatus(ctx context.Context, providerRef string) (*TransactionStatus, error) {
	args := m.Called(ctx, providerRef)
	if r := args.Get(0); r != nil {
		return r.(*TransactionStatus), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) FetchTransactions(ctx context.Context, filter TransactionFilter) ([]TransactionStatus, error) {
	args := m.Called(ctx, filter)
	if r := args.Get(0); r != nil {
		return r.([]TransactionStatus), args.Error(1)
	}
	return nil, args.Error(1)
}
