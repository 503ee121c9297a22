package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	idemRepo "thefesta/database/repository/idempotency"
	paymentRepo "thefesta/database/repository/payment"
	"thefesta/models"
)

// fakeLocker is an in-memory stand-in for the redis lock client.
type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (f *fakeLocker) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.held[key] = true
	return redis.NewBoolResult(true, nil)
}

func (f *fakeLocker) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.held, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

type memIdemRepo struct {
	mu      sync.Mutex
	records map[string][]byte
}

func newMemIdemRepo() *memIdemRepo {
	return &memIdemRepo{records: make(map[string][]byte)}
}

func (r *memIdemRepo) Get(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.records[key]
	if !ok {
		return nil, idemRepo.ErrNotFound
	}
	return &models.IdempotencyRecord{Key: key, Result: result}, nil
}

func (r *memIdemRepo) Put(ctx context.Context, key string, result []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[key] = result
	return nil
}

// passTransactor runs the unit of work without a real mongo session.
type passTransactor struct{}

func (passTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestGuard() *Guard {
	return NewGuard(newFakeLocker(), newMemIdemRepo(), passTransactor{}, zap.NewNop())
}

func TestGuardReplaysStoredResult(t *testing.T) {
	guard := newTestGuard()
	runs := 0
	op := func(ctx context.Context) (interface{}, error) {
		runs++
		return map[string]string{"paymentId": "pay-1"}, nil
	}

	first, replayed, err := guard.Do(context.Background(), "charge:k1", op)
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := guard.Do(context.Background(), "charge:k1", op)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, runs)
}

func TestGuardDistinctKeysRunIndependently(t *testing.T) {
	guard := newTestGuard()
	runs := 0
	op := func(ctx context.Context) (interface{}, error) {
		runs++
		return runs, nil
	}

	_, replayed, err := guard.Do(context.Background(), "charge:k1", op)
	require.NoError(t, err)
	assert.False(t, replayed)

	_, replayed, err = guard.Do(context.Background(), "charge:k2", op)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 2, runs)
}

func TestGuardErrorLeavesKeyRetryable(t *testing.T) {
	guard := newTestGuard()
	boom := errors.New("invoice lookup failed")
	attempts := 0
	op := func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts == 1 {
			return nil, boom
		}
		return "ok", nil
	}

	_, _, err := guard.Do(context.Background(), "charge:k1", op)
	require.ErrorIs(t, err, boom)

	// Nothing was stored, so the retry executes the operation again.
	result, replayed, err := guard.Do(context.Background(), "charge:k1", op)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, []byte(`"ok"`), result)
	assert.Equal(t, 2, attempts)
}

func TestGuardSerializesConcurrentCallers(t *testing.T) {
	guard := newTestGuard()
	var runs int32
	op := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&runs, 1)
		time.Sleep(50 * time.Millisecond)
		return "once", nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, 4)
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = guard.Do(context.Background(), "charge:k1", op)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, []byte(`"once"`), results[i])
	}
}

// memPaymentRepo is a stateful in-memory PaymentRepository, needed where
// one caller's writes must be visible to a concurrent caller's reads.
type memPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{payments: make(map[string]*models.Payment)}
}

func (r *memPaymentRepo) Create(ctx context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = fmt.Sprintf("pay-%d", len(r.payments)+1)
	}
	stored := *p
	r.payments[p.ID] = &stored
	return nil
}

func (r *memPaymentRepo) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	copied := *p
	return &copied, nil
}

func (r *memPaymentRepo) GetByProviderRef(ctx context.Context, providerRef string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ProviderRef == providerRef {
			copied := *p
			return &copied, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (r *memPaymentRepo) SetProviderRef(ctx context.Context, id, providerRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.ProviderRef != "" {
		return paymentRepo.ErrRefAlreadySet
	}
	p.ProviderRef = providerRef
	return nil
}

func (r *memPaymentRepo) MarkTerminal(ctx context.Context, id string, status models.PaymentStatus, metadata map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.Status != models.PaymentPending {
		return paymentRepo.ErrNotPending
	}
	p.Status = status
	if p.Metadata == nil {
		p.Metadata = make(map[string]string)
	}
	for k, v := range metadata {
		p.Metadata[k] = v
	}
	return nil
}

func (r *memPaymentRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int64) ([]models.Payment, error) {
	return nil, nil
}

func (r *memPaymentRepo) ListUnreferencedPending(ctx context.Context, cutoff time.Time, limit int64) ([]models.Payment, error) {
	return nil, nil
}

func (r *memPaymentRepo) List(ctx context.Context, filter paymentRepo.HistoryFilter) ([]models.Payment, error) {
	return nil, nil
}

// countingGateway records how many aggregator calls were made and holds
// each call long enough for a concurrent retry to pile up on the lock.
type countingGateway struct {
	charges int32
	delay   time.Duration
}

func (g *countingGateway) InitiateCharge(ctx context.Context, params ChargeParams) (*InitiateResult, error) {
	atomic.AddInt32(&g.charges, 1)
	time.Sleep(g.delay)
	return &InitiateResult{
		Accepted:    true,
		ProviderRef: "ptx-once",
		Message:     "Payment request sent successfully. Please check your phone.",
	}, nil
}

func (g *countingGateway) InitiatePayout(ctx context.Context, params PayoutParams) (*InitiateResult, error) {
	return nil, errors.New("unexpected payout")
}

func (g *countingGateway) QueryStatus(ctx context.Context, providerRef string) (*TransactionStatus, error) {
	return nil, errors.New("unexpected query")
}

func (g *countingGateway) FetchTransactions(ctx context.Context, filter TransactionFilter) ([]TransactionStatus, error) {
	return nil, errors.New("unexpected fetch")
}

func TestConcurrentChargesOneKeyHitGatewayOnce(t *testing.T) {
	gateway := &countingGateway{delay: 100 * time.Millisecond}
	payments := newMemPaymentRepo()
	invoices := new(mockInvoiceRepo)
	invoices.On("GetByID", mock.Anything, "inv-1").Return(&models.Invoice{
		ID:        "inv-1",
		BookingID: "bkg-1",
		Amount:    50000,
		Currency:  "TZS",
		Status:    models.InvoicePending,
	}, nil)

	p := NewProcessor(gateway, payments, invoices, nil, newTestGuard(), nil, nil, zap.NewNop())

	req := models.ChargeRequest{
		InvoiceID:   "inv-1",
		PhoneNumber: "+255744000001",
		Amount:      50000,
	}

	var wg sync.WaitGroup
	results := make([]*models.PaymentResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.ProcessCharge(context.Background(), "retry-key", req)
		}(i)
	}
	wg.Wait()
	for i := range errs {
		require.NoError(t, errs[i])
	}

	// The retry waits out the in-flight charge and reuses its outcome
	// instead of pushing a second handset prompt.
	assert.Equal(t, int32(1), atomic.LoadInt32(&gateway.charges))
	assert.Equal(t, results[0].PaymentID, results[1].PaymentID)
	for _, result := range results {
		assert.Equal(t, "ptx-once", result.ProviderRef)
		assert.Equal(t, models.PaymentPending, result.Status)
	}
}

func TestSequentialRetrySkipsGateway(t *testing.T) {
	gateway := &countingGateway{}
	payments := newMemPaymentRepo()
	invoices := new(mockInvoiceRepo)
	invoices.On("GetByID", mock.Anything, "inv-1").Return(&models.Invoice{
		ID:       "inv-1",
		Amount:   50000,
		Currency: "TZS",
		Status:   models.InvoicePending,
	}, nil)

	p := NewProcessor(gateway, payments, invoices, nil, newTestGuard(), nil, nil, zap.NewNop())

	req := models.ChargeRequest{
		InvoiceID:   "inv-1",
		PhoneNumber: "+255744000001",
		Amount:      50000,
	}

	first, err := p.ProcessCharge(context.Background(), "retry-key", req)
	require.NoError(t, err)
	second, err := p.ProcessCharge(context.Background(), "retry-key", req)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&gateway.charges))
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, first.ProviderRef, second.ProviderRef)
}
