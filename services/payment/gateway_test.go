package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testGateway(t *testing.T, handler http.HandlerFunc) Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAfricasTalkingGateway(GatewayConfig{
		BaseURL:  srv.URL,
		APIKey:   "test-key",
		Username: "sandbox",
		Products: map[string]string{"TZS": "TheFestaTZS"},
	}, zap.NewNop())
}

func TestInitiateChargeAccepted(t *testing.T) {
	var gotForm map[string]string
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "test-key", r.Header.Get("apiKey"))
		gotForm = map[string]string{
			"username":     r.PostFormValue("username"),
			"productName":  r.PostFormValue("productName"),
			"phoneNumber":  r.PostFormValue("phoneNumber"),
			"amount":       r.PostFormValue("amount"),
			"currencyCode": r.PostFormValue("currencyCode"),
		}
		json.NewEncoder(w).Encode(map[string]string{
			"status":        "PendingConfirmation",
			"transactionId": "ATPid_abc123",
			"description":   "Waiting for user input",
		})
	})

	res, err := g.InitiateCharge(context.Background(), ChargeParams{
		PhoneNumber: "+255744000001",
		Amount:      50000,
		Currency:    "TZS",
		Description: "Deposit for booking",
	})

	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "ATPid_abc123", res.ProviderRef)
	assert.Equal(t, map[string]string{
		"username":     "sandbox",
		"productName":  "TheFestaTZS",
		"phoneNumber":  "+255744000001",
		"amount":       "50000",
		"currencyCode": "TZS",
	}, gotForm)
}

func TestInitiateChargeValidationNeverHitsNetwork(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the aggregator")
	})

	cases := []ChargeParams{
		{PhoneNumber: "0744123456", Amount: 50000, Currency: "TZS"},   // missing +255
		{PhoneNumber: "+254712345678", Amount: 50000, Currency: "TZS"}, // wrong country
		{PhoneNumber: "+255744000001", Amount: 50, Currency: "TZS"},    // below minimum
		{PhoneNumber: "+255744000001", Amount: 20000000, Currency: "TZS"},
		{PhoneNumber: "+255744000001", Amount: 50000, Currency: "USD"},
	}
	for _, params := range cases {
		_, err := g.InitiateCharge(context.Background(), params)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	}
}

func TestInitiateChargeRejected(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"status":      "InvalidRequest",
			"description": "Insufficient balance",
		})
	})

	res, err := g.InitiateCharge(context.Background(), ChargeParams{
		PhoneNumber: "+255744000001",
		Amount:      50000,
		Currency:    "TZS",
	})

	var rejected *ProviderRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Reason, "Insufficient balance")
	assert.False(t, res.Accepted)
	assert.False(t, IsTransient(err))
}

func TestInitiateChargeServerErrorIsTransient(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := g.InitiateCharge(context.Background(), ChargeParams{
		PhoneNumber: "+255744000001",
		Amount:      50000,
		Currency:    "TZS",
	})
	assert.True(t, IsTransient(err))
}

func TestInitiateChargeRateLimitIsTransient(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := g.InitiateCharge(context.Background(), ChargeParams{
		PhoneNumber: "+255744000001",
		Amount:      50000,
		Currency:    "TZS",
	})
	assert.True(t, IsTransient(err))
}

func TestInitiateChargeTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	g := NewAfricasTalkingGateway(GatewayConfig{
		BaseURL:  srv.URL,
		APIKey:   "test-key",
		Username: "sandbox",
		Products: map[string]string{"TZS": "TheFestaTZS"},
		Timeout:  50 * time.Millisecond,
	}, zap.NewNop())

	_, err := g.InitiateCharge(context.Background(), ChargeParams{
		PhoneNumber: "+255744000001",
		Amount:      50000,
		Currency:    "TZS",
	})
	assert.True(t, IsTransient(err))
}

func TestInitiatePayoutQueued(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"entries": []map[string]string{{
				"status":        "Queued",
				"transactionId": "ATPid_payout1",
				"phoneNumber":   "+255744000002",
			}},
		})
	})

	res, err := g.InitiatePayout(context.Background(), PayoutParams{
		PhoneNumber: "+255744000002",
		Amount:      120000,
		Currency:    "TZS",
	})

	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "ATPid_payout1", res.ProviderRef)
}

func TestInitiatePayoutNotQueued(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"entries": []map[string]string{{
				"status":       "InvalidPhoneNumber",
				"errorMessage": "The phone number is not registered",
			}},
		})
	})

	_, err := g.InitiatePayout(context.Background(), PayoutParams{
		PhoneNumber: "+255744000002",
		Amount:      120000,
		Currency:    "TZS",
	})

	var rejected *ProviderRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Reason, "not registered")
}

func TestQueryStatusNormalizes(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "ATPid_abc123", r.PostFormValue("transactionId"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transactionId": "ATPid_abc123",
			"status":        "Success",
			"amount":        "50000", // the find endpoint quotes amounts
			"currencyCode":  "TZS",
			"phoneNumber":   "+255744000001",
			"updatedAt":     "2026-08-30T12:00:00Z",
		})
	})

	tx, err := g.QueryStatus(context.Background(), "ATPid_abc123")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, tx.Status)
	assert.Equal(t, "ATPid_abc123", tx.ProviderRef)
	assert.Equal(t, float64(50000), tx.Amount)
	assert.Equal(t, "+255744000001", tx.PhoneNumber)
	assert.Equal(t, 2026, tx.UpdatedAt.Year())
}

func TestFetchTransactions(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transactions": []map[string]interface{}{
				{"transactionId": "ptx-1", "status": "Success", "amount": 50000, "currencyCode": "TZS"},
				{"transactionId": "ptx-2", "status": "Failed", "amount": "30000", "currencyCode": "TZS"},
			},
		})
	})

	txs, err := g.FetchTransactions(context.Background(), TransactionFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, StatusCompleted, txs[0].Status)
	assert.Equal(t, float64(50000), txs[0].Amount)
	assert.Equal(t, StatusFailed, txs[1].Status)
	assert.Equal(t, float64(30000), txs[1].Amount)
}
