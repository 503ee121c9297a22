package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ChargeParams are the arguments for an STK push collection request.
type ChargeParams struct {
	PhoneNumber string
	Amount      float64
	Currency    string
	Description string
	Metadata    map[string]string
}

// PayoutParams are the arguments for a B2C disbursement request.
type PayoutParams struct {
	PhoneNumber string
	Amount      float64
	Currency    string
	Description string
	Metadata    map[string]string
}

// InitiateResult is the aggregator's answer to a charge or payout request.
// Accepted means the request was queued on the handset network; settlement
// is reported later via webhook or status query.
type InitiateResult struct {
	Accepted    bool
	ProviderRef string
	Message     string
}

// TransactionStatus is a normalized view of one aggregator transaction.
type TransactionStatus struct {
	ProviderRef string
	Status      NormalizedStatus
	Amount      float64
	Currency    string
	PhoneNumber string
	Description string
	UpdatedAt   time.Time
	Metadata    map[string]string
}

// TransactionFilter narrows a transaction history fetch.
type TransactionFilter struct {
	PhoneNumber string
	StartDate   time.Time
	EndDate     time.Time
	Limit       int
}

// Gateway is the aggregator adapter. Implementations make network calls
// only; persistence belongs to the processor and reconciler.
type Gateway interface {
	InitiateCharge(ctx context.Context, params ChargeParams) (*InitiateResult, error)
	InitiatePayout(ctx context.Context, params PayoutParams) (*InitiateResult, error)
	QueryStatus(ctx context.Context, providerRef string) (*TransactionStatus, error)
	FetchTransactions(ctx context.Context, filter TransactionFilter) ([]TransactionStatus, error)
}

// GatewayConfig configures the Africa's Talking client.
type GatewayConfig struct {
	BaseURL     string
	APIKey      string
	Username    string
	Environment string // "sandbox" or "production"
	Products    map[string]string
	Timeout     time.Duration
}

const (
	sandboxBaseURL    = "https://payments.sandbox.africastalking.com"
	productionBaseURL = "https://payments.africastalking.com"

	checkoutEndpoint = "/mobile/checkout/request"
	payoutEndpoint   = "/mobile/b2c/request"
	findEndpoint     = "/query/transaction/find"
	fetchEndpoint    = "/query/transaction/fetch"
)

var phonePattern = regexp.MustCompile(`^\+255[67]\d{8}$`)

// Documented aggregator bounds per currency; amounts outside are rejected
// before any network call.
var amountBounds = map[string]struct{ Min, Max float64 }{
	"TZS": {Min: 100, Max: 10000000},
	"KES": {Min: 1, Max: 100000},
	"UGX": {Min: 100, Max: 10000000},
}

type africasTalkingGateway struct {
	cfg     GatewayConfig
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewAfricasTalkingGateway builds the aggregator client. The base URL falls
// back to the environment-appropriate default when not configured.
func NewAfricasTalkingGateway(cfg GatewayConfig, logger *zap.Logger) Gateway {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Environment == "production" {
			baseURL = productionBaseURL
		} else {
			baseURL = sandboxBaseURL
		}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &africasTalkingGateway{
		cfg:     cfg,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func validateChargeable(phone string, amount float64, currency string) error {
	if !phonePattern.MatchString(phone) {
		return &ValidationError{Field: "phoneNumber", Reason: "not a Tanzanian mobile number"}
	}
	bounds, ok := amountBounds[currency]
	if !ok {
		return &ValidationError{Field: "currency", Reason: "unsupported currency " + currency}
	}
	if amount < bounds.Min || amount > bounds.Max {
		return &ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("must be between %.0f and %.0f %s", bounds.Min, bounds.Max, currency),
		}
	}
	return nil
}

func (g *africasTalkingGateway) productName(currency string) string {
	if p, ok := g.cfg.Products[currency]; ok && p != "" {
		return p
	}
	return g.cfg.Products["TZS"]
}

type checkoutResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
	Description   string `json:"description"`
}

// InitiateCharge sends an STK push request to the customer's handset.
func (g *africasTalkingGateway) InitiateCharge(ctx context.Context, params ChargeParams) (*InitiateResult, error) {
	if err := validateChargeable(params.PhoneNumber, params.Amount, params.Currency); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("username", g.cfg.Username)
	form.Set("productName", g.productName(params.Currency))
	form.Set("phoneNumber", params.PhoneNumber)
	form.Set("amount", strconv.FormatFloat(params.Amount, 'f', -1, 64))
	form.Set("currencyCode", params.Currency)
	encodeMetadata(form, params.Description, params.Metadata)

	var resp checkoutResponse
	if err := g.post(ctx, "InitiateCharge", checkoutEndpoint, form, &resp); err != nil {
		return nil, err
	}

	if resp.Status != "PendingConfirmation" {
		reason := resp.Description
		if reason == "" {
			reason = "checkout request not accepted"
		}
		return &InitiateResult{Accepted: false, Message: reason}, &ProviderRejectedError{Reason: reason}
	}
	return &InitiateResult{
		Accepted:    true,
		ProviderRef: resp.TransactionID,
		Message:     "Payment request sent successfully. Please check your phone.",
	}, nil
}

type payoutEntry struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
	PhoneNumber   string `json:"phoneNumber"`
	ErrorMessage  string `json:"errorMessage"`
}

type payoutResponse struct {
	Entries []payoutEntry `json:"entries"`
}

// InitiatePayout queues a B2C disbursement to the given phone number.
func (g *africasTalkingGateway) InitiatePayout(ctx context.Context, params PayoutParams) (*InitiateResult, error) {
	if err := validateChargeable(params.PhoneNumber, params.Amount, params.Currency); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("username", g.cfg.Username)
	form.Set("productName", g.productName(params.Currency))
	form.Set("phoneNumber", params.PhoneNumber)
	form.Set("amount", strconv.FormatFloat(params.Amount, 'f', -1, 64))
	form.Set("currencyCode", params.Currency)
	encodeMetadata(form, params.Description, params.Metadata)

	var resp payoutResponse
	if err := g.post(ctx, "InitiatePayout", payoutEndpoint, form, &resp); err != nil {
		return nil, err
	}

	if len(resp.Entries) == 0 {
		return nil, &ProviderRejectedError{Reason: "no payout response received"}
	}
	entry := resp.Entries[0]
	if entry.Status != "Queued" {
		reason := entry.ErrorMessage
		if reason == "" {
			reason = "payout not queued"
		}
		return &InitiateResult{Accepted: false, Message: reason}, &ProviderRejectedError{Reason: reason}
	}
	return &InitiateResult{
		Accepted:    true,
		ProviderRef: entry.TransactionID,
		Message:     "Payout initiated successfully",
	}, nil
}

type transactionResponse struct {
	TransactionID string            `json:"transactionId"`
	Status        string            `json:"status"`
	Amount        json.RawMessage   `json:"amount"`
	CurrencyCode  string            `json:"currencyCode"`
	PhoneNumber   string            `json:"phoneNumber"`
	Description   string            `json:"description"`
	UpdatedAt     string            `json:"updatedAt"`
	Metadata      map[string]string `json:"metadata"`
}

// QueryStatus looks up one transaction by its aggregator id.
func (g *africasTalkingGateway) QueryStatus(ctx context.Context, providerRef string) (*TransactionStatus, error) {
	form := url.Values{}
	form.Set("username", g.cfg.Username)
	form.Set("transactionId", providerRef)

	var resp transactionResponse
	if err := g.post(ctx, "QueryStatus", findEndpoint, form, &resp); err != nil {
		return nil, err
	}
	return normalizeTransaction(resp), nil
}

type fetchResponse struct {
	Transactions []transactionResponse `json:"transactions"`
}

// FetchTransactions returns recent transactions, optionally filtered by
// phone number and date range.
func (g *africasTalkingGateway) FetchTransactions(ctx context.Context, filter TransactionFilter) ([]TransactionStatus, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	form := url.Values{}
	form.Set("username", g.cfg.Username)
	form.Set("limit", strconv.Itoa(limit))
	if filter.PhoneNumber != "" {
		if !phonePattern.MatchString(filter.PhoneNumber) {
			return nil, &ValidationError{Field: "phoneNumber", Reason: "not a Tanzanian mobile number"}
		}
		form.Set("phoneNumber", filter.PhoneNumber)
	}
	if !filter.StartDate.IsZero() {
		form.Set("startDate", filter.StartDate.Format("2006-01-02"))
	}
	if !filter.EndDate.IsZero() {
		form.Set("endDate", filter.EndDate.Format("2006-01-02"))
	}

	var resp fetchResponse
	if err := g.post(ctx, "FetchTransactions", fetchEndpoint, form, &resp); err != nil {
		return nil, err
	}

	statuses := make([]TransactionStatus, 0, len(resp.Transactions))
	for _, tx := range resp.Transactions {
		statuses = append(statuses, *normalizeTransaction(tx))
	}
	return statuses, nil
}

func normalizeTransaction(resp transactionResponse) *TransactionStatus {
	updatedAt, _ := time.Parse(time.RFC3339, resp.UpdatedAt)
	return &TransactionStatus{
		ProviderRef: resp.TransactionID,
		Status:      MapProviderStatus(resp.Status),
		Amount:      parseAmount(resp.Amount),
		Currency:    resp.CurrencyCode,
		PhoneNumber: resp.PhoneNumber,
		Description: resp.Description,
		UpdatedAt:   updatedAt,
		Metadata:    resp.Metadata,
	}
}

// parseAmount tolerates both numeric and quoted amounts; the aggregator is
// not consistent across endpoints.
func parseAmount(raw json.RawMessage) float64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// encodeMetadata flattens description + metadata into form fields the way
// the aggregator expects.
func encodeMetadata(form url.Values, description string, metadata map[string]string) {
	form.Set("metadata[description]", description)
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}
}

// post sends a form-encoded request and decodes the JSON response, mapping
// failures into the transient/rejected error taxonomy.
func (g *africasTalkingGateway) post(ctx context.Context, op, endpoint string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("apiKey", g.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		// Network failures and timeouts are retry-safe: nothing reached the
		// aggregator, or its answer was lost and the poller will reconcile.
		return &TransientGatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientGatewayError{Op: op, Err: err}
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return &TransientGatewayError{Op: op, Err: fmt.Errorf("aggregator returned %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		g.logger.Warn("aggregator rejected request",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return &ProviderRejectedError{Reason: fmt.Sprintf("aggregator returned %d", resp.StatusCode)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &TransientGatewayError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
