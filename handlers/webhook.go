package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"thefesta/cron"
	payment "thefesta/services/payment"
)

// providerWebhookPayload is the aggregator's payment notification body.
type providerWebhookPayload struct {
	TransactionID string            `json:"transactionId"`
	Status        string            `json:"status"`
	Amount        float64           `json:"amount"`
	CurrencyCode  string            `json:"currencyCode"`
	PhoneNumber   string            `json:"phoneNumber"`
	UpdatedAt     string            `json:"updatedAt"`
	Metadata      map[string]string `json:"metadata"`
}

// PaymentWebhookHandler receives aggregator payment notifications. The
// signature is checked over the raw body before anything is parsed; once it
// passes, the handler always answers 200 so the provider stops redelivering.
// All real work happens on the reconciliation queue.
func (hb *HandlerBundle) PaymentWebhookHandler(c *gin.Context) {
	logger := zap.L()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	signature := c.GetHeader("X-Provider-Signature")
	if !verifySignature(body, signature, hb.WebhookSecret) {
		logger.Warn("Rejected webhook with bad signature",
			zap.String("ip", c.ClientIP()),
			zap.Int("bodyBytes", len(body)))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	var payload providerWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.TransactionID == "" {
		// Authenticated but malformed; acknowledge so the provider does not
		// redeliver a body we will never be able to parse.
		logger.Error("Unparseable webhook payload", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	event := payment.ProviderEvent{
		ProviderRef: payload.TransactionID,
		Status:      payment.MapProviderStatus(payload.Status),
		Amount:      payload.Amount,
		Currency:    payload.CurrencyCode,
		PhoneNumber: payload.PhoneNumber,
		Source:      payment.SourceWebhook,
		Raw:         json.RawMessage(body),
	}
	if err := hb.Tasks.EnqueueReconcile(cron.ReconcilePayload{Event: event}, 0); err != nil {
		// The poller will pick the payment up; still acknowledge.
		logger.Error("Failed to enqueue webhook event",
			zap.String("providerRef", event.ProviderRef), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// smsDeliveryReport is the aggregator's SMS delivery callback body.
type smsDeliveryReport struct {
	ID     string `json:"id" form:"id"`
	Status string `json:"status" form:"status"`
}

// SMSDeliveryHandler records delivery reports for confirmation SMS. The
// aggregator posts these unsigned; they only ever downgrade or confirm a
// notification we already sent, so a forged report cannot touch the ledger.
func (hb *HandlerBundle) SMSDeliveryHandler(c *gin.Context) {
	var report smsDeliveryReport
	if err := c.ShouldBind(&report); err != nil || report.ID == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err := hb.Notifier.ApplyDeliveryReport(c.Request.Context(), report.ID, report.Status); err != nil {
		zap.L().Warn("Failed to apply SMS delivery report",
			zap.String("providerMessageId", report.ID), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func verifySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
