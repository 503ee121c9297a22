package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	paymentRepo "thefesta/database/repository/payment"
	"thefesta/models"
	payment "thefesta/services/payment"
)

// ChargeHandler initiates a mobile-money collection against an invoice.
// The request is accepted for processing; the caller polls the status
// endpoint (or waits for the confirmation SMS) for the outcome.
func (hb *HandlerBundle) ChargeHandler(c *gin.Context) {
	logger := zap.L()

	var req models.ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := hb.Processor.ProcessCharge(c.Request.Context(), c.GetHeader("Idempotency-Key"), req)
	if err != nil {
		respondPaymentError(c, logger, "charge", err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

// PayoutHandler initiates a disbursement to a vendor's registered
// mobile-money number.
func (hb *HandlerBundle) PayoutHandler(c *gin.Context) {
	logger := zap.L()

	var req models.PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := hb.Processor.ProcessPayout(c.Request.Context(), c.GetHeader("Idempotency-Key"), req)
	if err != nil {
		respondPaymentError(c, logger, "payout", err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

// PaymentStatusHandler returns the current state of a payment. If the
// payment is still pending it queries the aggregator first, so the
// response reflects the freshest state the provider will admit to.
func (hb *HandlerBundle) PaymentStatusHandler(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment id is required"})
		return
	}

	p, err := hb.Processor.CheckStatus(c.Request.Context(), id)
	if err != nil {
		respondPaymentError(c, zap.L(), "status", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// PaymentHistoryHandler lists payments recorded in the ledger, filtered
// by the query parameters.
func (hb *HandlerBundle) PaymentHistoryHandler(c *gin.Context) {
	filter := historyFilterFromQuery(c)

	payments, err := hb.Processor.History(c.Request.Context(), filter)
	if err != nil {
		zap.L().Error("Failed to list payment history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list payments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments, "count": len(payments)})
}

// ProviderTransactionsHandler proxies the aggregator's transaction
// listing for back-office reconciliation reviews.
func (hb *HandlerBundle) ProviderTransactionsHandler(c *gin.Context) {
	filter := payment.TransactionFilter{
		PhoneNumber: c.Query("phoneNumber"),
	}
	if sd := c.Query("startDate"); sd != "" {
		if t, err := time.Parse("2006-01-02", sd); err == nil {
			filter.StartDate = t
		}
	}
	if ed := c.Query("endDate"); ed != "" {
		if t, err := time.Parse("2006-01-02", ed); err == nil {
			filter.EndDate = t
		}
	}
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	txs, err := hb.Processor.Transactions(c.Request.Context(), filter)
	if err != nil {
		respondPaymentError(c, zap.L(), "transactions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}

func historyFilterFromQuery(c *gin.Context) paymentRepo.HistoryFilter {
	filter := paymentRepo.HistoryFilter{
		UserID:    c.Query("userId"),
		VendorID:  c.Query("vendorId"),
		InvoiceID: c.Query("invoiceId"),
		Status:    models.PaymentStatus(c.Query("status")),
		Limit:     50,
	}
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.ParseInt(l, 10, 64); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}
	if o := c.Query("offset"); o != "" {
		if n, err := strconv.ParseInt(o, 10, 64); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = t
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = t
		}
	}
	return filter
}

func respondPaymentError(c *gin.Context, logger *zap.Logger, op string, err error) {
	var verr *payment.ValidationError
	var rejected *payment.ProviderRejectedError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, payment.ErrInvoiceNotFound) || errors.Is(err, payment.ErrVendorNotFound) || errors.Is(err, payment.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, payment.ErrInvoiceNotPending) || errors.Is(err, payment.ErrAmountMismatch) || errors.Is(err, payment.ErrVendorNoPhone):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &rejected):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": rejected.Error()})
	case payment.IsTransient(err):
		logger.Warn("Payment gateway unavailable", zap.String("op", op), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable, retry later"})
	default:
		logger.Error("Payment operation failed", zap.String("op", op), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
