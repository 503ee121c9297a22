package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"thefesta/handlers"
	"thefesta/middleware"
	"thefesta/utils"
)

// RegisterPaymentRoutes registers the payment API. All of these are
// service-to-service calls from the marketplace backend.
func RegisterPaymentRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/payments")
	{
		api.Use(middleware.ServiceAuthMiddleware())
		api.POST("/charge", hb.ChargeHandler)
		api.POST("/payout", hb.PayoutHandler)
		api.GET("", hb.PaymentHistoryHandler)
		api.GET("/:id/status", hb.PaymentStatusHandler)
		api.GET("/history", hb.PaymentHistoryHandler)
		api.GET("/transactions", hb.ProviderTransactionsHandler)
	}
}

// RegisterWebhookRoutes registers the aggregator callback endpoints. These
// bypass service-key auth: the payment webhook verifies its own HMAC
// signature, and delivery reports are inert.
func RegisterWebhookRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	hooks := r.Group("/webhooks")
	{
		hooks.POST("/payments", hb.PaymentWebhookHandler)
		hooks.POST("/sms", hb.SMSDeliveryHandler)
	}
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "services": utils.GetHealthStatus()})
	})
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-Service-Key", "Idempotency-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RateLimitMiddleware())

	RegisterPaymentRoutes(r, hb)
	RegisterWebhookRoutes(r, hb)
	RegisterHealthRoute(r)
}
