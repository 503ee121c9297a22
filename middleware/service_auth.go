package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"thefesta/config"
)

// ServiceAuthMiddleware guards the payment API. Callers are trusted backend
// services, not end users, so a single shared key in X-Service-Key is the
// whole scheme. Webhook routes do not pass through here; they carry their
// own signature check.
func ServiceAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := config.AppConfig.ServiceAPIKey
		key := c.GetHeader("X-Service-Key")
		if expected == "" || subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
			zap.L().Warn("Rejected request with bad service key",
				zap.String("ip", getClientIP(c)),
				zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
