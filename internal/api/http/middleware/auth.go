package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2026musik-code/autoscrip/internal/auth"
	"github.com/gin-gonic/gin"
)

const (
	apiKeyHeader = "X-API-Key"
	bearerPrefix = "Bearer "
)

// TokenVerifier validates admin bearer tokens.
type TokenVerifier interface {
	Enabled() bool
	Verify(token string) (*auth.Claims, error)
}

// AdminAuth accepts either the shared admin API key in X-API-Key, compared
// in constant time, or a bearer token accepted by verifier.
func AdminAuth(apiKey string, verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		bearerEnabled := verifier != nil && verifier.Enabled()
		if apiKey == "" && !bearerEnabled {
			slog.Warn("Admin API key not configured, rejecting request",
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "Admin API is not configured",
			})
			return
		}

		if providedKey := c.GetHeader(apiKeyHeader); providedKey != "" {
			if apiKey == "" || subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
				slog.Warn("Invalid API key attempt",
					"path", c.Request.URL.Path,
					"client_ip", c.ClientIP())
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Invalid API key",
				})
				return
			}
			c.Set("auth_method", "api_key")
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !bearerEnabled || !strings.HasPrefix(header, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing API key",
			})
			return
		}

		claims, err := verifier.Verify(strings.TrimPrefix(header, bearerPrefix))
		if err != nil {
			slog.Warn("Invalid admin token",
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
				"error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token",
			})
			return
		}

		c.Set("auth_method", "bearer")
		c.Set("role", claims.Role)
		c.Next()
	}
}
