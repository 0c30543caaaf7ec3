// Package middleware holds the gin middleware shared by the REST and MCP
// HTTP routes: API key auth and per-request custom context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailstack/internal/utils"
)

// APIKeyConfig holds the configuration for API key authentication.
type APIKeyConfig struct {
	HeaderName  string
	ValidAPIKey string
}

// APIKeyMiddleware rejects any request missing or presenting the wrong
// X-API-Key header (§6 environment/auth surface).
func APIKeyMiddleware(config APIKeyConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader(config.HeaderName))

		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing API key"})
			c.Abort()
			return
		}

		if apiKey != config.ValidAPIKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// CustomContextMiddleware threads a request-scoped CustomContext (account,
// MCP session id) through to every downstream call.
func CustomContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.WithCustomContextFromGinRequest(c)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// OriginCheck restricts browser-originated requests to localhost/127.0.0.1,
// per §4.9's "treat a non-local Origin header as a CSRF attempt" hardening
// note. Requests with no Origin header (CLIs, curl, the stdio proxy) are
// allowed through — only a browser sets Origin automatically.
func OriginCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if isLocalOrigin(origin) {
			c.Next()
			return
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		c.Abort()
	}
}

func isLocalOrigin(origin string) bool {
	lowered := strings.ToLower(origin)
	return strings.Contains(lowered, "://localhost") ||
		strings.Contains(lowered, "://127.0.0.1") ||
		strings.Contains(lowered, "://[::1]")
}
