package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailstack/config"
)

func newTestRouter(cfg config.RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(cfg).Middleware())
	r.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	return r
}

func doRequest(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Forwarded-For", ip)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// §8 property 7 / end-to-end scenario 6: with a per-minute cap of 2, the
// first two requests succeed and the third is rejected with Retry-After.
func TestRateLimiterRejectsAfterPerMinuteCap(t *testing.T) {
	// Arrange
	r := newTestRouter(config.RateLimitConfig{PerIPPerMinute: 2, PerIPPerHour: 1000})

	// Act
	first := doRequest(r, "192.0.2.1")
	second := doRequest(r, "192.0.2.1")
	third := doRequest(r, "192.0.2.1")

	// Assert
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, http.StatusTooManyRequests, third.Code)
	retryAfter := third.Header().Get("Retry-After")
	require.NotEmpty(t, retryAfter)
	assert.NotEqual(t, "0", retryAfter)
}

// A whitelisted IP bypasses both windows entirely.
func TestRateLimiterWhitelistBypassesCap(t *testing.T) {
	// Arrange
	r := newTestRouter(config.RateLimitConfig{PerIPPerMinute: 2, PerIPPerHour: 1000, WhitelistIPs: "127.0.0.1"})

	// Act + Assert: far more than the per-minute cap, all succeed
	for i := 0; i < 100; i++ {
		rec := doRequest(r, "127.0.0.1")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

// Exhausting one IP's budget must not affect a different IP (per-IP
// isolation, §8 property 7).
func TestRateLimiterIsolatesPerIP(t *testing.T) {
	// Arrange
	r := newTestRouter(config.RateLimitConfig{PerIPPerMinute: 1, PerIPPerHour: 1000})

	// Act
	doRequest(r, "192.0.2.1")
	exhausted := doRequest(r, "192.0.2.1")
	other := doRequest(r, "192.0.2.2")

	// Assert
	assert.Equal(t, http.StatusTooManyRequests, exhausted.Code)
	assert.Equal(t, http.StatusOK, other.Code)
}
