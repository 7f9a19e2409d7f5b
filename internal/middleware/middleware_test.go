package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"livex/internal/redis"
	"livex/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubLimiter struct {
	result *redis.RateLimitResult
	err    error
}

func (s stubLimiter) AllowIngest(ctx context.Context, clientKey string) (*redis.RateLimitResult, error) {
	return s.result, s.err
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.POST("/event", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/id", func(c *gin.Context) {
		id, _ := c.Request.Context().Value(logger.RequestIdKey).(string)
		c.String(http.StatusOK, id)
	})
	return r
}

func TestIngestRateLimitRejects(t *testing.T) {
	r := newEngine(IngestRateLimitMiddleware(stubLimiter{result: &redis.RateLimitResult{
		Allowed: false, Limit: 10, ResetIn: 30 * time.Second,
	}}, logger.NewNop()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/event", nil))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "30", w.Header().Get("X-RateLimit-Reset"))
}

func TestIngestRateLimitAllowsAndFailsOpen(t *testing.T) {
	allowed := newEngine(IngestRateLimitMiddleware(stubLimiter{result: &redis.RateLimitResult{
		Allowed: true, Limit: 10, Remaining: 9,
	}}, logger.NewNop()))
	w := httptest.NewRecorder()
	allowed.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/event", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))

	broken := newEngine(IngestRateLimitMiddleware(stubLimiter{err: errors.New("redis down")}, logger.NewNop()))
	w = httptest.NewRecorder()
	broken.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/event", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	r := newEngine(RequestIDMiddleware())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set("X-Request-Id", "abc123")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc123", w.Body.String())
	assert.Equal(t, "abc123", w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/id", nil))
	assert.Len(t, w.Body.String(), 32)
}

func TestCORSPreflight(t *testing.T) {
	r := newEngine(CORSMiddleware([]string{"https://overlay.example"}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/event", nil)
	req.Header.Set("Origin", "https://overlay.example")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://overlay.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/event", nil)
	req.Header.Set("Origin", "https://evil.example")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
