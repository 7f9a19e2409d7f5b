package middleware

import (
	"context"
	"net/http"
	"strconv"

	"livex/internal/metrics"
	"livex/internal/redis"
	"livex/internal/transport/httpdto"
	"livex/pkg/logger"

	"github.com/gin-gonic/gin"
)

// IngestLimiter decides whether a client may submit another event.
type IngestLimiter interface {
	AllowIngest(ctx context.Context, clientKey string) (*redis.RateLimitResult, error)
}

// IngestRateLimitMiddleware limits event submissions per client IP. When the
// limiter itself fails the request is let through; ingestion must not depend
// on the limiter being reachable.
func IngestRateLimitMiddleware(limiter IngestLimiter, l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := limiter.AllowIngest(c.Request.Context(), c.ClientIP())
		if err != nil {
			if l != nil {
				l.WithContext(c.Request.Context()).Sugar().Warnf("rate limit check failed: %v", err)
			}
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			metrics.RateLimited.Inc()
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("rate limit exceeded", "RATE_LIMITED"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// setRateLimitHeaders sets standard rate limit response headers
func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
