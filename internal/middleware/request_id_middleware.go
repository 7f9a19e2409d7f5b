package middleware

import (
	"context"
	"strings"

	"livex/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-Id"
	maxRequestIDLen = 64
)

// RequestIDMiddleware carries the caller's X-Request-Id through to logs and
// the response. Webhook senders often retry with the same id, which makes a
// duplicate delivery easy to spot in the event log.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if !validRequestID(requestID) {
			requestID = newRequestID()
		}
		c.Writer.Header().Set(RequestIDHeader, requestID)
		c.Set(string(logger.RequestIdKey), requestID)
		ctx := context.WithValue(c.Request.Context(), logger.RequestIdKey, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// validRequestID accepts short ids made of characters safe to log verbatim.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// newRequestID returns a uuid without hyphens, 32 hex chars.
func newRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
