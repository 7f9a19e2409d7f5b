package middleware

import (
	"livex/internal/transport/httpdto"
	"livex/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler logs errors attached to the context. Handlers that already
// wrote a response keep it; otherwise a generic 500 envelope is written.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		if l != nil {
			l.WithContext(c.Request.Context()).Error("request error",
				zap.String("path", c.Request.URL.Path),
				zap.Int("status", c.Writer.Status()),
				zap.Error(err),
			)
		}
		if !c.Writer.Written() {
			c.JSON(500, httpdto.NewErrorResponse("internal error", "INTERNAL_ERROR"))
		}
	}
}
