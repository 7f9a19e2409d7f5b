package handler

import (
	"errors"
	"net/http"

	"livex/internal/transport/httpdto"
	livex_errors "livex/pkg/errors"

	"github.com/gin-gonic/gin"
)

// writeError maps service errors onto status codes and error codes.
func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	msg := "internal error"

	var verr *livex_errors.ValidationError
	if errors.As(err, &verr) {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpdto.NewValidationErrorResponse(verr.Field, verr.Error()))
		return
	}

	switch {
	case errors.Is(err, livex_errors.ErrNotFound):
		status, code, msg = http.StatusNotFound, "NOT_FOUND", err.Error()
	case errors.Is(err, livex_errors.ErrConflict):
		status, code, msg = http.StatusConflict, "CONFLICT", err.Error()
	case errors.Is(err, livex_errors.ErrRateLimited):
		status, code, msg = http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded"
	case errors.Is(err, livex_errors.ErrTotalOverflow):
		status, code, msg = http.StatusUnprocessableEntity, "TOTAL_OVERFLOW", "widget total would overflow"
	case livex_errors.IsPersistence(err):
		status, code, msg = http.StatusInternalServerError, "PERSISTENCE_ERROR", "failed to persist event"
	}

	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, httpdto.NewErrorResponse(msg, code))
}
