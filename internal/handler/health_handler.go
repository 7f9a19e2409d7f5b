package handler

import (
	"context"
	"net/http"
	"time"

	"livex/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

const ServiceName = "livex"

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	checks map[string]Pinger
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Root(c *gin.Context) {
	c.String(http.StatusOK, "livex event ingestion service")
}

func (h *HealthHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string, len(h.checks))
	healthy := true
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			deps[name] = err.Error()
			healthy = false
			continue
		}
		deps[name] = "ok"
	}

	body := gin.H{"status": "ok", "service": ServiceName, "dependencies": deps}
	if !healthy {
		body["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
