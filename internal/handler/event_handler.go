package handler

import (
	"net/http"

	"livex/internal/services"
	"livex/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type EventHandler struct {
	service *services.IngestService
}

func NewEventHandler(service *services.IngestService) *EventHandler {
	return &EventHandler{service: service}
}

// Ingest accepts one external event. The response only acknowledges
// persistence; viewers are updated asynchronously.
func (h *EventHandler) Ingest(c *gin.Context) {
	var req httpdto.IngestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	e, err := h.service.Ingest(c.Request.Context(), services.IngestRequest{
		UserID:      req.UserID,
		WidgetID:    req.WidgetID,
		AmountCents: req.AmountCents,
		Source:      req.Source,
		Kind:        req.Kind,
		Payload:     req.Payload,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.IngestEventResponse{EventID: e.ID.String()}))
}
