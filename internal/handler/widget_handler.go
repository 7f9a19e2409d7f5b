package handler

import (
	"errors"
	"net/http"

	"livex/internal/domain/widget"
	"livex/internal/services"
	"livex/internal/transport/httpdto"
	livex_errors "livex/pkg/errors"

	"github.com/gin-gonic/gin"
)

type WidgetHandler struct {
	service *services.WidgetService
}

func NewWidgetHandler(service *services.WidgetService) *WidgetHandler {
	return &WidgetHandler{service: service}
}

func (h *WidgetHandler) Create(c *gin.Context) {
	var req httpdto.CreateWidgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	agg, err := h.service.Create(c.Request.Context(), services.CreateWidgetRequest{
		WidgetID:     req.WidgetID,
		Currency:     req.Currency,
		InitialCents: req.InitialCents,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(toWidgetResponse(agg)))
}

func (h *WidgetHandler) Get(c *gin.Context) {
	agg, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, livex_errors.ErrServiceUnavailable) {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("widget state unavailable", "SERVICE_UNAVAILABLE"))
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(toWidgetResponse(agg)))
}

func toWidgetResponse(agg widget.Aggregate) httpdto.WidgetResponse {
	return httpdto.WidgetResponse{WidgetID: agg.WidgetID, TotalCents: agg.TotalCents, Currency: agg.Currency}
}
