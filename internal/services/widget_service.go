package services

import (
	"context"
	"errors"
	"strings"

	"livex/internal/domain/widget"
	"livex/internal/repository"
	livex_errors "livex/pkg/errors"
	"livex/pkg/logger"

	"go.uber.org/zap"
)

type CreateWidgetRequest struct {
	WidgetID     string `json:"widgetId" validate:"required,max=128"`
	Currency     string `json:"currency" validate:"required,len=3,alpha"`
	InitialCents int64  `json:"initialCents" validate:"gte=0"`
}

type WidgetService struct {
	store    repository.AggregateStore
	notifier Notifier
	logger   *logger.Logger
}

func NewWidgetService(store repository.AggregateStore, notifier Notifier, l *logger.Logger) *WidgetService {
	if l == nil {
		l = logger.NewNop()
	}
	return &WidgetService{store: store, notifier: notifier, logger: l.Named("widgets")}
}

// Create registers a widget. Repeating a create with the same currency
// returns the existing aggregate; a different currency is ErrConflict.
func (s *WidgetService) Create(ctx context.Context, req CreateWidgetRequest) (widget.Aggregate, error) {
	req.WidgetID = strings.TrimSpace(req.WidgetID)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := validateStruct(req); err != nil {
		return widget.Aggregate{}, err
	}

	agg, err := s.store.Create(ctx, req.WidgetID, req.Currency, req.InitialCents)
	if err != nil {
		if errors.Is(err, livex_errors.ErrConflict) {
			return agg, err
		}
		return widget.Aggregate{}, &livex_errors.PersistenceError{Op: "create widget", Err: err}
	}

	// viewers that joined before the widget existed saw a zero total
	if agg.TotalCents > 0 && s.notifier != nil {
		if err := s.notifier.Notify(ctx, agg); err != nil {
			s.logger.WithContext(ctx).Warn("notify failed", zap.String("widget_id", agg.WidgetID), zap.Error(err))
		}
	}
	return agg, nil
}

func (s *WidgetService) Get(ctx context.Context, widgetID string) (widget.Aggregate, error) {
	widgetID = strings.TrimSpace(widgetID)
	if widgetID == "" {
		return widget.Aggregate{}, &livex_errors.ValidationError{Field: "widgetId", Reason: "is required"}
	}
	agg, err := s.store.Read(ctx, widgetID)
	if err != nil {
		if errors.Is(err, livex_errors.ErrNotFound) {
			return widget.Aggregate{}, err
		}
		return widget.Aggregate{}, &livex_errors.PersistenceError{Op: "read widget", Err: err}
	}
	return agg, nil
}
