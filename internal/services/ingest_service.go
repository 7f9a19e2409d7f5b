package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"livex/internal/domain/event"
	"livex/internal/domain/widget"
	"livex/internal/metrics"
	"livex/internal/repository"
	livex_errors "livex/pkg/errors"
	"livex/pkg/logger"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Notifier hands confirmed widget totals and event notices to the fan-out
// layer. It must not wait for delivery to viewers.
type Notifier interface {
	Notify(ctx context.Context, agg widget.Aggregate) error
	NotifyEvent(ctx context.Context, n widget.EventNotice) error
}

// MaxAmountCents bounds a single event so that no realistic number of events
// can overflow a widget total.
const MaxAmountCents = 100_000_000_000

type IngestRequest struct {
	UserID      string          `json:"userId" validate:"required,max=256"`
	WidgetID    string          `json:"widgetId" validate:"omitempty,max=128"`
	AmountCents *int64          `json:"amountCents" validate:"required,gte=0,lte=100000000000"`
	Source      string          `json:"source" validate:"omitempty,max=64"`
	Kind        string          `json:"kind" validate:"omitempty,max=64"`
	Payload     json.RawMessage `json:"payload"`
}

type IngestConfig struct {
	Clock             clockwork.Clock
	IncrementAttempts uint
	RetryDelay        time.Duration
}

// IngestService turns an external event into a logged event, an updated
// widget total and a broadcast of that total.
type IngestService struct {
	events   repository.EventLog
	store    repository.AggregateStore
	notifier Notifier
	config   IngestConfig
	logger   *logger.Logger
}

func NewIngestService(events repository.EventLog, store repository.AggregateStore, notifier Notifier, cfg IngestConfig, l *logger.Logger) *IngestService {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.IncrementAttempts == 0 {
		cfg.IncrementAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 50 * time.Millisecond
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &IngestService{
		events:   events,
		store:    store,
		notifier: notifier,
		config:   cfg,
		logger:   l.Named("ingest"),
	}
}

// Ingest validates and records one event. For a widget event a failed event
// log append is logged and does not fail the call, since the total already
// records it; a failed aggregate increment does, and nothing is broadcast in
// that case. An event without a widget fails when its append fails.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (*event.Event, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.WidgetID = strings.TrimSpace(req.WidgetID)
	if err := validateIngest(req); err != nil {
		metrics.EventsIngested.WithLabelValues("invalid").Inc()
		return nil, err
	}

	e := s.newEvent(req)
	log := s.logger.WithContext(ctx).With(zap.String("event_id", e.ID.String()))

	// the acknowledgement depends on these writes, not on the caller staying
	// connected
	writeCtx := context.WithoutCancel(ctx)

	var (
		g         errgroup.Group
		agg       widget.Aggregate
		appendErr error
	)
	g.Go(func() error {
		if err := s.events.Append(writeCtx, e); err != nil {
			metrics.EventLogAppendFailures.Inc()
			appendErr = &livex_errors.PersistenceError{Op: "event log append", Err: err}
			log.Error("event log append failed", zap.Error(appendErr))
		}
		return nil
	})
	if e.HasWidget() {
		g.Go(func() error {
			var err error
			agg, err = s.increment(writeCtx, *e.WidgetID, e.ID, e.AmountCents)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		metrics.EventsIngested.WithLabelValues("failed").Inc()
		perr := &livex_errors.PersistenceError{Op: "aggregate increment", Err: err}
		log.Error("ingest failed", zap.Error(perr))
		return nil, perr
	}

	// without a widget the log entry is the only record of the event
	if !e.HasWidget() {
		if appendErr != nil {
			metrics.EventsIngested.WithLabelValues("failed").Inc()
			return nil, appendErr
		}
		metrics.EventsIngested.WithLabelValues("ok").Inc()
		return e, nil
	}

	if err := s.notifier.Notify(writeCtx, agg); err != nil {
		metrics.NotifyFailures.Inc()
		log.Warn("notify failed", zap.String("widget_id", agg.WidgetID), zap.Error(err))
	}
	if err := s.notifier.NotifyEvent(writeCtx, newEventNotice(e)); err != nil {
		metrics.NotifyFailures.Inc()
		log.Warn("event notice failed", zap.String("widget_id", agg.WidgetID), zap.Error(err))
	}

	metrics.EventsIngested.WithLabelValues("ok").Inc()
	return e, nil
}

func (s *IngestService) newEvent(req IngestRequest) *event.Event {
	e := &event.Event{
		ID:          uuid.New(),
		Source:      req.Source,
		Kind:        req.Kind,
		UserID:      req.UserID,
		AmountCents: *req.AmountCents,
		ReceivedAt:  s.config.Clock.Now().UTC(),
	}
	if e.Source == "" {
		e.Source = event.DefaultSource
	}
	if req.WidgetID != "" {
		widgetID := req.WidgetID
		e.WidgetID = &widgetID
	}
	if p := bytes.TrimSpace(req.Payload); len(p) > 0 && !bytes.Equal(p, []byte("null")) {
		e.Payload = append(json.RawMessage(nil), p...)
	}
	return e
}

func newEventNotice(e *event.Event) widget.EventNotice {
	return widget.EventNotice{
		Type:        widget.EventMessageType,
		WidgetID:    *e.WidgetID,
		EventID:     e.ID.String(),
		Source:      e.Source,
		Kind:        e.Kind,
		UserID:      e.UserID,
		AmountCents: e.AmountCents,
	}
}

// increment retries transient store failures. The event id makes every
// attempt idempotent.
func (s *IngestService) increment(ctx context.Context, widgetID string, eventID uuid.UUID, delta int64) (widget.Aggregate, error) {
	start := time.Now()
	defer func() {
		metrics.AggregateIncrementDuration.Observe(time.Since(start).Seconds())
	}()

	var agg widget.Aggregate
	err := retry.Do(
		func() error {
			var err error
			agg, err = s.store.Increment(ctx, widgetID, eventID, delta)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(s.config.IncrementAttempts),
		retry.Delay(s.config.RetryDelay),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, livex_errors.ErrServiceUnavailable)
		}),
		retry.LastErrorOnly(true),
	)
	return agg, err
}

func validateIngest(req IngestRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	if p := bytes.TrimSpace(req.Payload); len(p) > 0 && !bytes.Equal(p, []byte("null")) {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(p, &obj); err != nil {
			return &livex_errors.ValidationError{Field: "payload", Reason: "must be a JSON object"}
		}
	}
	return nil
}
