package websocket

import (
	"context"
	"encoding/json"
	"errors"

	"livex/internal/domain/widget"
	"livex/internal/metrics"
	livex_errors "livex/pkg/errors"
	"livex/pkg/logger"

	"go.uber.org/zap"
)

// EncodeUpdate renders agg as the widget.total wire message.
func EncodeUpdate(agg widget.Aggregate) (Message, error) {
	data, err := json.Marshal(widget.NewUpdate(agg))
	if err != nil {
		return Message{}, err
	}
	return Message{WidgetID: agg.WidgetID, TotalCents: agg.TotalCents, Data: data}, nil
}

// Dispatcher pushes confirmed widget totals to the local subscribers of the
// widget. Delivery is best effort: failures are logged and counted, never
// retried and never reported to the caller.
type Dispatcher struct {
	registry *Registry
	logger   *logger.Logger
}

func NewDispatcher(registry *Registry, l *logger.Logger) *Dispatcher {
	if l == nil {
		l = logger.NewNop()
	}
	return &Dispatcher{registry: registry, logger: l.Named("dispatcher")}
}

// Broadcast sends agg to every connection subscribed to agg.WidgetID at the
// time of the call and returns how many accepted it.
func (d *Dispatcher) Broadcast(ctx context.Context, agg widget.Aggregate) int {
	subs := d.registry.SubscribersOf(agg.WidgetID)
	if len(subs) == 0 {
		metrics.Broadcasts.WithLabelValues("no_subscribers").Inc()
		return 0
	}

	msg, err := EncodeUpdate(agg)
	if err != nil {
		d.logger.WithContext(ctx).Error("encode widget update", zap.String("widget_id", agg.WidgetID), zap.Error(err))
		return 0
	}
	return d.fanOut(ctx, agg.WidgetID, subs, msg)
}

// BroadcastEvent tells the current subscribers of n.WidgetID about one
// ingested event. Event notices bypass the per-connection total guard.
func (d *Dispatcher) BroadcastEvent(ctx context.Context, n widget.EventNotice) int {
	subs := d.registry.SubscribersOf(n.WidgetID)
	if len(subs) == 0 {
		metrics.Broadcasts.WithLabelValues("no_subscribers").Inc()
		return 0
	}

	n.Type = widget.EventMessageType
	data, err := json.Marshal(n)
	if err != nil {
		d.logger.WithContext(ctx).Error("encode event notice", zap.String("widget_id", n.WidgetID), zap.Error(err))
		return 0
	}
	return d.fanOut(ctx, n.WidgetID, subs, Message{Data: data})
}

func (d *Dispatcher) fanOut(ctx context.Context, widgetID string, subs []Connection, msg Message) int {
	delivered := 0
	for _, conn := range subs {
		err := conn.Send(msg)
		switch {
		case err == nil:
			delivered++
			metrics.Deliveries.WithLabelValues("sent").Inc()
		case errors.Is(err, ErrStaleUpdate):
			metrics.Deliveries.WithLabelValues("stale").Inc()
		case errors.Is(err, livex_errors.ErrConnectionClosed):
			// closed between lookup and send
			metrics.Deliveries.WithLabelValues("closed").Inc()
		default:
			metrics.Deliveries.WithLabelValues("dropped").Inc()
			derr := &livex_errors.DeliveryError{ConnectionID: conn.ID(), WidgetID: widgetID, Err: err}
			d.logger.WithContext(ctx).Warn("delivery failed", zap.Error(derr))
		}
	}

	if delivered > 0 {
		metrics.Broadcasts.WithLabelValues("delivered").Inc()
	} else {
		metrics.Broadcasts.WithLabelValues("undelivered").Inc()
	}
	return delivered
}

// Notify implements the ingestion notifier for single instance deployments.
func (d *Dispatcher) Notify(ctx context.Context, agg widget.Aggregate) error {
	d.Broadcast(ctx, agg)
	return nil
}

func (d *Dispatcher) NotifyEvent(ctx context.Context, n widget.EventNotice) error {
	d.BroadcastEvent(ctx, n)
	return nil
}
