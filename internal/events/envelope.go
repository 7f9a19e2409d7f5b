package events

import (
	"encoding/json"
	"fmt"
	"time"

	"livex/internal/domain/widget"
)

// WidgetUpdatesChannel carries widget total updates between instances.
const WidgetUpdatesChannel = "livex:widget-updates"

type Envelope struct {
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// NewWidgetEnvelope wraps an aggregate snapshot for transport.
func NewWidgetEnvelope(agg widget.Aggregate, occurredAt time.Time) (Envelope, error) {
	payload, err := json.Marshal(widget.NewUpdate(agg))
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventType:     widget.UpdateType,
		AggregateType: "widget",
		AggregateID:   agg.WidgetID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       payload,
	}, nil
}

// NewEventNoticeEnvelope wraps a per-event notice for transport.
func NewEventNoticeEnvelope(n widget.EventNotice, occurredAt time.Time) (Envelope, error) {
	n.Type = widget.EventMessageType
	payload, err := json.Marshal(n)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventType:     widget.EventMessageType,
		AggregateType: "widget",
		AggregateID:   n.WidgetID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       payload,
	}, nil
}

// Decode parses any envelope published on WidgetUpdatesChannel.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// EventNotice returns the notice carried by a widget.event envelope.
func (env Envelope) EventNotice() (widget.EventNotice, error) {
	if env.EventType != widget.EventMessageType {
		return widget.EventNotice{}, fmt.Errorf("unexpected event type %q", env.EventType)
	}
	var n widget.EventNotice
	if err := json.Unmarshal(env.Payload, &n); err != nil {
		return widget.EventNotice{}, fmt.Errorf("decode event notice: %w", err)
	}
	if n.WidgetID == "" {
		return widget.EventNotice{}, fmt.Errorf("event notice without widget id")
	}
	return n, nil
}

// WidgetUpdate returns the aggregate carried by a widget.total envelope.
func (env Envelope) WidgetUpdate() (widget.Aggregate, error) {
	if env.EventType != widget.UpdateType {
		return widget.Aggregate{}, fmt.Errorf("unexpected event type %q", env.EventType)
	}
	var u widget.Update
	if err := json.Unmarshal(env.Payload, &u); err != nil {
		return widget.Aggregate{}, fmt.Errorf("decode widget update: %w", err)
	}
	if u.WidgetID == "" {
		return widget.Aggregate{}, fmt.Errorf("widget update without widget id")
	}
	return u.Aggregate(), nil
}

// DecodeWidgetUpdate parses an envelope published on WidgetUpdatesChannel.
func DecodeWidgetUpdate(data []byte) (widget.Aggregate, error) {
	env, err := Decode(data)
	if err != nil {
		return widget.Aggregate{}, err
	}
	return env.WidgetUpdate()
}
