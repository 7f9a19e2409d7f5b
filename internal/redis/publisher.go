package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"livex/internal/domain/widget"
	"livex/internal/events"

	"github.com/redis/go-redis/v9"
)

type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

// UpdatePublisher hands widget updates to every instance through Redis
// pub/sub instead of delivering them locally.
type UpdatePublisher struct {
	publisher events.Publisher
	channel   string
}

func NewUpdatePublisher(publisher events.Publisher) *UpdatePublisher {
	return &UpdatePublisher{publisher: publisher, channel: events.WidgetUpdatesChannel}
}

func (p *UpdatePublisher) Notify(ctx context.Context, agg widget.Aggregate) error {
	env, err := events.NewWidgetEnvelope(agg, time.Now())
	if err != nil {
		return err
	}
	return p.publish(ctx, env)
}

func (p *UpdatePublisher) NotifyEvent(ctx context.Context, n widget.EventNotice) error {
	env, err := events.NewEventNoticeEnvelope(n, time.Now())
	if err != nil {
		return err
	}
	return p.publish(ctx, env)
}

// publish sends env on the shared channel. Redis delivers one connection's
// publishes in order, so a total reaches other instances before the notice
// of the event that produced it.
func (p *UpdatePublisher) publish(ctx context.Context, env events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := p.publisher.Publish(ctx, p.channel, data); err != nil {
		return fmt.Errorf("publish %s for widget %s: %w", env.EventType, env.AggregateID, err)
	}
	return nil
}
