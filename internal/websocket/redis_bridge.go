package websocket

import (
	"context"
	"fmt"
	"time"

	"livex/internal/domain/widget"
	"livex/internal/events"
	"livex/pkg/logger"

	"go.uber.org/zap"
)

const resubscribeDelay = time.Second

// RedisBridge feeds widget updates published by any instance into the local
// dispatcher.
type RedisBridge struct {
	subscriber events.Subscriber
	dispatcher *Dispatcher
	logger     *logger.Logger
}

func NewRedisBridge(subscriber events.Subscriber, dispatcher *Dispatcher, l *logger.Logger) *RedisBridge {
	if l == nil {
		l = logger.NewNop()
	}
	return &RedisBridge{subscriber: subscriber, dispatcher: dispatcher, logger: l.Named("redis_bridge")}
}

// Run subscribes until ctx is done, resubscribing after failures.
func (b *RedisBridge) Run(ctx context.Context) error {
	for {
		err := b.subscriber.Subscribe(ctx, []string{events.WidgetUpdatesChannel}, b.handle(ctx))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.logger.Warnf("widget update subscription ended: %v", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(resubscribeDelay):
		}
	}
}

func (b *RedisBridge) handle(ctx context.Context) events.MessageHandler {
	return func(channel string, payload []byte) {
		env, err := events.Decode(payload)
		if err == nil {
			switch env.EventType {
			case widget.UpdateType:
				var agg widget.Aggregate
				if agg, err = env.WidgetUpdate(); err == nil {
					b.dispatcher.Broadcast(ctx, agg)
				}
			case widget.EventMessageType:
				var n widget.EventNotice
				if n, err = env.EventNotice(); err == nil {
					b.dispatcher.BroadcastEvent(ctx, n)
				}
			default:
				err = fmt.Errorf("unexpected event type %q", env.EventType)
			}
		}
		if err != nil {
			b.logger.Logger.Warn("dropping widget message", zap.String("channel", channel), zap.Error(err))
		}
	}
}
