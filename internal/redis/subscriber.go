package redis

import (
	"context"

	"livex/internal/events"

	"github.com/redis/go-redis/v9"
)

type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe blocks, invoking handler for every message, until ctx is done or
// the subscription fails.
func (s *Subscriber) Subscribe(ctx context.Context, channels []string, handler events.MessageHandler) error {
	sub := s.client.Subscribe(ctx, channels...)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		handler(msg.Channel, []byte(msg.Payload))
	}
}
