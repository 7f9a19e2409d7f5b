package events

import "context"

// MessageHandler receives one raw message from a pub/sub channel.
type MessageHandler func(channel string, payload []byte)

// Publisher and Subscriber are the pub/sub transport between instances.
// Delivery is fire-and-forget: a message published while an instance is
// resubscribing is lost, and the next widget update carries the total again.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, channels []string, handler MessageHandler) error
}
