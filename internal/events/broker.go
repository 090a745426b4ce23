package events

import "context"

// Publisher sends raw payloads to a pub/sub channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscriber delivers raw payloads from channels matching the given patterns.
type Subscriber interface {
	Subscribe(ctx context.Context, patterns []string, handler func(channel string, payload []byte)) error
}

// MessageHandler processes one broker message.
type MessageHandler func(ctx context.Context, msg Message) error

// Broker moves keyed messages between producers and consumers of a topic.
type Broker interface {
	PublishMessage(ctx context.Context, msg Message) error
	// Consume blocks until ctx is done, calling handler for every message on topic.
	Consume(ctx context.Context, topic, group string, handler MessageHandler) error
	Close() error
}
