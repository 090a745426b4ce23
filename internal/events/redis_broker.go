package events

import (
	"context"
	"encoding/json"
	"fmt"

	"todo-system/pkg/logger"

	"go.uber.org/zap"
)

// RedisBroker carries messages over Redis pub/sub. Headers and key travel
// inside the JSON body because pub/sub has no message metadata.
type RedisBroker struct {
	publisher  Publisher
	subscriber Subscriber
	logger     *logger.Logger
}

func NewRedisBroker(publisher Publisher, subscriber Subscriber, l *logger.Logger) *RedisBroker {
	return &RedisBroker{publisher: publisher, subscriber: subscriber, logger: l}
}

func channelForTopic(topic string) string {
	return "events:" + topic
}

func (b *RedisBroker) PublishMessage(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return b.publisher.Publish(ctx, channelForTopic(msg.Topic), data)
}

// Consume ignores group: every Redis subscriber receives every message.
func (b *RedisBroker) Consume(ctx context.Context, topic, group string, handler MessageHandler) error {
	return b.subscriber.Subscribe(ctx, []string{channelForTopic(topic)}, func(channel string, payload []byte) {
		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			b.logger.Warn(ctx, "dropping malformed broker message", zap.String("channel", channel), zap.Error(err))
			return
		}
		if err := handler(ctx, msg); err != nil {
			b.logger.Error(ctx, "message handler failed", zap.String("topic", topic), zap.Error(err))
		}
	})
}

func (b *RedisBroker) Close() error {
	return nil
}
