package events

import (
	"context"
	"errors"

	"todo-system/internal/metrics"
	"todo-system/pkg/logger"

	"go.uber.org/zap"
)

// Consumer reads a topic in the background and fans each message out to its handlers.
type Consumer struct {
	broker   Broker
	topic    string
	group    string
	handlers []MessageHandler
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewConsumer(broker Broker, topic, group string, l *logger.Logger, m *metrics.Metrics, handlers ...MessageHandler) *Consumer {
	return &Consumer{
		broker:   broker,
		topic:    topic,
		group:    group,
		handlers: handlers,
		logger:   l,
		metrics:  m,
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info(ctx, "event consumer started", zap.String("topic", c.topic), zap.String("group", c.group))
	err := c.broker.Consume(ctx, c.topic, c.group, c.process)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Consumer) process(ctx context.Context, msg Message) error {
	var errs []error
	for _, h := range c.handlers {
		if err := h(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	c.metrics.EventConsumed(c.topic, err)

	c.logger.Info(ctx, "event message processed",
		zap.String("topic", msg.Topic),
		zap.String("key", msg.Key),
		zap.String("event_type", msg.Headers[HeaderEventType]),
		zap.String("correlation_id", msg.Headers[HeaderCorrelationID]),
		zap.ByteString("value", msg.Value),
	)
	return err
}
