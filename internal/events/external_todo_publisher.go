package events

import (
	"context"
	"encoding/json"
	"fmt"

	"todo-system/internal/domain/event"
	"todo-system/internal/metrics"
	"todo-system/pkg/logger"

	"go.uber.org/zap"
)

// EventPublisher publishes integration events raised by the external todo flow.
type EventPublisher interface {
	PublishExternalTodoCreated(ctx context.Context, e event.ExternalTodoCreatedEvent) error
}

type BrokerEventPublisher struct {
	broker  Broker
	topic   string
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewBrokerEventPublisher(broker Broker, topic string, l *logger.Logger, m *metrics.Metrics) *BrokerEventPublisher {
	return &BrokerEventPublisher{broker: broker, topic: topic, logger: l, metrics: m}
}

// PublishExternalTodoCreated sends the event keyed by its id with the
// event type, correlation id and source as headers.
func (p *BrokerEventPublisher) PublishExternalTodoCreated(ctx context.Context, e event.ExternalTodoCreatedEvent) error {
	e = e.WithDefaults()
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := Message{
		Topic: p.topic,
		Key:   e.ID,
		Headers: map[string]string{
			HeaderEventType:     e.EventType,
			HeaderCorrelationID: e.CorrelationID,
			HeaderSource:        e.Source,
		},
		Value: value,
	}

	err = p.broker.PublishMessage(ctx, msg)
	p.metrics.EventPublished(p.topic, err)
	if err != nil {
		p.logger.Error(ctx, "failed to publish event",
			zap.String("event_type", e.EventType),
			zap.String("event_id", e.ID),
			zap.Error(err),
		)
		return err
	}

	p.logger.Info(ctx, "event published",
		zap.String("topic", p.topic),
		zap.String("event_type", e.EventType),
		zap.String("event_id", e.ID),
		zap.String("correlation_id", e.CorrelationID),
	)
	return nil
}

// NoopEventPublisher only logs. Used when EVENT_BROKER=none.
type NoopEventPublisher struct {
	logger *logger.Logger
}

func NewNoopEventPublisher(l *logger.Logger) *NoopEventPublisher {
	return &NoopEventPublisher{logger: l}
}

func (p *NoopEventPublisher) PublishExternalTodoCreated(ctx context.Context, e event.ExternalTodoCreatedEvent) error {
	p.logger.Debug(ctx, "event publishing disabled", zap.String("event_id", e.ID))
	return nil
}
