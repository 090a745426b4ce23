package outbox

import (
	"context"
	"encoding/json"
	"time"

	"todo-system/internal/domain/outbox"
	"todo-system/internal/events"
	"todo-system/internal/metrics"
	"todo-system/internal/repository"
	"todo-system/pkg/logger"

	"go.uber.org/zap"
)

// TodoChannel carries todo change envelopes to the websocket bridge.
const TodoChannel = "todos:events"

type Processor struct {
	repo       repository.OutboxRepository
	publisher  events.Publisher
	metrics    *metrics.Metrics
	logger     *logger.Logger
	batchSize  int
	interval   time.Duration
	maxRetries int
	staleAfter time.Duration
}

func NewProcessor(repo repository.OutboxRepository, publisher events.Publisher, m *metrics.Metrics, l *logger.Logger, batchSize int, interval time.Duration, maxRetries int) *Processor {
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	return &Processor{
		repo:       repo,
		publisher:  publisher,
		metrics:    m,
		logger:     l,
		batchSize:  batchSize,
		interval:   interval,
		maxRetries: maxRetries,
		staleAfter: DefaultStaleAfter,
	}
}

func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.processBatch(ctx)
		}
	}
}

// processBatch publishes pending events in creation order and returns how
// many were delivered.
func (p *Processor) processBatch(ctx context.Context) int {
	if n, err := p.repo.RequeueStale(ctx, time.Now().Add(-p.staleAfter)); err != nil {
		p.logger.Error(ctx, "failed to requeue stale outbox events", zap.Error(err))
	} else if n > 0 {
		p.logger.Warn(ctx, "requeued stale outbox events", zap.Int64("count", n))
	}

	batch, err := p.repo.GetPending(ctx, p.batchSize, p.maxRetries)
	if err != nil {
		p.logger.Error(ctx, "failed to load outbox events", zap.Error(err))
		return 0
	}

	delivered := 0
	for _, e := range batch {
		claimed, err := p.repo.MarkProcessing(ctx, e.ID)
		if err != nil {
			p.logger.Error(ctx, "failed to claim outbox event", zap.String("event_id", e.ID.String()), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}

		if err := p.publish(ctx, e); err != nil {
			p.fail(ctx, e, err)
			continue
		}

		if err := p.repo.MarkCompleted(ctx, e.ID); err != nil {
			p.logger.Error(ctx, "failed to complete outbox event", zap.String("event_id", e.ID.String()), zap.Error(err))
			continue
		}
		p.metrics.OutboxEvent(string(outbox.StatusCompleted))
		delivered++
	}
	return delivered
}

func (p *Processor) publish(ctx context.Context, e outbox.OutboxEvent) error {
	payload, err := json.Marshal(events.Envelope{
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		OccurredAt:    e.CreatedAt.UTC(),
		Payload:       json.RawMessage(e.Payload),
	})
	if err != nil {
		return err
	}
	return p.publisher.Publish(ctx, TodoChannel, payload)
}

func (p *Processor) fail(ctx context.Context, e outbox.OutboxEvent, cause error) {
	fields := []zap.Field{
		zap.String("event_id", e.ID.String()),
		zap.String("event_type", e.EventType),
		zap.Int("attempt", e.RetryCount+1),
		zap.Error(cause),
	}

	if e.RetryCount+1 >= p.maxRetries {
		p.logger.Error(ctx, "outbox event failed permanently", fields...)
		if err := p.repo.MarkFailed(ctx, e.ID, cause.Error()); err != nil {
			p.logger.Error(ctx, "failed to mark outbox event failed", zap.Error(err))
		}
		p.metrics.OutboxEvent(string(outbox.StatusFailed))
		return
	}

	p.logger.Warn(ctx, "outbox publish failed, will retry", fields...)
	if err := p.repo.Retry(ctx, e.ID, cause.Error()); err != nil {
		p.logger.Error(ctx, "failed to reschedule outbox event", zap.Error(err))
	}
	p.metrics.OutboxEvent("retry")
}
