package outbox

import (
	"time"

	"todo-system/internal/events"
	"todo-system/internal/metrics"
	"todo-system/internal/repository"
	"todo-system/pkg/logger"
)

const (
	DefaultBatchSize  = 100
	DefaultInterval   = 2 * time.Second
	DefaultMaxRetries = 5
	// DefaultStaleAfter is how long an event may sit in processing before
	// it is handed back to pending.
	DefaultStaleAfter = time.Minute
)

func DefaultProcessor(repo repository.OutboxRepository, publisher events.Publisher, m *metrics.Metrics, l *logger.Logger) *Processor {
	return NewProcessor(repo, publisher, m, l, DefaultBatchSize, DefaultInterval, DefaultMaxRetries)
}
