package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"todo-system/internal/domain/todo"
	todo_errors "todo-system/pkg/errors"
	"todo-system/pkg/logger"

	"go.uber.org/zap"
)

// ObjectStore is the part of the S3 client the export needs.
type ObjectStore interface {
	PutObject(ctx context.Context, key, contentType string, body []byte) error
	PresignGet(ctx context.Context, key string) (string, time.Time, error)
}

type todoLister interface {
	GetAll(ctx context.Context) ([]todo.Todo, error)
}

type ExportSnapshot struct {
	ExportedAt time.Time   `json:"exportedAt"`
	Count      int         `json:"count"`
	Todos      []todo.Todo `json:"todos"`
}

type ExportResult struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
	Count     int       `json:"count"`
}

type ExportService struct {
	todos  todoLister
	store  ObjectStore
	clock  func() time.Time
	logger *logger.Logger
}

// NewExportService returns a service that reports ErrServiceUnavailable
// when store is nil.
func NewExportService(todos todoLister, store ObjectStore, l *logger.Logger) *ExportService {
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	return &ExportService{todos: todos, store: store, clock: time.Now, logger: l}
}

func (s *ExportService) Export(ctx context.Context) (ExportResult, error) {
	if s.store == nil {
		return ExportResult{}, fmt.Errorf("%w: export storage is not configured", todo_errors.ErrServiceUnavailable)
	}

	items, err := s.todos.GetAll(ctx)
	if err != nil {
		return ExportResult{}, err
	}

	now := s.clock().UTC()
	body, err := json.Marshal(ExportSnapshot{ExportedAt: now, Count: len(items), Todos: items})
	if err != nil {
		return ExportResult{}, err
	}

	key := "exports/todos-" + now.Format("20060102T150405Z") + ".json"
	if err := s.store.PutObject(ctx, key, "application/json", body); err != nil {
		s.logger.Error(ctx, "failed to upload export", zap.String("key", key), zap.Error(err))
		return ExportResult{}, fmt.Errorf("%w: %v", todo_errors.ErrUpstream, err)
	}

	url, expiresAt, err := s.store.PresignGet(ctx, key)
	if err != nil {
		return ExportResult{}, fmt.Errorf("%w: %v", todo_errors.ErrUpstream, err)
	}

	s.logger.Info(ctx, "todos exported", zap.String("key", key), zap.Int("count", len(items)))
	return ExportResult{Key: key, URL: url, ExpiresAt: expiresAt, Count: len(items)}, nil
}
