package services

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"todo-system/internal/domain/event"
	"todo-system/internal/domain/external"
	"todo-system/internal/events"
	"todo-system/internal/metrics"
	"todo-system/internal/redis"
	todo_errors "todo-system/pkg/errors"
	"todo-system/pkg/logger"

	"go.uber.org/zap"
)

const (
	externalListKey    = "external:todos:all"
	externalItemPrefix = "external:todos:id:"
	externalKeyPattern = "external:todos:*"
)

// ExternalTodoAPI is the remote todo resource.
type ExternalTodoAPI interface {
	List(ctx context.Context) ([]external.Todo, error)
	Get(ctx context.Context, id int) (external.Todo, error)
	Create(ctx context.Context, t external.Todo) (external.Todo, error)
	Update(ctx context.Context, id int, t external.Todo) (external.Todo, error)
	Delete(ctx context.Context, id int) error
}

// CachedExternalTodoAPI serves reads from Redis and invalidates on writes.
type CachedExternalTodoAPI struct {
	next    ExternalTodoAPI
	cache   *redis.CacheStore
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *logger.Logger
}

func NewCachedExternalTodoAPI(next ExternalTodoAPI, cache *redis.CacheStore, ttl time.Duration, m *metrics.Metrics, l *logger.Logger) *CachedExternalTodoAPI {
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	return &CachedExternalTodoAPI{next: next, cache: cache, ttl: ttl, metrics: m, logger: l}
}

func itemKey(id int) string {
	return externalItemPrefix + strconv.Itoa(id)
}

func (c *CachedExternalTodoAPI) List(ctx context.Context) ([]external.Todo, error) {
	todos, hit, err := redis.GetOrSet(ctx, c.cache, externalListKey, c.ttl, c.next.List)
	if err != nil {
		return nil, err
	}
	c.metrics.CacheLookup("external_todos", hit)
	return todos, nil
}

func (c *CachedExternalTodoAPI) Get(ctx context.Context, id int) (external.Todo, error) {
	t, hit, err := redis.GetOrSet(ctx, c.cache, itemKey(id), c.ttl, func(ctx context.Context) (external.Todo, error) {
		return c.next.Get(ctx, id)
	})
	if err != nil {
		return external.Todo{}, err
	}
	c.metrics.CacheLookup("external_todos", hit)
	return t, nil
}

func (c *CachedExternalTodoAPI) Create(ctx context.Context, t external.Todo) (external.Todo, error) {
	created, err := c.next.Create(ctx, t)
	if err != nil {
		return external.Todo{}, err
	}
	c.invalidate(ctx, created.ID)
	return created, nil
}

func (c *CachedExternalTodoAPI) Update(ctx context.Context, id int, t external.Todo) (external.Todo, error) {
	updated, err := c.next.Update(ctx, id, t)
	if err != nil {
		return external.Todo{}, err
	}
	c.invalidate(ctx, id)
	return updated, nil
}

func (c *CachedExternalTodoAPI) Delete(ctx context.Context, id int) error {
	if err := c.next.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *CachedExternalTodoAPI) invalidate(ctx context.Context, id int) {
	if err := c.cache.Remove(ctx, externalListKey, itemKey(id)); err != nil {
		c.logger.Warn(ctx, "failed to invalidate external todo cache", zap.Error(err))
	}
	if err := c.cache.RemoveByPattern(ctx, externalKeyPattern); err != nil {
		c.logger.Warn(ctx, "failed to invalidate external todo cache pattern", zap.Error(err))
	}
}

type ExternalTodoInput struct {
	UserID    int
	Title     string
	Completed bool
}

// ExternalTodoService validates input, calls the external API and raises
// ExternalTodoCreatedEvent after each create.
type ExternalTodoService struct {
	api       ExternalTodoAPI
	publisher events.EventPublisher
	clock     func() time.Time
	logger    *logger.Logger
}

func NewExternalTodoService(api ExternalTodoAPI, publisher events.EventPublisher, l *logger.Logger) *ExternalTodoService {
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	return &ExternalTodoService{api: api, publisher: publisher, clock: time.Now, logger: l}
}

func (s *ExternalTodoService) List(ctx context.Context) ([]external.Todo, error) {
	return s.api.List(ctx)
}

func (s *ExternalTodoService) Get(ctx context.Context, id int) (external.Todo, error) {
	if id <= 0 {
		return external.Todo{}, todo_errors.ErrNotFound
	}
	return s.api.Get(ctx, id)
}

func (s *ExternalTodoService) Create(ctx context.Context, in ExternalTodoInput) (external.Todo, error) {
	title, err := validateExternal(in)
	if err != nil {
		return external.Todo{}, err
	}

	created, err := s.api.Create(ctx, external.Todo{UserID: in.UserID, Title: title, Completed: in.Completed})
	if err != nil {
		return external.Todo{}, err
	}

	e := event.NewExternalTodoCreatedEvent(strconv.Itoa(created.ID), created.Title, s.clock(), logger.RequestIDFromContext(ctx))
	if s.publisher != nil {
		// the todo exists remotely, so a publish failure is logged, not returned
		if err := s.publisher.PublishExternalTodoCreated(ctx, e); err != nil {
			s.logger.Error(ctx, "failed to publish external todo created event",
				zap.Int("external_id", created.ID),
				zap.Error(err),
			)
		}
	}
	return created, nil
}

func (s *ExternalTodoService) Update(ctx context.Context, id int, in ExternalTodoInput) (external.Todo, error) {
	if id <= 0 {
		return external.Todo{}, todo_errors.ErrNotFound
	}
	title, err := validateExternal(in)
	if err != nil {
		return external.Todo{}, err
	}
	return s.api.Update(ctx, id, external.Todo{UserID: in.UserID, Title: title, Completed: in.Completed})
}

func (s *ExternalTodoService) Delete(ctx context.Context, id int) error {
	if id <= 0 {
		return todo_errors.ErrNotFound
	}
	return s.api.Delete(ctx, id)
}

func validateExternal(in ExternalTodoInput) (string, error) {
	title := strings.TrimSpace(in.Title)
	verr := todo_errors.NewValidationError()
	if title == "" {
		verr.Add("title", "Title is required.")
	} else if utf8.RuneCountInString(title) > 200 {
		verr.Add("title", "Title must not exceed 200 characters.")
	}
	if in.UserID <= 0 {
		verr.Add("userId", "UserId must be greater than 0.")
	}
	return title, verr.OrNil()
}
