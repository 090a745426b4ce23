package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"todo-system/internal/domain/event"
	"todo-system/internal/domain/external"
	"todo-system/internal/redis"
	todo_errors "todo-system/pkg/errors"
	"todo-system/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

type fakeExternalAPI struct {
	mu       sync.Mutex
	todos    map[int]external.Todo
	nextID   int
	listHits int
	getHits  int
	fail     error
}

func newFakeExternalAPI() *fakeExternalAPI {
	return &fakeExternalAPI{
		todos:  map[int]external.Todo{1: {ID: 1, UserID: 1, Title: "delectus aut autem"}},
		nextID: 201,
	}
}

func (f *fakeExternalAPI) List(ctx context.Context) ([]external.Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listHits++
	out := make([]external.Todo, 0, len(f.todos))
	for _, t := range f.todos {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeExternalAPI) Get(ctx context.Context, id int) (external.Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getHits++
	t, ok := f.todos[id]
	if !ok {
		return external.Todo{}, todo_errors.ErrNotFound
	}
	return t, nil
}

func (f *fakeExternalAPI) Create(ctx context.Context, t external.Todo) (external.Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return external.Todo{}, f.fail
	}
	t.ID = f.nextID
	f.nextID++
	f.todos[t.ID] = t
	return t, nil
}

func (f *fakeExternalAPI) Update(ctx context.Context, id int, t external.Todo) (external.Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = id
	f.todos[id] = t
	return t, nil
}

func (f *fakeExternalAPI) Delete(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.todos, id)
	return nil
}

type recordingPublisher struct {
	events []event.ExternalTodoCreatedEvent
	err    error
}

func (p *recordingPublisher) PublishExternalTodoCreated(ctx context.Context, e event.ExternalTodoCreatedEvent) error {
	p.events = append(p.events, e)
	return p.err
}

func newTestCache(t *testing.T) (*redis.CacheStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return redis.NewCacheStore(client, time.Minute), mr
}

func TestCachedExternalTodoAPI_CachesReads(t *testing.T) {
	api := newFakeExternalAPI()
	cache, mr := newTestCache(t)
	cached := NewCachedExternalTodoAPI(api, cache, 5*time.Minute, nil, logger.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := cached.List(ctx); err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if _, err := cached.Get(ctx, 1); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}
	if api.listHits != 1 || api.getHits != 1 {
		t.Errorf("upstream hits list=%d get=%d, want 1 each", api.listHits, api.getHits)
	}
	if ttl := mr.TTL(externalListKey); ttl != 5*time.Minute {
		t.Errorf("list key TTL = %v, want 5m", ttl)
	}

	mr.FastForward(6 * time.Minute)
	if _, err := cached.List(ctx); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if api.listHits != 2 {
		t.Errorf("list hits after expiry = %d, want 2", api.listHits)
	}
}

func TestCachedExternalTodoAPI_WritesInvalidate(t *testing.T) {
	api := newFakeExternalAPI()
	cache, mr := newTestCache(t)
	cached := NewCachedExternalTodoAPI(api, cache, time.Minute, nil, logger.NewNop())
	ctx := context.Background()

	cached.List(ctx)
	cached.Get(ctx, 1)
	if !mr.Exists(externalListKey) || !mr.Exists(itemKey(1)) {
		t.Fatal("reads were not cached")
	}

	if _, err := cached.Update(ctx, 1, external.Todo{UserID: 1, Title: "changed"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if mr.Exists(externalListKey) || mr.Exists(itemKey(1)) {
		t.Error("Update() left stale cache entries")
	}

	got, err := cached.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != "changed" {
		t.Errorf("Get() after update title = %q", got.Title)
	}

	if _, err := cached.Get(ctx, 999); !errors.Is(err, todo_errors.ErrNotFound) {
		t.Errorf("Get(999) error = %v, want ErrNotFound", err)
	}
	if mr.Exists(itemKey(999)) {
		t.Error("a failed lookup was cached")
	}
}

func TestExternalTodoService_CreatePublishesEvent(t *testing.T) {
	api := newFakeExternalAPI()
	pub := &recordingPublisher{}
	svc := NewExternalTodoService(api, pub, logger.NewNop())
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return fixed }

	ctx := context.WithValue(context.Background(), logger.RequestIdKey, "req-123")
	created, err := svc.Create(ctx, ExternalTodoInput{UserID: 1, Title: "  ship it  "})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID != 201 || created.Title != "ship it" {
		t.Errorf("Create() = %+v", created)
	}

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	e := pub.events[0]
	if e.ID != "201" || e.Title != "ship it" || e.CorrelationID != "req-123" {
		t.Errorf("event = %+v", e)
	}
	if e.Source != event.DefaultSource || e.EventType != event.ExternalTodoCreatedEventType {
		t.Errorf("event defaults = %q / %q", e.Source, e.EventType)
	}
	if !e.CreatedAt.Equal(fixed) {
		t.Errorf("event CreatedAt = %v, want %v", e.CreatedAt, fixed)
	}
}

func TestExternalTodoService_PublishFailureDoesNotFailCreate(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewExternalTodoService(newFakeExternalAPI(), pub, logger.NewNop())

	if _, err := svc.Create(context.Background(), ExternalTodoInput{UserID: 1, Title: "x"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
}

func TestExternalTodoService_Validation(t *testing.T) {
	api := newFakeExternalAPI()
	pub := &recordingPublisher{}
	svc := NewExternalTodoService(api, pub, logger.NewNop())
	ctx := context.Background()

	tests := []struct {
		name string
		in   ExternalTodoInput
	}{
		{"missing title", ExternalTodoInput{UserID: 1}},
		{"missing user", ExternalTodoInput{Title: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tt.in); !errors.Is(err, todo_errors.ErrInvalidInput) {
				t.Errorf("Create() error = %v, want ErrInvalidInput", err)
			}
		})
	}
	if len(pub.events) != 0 {
		t.Errorf("invalid creates published %d events", len(pub.events))
	}

	api.fail = todo_errors.ErrUpstream
	if _, err := svc.Create(ctx, ExternalTodoInput{UserID: 1, Title: "x"}); !errors.Is(err, todo_errors.ErrUpstream) {
		t.Errorf("Create() upstream error = %v", err)
	}
	if len(pub.events) != 0 {
		t.Error("a failed create published an event")
	}

	if _, err := svc.Get(ctx, 0); !errors.Is(err, todo_errors.ErrNotFound) {
		t.Errorf("Get(0) error = %v, want ErrNotFound", err)
	}
}
