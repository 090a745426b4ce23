package repository

import (
	"context"
	"database/sql"
	"time"

	"todo-system/internal/domain/outbox"
	"todo-system/internal/domain/todo"
	"todo-system/internal/domain/user"

	"github.com/google/uuid"
)

type TodoRepository interface {
	List(ctx context.Context, params todo.ListParams) (todo.Page, error)
	GetAll(ctx context.Context) ([]todo.Todo, error)
	GetByID(ctx context.Context, id uuid.UUID) (todo.Todo, error)
	Create(ctx context.Context, t *todo.Todo) error
	Update(ctx context.Context, t *todo.Todo) error
	Delete(ctx context.Context, id uuid.UUID) error
	// WithTx returns a repository bound to tx.
	WithTx(tx DBTX) TodoRepository
}

type UserRepository interface {
	Create(ctx context.Context, u *user.User) error
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, u *user.User) error
	SetRefreshToken(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error
}

type OutboxRepository interface {
	Create(ctx context.Context, tx DBTX, event *outbox.OutboxEvent) error
	GetPending(ctx context.Context, limit, maxRetries int) ([]outbox.OutboxEvent, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	RequeueStale(ctx context.Context, cutoff time.Time) (int64, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMsg string) error
	Retry(ctx context.Context, id uuid.UUID, errorMsg string) error
}

// Store groups the repositories that share one connection pool.
type Store struct {
	DB     *sql.DB
	Todos  TodoRepository
	Users  UserRepository
	Outbox OutboxRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		DB:     db,
		Todos:  NewTodoRepository(db),
		Users:  NewUserRepository(db),
		Outbox: NewOutboxRepository(db),
	}
}
