package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"todo-system/internal/domain/outbox"
	"todo-system/internal/domain/todo"
	"todo-system/internal/repository"
	todo_errors "todo-system/pkg/errors"
	"todo-system/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type TodoService struct {
	db     repository.DBTX
	todos  repository.TodoRepository
	outbox repository.OutboxRepository
	logger *logger.Logger
}

// NewTodoService wires the service. outboxRepo may be nil, in which case no
// change events are recorded.
func NewTodoService(db repository.DBTX, todos repository.TodoRepository, outboxRepo repository.OutboxRepository, l *logger.Logger) *TodoService {
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	return &TodoService{db: db, todos: todos, outbox: outboxRepo, logger: l}
}

type ListTodosInput struct {
	Page     int
	PageSize int
	Filter   string
	Sort     string
}

type CreateTodoInput struct {
	Title       string
	Description string
}

type UpdateTodoInput struct {
	Title       string
	Description *string
	Completed   *bool
	// Version, when non-zero, must match the stored todo.
	Version int64
}

// TodoChange is the outbox payload for todo change events.
type TodoChange struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Completed bool      `json:"completed"`
	Version   int64     `json:"version,omitempty"`
	At        time.Time `json:"at"`
}

func (s *TodoService) List(ctx context.Context, in ListTodosInput) (todo.Page, error) {
	if in.Page == 0 {
		in.Page = DefaultPage
	}
	if in.PageSize == 0 {
		in.PageSize = DefaultPageSize
	}

	verr := todo_errors.NewValidationError()
	if in.Page < 1 {
		verr.Add("page", "must be greater than or equal to 1")
	}
	if in.PageSize < 1 || in.PageSize > MaxPageSize {
		verr.Add("pageSize", "must be between 1 and 100")
	}
	switch in.Sort {
	case "", todo.SortCreatedAsc, todo.SortCreatedDesc, todo.SortTitleAsc, todo.SortTitleDesc:
	default:
		verr.Add("sort", "must be one of createdAt, -createdAt, title, -title")
	}
	if err := verr.OrNil(); err != nil {
		return todo.Page{}, err
	}

	return s.todos.List(ctx, todo.ListParams{
		Page:     in.Page,
		PageSize: in.PageSize,
		Filter:   in.Filter,
		Sort:     in.Sort,
	})
}

func (s *TodoService) GetAll(ctx context.Context) ([]todo.Todo, error) {
	return s.todos.GetAll(ctx)
}

func (s *TodoService) Get(ctx context.Context, id uuid.UUID) (todo.Todo, error) {
	return s.todos.GetByID(ctx, id)
}

func (s *TodoService) Create(ctx context.Context, in CreateTodoInput) (todo.Todo, error) {
	verr := todo_errors.NewValidationError()
	validateTitle(verr, in.Title)
	validateDescription(verr, in.Description)
	if err := verr.OrNil(); err != nil {
		return todo.Todo{}, err
	}

	item := todo.Todo{Title: in.Title, Description: in.Description}
	err := repository.WithTx(ctx, s.db, func(tx repository.DBTX) error {
		if err := s.todos.WithTx(tx).Create(ctx, &item); err != nil {
			return err
		}
		return s.recordChange(ctx, tx, todo.EventCreated, item)
	})
	if err != nil {
		return todo.Todo{}, err
	}

	s.logger.Info(ctx, "todo created", zap.String("todo_id", item.ID.String()))
	return item, nil
}

func (s *TodoService) Update(ctx context.Context, id uuid.UUID, in UpdateTodoInput) (todo.Todo, error) {
	verr := todo_errors.NewValidationError()
	validateTitle(verr, in.Title)
	if in.Description != nil {
		validateDescription(verr, *in.Description)
	}
	if err := verr.OrNil(); err != nil {
		return todo.Todo{}, err
	}

	var item todo.Todo
	err := repository.WithTx(ctx, s.db, func(tx repository.DBTX) error {
		repo := s.todos.WithTx(tx)
		existing, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		existing.Title = in.Title
		if in.Description != nil {
			existing.Description = *in.Description
		}
		if in.Completed != nil {
			existing.Completed = *in.Completed
		}
		if in.Version != 0 {
			existing.Version = in.Version
		}

		if err := repo.Update(ctx, &existing); err != nil {
			return err
		}
		item = existing
		return s.recordChange(ctx, tx, todo.EventUpdated, item)
	})
	if err != nil {
		return todo.Todo{}, err
	}

	s.logger.Info(ctx, "todo updated", zap.String("todo_id", id.String()), zap.Int64("version", item.Version))
	return item, nil
}

func (s *TodoService) Delete(ctx context.Context, id uuid.UUID) error {
	err := repository.WithTx(ctx, s.db, func(tx repository.DBTX) error {
		if err := s.todos.WithTx(tx).Delete(ctx, id); err != nil {
			return err
		}
		return s.recordChange(ctx, tx, todo.EventDeleted, todo.Todo{ID: id})
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "todo deleted", zap.String("todo_id", id.String()))
	return nil
}

func (s *TodoService) recordChange(ctx context.Context, tx repository.DBTX, eventType string, item todo.Todo) error {
	if s.outbox == nil {
		return nil
	}
	payload, err := json.Marshal(TodoChange{
		ID:        item.ID.String(),
		Title:     item.Title,
		Completed: item.Completed,
		Version:   item.Version,
		At:        time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.outbox.Create(ctx, tx, &outbox.OutboxEvent{
		EventType:     eventType,
		AggregateType: "todo",
		AggregateID:   item.ID.String(),
		Payload:       payload,
	})
}

// validateTitle rejects blank titles. Titles are stored exactly as given.
func validateTitle(verr *todo_errors.ValidationError, title string) {
	if strings.TrimSpace(title) == "" {
		verr.Add("title", "Title is required.")
		return
	}
	if utf8.RuneCountInString(title) > todo.MaxTitleLength {
		verr.Add("title", "Title must not exceed 200 characters.")
	}
}

func validateDescription(verr *todo_errors.ValidationError, description string) {
	if utf8.RuneCountInString(description) > todo.MaxDescriptionLength {
		verr.Add("description", "Description must not exceed 1000 characters.")
	}
}
