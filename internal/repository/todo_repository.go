package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"todo-system/internal/domain/todo"
	todo_errors "todo-system/pkg/errors"

	"github.com/google/uuid"
)

const todoColumns = "id, title, description, completed, version, created_at, updated_at"

type todoRepository struct {
	db DBTX
}

func NewTodoRepository(db DBTX) TodoRepository {
	return &todoRepository{db: db}
}

func (r *todoRepository) WithTx(tx DBTX) TodoRepository {
	return &todoRepository{db: tx}
}

func (r *todoRepository) List(ctx context.Context, params todo.ListParams) (todo.Page, error) {
	args := &queryArgs{}
	where := ""
	if filter := strings.TrimSpace(params.Filter); filter != "" {
		pattern := "%" + escapeLike(strings.ToLower(filter)) + "%"
		where = " WHERE LOWER(title) LIKE " + args.add(pattern) + ` ESCAPE '\'`
	}

	var total int
	countArgs := append([]interface{}(nil), args.values...)
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM todos"+where, countArgs...).Scan(&total); err != nil {
		return todo.Page{}, err
	}

	offset := (params.Page - 1) * params.PageSize
	query := "SELECT " + todoColumns + " FROM todos" + where +
		" ORDER BY " + orderClause(params.Sort) +
		" LIMIT " + args.add(params.PageSize) +
		" OFFSET " + args.add(offset)

	items, err := r.query(ctx, query, args.values...)
	if err != nil {
		return todo.Page{}, err
	}

	return todo.Page{
		Items:      items,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalCount: total,
	}, nil
}

func (r *todoRepository) GetAll(ctx context.Context) ([]todo.Todo, error) {
	return r.query(ctx, "SELECT "+todoColumns+" FROM todos ORDER BY created_at ASC, id ASC")
}

func (r *todoRepository) GetByID(ctx context.Context, id uuid.UUID) (todo.Todo, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+todoColumns+" FROM todos WHERE id = $1", id)
	t, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return todo.Todo{}, todo_errors.ErrNotFound
	}
	return t, err
}

func (r *todoRepository) Create(ctx context.Context, t *todo.Todo) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt
	t.Version = 1

	_, err := r.db.ExecContext(ctx, `
        INSERT INTO todos (id, title, description, completed, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `,
		t.ID,
		t.Title,
		t.Description,
		t.Completed,
		t.Version,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return todo_errors.ErrAlreadyExists
	}
	return err
}

// Update writes title, description and completion. A non-zero Version must
// match the stored row or ErrConflict is returned.
func (r *todoRepository) Update(ctx context.Context, t *todo.Todo) error {
	updatedAt := time.Now().UTC()

	args := &queryArgs{}
	query := "UPDATE todos SET title = " + args.add(t.Title) +
		", description = " + args.add(t.Description) +
		", completed = " + args.add(t.Completed) +
		", version = version + 1, updated_at = " + args.add(updatedAt) +
		" WHERE id = " + args.add(t.ID)
	if t.Version > 0 {
		query += " AND version = " + args.add(t.Version)
	}

	res, err := r.db.ExecContext(ctx, query, args.values...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, t.ID); err != nil {
			return err
		}
		return todo_errors.ErrConflict
	}

	stored, err := r.GetByID(ctx, t.ID)
	if err != nil {
		return err
	}
	*t = stored
	return nil
}

func (r *todoRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM todos WHERE id = $1", id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *todoRepository) query(ctx context.Context, query string, args ...interface{}) ([]todo.Todo, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	todos := make([]todo.Todo, 0)
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return todos, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTodo(row rowScanner) (todo.Todo, error) {
	var t todo.Todo
	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&t.Completed,
		&t.Version,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}

func orderClause(sort string) string {
	switch sort {
	case todo.SortTitleAsc:
		return "LOWER(title) ASC, id ASC"
	case todo.SortTitleDesc:
		return "LOWER(title) DESC, id DESC"
	case todo.SortCreatedAsc:
		return "created_at ASC, id ASC"
	default:
		return "created_at DESC, id DESC"
	}
}
