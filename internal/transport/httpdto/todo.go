package httpdto

import (
	"time"

	"todo-system/internal/domain/todo"
)

type TodoResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func NewTodoResponse(t todo.Todo) TodoResponse {
	return TodoResponse{
		ID:          t.ID.String(),
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		Version:     t.Version,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func NewTodoListResponse(items []todo.Todo) []TodoResponse {
	out := make([]TodoResponse, 0, len(items))
	for _, t := range items {
		out = append(out, NewTodoResponse(t))
	}
	return out
}

// CreateTodoRequest is used for POST /todos
type CreateTodoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpdateTodoRequest is used for PUT /todos/:id. ID, when present, must
// match the path.
type UpdateTodoRequest struct {
	ID          string  `json:"id,omitempty"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
	Version     int64   `json:"version,omitempty"`
}

type ListTodosQuery struct {
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
	Filter   string `form:"filter"`
	Sort     string `form:"sort"`
}

type ExternalTodoRequest struct {
	UserID    int    `json:"userId"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

type ExportResponse struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
	Count     int       `json:"count"`
}
