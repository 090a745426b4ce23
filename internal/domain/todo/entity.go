package todo

import (
	"time"

	"github.com/google/uuid"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
)

// Todo represents the todos table
type Todo struct {
	ID          uuid.UUID
	Title       string
	Description string
	Completed   bool
	Version     int64 // bumped on every update, used for optimistic concurrency
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Sort orders accepted by list queries.
const (
	SortCreatedAsc  = "createdAt"
	SortCreatedDesc = "-createdAt"
	SortTitleAsc    = "title"
	SortTitleDesc   = "-title"
)

// ListParams filters and pages a todo listing.
type ListParams struct {
	Page     int
	PageSize int
	Filter   string
	Sort     string
}

// Page is one slice of a listing plus the total row count.
type Page struct {
	Items      []Todo
	Page       int
	PageSize   int
	TotalCount int
}

func (p Page) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return (p.TotalCount + p.PageSize - 1) / p.PageSize
}

// Change event types written to the outbox.
const (
	EventCreated = "todo.created"
	EventUpdated = "todo.updated"
	EventDeleted = "todo.deleted"
)
