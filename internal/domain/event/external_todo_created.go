package event

import (
	"encoding/json"
	"time"
)

const (
	DefaultSource                = "JSONPlaceholder"
	ExternalTodoCreatedEventType = "ExternalTodoCreated"
)

// ExternalTodoCreatedEvent is raised after a todo is created on the external API.
type ExternalTodoCreatedEvent struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"createdAt"`
	Source        string    `json:"source"`
	EventType     string    `json:"eventType"`
	CorrelationID string    `json:"correlationId"`
}

func NewExternalTodoCreatedEvent(id, title string, createdAt time.Time, correlationID string) ExternalTodoCreatedEvent {
	return ExternalTodoCreatedEvent{
		ID:            id,
		Title:         title,
		CreatedAt:     createdAt.UTC(),
		CorrelationID: correlationID,
	}.WithDefaults()
}

// WithDefaults fills Source and EventType when they are empty.
func (e ExternalTodoCreatedEvent) WithDefaults() ExternalTodoCreatedEvent {
	if e.Source == "" {
		e.Source = DefaultSource
	}
	if e.EventType == "" {
		e.EventType = ExternalTodoCreatedEventType
	}
	return e
}

func (e *ExternalTodoCreatedEvent) UnmarshalJSON(data []byte) error {
	type alias ExternalTodoCreatedEvent
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = ExternalTodoCreatedEvent(raw).WithDefaults()
	return nil
}
