package events

import (
	"encoding/json"
	"time"
)

// Envelope wraps an outbox change event on its way to websocket clients.
type Envelope struct {
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// Message is a keyed broker record with string headers.
type Message struct {
	Topic   string            `json:"topic"`
	Key     string            `json:"key"`
	Headers map[string]string `json:"headers,omitempty"`
	Value   json.RawMessage   `json:"value"`
}

// Header names carried on every domain event message.
const (
	HeaderEventType     = "eventType"
	HeaderCorrelationID = "correlationId"
	HeaderSource        = "source"
)
