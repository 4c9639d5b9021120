package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the kind of notification carried by an Event.
type EventType string

// Event types.
const (
	EventIngestion EventType = "ingestion"
	EventSearch    EventType = "search"
	EventUpdate    EventType = "update"
	EventDeletion  EventType = "deletion"
)

// IsValid returns true if the event type is recognised.
func (t EventType) IsValid() bool {
	switch t {
	case EventIngestion, EventSearch, EventUpdate, EventDeletion:
		return true
	default:
		return false
	}
}

// Event is the envelope published on the event bus.
type Event struct {
	MessageID   string          `json:"message_id"`
	MessageType EventType       `json:"message_type"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
}

// NewEvent serialises payload into a new envelope.
func NewEvent(id string, t EventType, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{
		MessageID:   id,
		MessageType: t,
		Timestamp:   time.Now().UTC(),
		Payload:     data,
	}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.MessageType, err)
	}
	return nil
}

// DeletionPayload is the payload of deletion events.
type DeletionPayload struct {
	DocumentID string `json:"document_id"`
}

// SearchPayload is the payload of search events.
type SearchPayload struct {
	Query        SearchQuery `json:"query"`
	TotalResults int         `json:"total_results"`
	SearchTimeMs float64     `json:"search_time_ms"`
}

// Topics maps event types to bus topic names.
type Topics struct {
	Ingested string `json:"ingested"`
	Searched string `json:"searched"`
	Updated  string `json:"updated"`
	Deleted  string `json:"deleted"`
}

// DefaultTopics returns the standard topic names.
func DefaultTopics() Topics {
	return Topics{
		Ingested: "rag-document-ingestion",
		Searched: "rag-document-search",
		Updated:  "rag-document-update",
		Deleted:  "rag-document-delete",
	}
}

// For returns the topic an event type is published on.
func (t Topics) For(et EventType) string {
	switch et {
	case EventIngestion:
		return t.Ingested
	case EventSearch:
		return t.Searched
	case EventUpdate:
		return t.Updated
	case EventDeletion:
		return t.Deleted
	default:
		return ""
	}
}

// All returns every topic name.
func (t Topics) All() []string {
	return []string{t.Ingested, t.Searched, t.Updated, t.Deleted}
}

// GroupID returns the default consumer group for a topic.
func GroupID(topic string) string {
	return "rag-engine-" + topic
}
