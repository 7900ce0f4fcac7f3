package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
)

// Payload keys shared by publishers and consumers
const (
	PayloadFromStatus   = "from_status"
	PayloadToStatus     = "to_status"
	PayloadAttachmentID = "attachment_id"
	PayloadNote         = "note"
)

// Event represents a domain event
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	RecordKind    entity.Kind            `json:"record_kind"`
	RecordID      string                 `json:"record_id"`
	ActorID       string                 `json:"actor_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with auto-generated ID and timestamp
func NewEvent(eventType Type, kind entity.Kind, recordID, actorID string, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, kind, recordID, actorID, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, kind entity.Kind, recordID, actorID string, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		RecordKind:    kind,
		RecordID:      recordID,
		ActorID:       actorID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	clone := *e
	clone.Payload = newPayload
	return &clone
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case string:
			return v
		case entity.Status:
			return string(v)
		}
	}
	return ""
}
