package events

import "time"

// Event is anything published on the outward event bus.
type Event interface {
	// EventType is the subject suffix, e.g. "DOCUMENT_SESSION_OPENED".
	EventType() string
	Payload() map[string]interface{}
	Timestamp() time.Time
}

const (
	DocumentSessionOpened = "DOCUMENT_SESSION_OPENED"
	DocumentSessionClosed = "DOCUMENT_SESSION_CLOSED"
	ContentGenerated      = "CONTENT_GENERATED"
)

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// NewDocumentEvent builds an event about one document at one version.
func NewDocumentEvent(eventType, documentID string, version int, extra map[string]interface{}) BaseEvent {
	data := map[string]interface{}{
		"document_id": documentID,
		"version":     version,
	}
	for k, v := range extra {
		data[k] = v
	}
	return BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now()}
}
