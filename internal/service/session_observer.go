package service

import (
	"context"
	"encoding/json"
	"time"

	"itinerary-collab-be/internal/collab"
	"itinerary-collab-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// BatchAcceptedTopic carries one message per accepted batch on the
// in-process bus.
const BatchAcceptedTopic = "document.batch_accepted"

const eventTimeout = 5 * time.Second

// BatchAcceptedMessage is the payload on BatchAcceptedTopic.
type BatchAcceptedMessage struct {
	DocumentID string `json:"document_id"`
	Origin     string `json:"origin"`
	Steps      int    `json:"steps"`
	Version    int    `json:"version"`
}

// SessionObserver fans collab session activity out to the in-process bus and
// the outward event publisher.
type SessionObserver struct {
	bus    message.Publisher
	events DocumentEventPublisher
	logger logger.ILogger
}

var _ collab.Observer = (*SessionObserver)(nil)

func NewSessionObserver(bus message.Publisher, events DocumentEventPublisher, logger logger.ILogger) *SessionObserver {
	return &SessionObserver{bus: bus, events: events, logger: logger}
}

func (o *SessionObserver) SessionOpened(documentID string, version int) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	o.events.PublishSessionOpened(ctx, documentID, version)
}

func (o *SessionObserver) SessionClosed(documentID string, version int) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	o.events.PublishSessionClosed(ctx, documentID, version)
}

func (o *SessionObserver) BatchAccepted(batch collab.Batch) {
	payload, err := json.Marshal(BatchAcceptedMessage{
		DocumentID: batch.DocumentID,
		Origin:     batch.Origin,
		Steps:      len(batch.Steps),
		Version:    batch.Version,
	})
	if err != nil {
		o.logger.Error("OBSERVER", "Failed to marshal batch", map[string]interface{}{"error": err.Error()})
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := o.bus.Publish(BatchAcceptedTopic, msg); err != nil {
		o.logger.Error("OBSERVER", "Failed to publish accepted batch", map[string]interface{}{
			"document_id": batch.DocumentID, "version": batch.Version, "error": err.Error(),
		})
	}
}
