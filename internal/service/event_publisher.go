package service

import (
	"context"

	"itinerary-collab-be/internal/pkg/logger"
	pkgEvents "itinerary-collab-be/pkg/events"
)

// EventBus is the part of pkg/nats.Publisher the services need.
type EventBus interface {
	Publish(ctx context.Context, event pkgEvents.Event) error
}

// DocumentEventPublisher emits document lifecycle events for outside
// consumers (activity feeds, analytics).
type DocumentEventPublisher interface {
	PublishSessionOpened(ctx context.Context, documentID string, version int)
	PublishSessionClosed(ctx context.Context, documentID string, version int)
	PublishContentGenerated(ctx context.Context, documentID string, version, steps int, mode string)
}

// NatsEventPublisher publishes on the bus and only logs failures. With a nil
// bus every call is a no-op.
type NatsEventPublisher struct {
	bus    EventBus
	logger logger.ILogger
}

func NewNatsEventPublisher(bus EventBus, logger logger.ILogger) *NatsEventPublisher {
	return &NatsEventPublisher{bus: bus, logger: logger}
}

func (p *NatsEventPublisher) publish(ctx context.Context, evt pkgEvents.BaseEvent) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, evt); err != nil {
		p.logger.Error("EVENTS", "Failed to publish "+evt.Type+" event", map[string]interface{}{
			"error": err.Error(), "document_id": evt.Data["document_id"],
		})
	}
}

func (p *NatsEventPublisher) PublishSessionOpened(ctx context.Context, documentID string, version int) {
	p.publish(ctx, pkgEvents.NewDocumentEvent(pkgEvents.DocumentSessionOpened, documentID, version, nil))
}

func (p *NatsEventPublisher) PublishSessionClosed(ctx context.Context, documentID string, version int) {
	p.publish(ctx, pkgEvents.NewDocumentEvent(pkgEvents.DocumentSessionClosed, documentID, version, nil))
}

func (p *NatsEventPublisher) PublishContentGenerated(ctx context.Context, documentID string, version, steps int, mode string) {
	p.publish(ctx, pkgEvents.NewDocumentEvent(pkgEvents.ContentGenerated, documentID, version, map[string]interface{}{
		"steps": steps,
		"mode":  mode,
	}))
}
