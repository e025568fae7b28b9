package service

import (
	"context"
	"encoding/json"

	"itinerary-collab-be/internal/collab"
	"itinerary-collab-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// checkpointer is the part of collab.Registry the consumer needs.
type checkpointer interface {
	Checkpoint(ctx context.Context, documentID string) (int, bool, error)
}

// snapshotConsumer checkpoints open documents every `every` versions. The
// final save on close is done by the registry itself.
type snapshotConsumer struct {
	subscriber message.Subscriber
	sessions   checkpointer
	every      int
	logger     logger.ILogger
}

var _ checkpointer = (*collab.Registry)(nil)

func NewSnapshotConsumer(subscriber message.Subscriber, sessions checkpointer, every int, logger logger.ILogger) IConsumerService {
	return &snapshotConsumer{
		subscriber: subscriber,
		sessions:   sessions,
		every:      every,
		logger:     logger,
	}
}

// Consume subscribes and processes messages in the background until ctx ends.
func (cs *snapshotConsumer) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, BatchAcceptedTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()
	return nil
}

// crossedCheckpoint reports whether a batch ending at version moved the
// document past a multiple of every.
func crossedCheckpoint(version, steps, every int) bool {
	if every <= 0 {
		return false
	}
	return version/every > (version-steps)/every
}

func (cs *snapshotConsumer) processMessage(ctx context.Context, msg *message.Message) {
	var payload BatchAcceptedMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("CONSUMER", "Failed to unmarshal message", map[string]interface{}{"error": err.Error()})
		msg.Ack() // never retry garbage
		return
	}

	if !crossedCheckpoint(payload.Version, payload.Steps, cs.every) {
		msg.Ack()
		return
	}

	version, saved, err := cs.sessions.Checkpoint(ctx, payload.DocumentID)
	if err != nil {
		// the next checkpoint or the close will save it
		cs.logger.Error("CONSUMER", "Checkpoint failed", map[string]interface{}{
			"document_id": payload.DocumentID, "version": payload.Version, "error": err.Error(),
		})
		msg.Ack()
		return
	}
	if saved {
		cs.logger.Info("CONSUMER", "Checkpoint saved", map[string]interface{}{
			"document_id": payload.DocumentID, "version": version,
		})
	}
	msg.Ack()
}
