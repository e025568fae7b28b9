package contract

import (
	"context"

	"itinerary-collab-be/internal/entity"
)

// SnapshotRepository stores the latest document state per document id.
// FindByDocumentId returns (nil, nil) when nothing is stored yet.
type SnapshotRepository interface {
	FindByDocumentId(ctx context.Context, documentId string) (*entity.DocumentSnapshot, error)
	Save(ctx context.Context, snapshot *entity.DocumentSnapshot) error
}
