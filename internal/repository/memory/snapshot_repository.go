package memory

import (
	"context"
	"time"

	"itinerary-collab-be/internal/entity"
	"itinerary-collab-be/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

// SnapshotRepository keeps snapshots in process memory. It is the default
// backend for development and tests; everything is lost on restart.
type SnapshotRepository struct {
	cache *cache.Cache
}

// NewSnapshotRepository keeps entries for ttl after their last save, forever
// when ttl is zero.
func NewSnapshotRepository(ttl time.Duration) contract.SnapshotRepository {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &SnapshotRepository{
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func (r *SnapshotRepository) FindByDocumentId(ctx context.Context, documentId string) (*entity.DocumentSnapshot, error) {
	x, found := r.cache.Get(documentId)
	if !found {
		return nil, nil
	}
	snap := *x.(*entity.DocumentSnapshot)
	return &snap, nil
}

func (r *SnapshotRepository) Save(ctx context.Context, snapshot *entity.DocumentSnapshot) error {
	snap := *snapshot
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now()
	}
	r.cache.Set(snapshot.DocumentId, &snap, cache.DefaultExpiration)
	return nil
}
