package implementation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"itinerary-collab-be/internal/entity"
	"itinerary-collab-be/internal/mapper"
	"itinerary-collab-be/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

type RedisSnapshotRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mapper *mapper.SnapshotMapper
}

// NewRedisSnapshotRepository stores each snapshot as one JSON value under
// "snapshot:<document id>". A zero ttl keeps values forever.
func NewRedisSnapshotRepository(client *redis.Client, ttl time.Duration) contract.SnapshotRepository {
	return &RedisSnapshotRepository{
		client: client,
		prefix: "snapshot:",
		ttl:    ttl,
		mapper: mapper.NewSnapshotMapper(),
	}
}

func (r *RedisSnapshotRepository) key(documentId string) string {
	return r.prefix + documentId
}

func (r *RedisSnapshotRepository) FindByDocumentId(ctx context.Context, documentId string) (*entity.DocumentSnapshot, error) {
	data, err := r.client.Get(ctx, r.key(documentId)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get snapshot %s: %w", documentId, err)
	}
	return r.mapper.FromJSON(data)
}

func (r *RedisSnapshotRepository) Save(ctx context.Context, snapshot *entity.DocumentSnapshot) error {
	snap := *snapshot
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now()
	}
	data, err := r.mapper.ToJSON(&snap)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(snap.DocumentId), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("set snapshot %s: %w", snap.DocumentId, err)
	}
	return nil
}
