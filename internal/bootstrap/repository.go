package bootstrap

import (
	"context"
	"fmt"

	"itinerary-collab-be/internal/config"
	"itinerary-collab-be/internal/repository/contract"
	"itinerary-collab-be/internal/repository/implementation"
	"itinerary-collab-be/internal/repository/memory"
	"itinerary-collab-be/pkg/database"
)

// NewSnapshotRepository picks the snapshot store named by SNAPSHOT_BACKEND.
// The returned closer releases the backend's connections.
func NewSnapshotRepository(ctx context.Context, cfg *config.Config) (contract.SnapshotRepository, func(), error) {
	noop := func() {}

	switch cfg.Snapshot.Backend {
	case "", "memory":
		return memory.NewSnapshotRepository(cfg.Snapshot.TTL), noop, nil

	case "redis":
		rdb, err := database.NewRedisClient(ctx, cfg.App.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return implementation.NewRedisSnapshotRepository(rdb, cfg.Snapshot.TTL), func() { rdb.Close() }, nil

	case "postgres":
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, false)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		closer := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return implementation.NewSnapshotRepository(db), closer, nil

	case "minio":
		store := cfg.ObjectStore
		client, err := database.NewMinioClient(store.Endpoint, store.AccessKey, store.SecretKey, store.UseSSL)
		if err != nil {
			return nil, nil, fmt.Errorf("minio client: %w", err)
		}
		repo, err := implementation.NewMinioSnapshotRepository(ctx, client, store.Bucket)
		if err != nil {
			return nil, nil, err
		}
		return repo, noop, nil
	}
	return nil, nil, fmt.Errorf("unknown snapshot backend %q", cfg.Snapshot.Backend)
}
