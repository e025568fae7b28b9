package implementation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"itinerary-collab-be/internal/entity"
	"itinerary-collab-be/internal/mapper"
	"itinerary-collab-be/internal/repository/contract"

	"github.com/minio/minio-go/v7"
)

type MinioSnapshotRepository struct {
	client *minio.Client
	bucket string
	mapper *mapper.SnapshotMapper
}

// NewMinioSnapshotRepository stores snapshots as JSON objects
// "snapshots/<document id>.json" in bucket, creating the bucket if needed.
func NewMinioSnapshotRepository(ctx context.Context, client *minio.Client, bucket string) (contract.SnapshotRepository, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return &MinioSnapshotRepository{
		client: client,
		bucket: bucket,
		mapper: mapper.NewSnapshotMapper(),
	}, nil
}

func (r *MinioSnapshotRepository) object(documentId string) string {
	return "snapshots/" + documentId + ".json"
}

func (r *MinioSnapshotRepository) FindByDocumentId(ctx context.Context, documentId string) (*entity.DocumentSnapshot, error) {
	obj, err := r.client.GetObject(ctx, r.bucket, r.object(documentId), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", documentId, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot %s: %w", documentId, err)
	}
	return r.mapper.FromJSON(data)
}

func (r *MinioSnapshotRepository) Save(ctx context.Context, snapshot *entity.DocumentSnapshot) error {
	snap := *snapshot
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now()
	}
	data, err := r.mapper.ToJSON(&snap)
	if err != nil {
		return err
	}
	_, err = r.client.PutObject(ctx, r.bucket, r.object(snap.DocumentId), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", snap.DocumentId, err)
	}
	return nil
}
