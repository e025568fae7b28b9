package implementation

import (
	"context"
	"errors"

	"itinerary-collab-be/internal/entity"
	"itinerary-collab-be/internal/mapper"
	"itinerary-collab-be/internal/model"
	"itinerary-collab-be/internal/repository/contract"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SnapshotRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.SnapshotMapper
}

func NewSnapshotRepository(db *gorm.DB) contract.SnapshotRepository {
	return &SnapshotRepositoryImpl{
		db:     db,
		mapper: mapper.NewSnapshotMapper(),
	}
}

func (r *SnapshotRepositoryImpl) FindByDocumentId(ctx context.Context, documentId string) (*entity.DocumentSnapshot, error) {
	var m model.DocumentSnapshot
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentId).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m)
}

// Save upserts the snapshot. An older version never overwrites a newer one.
func (r *SnapshotRepositoryImpl) Save(ctx context.Context, snapshot *entity.DocumentSnapshot) error {
	m, err := r.mapper.ToModel(snapshot)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "version", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "document_snapshots.version <= EXCLUDED.version"},
		}},
	}).Create(m).Error
}
