package mapper

import (
	"encoding/json"
	"fmt"
	"time"

	"itinerary-collab-be/internal/entity"
	"itinerary-collab-be/internal/model"
	"itinerary-collab-be/pkg/document"

	"gorm.io/datatypes"
)

// snapshotRecord is the JSON form used by the key-value and object store
// backends.
type snapshotRecord struct {
	DocumentId string          `json:"document_id"`
	Version    int             `json:"version"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Document   json.RawMessage `json:"document"`
}

type SnapshotMapper struct{}

func NewSnapshotMapper() *SnapshotMapper {
	return &SnapshotMapper{}
}

func (m *SnapshotMapper) ToModel(e *entity.DocumentSnapshot) (*model.DocumentSnapshot, error) {
	content, err := json.Marshal(e.Document)
	if err != nil {
		return nil, fmt.Errorf("marshal document %s: %w", e.DocumentId, err)
	}
	return &model.DocumentSnapshot{
		DocumentId: e.DocumentId,
		Content:    datatypes.JSON(content),
		Version:    e.Version,
		UpdatedAt:  e.UpdatedAt,
	}, nil
}

// ToEntity decodes and validates the stored tree; a stored document that no
// longer passes the grammar is an error, not a silent reset.
func (m *SnapshotMapper) ToEntity(mdl *model.DocumentSnapshot) (*entity.DocumentSnapshot, error) {
	doc, err := document.DecodeDoc(mdl.Content)
	if err != nil {
		return nil, fmt.Errorf("decode document %s: %w", mdl.DocumentId, err)
	}
	return &entity.DocumentSnapshot{
		DocumentId: mdl.DocumentId,
		Document:   doc,
		Version:    mdl.Version,
		UpdatedAt:  mdl.UpdatedAt,
	}, nil
}

func (m *SnapshotMapper) ToJSON(e *entity.DocumentSnapshot) ([]byte, error) {
	content, err := json.Marshal(e.Document)
	if err != nil {
		return nil, fmt.Errorf("marshal document %s: %w", e.DocumentId, err)
	}
	return json.Marshal(snapshotRecord{
		DocumentId: e.DocumentId,
		Version:    e.Version,
		UpdatedAt:  e.UpdatedAt,
		Document:   content,
	})
}

func (m *SnapshotMapper) FromJSON(data []byte) (*entity.DocumentSnapshot, error) {
	var rec snapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	doc, err := document.DecodeDoc(rec.Document)
	if err != nil {
		return nil, fmt.Errorf("decode document %s: %w", rec.DocumentId, err)
	}
	return &entity.DocumentSnapshot{
		DocumentId: rec.DocumentId,
		Document:   doc,
		Version:    rec.Version,
		UpdatedAt:  rec.UpdatedAt,
	}, nil
}
