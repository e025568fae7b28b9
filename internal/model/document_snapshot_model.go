package model

import (
	"time"

	"gorm.io/datatypes"
)

type DocumentSnapshot struct {
	DocumentId string         `gorm:"type:varchar(128);primaryKey"`
	Content    datatypes.JSON `gorm:"type:jsonb;not null"`
	Version    int            `gorm:"not null;default:0"`
	CreatedAt  time.Time      `gorm:"autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime"`
}

func (DocumentSnapshot) TableName() string {
	return "document_snapshots"
}
