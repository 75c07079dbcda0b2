package entity

import (
	"time"

	"gorm.io/datatypes"
)

// FeatureSnapshot is one composite-score observation for a symbol at an
// aligned time bucket. Written by the upstream feature aggregator; this
// service only reads it.
type FeatureSnapshot struct {
	ID         int64          `json:"id"`
	Symbol     string         `json:"symbol" gorm:"uniqueIndex:idx_feature_snapshots_symbol_bucket"`
	BucketTs   int64          `json:"bucket_ts" gorm:"uniqueIndex:idx_feature_snapshots_symbol_bucket"`
	Score      float64        `json:"score"`
	Components datatypes.JSON `json:"components" gorm:"type:jsonb"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (FeatureSnapshot) TableName() string {
	return "feature_snapshots"
}
