package repository

import (
	"context"

	"golang-signal-engine/internal/entity"

	"gorm.io/gorm"
)

// FeatureSnapshotRepository reads composite-score snapshots written by
// the upstream aggregator. Exact-bucket semantics: callers match rows by
// aligned bucket_ts and never interpolate.
type FeatureSnapshotRepository interface {
	// GetRecent returns up to count snapshots at or before fromBucket,
	// newest first.
	GetRecent(ctx context.Context, symbol string, fromBucket int64, count int) ([]entity.FeatureSnapshot, error)
}

type featureSnapshotRepository struct {
	db *gorm.DB
}

func NewFeatureSnapshotRepository(db *gorm.DB) FeatureSnapshotRepository {
	return &featureSnapshotRepository{db: db}
}

func (r *featureSnapshotRepository) GetRecent(ctx context.Context, symbol string, fromBucket int64, count int) ([]entity.FeatureSnapshot, error) {
	var snapshots []entity.FeatureSnapshot
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND bucket_ts <= ?", symbol, fromBucket).
		Order("bucket_ts DESC").
		Limit(count).
		Find(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}
