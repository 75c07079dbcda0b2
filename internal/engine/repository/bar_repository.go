package repository

import (
	"context"
	"errors"

	"golang-signal-engine/internal/entity"

	"gorm.io/gorm"
)

// BarRepository reads raw market bars written by the upstream collector.
type BarRepository interface {
	// GetValue returns the metric value at the exact bucket, reporting
	// found=false when the bucket is absent.
	GetValue(ctx context.Context, symbol, metric string, bucketTs int64) (val float64, found bool, err error)
}

type barRepository struct {
	db *gorm.DB
}

func NewBarRepository(db *gorm.DB) BarRepository {
	return &barRepository{db: db}
}

func (r *barRepository) GetValue(ctx context.Context, symbol, metric string, bucketTs int64) (float64, bool, error) {
	var bar entity.Bar
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND metric = ? AND bucket_ts = ?", symbol, metric, bucketTs).
		First(&bar).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return bar.Val, true, nil
}
