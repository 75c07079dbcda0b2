package repository

import (
	"context"
	"errors"
	"math"

	"golang-signal-engine/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SignalRepository stores and reads the debounced directional signals.
type SignalRepository interface {
	GetLatest(ctx context.Context, symbol string) (*entity.Signal, error)
	GetByBucket(ctx context.Context, symbol string, bucketTs int64) (*entity.Signal, error)
	// GetRecent returns up to count signals at or before fromBucket,
	// newest first.
	GetRecent(ctx context.Context, symbol string, fromBucket int64, count int) ([]entity.Signal, error)
	// Upsert writes the signal keyed by (symbol, bucket_ts), replacing
	// side/score/meta on conflict.
	Upsert(ctx context.Context, signal *entity.Signal) error
	// GetScoreExtremaSince returns the max and min stored score in the
	// half-open bucket range (fromBucket, toBucket). NaN when empty.
	GetScoreExtremaSince(ctx context.Context, symbol string, fromBucket, toBucket int64) (max, min float64, err error)
}

type signalRepository struct {
	db *gorm.DB
}

func NewSignalRepository(db *gorm.DB) SignalRepository {
	return &signalRepository{db: db}
}

func (r *signalRepository) GetLatest(ctx context.Context, symbol string) (*entity.Signal, error) {
	var signal entity.Signal
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("bucket_ts DESC").
		First(&signal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &signal, nil
}

func (r *signalRepository) GetByBucket(ctx context.Context, symbol string, bucketTs int64) (*entity.Signal, error) {
	var signal entity.Signal
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND bucket_ts = ?", symbol, bucketTs).
		First(&signal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &signal, nil
}

func (r *signalRepository) GetRecent(ctx context.Context, symbol string, fromBucket int64, count int) ([]entity.Signal, error) {
	var signals []entity.Signal
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND bucket_ts <= ?", symbol, fromBucket).
		Order("bucket_ts DESC").
		Limit(count).
		Find(&signals).Error
	if err != nil {
		return nil, err
	}
	return signals, nil
}

func (r *signalRepository) Upsert(ctx context.Context, signal *entity.Signal) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "bucket_ts"}},
		DoUpdates: clause.AssignmentColumns([]string{"side", "score", "meta", "updated_at"}),
	}).Create(signal).Error
}

func (r *signalRepository) GetScoreExtremaSince(ctx context.Context, symbol string, fromBucket, toBucket int64) (float64, float64, error) {
	var row struct {
		Max *float64
		Min *float64
	}
	err := r.db.WithContext(ctx).
		Model(&entity.Signal{}).
		Select("MAX(score) AS max, MIN(score) AS min").
		Where("symbol = ? AND bucket_ts > ? AND bucket_ts < ?", symbol, fromBucket, toBucket).
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	if row.Max == nil || row.Min == nil {
		return math.NaN(), math.NaN(), nil
	}
	return *row.Max, *row.Min, nil
}
