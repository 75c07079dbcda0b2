package repository

import (
	"context"
	"errors"

	"golang-signal-engine/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DecisionRepository stores and reads the append-only decision log.
// Creates are conditional (insert-if-absent) so concurrent runs for the
// same bucket converge to a single row.
type DecisionRepository interface {
	GetLatest(ctx context.Context, symbol string) (*entity.Decision, error)
	// GetLatestByActions returns the newest decision whose action is in
	// the given set.
	GetLatestByActions(ctx context.Context, symbol string, actions []entity.Action) (*entity.Decision, error)
	// CountSince counts decisions with the given actions strictly after
	// sinceBucket.
	CountSince(ctx context.Context, symbol string, sinceBucket int64, actions []entity.Action) (int64, error)
	// Create inserts the decision if no row exists for its
	// (symbol, bucket_ts) key. Returns false when the key already existed.
	Create(ctx context.Context, decision *entity.Decision) (bool, error)
	Exists(ctx context.Context, symbol string, bucketTs int64) (bool, error)
	GetRecent(ctx context.Context, symbol string, limit int) ([]entity.Decision, error)
}

type decisionRepository struct {
	db *gorm.DB
}

func NewDecisionRepository(db *gorm.DB) DecisionRepository {
	return &decisionRepository{db: db}
}

func (r *decisionRepository) GetLatest(ctx context.Context, symbol string) (*entity.Decision, error) {
	var decision entity.Decision
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("bucket_ts DESC").
		First(&decision).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &decision, nil
}

func (r *decisionRepository) GetLatestByActions(ctx context.Context, symbol string, actions []entity.Action) (*entity.Decision, error) {
	var decision entity.Decision
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND action IN (?)", symbol, actions).
		Order("bucket_ts DESC").
		First(&decision).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &decision, nil
}

func (r *decisionRepository) CountSince(ctx context.Context, symbol string, sinceBucket int64, actions []entity.Action) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Decision{}).
		Where("symbol = ? AND bucket_ts > ? AND action IN (?)", symbol, sinceBucket, actions).
		Count(&count).Error
	return count, err
}

func (r *decisionRepository) Create(ctx context.Context, decision *entity.Decision) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "bucket_ts"}},
		DoNothing: true,
	}).Create(decision)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *decisionRepository) Exists(ctx context.Context, symbol string, bucketTs int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Decision{}).
		Where("symbol = ? AND bucket_ts = ?", symbol, bucketTs).
		Count(&count).Error
	return count > 0, err
}

func (r *decisionRepository) GetRecent(ctx context.Context, symbol string, limit int) ([]entity.Decision, error) {
	var decisions []entity.Decision
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("bucket_ts DESC").
		Limit(limit).
		Find(&decisions).Error
	if err != nil {
		return nil, err
	}
	return decisions, nil
}
