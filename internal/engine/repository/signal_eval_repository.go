package repository

import (
	"context"

	"golang-signal-engine/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SignalEvalRepository stores forward-return evaluations of past signals.
type SignalEvalRepository interface {
	// Upsert writes the evaluation keyed by (symbol, bucket_ts, metric).
	Upsert(ctx context.Context, eval *entity.SignalEval) error
}

type signalEvalRepository struct {
	db *gorm.DB
}

func NewSignalEvalRepository(db *gorm.DB) SignalEvalRepository {
	return &signalEvalRepository{db: db}
}

func (r *signalEvalRepository) Upsert(ctx context.Context, eval *entity.SignalEval) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "bucket_ts"}, {Name: "metric"}},
		DoUpdates: clause.AssignmentColumns([]string{"side", "returns"}),
	}).Create(eval).Error
}
