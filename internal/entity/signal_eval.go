package entity

import (
	"time"

	"gorm.io/datatypes"
)

// SignalEval scores one historical signal by its side-adjusted forward
// returns over a set of horizons. One row per (symbol, bucket_ts, metric).
type SignalEval struct {
	ID        int64          `json:"id"`
	Symbol    string         `json:"symbol" gorm:"uniqueIndex:idx_signal_evals_symbol_bucket_metric"`
	BucketTs  int64          `json:"bucket_ts" gorm:"uniqueIndex:idx_signal_evals_symbol_bucket_metric"`
	Metric    string         `json:"metric" gorm:"uniqueIndex:idx_signal_evals_symbol_bucket_metric"`
	Side      string         `json:"side"`
	Returns   datatypes.JSON `json:"returns" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at"`
}

func (SignalEval) TableName() string {
	return "signal_evals"
}
