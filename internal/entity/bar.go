package entity

import "time"

// Bar is one raw market metric observation (e.g. last price) at an
// aligned bucket, written by the upstream collector. The signal
// evaluator reads price bars to score past signals.
type Bar struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol" gorm:"uniqueIndex:idx_bars_symbol_metric_bucket"`
	Metric    string    `json:"metric" gorm:"uniqueIndex:idx_bars_symbol_metric_bucket"`
	BucketTs  int64     `json:"bucket_ts" gorm:"uniqueIndex:idx_bars_symbol_metric_bucket"`
	Val       float64   `json:"val"`
	CreatedAt time.Time `json:"created_at"`
}

func (Bar) TableName() string {
	return "bars"
}
