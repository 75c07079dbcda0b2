package entity

import (
	"time"

	"gorm.io/datatypes"
)

// Signal is the smoothed, debounced directional signal for one symbol at
// one aligned bucket. At most one row per (symbol, bucket_ts); rewrites
// with an identical (side, score) pair are elided by the generator.
type Signal struct {
	ID        int64          `json:"id"`
	Symbol    string         `json:"symbol" gorm:"uniqueIndex:idx_signals_symbol_bucket"`
	BucketTs  int64          `json:"bucket_ts" gorm:"uniqueIndex:idx_signals_symbol_bucket"`
	Side      string         `json:"side"`
	Score     float64        `json:"score"`
	Meta      datatypes.JSON `json:"meta" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Signal) TableName() string {
	return "signals"
}

// SignalMeta is the audit payload stored with each signal: the thresholds
// and window sizes in force and which gate fired.
type SignalMeta struct {
	ThUp        float64 `json:"th_up"`
	ThDn        float64 `json:"th_dn"`
	Deadband    float64 `json:"deadband"`
	EmaBars     int     `json:"ema_bars"`
	ConfirmBars int     `json:"confirm_bars"`
	SlopeBars   int     `json:"slope_bars"`
	Trigger     string  `json:"trigger"`
	RawScore0   float64 `json:"raw_score0"`
	RawScore1   float64 `json:"raw_score1"`
}
