package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Action is a persisted trade decision type. HOLD is a computed outcome
// and never appears in the decision log.
type Action string

const (
	ActionOpenLong     Action = "OPEN_LONG"
	ActionOpenShort    Action = "OPEN_SHORT"
	ActionReverseLong  Action = "REVERSE_LONG"
	ActionReverseShort Action = "REVERSE_SHORT"
	ActionAddLong      Action = "ADD_LONG"
	ActionAddShort     Action = "ADD_SHORT"
	ActionClose        Action = "CLOSE"
)

// PositionState is the logical position for a symbol, derived from the
// latest decision. It is a projection over the append-only log, never a
// stored entity.
type PositionState string

const (
	PositionFlat  PositionState = "FLAT"
	PositionLong  PositionState = "LONG"
	PositionShort PositionState = "SHORT"
)

// Decision is one trade recommendation. Append-only: created once per
// (symbol, bucket_ts), never mutated.
type Decision struct {
	ID        int64           `json:"id"`
	Symbol    string          `json:"symbol" gorm:"uniqueIndex:idx_decisions_symbol_bucket"`
	BucketTs  int64           `json:"bucket_ts" gorm:"uniqueIndex:idx_decisions_symbol_bucket"`
	Action    Action          `json:"action"`
	Score     float64         `json:"score"`
	Notional  decimal.Decimal `json:"notional" gorm:"type:numeric(20,8)"`
	Risk      datatypes.JSON  `json:"risk" gorm:"type:jsonb"`
	Reasons   datatypes.JSON  `json:"reasons" gorm:"type:jsonb"`
	CreatedAt time.Time       `json:"created_at"`
}

func (Decision) TableName() string {
	return "decisions"
}

// PositionAfter returns the position a decision leaves the symbol in.
func PositionAfter(a Action) PositionState {
	switch a {
	case ActionOpenLong, ActionReverseLong, ActionAddLong:
		return PositionLong
	case ActionOpenShort, ActionReverseShort, ActionAddShort:
		return PositionShort
	case ActionClose:
		return PositionFlat
	default:
		return PositionFlat
	}
}

// IsEntry reports whether the action starts or flips a position. Entries
// reset the since-entry bookkeeping (add counts, score extrema).
func (a Action) IsEntry() bool {
	switch a {
	case ActionOpenLong, ActionOpenShort, ActionReverseLong, ActionReverseShort:
		return true
	}
	return false
}

// IsAdd reports whether the action scales an already-open position.
func (a Action) IsAdd() bool {
	return a == ActionAddLong || a == ActionAddShort
}

// DecisionReasons is the explainability payload stored with each
// decision: the position before the decision, the thresholds actually
// used and which rule fired.
type DecisionReasons struct {
	LastPos       PositionState `json:"last_pos"`
	Trigger       string        `json:"trigger"`
	Rule          string        `json:"rule"`
	ThresholdMode string        `json:"threshold_mode"`
	ThUp          float64       `json:"th_up"`
	ThDn          float64       `json:"th_dn"`
	ThClose       float64       `json:"th_close"`
	Score         float64       `json:"score"`
	PrevScore     *float64      `json:"prev_score,omitempty"`
	Slope         *float64      `json:"slope,omitempty"`
	AddCount      int           `json:"add_count,omitempty"`
	MaxSinceEntry *float64      `json:"max_since_entry,omitempty"`
	MinSinceEntry *float64      `json:"min_since_entry,omitempty"`
}

// DecisionRisk is the sizing payload handed to the downstream order
// builder.
type DecisionRisk struct {
	StopPct         float64 `json:"stop_pct"`
	MinHoldMinutes  float64 `json:"min_hold_minutes"`
	CooldownMinutes float64 `json:"cooldown_minutes"`
}
