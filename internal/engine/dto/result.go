package dto

import (
	"time"

	"golang-signal-engine/internal/entity"
)

// SignalResult is the outcome of one signal generation cycle. Expected
// non-events (stale data, unchanged output) come back as a Reason, not
// an error.
type SignalResult struct {
	Symbol   string `json:"symbol"`
	BucketTs int64  `json:"bucket_ts"`
	Emitted  bool   `json:"emitted"`
	Side     string `json:"side"`
	Reason   string `json:"reason"`
}

// DecisionResult is the outcome of one decision cycle. Action is empty
// for every non-decided outcome (hold, cooldown, reco_exists, ...).
type DecisionResult struct {
	Symbol     string        `json:"symbol"`
	BucketTs   int64         `json:"bucket_ts"`
	Created    bool          `json:"created"`
	Action     entity.Action `json:"action,omitempty"`
	Reason     string        `json:"reason"`
	DecisionID int64         `json:"decision_id,omitempty"`
}

// RunSummary aggregates one batch run over the symbol universe.
type RunSummary struct {
	RunID   string        `json:"run_id"`
	OK      int           `json:"ok"`
	Skipped int           `json:"skipped"`
	Failed  int           `json:"failed"`
	Elapsed time.Duration `json:"elapsed"`
}

// SignalChangedEvent is published to the signal stream whenever a signal
// write was not elided.
type SignalChangedEvent struct {
	Symbol   string  `json:"symbol"`
	BucketTs int64   `json:"bucket_ts"`
	Side     string  `json:"side"`
	Score    float64 `json:"score"`
}

// DecisionEmittedEvent is published to the decision stream for the
// downstream order builder.
type DecisionEmittedEvent struct {
	Symbol   string        `json:"symbol"`
	BucketTs int64         `json:"bucket_ts"`
	Action   entity.Action `json:"action"`
	Score    float64       `json:"score"`
	Notional string        `json:"notional"`
}

// PositionResponse is the derived position state exposed over HTTP.
type PositionResponse struct {
	Symbol     string               `json:"symbol"`
	State      entity.PositionState `json:"state"`
	LastAction entity.Action        `json:"last_action,omitempty"`
	BucketTs   int64                `json:"bucket_ts,omitempty"`
}

// ErrorResponse is the HTTP error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
