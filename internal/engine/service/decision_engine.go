package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"golang-signal-engine/internal/engine/config"
	"golang-signal-engine/internal/engine/dto"
	"golang-signal-engine/internal/engine/repository"
	"golang-signal-engine/internal/entity"
	"golang-signal-engine/pkg/common"
	"golang-signal-engine/pkg/logger"
	"golang-signal-engine/pkg/timeseries"
	"golang-signal-engine/pkg/utils"

	"github.com/shopspring/decimal"
)

var (
	entryActions = []entity.Action{
		entity.ActionOpenLong, entity.ActionOpenShort,
		entity.ActionReverseLong, entity.ActionReverseShort,
	}
	// holdingActions reset the min-hold and add-cooldown clocks.
	holdingActions = []entity.Action{
		entity.ActionOpenLong, entity.ActionOpenShort,
		entity.ActionReverseLong, entity.ActionReverseShort,
		entity.ActionAddLong, entity.ActionAddShort,
	}
)

// DecisionEngine converts the latest signal of a symbol into at most one
// position-aware decision per bucket, applying adaptive thresholds,
// cooldowns and anti-whipsaw rules over the append-only decision log.
type DecisionEngine interface {
	Decide(ctx context.Context, symbol string) (*dto.DecisionResult, error)
}

type decisionEngine struct {
	cfg       *config.Engine
	log       *logger.Logger
	signals   repository.SignalRepository
	decisions repository.DecisionRepository
	publisher EventPublisher
	notifier  *DecisionNotifier
	now       func() time.Time
}

// NewDecisionEngine creates a new decision engine. notifier may be nil.
func NewDecisionEngine(
	cfg *config.Engine,
	log *logger.Logger,
	signals repository.SignalRepository,
	decisions repository.DecisionRepository,
	publisher EventPublisher,
	notifier *DecisionNotifier,
) DecisionEngine {
	return &decisionEngine{
		cfg:       cfg,
		log:       log,
		signals:   signals,
		decisions: decisions,
		publisher: publisher,
		notifier:  notifier,
		now:       utils.TimeNow,
	}
}

// finitePtr returns nil for NaN and infinite values; encoding/json
// rejects them.
func finitePtr(v float64) *float64 {
	if !timeseries.Finite(v) {
		return nil
	}
	return &v
}

// deriveSide maps a score to a side with fixed thresholds. Pure and
// monotonic: a higher score never yields a less bullish side.
func deriveSide(score, thUp, thDn float64) string {
	if score >= thUp {
		return common.SideLong
	}
	if score <= thDn {
		return common.SideShort
	}
	return common.SideFlat
}

// triggers holds the per-direction gate evaluation for one bucket.
type triggers struct {
	crossedUp   bool
	crossedDn   bool
	sustainedUp bool
	sustainedDn bool
	slope       float64
	long        bool
	short       bool
}

func (d *decisionEngine) Decide(ctx context.Context, symbol string) (*dto.DecisionResult, error) {
	strat := d.cfg.Resolve(symbol)

	sig, err := d.signals.GetLatest(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest signal for %s: %w", symbol, err)
	}
	if sig == nil {
		return &dto.DecisionResult{Symbol: symbol, Reason: common.ReasonNoSignal}, nil
	}

	result := &dto.DecisionResult{Symbol: symbol, BucketTs: sig.BucketTs}

	// Idempotency short-circuit before any computation.
	exists, err := d.decisions.Exists(ctx, symbol, sig.BucketTs)
	if err != nil {
		return nil, fmt.Errorf("failed to check decision existence for %s: %w", symbol, err)
	}
	if exists {
		result.Reason = common.ReasonRecoExists
		return result, nil
	}

	score := sig.Score
	if !timeseries.Finite(score) {
		result.Reason = common.ReasonScoreNaN
		return result, nil
	}

	// Degrade on a contradictory upstream side rather than write a dirty
	// decision: a LONG signal scoring beyond the short threshold (or the
	// mirror case) means the stored signal cannot be trusted.
	expected := deriveSide(score, strat.ThUp, strat.ThDn)
	if (sig.Side == common.SideLong && expected == common.SideShort) ||
		(sig.Side == common.SideShort && expected == common.SideLong) {
		d.log.Warn("Degrading inconsistent signal",
			logger.StringField("symbol", symbol),
			logger.Int64Field("bucket_ts", sig.BucketTs),
			logger.StringField("side", sig.Side),
			logger.Float64Field("score", score))
		result.Reason = common.ReasonSignalInconsistent
		return result, nil
	}

	window := d.windowSize(strat)
	recent, err := d.signals.GetRecent(ctx, symbol, sig.BucketTs, window)
	if err != nil {
		return nil, fmt.Errorf("failed to load signal window for %s: %w", symbol, err)
	}
	scores := make([]float64, len(recent))
	for i, s := range recent {
		scores[len(recent)-1-i] = s.Score // newest-first to oldest-first
	}

	thUp, thDn, mode := d.resolveThresholds(scores, strat)
	trig := d.computeTriggers(scores, thUp, thDn, strat)

	last, err := d.decisions.GetLatest(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest decision for %s: %w", symbol, err)
	}

	// Global cooldown bounds the action rate regardless of state.
	if last != nil && d.now().Sub(last.CreatedAt) < strat.ActionCooldown {
		result.Reason = common.ReasonCooldown
		return result, nil
	}

	lastPos := entity.PositionFlat
	if last != nil {
		lastPos = entity.PositionAfter(last.Action)
	}

	action, rule, addCount, maxSince, minSince, err := d.decideAction(ctx, symbol, sig, scores, lastPos, last, trig, thUp, thDn, strat)
	if err != nil {
		return nil, err
	}
	if action == "" {
		result.Reason = common.ReasonHold
		return result, nil
	}

	prevScore := math.NaN()
	if len(scores) >= 2 {
		prevScore = scores[len(scores)-2]
	}

	reasons, err := json.Marshal(entity.DecisionReasons{
		LastPos:       lastPos,
		Trigger:       trig.label(),
		Rule:          rule,
		ThresholdMode: mode,
		ThUp:          thUp,
		ThDn:          thDn,
		ThClose:       strat.ThClose,
		Score:         score,
		PrevScore:     finitePtr(prevScore),
		Slope:         finitePtr(trig.slope),
		AddCount:      addCount,
		MaxSinceEntry: finitePtr(maxSince),
		MinSinceEntry: finitePtr(minSince),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decision reasons: %w", err)
	}
	risk, err := json.Marshal(entity.DecisionRisk{
		StopPct:         strat.RiskStopPct,
		MinHoldMinutes:  strat.MinHoldDuration.Minutes(),
		CooldownMinutes: strat.ActionCooldown.Minutes(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decision risk: %w", err)
	}

	decision := &entity.Decision{
		Symbol:   symbol,
		BucketTs: sig.BucketTs,
		Action:   action,
		Score:    score,
		Notional: decimal.NewFromFloat(strat.DefaultNotional),
		Risk:     risk,
		Reasons:  reasons,
	}

	created, err := d.decisions.Create(ctx, decision)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision for %s: %w", symbol, err)
	}
	if !created {
		// Lost a race with a concurrent run; the stored row wins.
		result.Reason = common.ReasonRecoExists
		return result, nil
	}

	if d.publisher != nil {
		event := dto.DecisionEmittedEvent{
			Symbol:   symbol,
			BucketTs: sig.BucketTs,
			Action:   action,
			Score:    score,
			Notional: decision.Notional.String(),
		}
		if err := d.publisher.Publish(ctx, common.RedisStreamDecisionEmitted, event); err != nil {
			d.log.Error("Failed to publish decision.emitted",
				logger.ErrorField(err),
				logger.StringField("symbol", symbol))
		}
	}
	d.notifier.Notify(ctx, decision)

	d.log.Info("Decision emitted",
		logger.StringField("symbol", symbol),
		logger.Int64Field("bucket_ts", sig.BucketTs),
		logger.StringField("action", string(action)),
		logger.StringField("rule", rule),
		logger.Float64Field("score", score))

	result.Created = true
	result.Action = action
	result.Reason = common.ReasonDecided
	result.DecisionID = decision.ID
	return result, nil
}

// decideAction walks the position-state table. An empty action means HOLD.
func (d *decisionEngine) decideAction(
	ctx context.Context,
	symbol string,
	sig *entity.Signal,
	scores []float64,
	lastPos entity.PositionState,
	last *entity.Decision,
	trig triggers,
	thUp, thDn float64,
	strat config.Strategy,
) (action entity.Action, rule string, addCount int, maxSince, minSince float64, err error) {
	maxSince, minSince = math.NaN(), math.NaN()

	switch lastPos {
	case entity.PositionFlat:
		if trig.long {
			return entity.ActionOpenLong, "open_long", 0, maxSince, minSince, nil
		}
		if trig.short {
			return entity.ActionOpenShort, "open_short", 0, maxSince, minSince, nil
		}
		return "", "", 0, maxSince, minSince, nil

	case entity.PositionLong:
		// An opposite trigger flips immediately, bypassing close
		// debounce and min-hold.
		if trig.short {
			return entity.ActionReverseShort, "reverse_short", 0, maxSince, minSince, nil
		}
		closeOk, err := d.closeAllowed(ctx, symbol, scores, strat)
		if err != nil {
			return "", "", 0, maxSince, minSince, err
		}
		if closeOk {
			return entity.ActionClose, "close_neutral", 0, maxSince, minSince, nil
		}
		ok, count, maxS, minS, err := d.addAllowed(ctx, symbol, sig, trig, thUp, thDn, strat, true)
		if err != nil {
			return "", "", 0, maxSince, minSince, err
		}
		if ok {
			return entity.ActionAddLong, "add_long", count, maxS, minS, nil
		}
		return "", "", 0, maxSince, minSince, nil

	case entity.PositionShort:
		if trig.long {
			return entity.ActionReverseLong, "reverse_long", 0, maxSince, minSince, nil
		}
		closeOk, err := d.closeAllowed(ctx, symbol, scores, strat)
		if err != nil {
			return "", "", 0, maxSince, minSince, err
		}
		if closeOk {
			return entity.ActionClose, "close_neutral", 0, maxSince, minSince, nil
		}
		ok, count, maxS, minS, err := d.addAllowed(ctx, symbol, sig, trig, thUp, thDn, strat, false)
		if err != nil {
			return "", "", 0, maxSince, minSince, err
		}
		if ok {
			return entity.ActionAddShort, "add_short", count, maxS, minS, nil
		}
		return "", "", 0, maxSince, minSince, nil
	}

	return "", "", 0, maxSince, minSince, nil
}

// closeAllowed checks the neutral-band persistence and the minimum hold
// duration. Exiting needs weaker evidence than reversing, but not a
// single dip: the band must hold for neutralBars consecutive signals.
func (d *decisionEngine) closeAllowed(ctx context.Context, symbol string, scores []float64, strat config.Strategy) (bool, error) {
	if len(scores) < strat.NeutralBars {
		return false, nil
	}
	for _, s := range scores[len(scores)-strat.NeutralBars:] {
		if !timeseries.Finite(s) || math.Abs(s) > strat.ThClose {
			return false, nil
		}
	}

	held, err := d.decisions.GetLatestByActions(ctx, symbol, holdingActions)
	if err != nil {
		return false, fmt.Errorf("failed to load holding decision for %s: %w", symbol, err)
	}
	if held == nil {
		return false, nil
	}
	return d.now().Sub(held.CreatedAt) >= strat.MinHoldDuration, nil
}

// addAllowed checks the boost gates: margin over the open threshold, a
// new score extreme since entry, favorable slope, add cooldown and the
// per-trade add budget. Counters are recomputed from the decision log,
// never cached.
func (d *decisionEngine) addAllowed(
	ctx context.Context,
	symbol string,
	sig *entity.Signal,
	trig triggers,
	thUp, thDn float64,
	strat config.Strategy,
	long bool,
) (ok bool, addCount int, maxSince, minSince float64, err error) {
	maxSince, minSince = math.NaN(), math.NaN()
	if !strat.Boost.Enabled {
		return false, 0, maxSince, minSince, nil
	}

	if long {
		if sig.Score < thUp+strat.Boost.Margin {
			return false, 0, maxSince, minSince, nil
		}
		if !timeseries.Finite(trig.slope) || trig.slope <= 0 {
			return false, 0, maxSince, minSince, nil
		}
	} else {
		if sig.Score > thDn-strat.Boost.Margin {
			return false, 0, maxSince, minSince, nil
		}
		if !timeseries.Finite(trig.slope) || trig.slope >= 0 {
			return false, 0, maxSince, minSince, nil
		}
	}

	entry, err := d.decisions.GetLatestByActions(ctx, symbol, entryActions)
	if err != nil {
		return false, 0, maxSince, minSince, fmt.Errorf("failed to load entry decision for %s: %w", symbol, err)
	}
	if entry == nil {
		return false, 0, maxSince, minSince, nil
	}

	// Add cooldown runs from the most recent OPEN/REVERSE/ADD, but the
	// extreme runs from the entry bucket so pyramiding only continues a
	// genuinely extending move.
	held, err := d.decisions.GetLatestByActions(ctx, symbol, holdingActions)
	if err != nil {
		return false, 0, maxSince, minSince, fmt.Errorf("failed to load holding decision for %s: %w", symbol, err)
	}
	if held != nil && d.now().Sub(held.CreatedAt) < strat.Boost.Cooldown {
		return false, 0, maxSince, minSince, nil
	}

	addAction := entity.ActionAddLong
	if !long {
		addAction = entity.ActionAddShort
	}
	count, err := d.decisions.CountSince(ctx, symbol, entry.BucketTs, []entity.Action{addAction})
	if err != nil {
		return false, 0, maxSince, minSince, fmt.Errorf("failed to count adds for %s: %w", symbol, err)
	}
	if int(count) >= strat.Boost.MaxAddsPerTrade {
		return false, int(count), maxSince, minSince, nil
	}

	maxSince, minSince, err = d.signals.GetScoreExtremaSince(ctx, symbol, entry.BucketTs-1, sig.BucketTs)
	if err != nil {
		return false, int(count), maxSince, minSince, fmt.Errorf("failed to load score extrema for %s: %w", symbol, err)
	}
	if long {
		if timeseries.Finite(maxSince) && sig.Score < maxSince+strat.Boost.Gap {
			return false, int(count), maxSince, minSince, nil
		}
	} else {
		if timeseries.Finite(minSince) && sig.Score > minSince-strat.Boost.Gap {
			return false, int(count), maxSince, minSince, nil
		}
	}

	return true, int(count), maxSince, minSince, nil
}

// windowSize is the number of recent signal scores every gate needs.
func (d *decisionEngine) windowSize(strat config.Strategy) int {
	w := 2
	for _, m := range []int{strat.Adaptive.Window, strat.ConfirmBars + 1, strat.SlopeBars, strat.NeutralBars} {
		if m > w {
			w = m
		}
	}
	return w
}

// resolveThresholds returns the effective open/reverse thresholds.
// Adaptive estimation falls back to the fixed pair whenever the sample
// is too small or the estimate degenerates.
func (d *decisionEngine) resolveThresholds(scores []float64, strat config.Strategy) (thUp, thDn float64, mode string) {
	thUp, thDn, mode = strat.ThUp, strat.ThDn, "fixed"
	if !strat.Adaptive.Enabled || len(scores) < strat.Adaptive.MinSamples {
		return thUp, thDn, mode
	}

	window := scores
	if len(window) > strat.Adaptive.Window {
		window = window[len(window)-strat.Adaptive.Window:]
	}

	var up, dn float64
	switch strat.Adaptive.Mode {
	case "percentile":
		up = timeseries.Percentile(window, strat.Adaptive.PercentileUp)
		dn = timeseries.Percentile(window, strat.Adaptive.PercentileDown)
		mode = "adaptive_percentile"
	case "zscore":
		mean, std := timeseries.MeanStd(window)
		up = mean + strat.Adaptive.Z*std
		dn = mean - strat.Adaptive.Z*std
		mode = "adaptive_zscore"
	default:
		return thUp, thDn, "fixed"
	}

	if !timeseries.Finite(up) || !timeseries.Finite(dn) || up <= dn {
		return strat.ThUp, strat.ThDn, "fixed"
	}
	return up, dn, mode
}

// computeTriggers evaluates crossing, sustained-run and slope gates per
// direction over the raw signal scores.
func (d *decisionEngine) computeTriggers(scores []float64, thUp, thDn float64, strat config.Strategy) triggers {
	var t triggers
	if len(scores) == 0 {
		return t
	}
	cur := scores[len(scores)-1]
	prev := math.NaN()
	if len(scores) >= 2 {
		prev = scores[len(scores)-2]
	}

	if timeseries.Finite(cur) && timeseries.Finite(prev) {
		t.crossedUp = prev < thUp && cur >= thUp
		t.crossedDn = prev > thDn && cur <= thDn
	}
	t.sustainedUp = allBeyond(scores, strat.ConfirmBars, thUp, true)
	t.sustainedDn = allBeyond(scores, strat.ConfirmBars, thDn, false)
	t.slope = timeseries.Slope(scores, strat.SlopeBars)

	slopeOkLong, slopeOkShort := true, true
	if strat.RequireSlope {
		slopeOkLong = timeseries.Finite(t.slope) && t.slope > 0
		slopeOkShort = timeseries.Finite(t.slope) && t.slope < 0
	}

	t.long = (t.crossedUp || t.sustainedUp) && slopeOkLong
	t.short = (t.crossedDn || t.sustainedDn) && slopeOkShort
	return t
}

// label names the gate that fired, for the reasons payload.
func (t triggers) label() string {
	switch {
	case t.crossedUp:
		return common.TriggerCrossUp
	case t.crossedDn:
		return common.TriggerCrossDown
	case t.sustainedUp:
		return common.TriggerSustainUp
	case t.sustainedDn:
		return common.TriggerSustainDown
	default:
		return common.TriggerNone
	}
}
