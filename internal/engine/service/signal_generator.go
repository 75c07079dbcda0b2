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
)

// scoreEpsilon bounds the score drift below which an unchanged-side
// rewrite is elided.
const scoreEpsilon = 1e-9

// SignalGenerator turns the raw composite-score series of a symbol into
// a smoothed, debounced directional signal, persisted idempotently per
// (symbol, bucket).
type SignalGenerator interface {
	Generate(ctx context.Context, symbol string) (*dto.SignalResult, error)
}

type signalGenerator struct {
	cfg       *config.Engine
	log       *logger.Logger
	features  repository.FeatureSnapshotRepository
	signals   repository.SignalRepository
	publisher EventPublisher
	now       func() time.Time
}

// NewSignalGenerator creates a new signal generator.
func NewSignalGenerator(
	cfg *config.Engine,
	log *logger.Logger,
	features repository.FeatureSnapshotRepository,
	signals repository.SignalRepository,
	publisher EventPublisher,
) SignalGenerator {
	return &signalGenerator{
		cfg:       cfg,
		log:       log,
		features:  features,
		signals:   signals,
		publisher: publisher,
		now:       utils.TimeNow,
	}
}

func (g *signalGenerator) Generate(ctx context.Context, symbol string) (*dto.SignalResult, error) {
	strat := g.cfg.Resolve(symbol)
	period := g.cfg.BarPeriod
	periodMs := period.Milliseconds()

	t0 := utils.AlignBucket(g.now(), period)

	n := strat.EmaBars
	for _, m := range []int{strat.ConfirmBars, strat.SlopeBars, 2} {
		if m > n {
			n = m
		}
	}

	snapshots, err := g.features.GetRecent(ctx, symbol, t0, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load feature snapshots for %s: %w", symbol, err)
	}
	if len(snapshots) == 0 {
		return &dto.SignalResult{Symbol: symbol, BucketTs: t0, Side: common.SideFlat, Reason: common.ReasonMissingBars}, nil
	}

	// Evaluation is anchored at the latest retrievable bucket; the
	// freshness gate bounds how far that anchor may lag behind now.
	tEval := snapshots[0].BucketTs
	if (t0-tEval)/periodMs > int64(strat.MaxLagBars) {
		return &dto.SignalResult{Symbol: symbol, BucketTs: tEval, Side: common.SideFlat, Reason: common.ReasonStaleBucket}, nil
	}

	// Exact-bucket window, oldest to newest. Absent buckets stay NaN.
	byBucket := make(map[int64]float64, len(snapshots))
	for _, s := range snapshots {
		byBucket[s.BucketTs] = s.Score
	}
	raw := make([]float64, n)
	for i := 0; i < n; i++ {
		bucket := tEval - int64(n-1-i)*periodMs
		v, ok := byBucket[bucket]
		if !ok {
			v = math.NaN()
		}
		raw[i] = v
	}

	cur, curOk := byBucket[tEval]
	prev, prevOk := byBucket[tEval-periodMs]
	if !curOk || !prevOk {
		return &dto.SignalResult{Symbol: symbol, BucketTs: tEval, Side: common.SideFlat, Reason: common.ReasonMissingBars}, nil
	}
	if !timeseries.Finite(cur) || !timeseries.Finite(prev) {
		return &dto.SignalResult{Symbol: symbol, BucketTs: tEval, Side: common.SideFlat, Reason: common.ReasonScoreNaN}, nil
	}

	// score0 is the smoothed decision input; score1 stays raw so the
	// smoothing cannot erase the crossing it is meant to confirm.
	score0 := timeseries.EMA(raw, strat.EmaBars)
	score1 := prev
	if !timeseries.Finite(score0) {
		return &dto.SignalResult{Symbol: symbol, BucketTs: tEval, Side: common.SideFlat, Reason: common.ReasonScoreNaN}, nil
	}

	side, trigger := g.classify(raw, score0, score1, strat)

	existing, err := g.signals.GetByBucket(ctx, symbol, tEval)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing signal for %s: %w", symbol, err)
	}
	if existing != nil && existing.Side == side && math.Abs(existing.Score-score0) < scoreEpsilon {
		return &dto.SignalResult{Symbol: symbol, BucketTs: tEval, Side: side, Reason: common.ReasonUnchanged}, nil
	}

	meta, err := json.Marshal(entity.SignalMeta{
		ThUp:        strat.ThUp,
		ThDn:        strat.ThDn,
		Deadband:    strat.Deadband,
		EmaBars:     strat.EmaBars,
		ConfirmBars: strat.ConfirmBars,
		SlopeBars:   strat.SlopeBars,
		Trigger:     trigger,
		RawScore0:   cur,
		RawScore1:   score1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signal meta: %w", err)
	}

	signal := &entity.Signal{
		Symbol:   symbol,
		BucketTs: tEval,
		Side:     side,
		Score:    score0,
		Meta:     meta,
	}
	if err := g.signals.Upsert(ctx, signal); err != nil {
		return nil, fmt.Errorf("failed to upsert signal for %s: %w", symbol, err)
	}

	if g.publisher != nil {
		event := dto.SignalChangedEvent{Symbol: symbol, BucketTs: tEval, Side: side, Score: score0}
		if err := g.publisher.Publish(ctx, common.RedisStreamSignalChanged, event); err != nil {
			g.log.Error("Failed to publish signal.changed",
				logger.ErrorField(err),
				logger.StringField("symbol", symbol))
		}
	}

	g.log.Info("Signal emitted",
		logger.StringField("symbol", symbol),
		logger.Int64Field("bucket_ts", tEval),
		logger.StringField("side", side),
		logger.Float64Field("score", score0),
		logger.StringField("trigger", trigger))

	return &dto.SignalResult{Symbol: symbol, BucketTs: tEval, Emitted: true, Side: side, Reason: common.ReasonEmitted}, nil
}

// classify applies deadband, crossing, confirmation and slope gates to
// derive the signal side. raw is oldest to newest and ends at the
// evaluation bucket.
func (g *signalGenerator) classify(raw []float64, score0, score1 float64, strat config.Strategy) (string, string) {
	if math.Abs(score0) < strat.Deadband {
		return common.SideFlat, common.TriggerNone
	}

	crossedUp := score1 < strat.ThUp && score0 >= strat.ThUp
	crossedDn := score1 > strat.ThDn && score0 <= strat.ThDn
	confirmedUp := allBeyond(raw, strat.ConfirmBars, strat.ThUp, true)
	confirmedDn := allBeyond(raw, strat.ConfirmBars, strat.ThDn, false)

	slopeOkLong, slopeOkShort := true, true
	if strat.RequireSlope {
		diff := timeseries.FirstDiffSum(raw, strat.SlopeBars)
		slopeOkLong = timeseries.Finite(diff) && diff > 0
		slopeOkShort = timeseries.Finite(diff) && diff < 0
	}

	switch {
	case (crossedUp || confirmedUp) && slopeOkLong:
		if crossedUp {
			return common.SideLong, common.TriggerCrossUp
		}
		return common.SideLong, common.TriggerSustainUp
	case (crossedDn || confirmedDn) && slopeOkShort:
		if crossedDn {
			return common.SideShort, common.TriggerCrossDown
		}
		return common.SideShort, common.TriggerSustainDown
	default:
		return common.SideFlat, common.TriggerNone
	}
}

// allBeyond reports whether the last n samples all sit at or beyond the
// threshold. NaN samples fail the run.
func allBeyond(values []float64, n int, threshold float64, above bool) bool {
	if n <= 0 || len(values) < n {
		return false
	}
	for _, v := range values[len(values)-n:] {
		if !timeseries.Finite(v) {
			return false
		}
		if above && v < threshold {
			return false
		}
		if !above && v > threshold {
			return false
		}
	}
	return true
}
