package service

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"golang-signal-engine/internal/entity"
	"golang-signal-engine/pkg/common"
	"golang-signal-engine/pkg/utils"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

func newTestGenerator(t *testing.T) (*signalGenerator, *fakeFeatureRepo, *fakeSignalRepo, *fakePublisher) {
	t.Helper()
	features := &fakeFeatureRepo{}
	signals := &fakeSignalRepo{}
	publisher := &fakePublisher{}
	gen := NewSignalGenerator(testEngineConfig(), newTestLogger(), features, signals, publisher).(*signalGenerator)
	gen.now = func() time.Time { return testNow }
	return gen, features, signals, publisher
}

// seedSnapshots writes scores oldest to newest into consecutive buckets
// ending at the aligned current bucket.
func seedSnapshots(gen *signalGenerator, features *fakeFeatureRepo, symbol string, scores ...float64) int64 {
	periodMs := gen.cfg.BarPeriod.Milliseconds()
	t0 := utils.AlignBucket(testNow, gen.cfg.BarPeriod)
	for i, s := range scores {
		features.add(symbol, t0-int64(len(scores)-1-i)*periodMs, s)
	}
	return t0
}

func TestSignalGeneratorOpensLongOnCrossUp(t *testing.T) {
	gen, features, signals, publisher := newTestGenerator(t)
	t0 := seedSnapshots(gen, features, "BTCUSDT", 0.2, 0.5, 0.9)

	res, err := gen.Generate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.True(t, res.Emitted)
	require.Equal(t, common.SideLong, res.Side)
	require.Equal(t, common.ReasonEmitted, res.Reason)
	require.Equal(t, t0, res.BucketTs)

	stored, err := signals.GetByBucket(context.Background(), "BTCUSDT", t0)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, common.SideLong, stored.Side)

	var meta entity.SignalMeta
	require.NoError(t, json.Unmarshal(stored.Meta, &meta))
	require.Equal(t, common.TriggerCrossUp, meta.Trigger)
	require.Equal(t, 1, publisher.count(common.RedisStreamSignalChanged))
}

func TestSignalGeneratorOpensShortOnCrossDown(t *testing.T) {
	gen, features, _, _ := newTestGenerator(t)
	seedSnapshots(gen, features, "BTCUSDT", -0.2, -0.5, -0.9)

	res, err := gen.Generate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.True(t, res.Emitted)
	require.Equal(t, common.SideShort, res.Side)
}

func TestSignalGeneratorSustainedRunWithoutCross(t *testing.T) {
	gen, features, signals, _ := newTestGenerator(t)
	t0 := seedSnapshots(gen, features, "BTCUSDT", 0.55, 0.65, 0.75)

	res, err := gen.Generate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.True(t, res.Emitted)
	require.Equal(t, common.SideLong, res.Side)

	stored, err := signals.GetByBucket(context.Background(), "BTCUSDT", t0)
	require.NoError(t, err)
	var meta entity.SignalMeta
	require.NoError(t, json.Unmarshal(stored.Meta, &meta))
	require.Equal(t, common.TriggerSustainUp, meta.Trigger)
}

func TestSignalGeneratorDebouncesSingleSpike(t *testing.T) {
	gen, features, _, _ := newTestGenerator(t)
	seedSnapshots(gen, features, "BTCUSDT", 0.1, 0.1, 0.9)

	res, err := gen.Generate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, common.SideFlat, res.Side)
}

func TestSignalGeneratorSlopeGateVetoesFadingRun(t *testing.T) {
	gen, features, _, _ := newTestGenerator(t)
	seedSnapshots(gen, features, "BTCUSDT", 0.9, 0.8, 0.7)

	res, err := gen.Generate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, common.SideFlat, res.Side)
}

func TestSignalGeneratorDeadbandForcesFlat(t *testing.T) {
	gen, features, _, _ := newTestGenerator(t)
	seedSnapshots(gen, features, "BTCUSDT", 0.01, 0.02, 0.03)

	res, err := gen.Generate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.True(t, res.Emitted)
	require.Equal(t, common.SideFlat, res.Side)
}

func TestSignalGeneratorMissingBars(t *testing.T) {
	gen, _, _, _ := newTestGenerator(t)

	res, err := gen.Generate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.False(t, res.Emitted)
	require.Equal(t, common.ReasonMissingBars, res.Reason)
}

func TestSignalGeneratorMissingPreviousBucket(t *testing.T) {
	gen, features, _, _ := newTestGenerator(t)
	periodMs := gen.cfg.BarPeriod.Milliseconds()
	t0 := utils.AlignBucket(testNow, gen.cfg.BarPeriod)
	features.add("BTCUSDT", t0, 0.9)
	features.add("BTCUSDT", t0-2*periodMs, 0.5)

	res, err := gen.Generate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.False(t, res.Emitted)
	require.Equal(t, common.ReasonMissingBars, res.Reason)
}

func TestSignalGeneratorStaleBucket(t *testing.T) {
	gen, features, _, _ := newTestGenerator(t)
	periodMs := gen.cfg.BarPeriod.Milliseconds()
	t0 := utils.AlignBucket(testNow, gen.cfg.BarPeriod)
	tOld := t0 - 3*periodMs // max_lag_bars is 2
	features.add("BTCUSDT", tOld, 0.9)
	features.add("BTCUSDT", tOld-periodMs, 0.5)

	res, err := gen.Generate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.False(t, res.Emitted)
	require.Equal(t, common.ReasonStaleBucket, res.Reason)
	require.Equal(t, tOld, res.BucketTs)
}

func TestSignalGeneratorAcceptsLaggedBucketWithinBound(t *testing.T) {
	gen, features, _, _ := newTestGenerator(t)
	periodMs := gen.cfg.BarPeriod.Milliseconds()
	t0 := utils.AlignBucket(testNow, gen.cfg.BarPeriod)
	tEval := t0 - 2*periodMs
	features.add("BTCUSDT", tEval, 0.9)
	features.add("BTCUSDT", tEval-periodMs, 0.5)
	features.add("BTCUSDT", tEval-2*periodMs, 0.2)

	res, err := gen.Generate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.True(t, res.Emitted)
	require.Equal(t, tEval, res.BucketTs)
}

func TestSignalGeneratorScoreNaN(t *testing.T) {
	gen, features, _, _ := newTestGenerator(t)
	periodMs := gen.cfg.BarPeriod.Milliseconds()
	t0 := utils.AlignBucket(testNow, gen.cfg.BarPeriod)
	features.add("BTCUSDT", t0, math.NaN())
	features.add("BTCUSDT", t0-periodMs, 0.5)

	res, err := gen.Generate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.False(t, res.Emitted)
	require.Equal(t, common.ReasonScoreNaN, res.Reason)
}

func TestSignalGeneratorElidesUnchangedRewrite(t *testing.T) {
	gen, features, signals, publisher := newTestGenerator(t)
	seedSnapshots(gen, features, "BTCUSDT", 0.2, 0.5, 0.9)

	first, err := gen.Generate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.True(t, first.Emitted)

	second, err := gen.Generate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.False(t, second.Emitted)
	require.Equal(t, common.ReasonUnchanged, second.Reason)

	require.Equal(t, 1, signals.upserts)
	require.Equal(t, 1, publisher.count(common.RedisStreamSignalChanged))
}

func TestSignalGeneratorRewritesOnChangedScore(t *testing.T) {
	gen, features, signals, _ := newTestGenerator(t)
	t0 := seedSnapshots(gen, features, "BTCUSDT", 0.2, 0.5, 0.9)

	_, err := gen.Generate(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	// A restated snapshot for the same bucket changes the smoothed score.
	require.NoError(t, signals.Upsert(context.Background(), &entity.Signal{
		Symbol: "BTCUSDT", BucketTs: t0, Side: common.SideLong, Score: 0.99,
	}))
	signals.upserts = 0

	res, err := gen.Generate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.True(t, res.Emitted)
	require.Equal(t, 1, signals.upserts)
}
