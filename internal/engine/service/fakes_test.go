package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"golang-signal-engine/internal/engine/config"
	"golang-signal-engine/internal/entity"
	"golang-signal-engine/pkg/logger"

	"go.uber.org/zap"
)

func newTestLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

func testEngineConfig() *config.Engine {
	return &config.Engine{
		BarPeriod: 5 * time.Minute,
		Symbols:   []string{"BTCUSDT"},
		Workers:   1,
		Strategy: config.Strategy{
			ThUp:            0.6,
			ThDn:            -0.6,
			ThClose:         0.2,
			Deadband:        0.05,
			EmaBars:         3,
			ConfirmBars:     2,
			SlopeBars:       3,
			RequireSlope:    true,
			MaxLagBars:      2,
			ActionCooldown:  30 * time.Minute,
			NeutralBars:     3,
			MinHoldDuration: 15 * time.Minute,
			DefaultNotional: 1000,
			RiskStopPct:     0.02,
		},
	}
}

type fakeFeatureRepo struct {
	mu        sync.Mutex
	snapshots []entity.FeatureSnapshot
}

func (r *fakeFeatureRepo) add(symbol string, bucketTs int64, score float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, entity.FeatureSnapshot{Symbol: symbol, BucketTs: bucketTs, Score: score})
}

func (r *fakeFeatureRepo) GetRecent(_ context.Context, symbol string, fromBucket int64, count int) ([]entity.FeatureSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.FeatureSnapshot
	for _, s := range r.snapshots {
		if s.Symbol == symbol && s.BucketTs <= fromBucket {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketTs > out[j].BucketTs })
	if len(out) > count {
		out = out[:count]
	}
	return out, nil
}

type fakeSignalRepo struct {
	mu      sync.Mutex
	signals []entity.Signal
	upserts int
}

func (r *fakeSignalRepo) add(sig entity.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, sig)
}

func (r *fakeSignalRepo) GetLatest(_ context.Context, symbol string) (*entity.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *entity.Signal
	for i := range r.signals {
		s := &r.signals[i]
		if s.Symbol != symbol {
			continue
		}
		if best == nil || s.BucketTs > best.BucketTs {
			best = s
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (r *fakeSignalRepo) GetByBucket(_ context.Context, symbol string, bucketTs int64) (*entity.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.signals {
		if r.signals[i].Symbol == symbol && r.signals[i].BucketTs == bucketTs {
			cp := r.signals[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeSignalRepo) GetRecent(_ context.Context, symbol string, fromBucket int64, count int) ([]entity.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Signal
	for _, s := range r.signals {
		if s.Symbol == symbol && s.BucketTs <= fromBucket {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketTs > out[j].BucketTs })
	if len(out) > count {
		out = out[:count]
	}
	return out, nil
}

func (r *fakeSignalRepo) Upsert(_ context.Context, signal *entity.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	for i := range r.signals {
		if r.signals[i].Symbol == signal.Symbol && r.signals[i].BucketTs == signal.BucketTs {
			r.signals[i].Side = signal.Side
			r.signals[i].Score = signal.Score
			r.signals[i].Meta = signal.Meta
			return nil
		}
	}
	r.signals = append(r.signals, *signal)
	return nil
}

func (r *fakeSignalRepo) GetScoreExtremaSince(_ context.Context, symbol string, fromBucket, toBucket int64) (float64, float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	max, min := math.NaN(), math.NaN()
	for _, s := range r.signals {
		if s.Symbol != symbol || s.BucketTs <= fromBucket || s.BucketTs >= toBucket {
			continue
		}
		if math.IsNaN(max) || s.Score > max {
			max = s.Score
		}
		if math.IsNaN(min) || s.Score < min {
			min = s.Score
		}
	}
	return max, min, nil
}

type fakeDecisionRepo struct {
	mu        sync.Mutex
	decisions []entity.Decision
	nextID    int64
	clock     func() time.Time
}

func newFakeDecisionRepo(clock func() time.Time) *fakeDecisionRepo {
	return &fakeDecisionRepo{clock: clock}
}

func (r *fakeDecisionRepo) add(dec entity.Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	dec.ID = r.nextID
	r.decisions = append(r.decisions, dec)
}

func (r *fakeDecisionRepo) GetLatest(_ context.Context, symbol string) (*entity.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *entity.Decision
	for i := range r.decisions {
		d := &r.decisions[i]
		if d.Symbol != symbol {
			continue
		}
		if best == nil || d.BucketTs > best.BucketTs {
			best = d
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (r *fakeDecisionRepo) GetLatestByActions(_ context.Context, symbol string, actions []entity.Action) (*entity.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := make(map[entity.Action]bool, len(actions))
	for _, a := range actions {
		set[a] = true
	}
	var best *entity.Decision
	for i := range r.decisions {
		d := &r.decisions[i]
		if d.Symbol != symbol || !set[d.Action] {
			continue
		}
		if best == nil || d.BucketTs > best.BucketTs {
			best = d
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (r *fakeDecisionRepo) CountSince(_ context.Context, symbol string, sinceBucket int64, actions []entity.Action) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := make(map[entity.Action]bool, len(actions))
	for _, a := range actions {
		set[a] = true
	}
	var count int64
	for _, d := range r.decisions {
		if d.Symbol == symbol && d.BucketTs > sinceBucket && set[d.Action] {
			count++
		}
	}
	return count, nil
}

func (r *fakeDecisionRepo) Create(_ context.Context, decision *entity.Decision) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.decisions {
		if d.Symbol == decision.Symbol && d.BucketTs == decision.BucketTs {
			return false, nil
		}
	}
	r.nextID++
	decision.ID = r.nextID
	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = r.clock()
	}
	r.decisions = append(r.decisions, *decision)
	return true, nil
}

func (r *fakeDecisionRepo) Exists(_ context.Context, symbol string, bucketTs int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.decisions {
		if d.Symbol == symbol && d.BucketTs == bucketTs {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeDecisionRepo) GetRecent(_ context.Context, symbol string, limit int) ([]entity.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Decision
	for _, d := range r.decisions {
		if d.Symbol == symbol {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketTs > out[j].BucketTs })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type publishedEvent struct {
	stream  string
	payload interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(_ context.Context, stream string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{stream: stream, payload: payload})
	return nil
}

func (p *fakePublisher) count(stream string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.stream == stream {
			n++
		}
	}
	return n
}

type fakeBarRepo struct {
	values map[string]float64
}

func newFakeBarRepo() *fakeBarRepo {
	return &fakeBarRepo{values: make(map[string]float64)}
}

func (r *fakeBarRepo) set(symbol, metric string, bucketTs int64, val float64) {
	r.values[fmt.Sprintf("%s|%s|%d", symbol, metric, bucketTs)] = val
}

func (r *fakeBarRepo) GetValue(_ context.Context, symbol, metric string, bucketTs int64) (float64, bool, error) {
	v, ok := r.values[fmt.Sprintf("%s|%s|%d", symbol, metric, bucketTs)]
	return v, ok, nil
}

type fakeEvalRepo struct {
	mu    sync.Mutex
	evals []entity.SignalEval
}

func (r *fakeEvalRepo) Upsert(_ context.Context, eval *entity.SignalEval) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.evals {
		if r.evals[i].Symbol == eval.Symbol && r.evals[i].BucketTs == eval.BucketTs && r.evals[i].Metric == eval.Metric {
			r.evals[i].Side = eval.Side
			r.evals[i].Returns = eval.Returns
			return nil
		}
	}
	r.evals = append(r.evals, *eval)
	return nil
}
