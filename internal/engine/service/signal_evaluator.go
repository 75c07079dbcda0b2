package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang-signal-engine/internal/engine/config"
	"golang-signal-engine/internal/engine/repository"
	"golang-signal-engine/internal/entity"
	"golang-signal-engine/pkg/common"
	"golang-signal-engine/pkg/logger"
	"golang-signal-engine/pkg/timeseries"
	"golang-signal-engine/pkg/utils"
)

// SignalEvaluator scores past signals by their side-adjusted forward
// returns over a set of horizons, using the price bars written by the
// collector. Results are upserted so re-runs refine rather than
// duplicate.
type SignalEvaluator interface {
	EvaluateRecent(ctx context.Context, symbol string) (int, error)
}

type signalEvaluator struct {
	cfg     *config.Engine
	log     *logger.Logger
	signals repository.SignalRepository
	bars    repository.BarRepository
	evals   repository.SignalEvalRepository
	now     func() time.Time
}

// NewSignalEvaluator creates a new signal evaluator.
func NewSignalEvaluator(
	cfg *config.Engine,
	log *logger.Logger,
	signals repository.SignalRepository,
	bars repository.BarRepository,
	evals repository.SignalEvalRepository,
) SignalEvaluator {
	return &signalEvaluator{
		cfg:     cfg,
		log:     log,
		signals: signals,
		bars:    bars,
		evals:   evals,
		now:     utils.TimeNow,
	}
}

func (e *signalEvaluator) EvaluateRecent(ctx context.Context, symbol string) (int, error) {
	ev := e.cfg.Evaluator
	periodMs := e.cfg.BarPeriod.Milliseconds()
	t0 := utils.AlignBucket(e.now(), e.cfg.BarPeriod)

	signals, err := e.signals.GetRecent(ctx, symbol, t0, ev.Lookback)
	if err != nil {
		return 0, fmt.Errorf("failed to load signals for %s: %w", symbol, err)
	}

	written := 0
	for _, sig := range signals {
		returns, err := e.forwardReturns(ctx, symbol, sig.BucketTs, sig.Side, periodMs)
		if err != nil {
			return written, err
		}
		if len(returns) == 0 {
			continue
		}

		payload, err := json.Marshal(returns)
		if err != nil {
			return written, fmt.Errorf("failed to marshal returns: %w", err)
		}
		eval := &entity.SignalEval{
			Symbol:   symbol,
			BucketTs: sig.BucketTs,
			Metric:   ev.PriceMetric,
			Side:     sig.Side,
			Returns:  payload,
		}
		if err := e.evals.Upsert(ctx, eval); err != nil {
			return written, fmt.Errorf("failed to upsert signal eval for %s: %w", symbol, err)
		}
		written++
	}

	e.log.Debug("Signals evaluated",
		logger.StringField("symbol", symbol),
		logger.IntField("written", written))
	return written, nil
}

// forwardReturns computes side-adjusted returns at each configured
// horizon. Horizons whose future bar is not yet available are skipped.
func (e *signalEvaluator) forwardReturns(ctx context.Context, symbol string, bucketTs int64, side string, periodMs int64) (map[string]float64, error) {
	entry, found, err := e.bars.GetValue(ctx, symbol, e.cfg.Evaluator.PriceMetric, bucketTs)
	if err != nil {
		return nil, fmt.Errorf("failed to load entry bar for %s: %w", symbol, err)
	}
	if !found || !timeseries.Finite(entry) || entry == 0 {
		return nil, nil
	}

	returns := make(map[string]float64)
	for _, h := range e.cfg.Evaluator.Horizons {
		fut, found, err := e.bars.GetValue(ctx, symbol, e.cfg.Evaluator.PriceMetric, bucketTs+int64(h)*periodMs)
		if err != nil {
			return nil, fmt.Errorf("failed to load future bar for %s: %w", symbol, err)
		}
		if !found || !timeseries.Finite(fut) {
			continue
		}

		var ret float64
		switch side {
		case common.SideLong:
			ret = (fut - entry) / entry
		case common.SideShort:
			ret = (entry - fut) / entry
		default:
			ret = 0
		}
		returns[fmt.Sprintf("ret_%db", h)] = ret
	}
	return returns, nil
}
