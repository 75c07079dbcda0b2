package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang-signal-engine/internal/engine/config"
	"golang-signal-engine/internal/engine/dto"
	"golang-signal-engine/pkg/logger"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Runner drives the scheduled batch runs over the symbol universe. Each
// stage has its own cadence and a reentrancy guard: a tick that arrives
// while the previous one is still running is skipped entirely, bounded
// staleness being preferable to double-processing a bucket.
type Runner struct {
	cfg       *config.Engine
	log       *logger.Logger
	generator SignalGenerator
	engine    DecisionEngine
	evaluator SignalEvaluator
	cron      *cron.Cron

	signalRunning   atomic.Bool
	decisionRunning atomic.Bool
	evalRunning     atomic.Bool
}

// NewRunner creates a new runner. evaluator may be nil when evaluation
// is disabled.
func NewRunner(
	cfg *config.Engine,
	log *logger.Logger,
	generator SignalGenerator,
	engine DecisionEngine,
	evaluator SignalEvaluator,
) *Runner {
	return &Runner{
		cfg:       cfg,
		log:       log,
		generator: generator,
		engine:    engine,
		evaluator: evaluator,
	}
}

// Start registers the cron entries and runs them until ctx is canceled.
func (r *Runner) Start(ctx context.Context) error {
	c := cron.New(cron.WithSeconds())

	if _, err := c.AddFunc(r.cfg.SignalCron, func() { r.RunSignals(ctx) }); err != nil {
		return err
	}
	if _, err := c.AddFunc(r.cfg.DecisionCron, func() { r.RunDecisions(ctx) }); err != nil {
		return err
	}
	if r.evaluator != nil && r.cfg.Evaluator.Enabled {
		if _, err := c.AddFunc(r.cfg.EvalCron, func() { r.RunEvaluations(ctx) }); err != nil {
			return err
		}
	}

	c.Start()
	r.cron = c

	go func() {
		<-ctx.Done()
		stopCtx := c.Stop()
		<-stopCtx.Done()
		r.log.Info("Runner stopped")
	}()
	return nil
}

// RunSignals generates signals for every registered symbol.
func (r *Runner) RunSignals(ctx context.Context) dto.RunSummary {
	return r.runBatch(ctx, "signals", &r.signalRunning, func(ctx context.Context, symbol string) (bool, error) {
		res, err := r.generator.Generate(ctx, symbol)
		if err != nil {
			return false, err
		}
		return res.Emitted, nil
	})
}

// RunDecisions runs the decision engine for every registered symbol.
func (r *Runner) RunDecisions(ctx context.Context) dto.RunSummary {
	return r.runBatch(ctx, "decisions", &r.decisionRunning, func(ctx context.Context, symbol string) (bool, error) {
		res, err := r.engine.Decide(ctx, symbol)
		if err != nil {
			return false, err
		}
		return res.Created, nil
	})
}

// RunEvaluations evaluates recent signals for every registered symbol.
func (r *Runner) RunEvaluations(ctx context.Context) dto.RunSummary {
	return r.runBatch(ctx, "evaluations", &r.evalRunning, func(ctx context.Context, symbol string) (bool, error) {
		n, err := r.evaluator.EvaluateRecent(ctx, symbol)
		if err != nil {
			return false, err
		}
		return n > 0, nil
	})
}

// runBatch processes all symbols with bounded worker-pool concurrency.
// Symbols are independent; one symbol's failure is logged and never
// aborts the batch.
func (r *Runner) runBatch(ctx context.Context, name string, running *atomic.Bool, fn func(ctx context.Context, symbol string) (bool, error)) dto.RunSummary {
	summary := dto.RunSummary{RunID: uuid.NewString()}

	if !running.CompareAndSwap(false, true) {
		r.log.Warn("Previous run still in progress, skipping tick",
			logger.StringField("batch", name))
		return summary
	}
	defer running.Store(false)

	start := time.Now()
	symbols := make(chan string, len(r.cfg.Symbols))
	for _, s := range r.cfg.Symbols {
		symbols <- s
	}
	close(symbols)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		ok      int
		skipped int
		failed  int
	)

	workers := r.cfg.Workers
	if workers > len(r.cfg.Symbols) {
		workers = len(r.cfg.Symbols)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range symbols {
				if ctx.Err() != nil {
					return
				}
				emitted, err := fn(ctx, symbol)
				mu.Lock()
				switch {
				case err != nil:
					failed++
				case emitted:
					ok++
				default:
					skipped++
				}
				mu.Unlock()
				if err != nil {
					r.log.Error("Batch item failed",
						logger.ErrorField(err),
						logger.StringField("batch", name),
						logger.StringField("symbol", symbol),
						logger.StringField("run_id", summary.RunID))
				}
			}
		}()
	}
	wg.Wait()

	summary.OK = ok
	summary.Skipped = skipped
	summary.Failed = failed
	summary.Elapsed = time.Since(start)

	r.log.Info("Batch run finished",
		logger.StringField("batch", name),
		logger.StringField("run_id", summary.RunID),
		logger.IntField("ok", ok),
		logger.IntField("skipped", skipped),
		logger.IntField("failed", failed),
		logger.DurationField("elapsed", summary.Elapsed))
	return summary
}
