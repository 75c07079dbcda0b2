package config

import (
	"fmt"
	"time"

	"golang-signal-engine/pkg/config"
	"golang-signal-engine/pkg/timeseries"
)

// Adaptive holds the adaptive threshold estimation settings.
type Adaptive struct {
	Enabled        bool    `mapstructure:"enabled"`
	Window         int     `mapstructure:"window"`
	MinSamples     int     `mapstructure:"min_samples"`
	Mode           string  `mapstructure:"mode"` // "percentile" or "zscore"
	Z              float64 `mapstructure:"z"`
	PercentileUp   float64 `mapstructure:"percentile_up"`
	PercentileDown float64 `mapstructure:"percentile_down"`
}

// Boost holds the position-scaling (ADD_*) settings.
type Boost struct {
	Enabled         bool          `mapstructure:"enabled"`
	Margin          float64       `mapstructure:"margin"`
	Gap             float64       `mapstructure:"gap"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
	MaxAddsPerTrade int           `mapstructure:"max_adds_per_trade"`
}

// Strategy is the per-symbol tunable surface of both engine stages.
type Strategy struct {
	ThUp            float64       `mapstructure:"th_up"`
	ThDn            float64       `mapstructure:"th_dn"`
	ThClose         float64       `mapstructure:"th_close"`
	Deadband        float64       `mapstructure:"deadband"`
	EmaBars         int           `mapstructure:"ema_bars"`
	ConfirmBars     int           `mapstructure:"confirm_bars"`
	SlopeBars       int           `mapstructure:"slope_bars"`
	RequireSlope    bool          `mapstructure:"require_slope"`
	MaxLagBars      int           `mapstructure:"max_lag_bars"`
	Adaptive        Adaptive      `mapstructure:"adaptive"`
	ActionCooldown  time.Duration `mapstructure:"action_cooldown"`
	NeutralBars     int           `mapstructure:"neutral_bars"`
	MinHoldDuration time.Duration `mapstructure:"min_hold_duration"`
	Boost           Boost         `mapstructure:"boost"`
	DefaultNotional float64       `mapstructure:"default_notional"`
	RiskStopPct     float64       `mapstructure:"risk_stop_pct"`
}

// StrategyOverride is a typed partial override of Strategy, merged per
// symbol at resolution time. Nil fields inherit the base value.
type StrategyOverride struct {
	ThUp            *float64       `mapstructure:"th_up"`
	ThDn            *float64       `mapstructure:"th_dn"`
	ThClose         *float64       `mapstructure:"th_close"`
	Deadband        *float64       `mapstructure:"deadband"`
	EmaBars         *int           `mapstructure:"ema_bars"`
	ConfirmBars     *int           `mapstructure:"confirm_bars"`
	SlopeBars       *int           `mapstructure:"slope_bars"`
	RequireSlope    *bool          `mapstructure:"require_slope"`
	MaxLagBars      *int           `mapstructure:"max_lag_bars"`
	AdaptiveEnabled *bool          `mapstructure:"adaptive_enabled"`
	ActionCooldown  *time.Duration `mapstructure:"action_cooldown"`
	NeutralBars     *int           `mapstructure:"neutral_bars"`
	MinHoldDuration *time.Duration `mapstructure:"min_hold_duration"`
	BoostEnabled    *bool          `mapstructure:"boost_enabled"`
	BoostMargin     *float64       `mapstructure:"boost_margin"`
	BoostGap        *float64       `mapstructure:"boost_gap"`
	BoostCooldown   *time.Duration `mapstructure:"boost_cooldown"`
	MaxAddsPerTrade *int           `mapstructure:"max_adds_per_trade"`
	DefaultNotional *float64       `mapstructure:"default_notional"`
}

// Evaluator holds the signal evaluator settings.
type Evaluator struct {
	Enabled     bool   `mapstructure:"enabled"`
	PriceMetric string `mapstructure:"price_metric"`
	Horizons    []int  `mapstructure:"horizons"`
	Lookback    int    `mapstructure:"lookback"`
}

// Engine holds the engine-wide settings: symbol universe, cadences,
// concurrency and the base strategy plus per-symbol overrides.
type Engine struct {
	BarPeriod    time.Duration               `mapstructure:"bar_period"`
	Symbols      []string                    `mapstructure:"symbols"`
	Workers      int                         `mapstructure:"workers"`
	SignalCron   string                      `mapstructure:"signal_cron"`
	DecisionCron string                      `mapstructure:"decision_cron"`
	EvalCron     string                      `mapstructure:"eval_cron"`
	Evaluator    Evaluator                   `mapstructure:"evaluator"`
	Strategy     Strategy                    `mapstructure:"strategy"`
	Overrides    map[string]StrategyOverride `mapstructure:"overrides"`
}

// Config holds the full configuration for the engine service.
type Config struct {
	App      config.App      `mapstructure:"app"`
	Logger   config.Logger   `mapstructure:"logger"`
	Database config.Database `mapstructure:"database"`
	Redis    config.Redis    `mapstructure:"redis"`
	API      config.API      `mapstructure:"api"`
	Telegram config.Telegram `mapstructure:"telegram"`
	Engine   Engine          `mapstructure:"engine"`
}

// Load loads and validates the engine configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve returns the effective strategy for a symbol, applying its
// partial override (if any) on top of the base strategy.
func (e *Engine) Resolve(symbol string) Strategy {
	s := e.Strategy
	ov, ok := e.Overrides[symbol]
	if !ok {
		return s
	}
	if ov.ThUp != nil {
		s.ThUp = *ov.ThUp
	}
	if ov.ThDn != nil {
		s.ThDn = *ov.ThDn
	}
	if ov.ThClose != nil {
		s.ThClose = *ov.ThClose
	}
	if ov.Deadband != nil {
		s.Deadband = *ov.Deadband
	}
	if ov.EmaBars != nil {
		s.EmaBars = *ov.EmaBars
	}
	if ov.ConfirmBars != nil {
		s.ConfirmBars = *ov.ConfirmBars
	}
	if ov.SlopeBars != nil {
		s.SlopeBars = *ov.SlopeBars
	}
	if ov.RequireSlope != nil {
		s.RequireSlope = *ov.RequireSlope
	}
	if ov.MaxLagBars != nil {
		s.MaxLagBars = *ov.MaxLagBars
	}
	if ov.AdaptiveEnabled != nil {
		s.Adaptive.Enabled = *ov.AdaptiveEnabled
	}
	if ov.ActionCooldown != nil {
		s.ActionCooldown = *ov.ActionCooldown
	}
	if ov.NeutralBars != nil {
		s.NeutralBars = *ov.NeutralBars
	}
	if ov.MinHoldDuration != nil {
		s.MinHoldDuration = *ov.MinHoldDuration
	}
	if ov.BoostEnabled != nil {
		s.Boost.Enabled = *ov.BoostEnabled
	}
	if ov.BoostMargin != nil {
		s.Boost.Margin = *ov.BoostMargin
	}
	if ov.BoostGap != nil {
		s.Boost.Gap = *ov.BoostGap
	}
	if ov.BoostCooldown != nil {
		s.Boost.Cooldown = *ov.BoostCooldown
	}
	if ov.MaxAddsPerTrade != nil {
		s.Boost.MaxAddsPerTrade = *ov.MaxAddsPerTrade
	}
	if ov.DefaultNotional != nil {
		s.DefaultNotional = *ov.DefaultNotional
	}
	return s
}

// Validate rejects misconfigurations at startup instead of letting them
// surface mid-run. Checks the base strategy and every resolved override.
func (e *Engine) Validate() error {
	if e.BarPeriod <= 0 {
		return fmt.Errorf("engine: bar_period must be positive, got %v", e.BarPeriod)
	}
	if len(e.Symbols) == 0 {
		return fmt.Errorf("engine: at least one symbol is required")
	}
	if e.Workers <= 0 {
		return fmt.Errorf("engine: workers must be positive, got %d", e.Workers)
	}
	if err := validateStrategy("strategy", e.Strategy); err != nil {
		return err
	}
	for sym := range e.Overrides {
		if err := validateStrategy("overrides."+sym, e.Resolve(sym)); err != nil {
			return err
		}
	}
	return nil
}

func validateStrategy(scope string, s Strategy) error {
	for name, v := range map[string]float64{
		"th_up": s.ThUp, "th_dn": s.ThDn, "th_close": s.ThClose, "deadband": s.Deadband,
	} {
		if !timeseries.Finite(v) {
			return fmt.Errorf("engine: %s.%s must be finite", scope, name)
		}
	}
	if s.ThUp <= s.ThDn {
		return fmt.Errorf("engine: %s.th_up (%v) must exceed th_dn (%v)", scope, s.ThUp, s.ThDn)
	}
	if s.ThClose < 0 || s.Deadband < 0 {
		return fmt.Errorf("engine: %s.th_close and deadband must be non-negative", scope)
	}
	if s.EmaBars < 1 || s.ConfirmBars < 1 {
		return fmt.Errorf("engine: %s.ema_bars and confirm_bars must be >= 1", scope)
	}
	if s.SlopeBars < 2 {
		return fmt.Errorf("engine: %s.slope_bars must be >= 2", scope)
	}
	if s.MaxLagBars < 0 || s.NeutralBars < 1 {
		return fmt.Errorf("engine: %s.max_lag_bars must be >= 0 and neutral_bars >= 1", scope)
	}
	if s.ActionCooldown < 0 || s.MinHoldDuration < 0 {
		return fmt.Errorf("engine: %s cooldown and min_hold_duration must be non-negative", scope)
	}
	if s.DefaultNotional <= 0 {
		return fmt.Errorf("engine: %s.default_notional must be positive", scope)
	}
	if s.Adaptive.Enabled {
		if s.Adaptive.Window < 2 || s.Adaptive.MinSamples < 2 {
			return fmt.Errorf("engine: %s.adaptive window and min_samples must be >= 2", scope)
		}
		switch s.Adaptive.Mode {
		case "percentile":
			if s.Adaptive.PercentileUp <= 0 || s.Adaptive.PercentileUp >= 1 ||
				s.Adaptive.PercentileDown <= 0 || s.Adaptive.PercentileDown >= 1 {
				return fmt.Errorf("engine: %s.adaptive percentiles must be in (0,1)", scope)
			}
		case "zscore":
			if s.Adaptive.Z <= 0 || !timeseries.Finite(s.Adaptive.Z) {
				return fmt.Errorf("engine: %s.adaptive.z must be positive and finite", scope)
			}
		default:
			return fmt.Errorf("engine: %s.adaptive.mode must be \"percentile\" or \"zscore\", got %q", scope, s.Adaptive.Mode)
		}
	}
	if s.Boost.Enabled {
		if s.Boost.MaxAddsPerTrade <= 0 {
			return fmt.Errorf("engine: %s.boost.max_adds_per_trade must be positive", scope)
		}
		if s.Boost.Margin < 0 || s.Boost.Gap < 0 || s.Boost.Cooldown < 0 {
			return fmt.Errorf("engine: %s.boost margin, gap and cooldown must be non-negative", scope)
		}
	}
	return nil
}
