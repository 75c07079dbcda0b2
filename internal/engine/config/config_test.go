package config

import (
	"testing"
	"time"

	"golang-signal-engine/pkg/utils"

	"github.com/stretchr/testify/require"
)

func validEngine() Engine {
	return Engine{
		BarPeriod: 5 * time.Minute,
		Symbols:   []string{"BTCUSDT"},
		Workers:   4,
		Strategy: Strategy{
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

func TestEngineValidateAcceptsDefaults(t *testing.T) {
	e := validEngine()
	require.NoError(t, e.Validate())
}

func TestEngineValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(e *Engine)
	}{
		{"no symbols", func(e *Engine) { e.Symbols = nil }},
		{"zero bar period", func(e *Engine) { e.BarPeriod = 0 }},
		{"zero workers", func(e *Engine) { e.Workers = 0 }},
		{"thresholds inverted", func(e *Engine) { e.Strategy.ThUp = -0.6; e.Strategy.ThDn = 0.6 }},
		{"negative deadband", func(e *Engine) { e.Strategy.Deadband = -0.1 }},
		{"zero ema bars", func(e *Engine) { e.Strategy.EmaBars = 0 }},
		{"slope bars too small", func(e *Engine) { e.Strategy.SlopeBars = 1 }},
		{"zero neutral bars", func(e *Engine) { e.Strategy.NeutralBars = 0 }},
		{"zero notional", func(e *Engine) { e.Strategy.DefaultNotional = 0 }},
		{"adaptive bad mode", func(e *Engine) {
			e.Strategy.Adaptive = Adaptive{Enabled: true, Window: 10, MinSamples: 5, Mode: "median"}
		}},
		{"adaptive bad percentiles", func(e *Engine) {
			e.Strategy.Adaptive = Adaptive{Enabled: true, Window: 10, MinSamples: 5, Mode: "percentile", PercentileUp: 1.5, PercentileDown: 0.1}
		}},
		{"adaptive bad z", func(e *Engine) {
			e.Strategy.Adaptive = Adaptive{Enabled: true, Window: 10, MinSamples: 5, Mode: "zscore", Z: 0}
		}},
		{"boost without budget", func(e *Engine) {
			e.Strategy.Boost = Boost{Enabled: true, MaxAddsPerTrade: 0}
		}},
		{"broken override", func(e *Engine) {
			e.Overrides = map[string]StrategyOverride{
				"BTCUSDT": {ThUp: utils.ToPointer(-1.0)},
			}
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := validEngine()
			c.mutate(&e)
			require.Error(t, e.Validate())
		})
	}
}

func TestEngineResolveMergesOverride(t *testing.T) {
	e := validEngine()
	e.Overrides = map[string]StrategyOverride{
		"ETHUSDT": {
			ThUp:            utils.ToPointer(0.7),
			ConfirmBars:     utils.ToPointer(3),
			BoostEnabled:    utils.ToPointer(true),
			MaxAddsPerTrade: utils.ToPointer(1),
			ActionCooldown:  utils.ToPointer(time.Hour),
		},
	}

	base := e.Resolve("BTCUSDT")
	require.Equal(t, 0.6, base.ThUp)
	require.Equal(t, 2, base.ConfirmBars)
	require.False(t, base.Boost.Enabled)

	over := e.Resolve("ETHUSDT")
	require.Equal(t, 0.7, over.ThUp)
	require.Equal(t, 3, over.ConfirmBars)
	require.True(t, over.Boost.Enabled)
	require.Equal(t, 1, over.Boost.MaxAddsPerTrade)
	require.Equal(t, time.Hour, over.ActionCooldown)

	// Fields without an override keep the base value.
	require.Equal(t, -0.6, over.ThDn)
	require.Equal(t, 15*time.Minute, over.MinHoldDuration)
}
