package timeseries

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEMA(t *testing.T) {
	// alpha = 0.5 for n = 3: 0.2 -> 0.35 -> 0.625
	require.InDelta(t, 0.625, EMA([]float64{0.2, 0.5, 0.9}, 3), 1e-9)

	// NaN samples are skipped, not zeroed.
	require.InDelta(t, 0.55, EMA([]float64{math.NaN(), 0.2, 0.9}, 3), 1e-9)

	require.True(t, math.IsNaN(EMA(nil, 3)))
	require.True(t, math.IsNaN(EMA([]float64{math.NaN(), math.NaN()}, 2)))
	require.True(t, math.IsNaN(EMA([]float64{0.5}, 0)))

	// A window larger than the series clamps to the series.
	require.InDelta(t, EMA([]float64{0.2, 0.5}, 2), EMA([]float64{0.2, 0.5}, 10), 1e-9)
}

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	p50 := Percentile(values, 0.5)
	require.GreaterOrEqual(t, p50, 5.0)
	require.LessOrEqual(t, p50, 6.0)

	require.InDelta(t, 1, Percentile(values, 0), 1e-9)
	require.InDelta(t, 10, Percentile(values, 1), 1e-9)

	require.True(t, math.IsNaN(Percentile(nil, 0.5)))
	require.True(t, math.IsNaN(Percentile(values, 1.5)))

	withNaN := []float64{1, math.NaN(), 3}
	require.False(t, math.IsNaN(Percentile(withNaN, 0.5)))
}

func TestMeanStd(t *testing.T) {
	mean, std := MeanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	require.InDelta(t, 5, mean, 1e-9)
	require.Greater(t, std, 0.0)

	mean, std = MeanStd([]float64{3})
	require.InDelta(t, 3, mean, 1e-9)
	require.Zero(t, std)

	mean, _ = MeanStd(nil)
	require.True(t, math.IsNaN(mean))
}

func TestSlope(t *testing.T) {
	require.InDelta(t, 1, Slope([]float64{1, 2, 3, 4}, 4), 1e-9)
	require.InDelta(t, -0.5, Slope([]float64{3, 2.5, 2}, 3), 1e-9)

	// NaN samples keep their index but drop out of the fit.
	require.InDelta(t, 1, Slope([]float64{1, math.NaN(), 3}, 3), 1e-9)

	require.True(t, math.IsNaN(Slope([]float64{1}, 3)))
	require.True(t, math.IsNaN(Slope([]float64{1, math.NaN(), math.NaN()}, 3)))
}

func TestFirstDiffSum(t *testing.T) {
	require.InDelta(t, 0.7, FirstDiffSum([]float64{0.2, 0.5, 0.9}, 3), 1e-9)
	require.InDelta(t, -0.2, FirstDiffSum([]float64{0.9, 0.8, 0.7}, 2), 1e-9)

	// A NaN sample drops the pairs it touches.
	require.InDelta(t, 0.3, FirstDiffSum([]float64{0.2, 0.5, math.NaN()}, 3), 1e-9)
	require.True(t, math.IsNaN(FirstDiffSum([]float64{0.2, math.NaN(), 0.9}, 3)))

	require.True(t, math.IsNaN(FirstDiffSum([]float64{0.5}, 3)))
	require.True(t, math.IsNaN(FirstDiffSum([]float64{0.2, 0.5}, 1)))
}

func TestFinite(t *testing.T) {
	require.True(t, Finite(0))
	require.True(t, Finite(-1.5))
	require.False(t, Finite(math.NaN()))
	require.False(t, Finite(math.Inf(1)))
	require.False(t, Finite(math.Inf(-1)))
}
