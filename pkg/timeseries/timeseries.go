// Package timeseries holds the window math shared by the signal generator
// and the decision engine. All functions take samples ordered oldest to
// newest and skip NaN entries rather than treating them as zero.
package timeseries

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// EMA computes the exponential moving average over the last n samples,
// weighting the most recent sample most heavily (alpha = 2/(n+1)).
// Returns NaN when no finite sample is available.
func EMA(values []float64, n int) float64 {
	if n <= 0 || len(values) == 0 {
		return math.NaN()
	}
	if n > len(values) {
		n = len(values)
	}
	window := values[len(values)-n:]

	alpha := 2.0 / (float64(n) + 1.0)
	ema := math.NaN()
	for _, v := range window {
		if !Finite(v) {
			continue
		}
		if math.IsNaN(ema) {
			ema = v
			continue
		}
		ema = alpha*v + (1-alpha)*ema
	}
	return ema
}

// Percentile returns the p-th percentile (p in [0,1]) of the finite
// samples. Returns NaN when no finite sample is available.
func Percentile(values []float64, p float64) float64 {
	finite := filterFinite(values)
	if len(finite) == 0 || p < 0 || p > 1 {
		return math.NaN()
	}
	sort.Float64s(finite)
	return stat.Quantile(p, stat.Empirical, finite, nil)
}

// MeanStd returns the mean and the population-adjusted standard deviation
// of the finite samples.
func MeanStd(values []float64) (mean, std float64) {
	finite := filterFinite(values)
	if len(finite) == 0 {
		return math.NaN(), math.NaN()
	}
	if len(finite) == 1 {
		return finite[0], 0
	}
	return stat.MeanStdDev(finite, nil)
}

// Slope fits an ordinary least-squares line over the last n samples
// (x = sample index) and returns its slope. NaN samples keep their index
// but are excluded from the fit. Returns NaN below two finite points.
func Slope(values []float64, n int) float64 {
	if n <= 0 || len(values) == 0 {
		return math.NaN()
	}
	if n > len(values) {
		n = len(values)
	}
	window := values[len(values)-n:]

	var xs, ys []float64
	for i, v := range window {
		if !Finite(v) {
			continue
		}
		xs = append(xs, float64(i))
		ys = append(ys, v)
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	return beta
}

// FirstDiffSum sums the first differences over the last n samples.
// Pairs containing a NaN are skipped.
func FirstDiffSum(values []float64, n int) float64 {
	if n <= 1 || len(values) < 2 {
		return math.NaN()
	}
	if n > len(values) {
		n = len(values)
	}
	window := values[len(values)-n:]

	sum := math.NaN()
	for i := 1; i < len(window); i++ {
		if !Finite(window[i-1]) || !Finite(window[i]) {
			continue
		}
		if math.IsNaN(sum) {
			sum = 0
		}
		sum += window[i] - window[i-1]
	}
	return sum
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func filterFinite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if Finite(v) {
			out = append(out, v)
		}
	}
	return out
}
