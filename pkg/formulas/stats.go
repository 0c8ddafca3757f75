package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// zEpsilon keeps z-scores finite on a flat cross-section.
const zEpsilon = 1e-12

// Mean returns the arithmetic mean, NaN for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}

// StdDev returns the sample standard deviation (n-1 denominator).
// NaN when fewer than two observations are available.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return stat.StdDev(values, nil)
}

// Variance returns the sample variance (n-1 denominator).
func Variance(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return stat.Variance(values, nil)
}

// AnnualizedVolatility returns the annualized sample volatility of daily returns.
func AnnualizedVolatility(returns []float64) float64 {
	return StdDev(returns) * math.Sqrt(TradingDays)
}

// ZScores standardizes a cross-section with the sample standard deviation.
func ZScores(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	mean := Mean(values)
	sd := StdDev(values)
	if math.IsNaN(sd) {
		sd = 0
	}
	for i, v := range values {
		out[i] = (v - mean) / (sd + zEpsilon)
	}
	return out
}

// Median returns the median of the finite values, NaN when none are finite.
func Median(values []float64) float64 {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return math.NaN()
	}
	sort.Float64s(finite)
	mid := len(finite) / 2
	if len(finite)%2 == 1 {
		return finite[mid]
	}
	return (finite[mid-1] + finite[mid]) / 2
}

// Correlation returns the Pearson correlation of two equally long series.
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return math.NaN()
	}
	return stat.Correlation(x, y, nil)
}

// FractionPositive returns the share of values strictly above zero.
func FractionPositive(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	count := 0
	for _, v := range values {
		if v > 0 {
			count++
		}
	}
	return float64(count) / float64(len(values))
}

// ArgMax returns the index of the largest value, -1 for an empty slice.
// Ties resolve to the first occurrence.
func ArgMax(values []float64) int {
	best := -1
	for i, v := range values {
		if best == -1 || v > values[best] {
			best = i
		}
	}
	return best
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// Sigmoid is the logistic function.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// IsFinite reports whether x is neither NaN nor infinite.
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
