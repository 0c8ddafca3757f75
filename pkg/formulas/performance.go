package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// CalculateMaxDrawdown returns the deepest peak-to-trough decline of a value
// curve as a non-positive fraction (-0.25 = 25% below the running peak).
func CalculateMaxDrawdown(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	peak := values[0]
	worst := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (v - peak) / peak; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// AnnualizedSharpe returns mean*252 / (std*sqrt(252)) of daily returns.
// Non-finite results (flat series, too few points) become 0.
func AnnualizedSharpe(returns []float64) float64 {
	sharpe := Mean(returns) * TradingDays / (StdDev(returns) * math.Sqrt(TradingDays))
	if !IsFinite(sharpe) {
		return 0
	}
	return sharpe
}

// CompoundCurve turns daily returns into a value curve starting from capital.
// The curve has one point per return (the starting capital is not included).
func CompoundCurve(returns []float64, capital float64) []float64 {
	curve := make([]float64, len(returns))
	value := capital
	for i, r := range returns {
		value *= 1 + r
		curve[i] = value
	}
	return curve
}

// Percentiles returns the requested percentiles (0-100) of values using
// linear interpolation over the sorted sample. values is not modified.
func Percentiles(values []float64, pcts ...float64) []float64 {
	out := make([]float64, len(pcts))
	if len(values) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	for i, p := range pcts {
		out[i] = stat.Quantile(p/100, stat.LinInterp, sorted, nil)
	}
	return out
}
