// Package formulas holds the price-series statistics shared by the regime
// detectors, the view generator and the backtest accounting.
package formulas

import "math"

// TradingDays is the annualization factor for daily series.
const TradingDays = 252.0

// PctChange returns p[i+lag]/p[i]-1 for every i where both prices exist.
// The result has len(prices)-lag elements (empty when the series is too short).
func PctChange(prices []float64, lag int) []float64 {
	if lag <= 0 || len(prices) <= lag {
		return []float64{}
	}
	out := make([]float64, len(prices)-lag)
	for i := range out {
		out[i] = prices[i+lag]/prices[i] - 1
	}
	return out
}

// CalculateReturns returns simple daily returns.
func CalculateReturns(prices []float64) []float64 {
	return PctChange(prices, 1)
}

// LastPctChange returns the change between the last price and the price lag
// observations earlier. ok is false when the series is too short.
func LastPctChange(prices []float64, lag int) (float64, bool) {
	n := len(prices)
	if lag <= 0 || n <= lag {
		return math.NaN(), false
	}
	return prices[n-1]/prices[n-1-lag] - 1, true
}

// PriceRatio returns prices[last]/prices[len-back], i.e. the ratio against the
// observation `back` rows from the end (back=1 is the last row itself).
func PriceRatio(prices []float64, back int) (float64, bool) {
	n := len(prices)
	if back <= 0 || n < back {
		return math.NaN(), false
	}
	return prices[n-1] / prices[n-back], true
}
