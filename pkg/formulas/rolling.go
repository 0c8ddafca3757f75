package formulas

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// RollingAnnualizedVolatility returns the annualized rolling sample volatility
// of a return series for every complete window, oldest first.
// talib computes the population deviation; it is rescaled to the n-1 estimator.
func RollingAnnualizedVolatility(returns []float64, window int) []float64 {
	if window < 2 || len(returns) < window {
		return []float64{}
	}
	population := talib.StdDev(returns, window, 1.0)
	correction := math.Sqrt(float64(window) / float64(window-1))
	annualize := math.Sqrt(TradingDays)

	out := make([]float64, 0, len(returns)-window+1)
	for i := window - 1; i < len(population); i++ {
		out = append(out, population[i]*correction*annualize)
	}
	return out
}
