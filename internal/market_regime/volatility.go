// Package market_regime classifies the market backdrop of a training window:
// volatility regime, single-leader concentration and leadership features.
package market_regime

import (
	"math"

	"github.com/aristath/sectorbl/pkg/formulas"
)

// VolatilityLabel is the volatility regime classification
type VolatilityLabel string

const (
	// VolatilityHigh - realized volatility above its historical median
	VolatilityHigh VolatilityLabel = "high"
	// VolatilityLow - everything else, including insufficient history
	VolatilityLow VolatilityLabel = "low"
)

const (
	minVolatilityHistory = 100
	rollingVolWindow     = 63
)

// VolatilityRegime is the outcome of DetectVolatility. Realized and HistMedian
// are NaN when there was not enough history.
type VolatilityRegime struct {
	Label      VolatilityLabel
	Realized   float64
	HistMedian float64
}

// DetectVolatility compares the market's realized volatility over the last
// trainWindow prices with the median rolling 63-day volatility over the whole
// history. history must end at the evaluation date.
func DetectVolatility(history []float64, trainWindow int) VolatilityRegime {
	if len(history) < minVolatilityHistory {
		return VolatilityRegime{Label: VolatilityLow, Realized: math.NaN(), HistMedian: math.NaN()}
	}

	rolling := formulas.RollingAnnualizedVolatility(formulas.CalculateReturns(history), rollingVolWindow)
	median := formulas.Median(rolling)

	tail := history
	if len(history) >= trainWindow {
		tail = history[len(history)-trainWindow:]
	}
	realized := formulas.AnnualizedVolatility(formulas.CalculateReturns(tail))

	label := VolatilityLow
	if formulas.IsFinite(realized) && formulas.IsFinite(median) && realized > median {
		label = VolatilityHigh
	}
	return VolatilityRegime{Label: label, Realized: realized, HistMedian: median}
}
