package market_regime

import (
	"math"

	"github.com/aristath/sectorbl/pkg/formulas"
)

const (
	minMarketVolRows = 140
	leadershipRS12   = 0.7
	leadershipRS6    = 0.3
)

// Leadership summarizes relative strength and co-movement over a training window.
type Leadership struct {
	Leader         string
	LeaderStrength float64
	Breadth        float64
	Dispersion     float64
	AvgCorr        float64
}

// ComputeLeadership scores each asset by blended 12- and 6-month relative
// strength against the market, then measures dispersion and average pairwise
// correlation of daily returns over the last 126 rows. ok is false when either
// input is shorter than MinRegimeRows.
func ComputeLeadership(tickers []string, series [][]float64, market []float64) (*Leadership, bool) {
	if len(series) == 0 || len(series[0]) < MinRegimeRows || len(market) < MinRegimeRows {
		return nil, false
	}

	mkt12, _ := formulas.PriceRatio(market, yearLag)
	mkt6, _ := formulas.PriceRatio(market, halfYearLag)

	scores := make([]float64, len(series))
	for j, s := range series {
		a12, _ := formulas.PriceRatio(s, yearLag)
		a6, _ := formulas.PriceRatio(s, halfYearLag)
		scores[j] = leadershipRS12*(a12/mkt12-1) + leadershipRS6*(a6/mkt6-1)
	}
	lead := formulas.ArgMax(scores)

	returns := make([][]float64, len(series))
	volSum := 0.0
	for j, s := range series {
		returns[j] = formulas.CalculateReturns(s[len(s)-halfYearLag:])
		volSum += formulas.StdDev(returns[j])
	}
	dispersion := volSum / float64(len(series)) * math.Sqrt(formulas.TradingDays)

	corrSum, pairs := 0.0, 0
	for a := 0; a < len(returns); a++ {
		for b := a + 1; b < len(returns); b++ {
			corrSum += formulas.Correlation(returns[a], returns[b])
			pairs++
		}
	}
	avgCorr := math.NaN()
	if pairs > 0 {
		avgCorr = corrSum / float64(pairs)
	}

	return &Leadership{
		Leader:         tickers[lead],
		LeaderStrength: scores[lead],
		Breadth:        formulas.FractionPositive(scores),
		Dispersion:     dispersion,
		AvgCorr:        avgCorr,
	}, true
}

// MarketFeatures returns the market's 12-month trend (NaN below MinRegimeRows
// rows) and its annualized volatility over the last 126 rows (NaN below 140 rows).
func MarketFeatures(market []float64) (trend12m, vol6m float64) {
	trend12m, vol6m = math.NaN(), math.NaN()
	if len(market) >= MinRegimeRows {
		trend12m, _ = formulas.LastPctChange(market, yearLag)
	}
	if len(market) >= minMarketVolRows {
		vol6m = formulas.AnnualizedVolatility(formulas.CalculateReturns(market[len(market)-halfYearLag:]))
	}
	return trend12m, vol6m
}
