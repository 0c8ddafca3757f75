package market_regime

import (
	"math"

	"github.com/aristath/sectorbl/internal/config"
	"github.com/aristath/sectorbl/pkg/formulas"
)

const (
	// MinRegimeRows is the training length needed for 12-month signals.
	MinRegimeRows = 260
	yearLag       = 252
	halfYearLag   = 126
)

// ConcentrationRegime reports whether a single sector dominates the cross-section.
type ConcentrationRegime struct {
	Concentrated bool
	Leader       string
	LeaderZ      float64
	Breadth      float64
}

// DetectConcentration z-scores every asset's 12-month return. The window is
// concentrated when the leader's z exceeds cfg.ConcLeaderZ while fewer than
// cfg.ConcBreadth of the assets are up over the year.
// series is column-major: series[j] holds the closes of tickers[j].
func DetectConcentration(tickers []string, series [][]float64, cfg config.Engine) ConcentrationRegime {
	none := ConcentrationRegime{LeaderZ: math.NaN(), Breadth: math.NaN()}
	if len(series) == 0 || len(series[0]) < MinRegimeRows {
		return none
	}

	mom := make([]float64, 0, len(series))
	names := make([]string, 0, len(series))
	for j, s := range series {
		if r, ok := formulas.LastPctChange(s, yearLag); ok && formulas.IsFinite(r) {
			mom = append(mom, r)
			names = append(names, tickers[j])
		}
	}
	if len(mom) == 0 {
		return none
	}

	z := formulas.ZScores(mom)
	lead := formulas.ArgMax(z)
	breadth := formulas.FractionPositive(mom)

	return ConcentrationRegime{
		Concentrated: z[lead] > cfg.ConcLeaderZ && breadth < cfg.ConcBreadth,
		Leader:       names[lead],
		LeaderZ:      z[lead],
		Breadth:      breadth,
	}
}

// MaxWeightFor returns the per-asset cap for the given concentration state.
func MaxWeightFor(c ConcentrationRegime, cfg config.Engine) float64 {
	if c.Concentrated {
		return cfg.ConcMaxWeight
	}
	return cfg.MaxWeight
}
