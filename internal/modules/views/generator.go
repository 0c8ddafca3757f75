// Package views turns momentum and short-term reversal signals into sparse,
// equilibrium-anchored absolute views with per-view confidence.
package views

import (
	"math"

	"github.com/aristath/sectorbl/internal/config"
	"github.com/aristath/sectorbl/internal/market_regime"
	"github.com/aristath/sectorbl/pkg/formulas"
)

const (
	momentumLag = 252
	reversalLag = 21

	// trend strength at which the momentum weight sits halfway in its band
	trendCenter    = 0.10
	trendSteepness = 10.0
	momentumFloor  = 0.2
	momentumSpan   = 0.6

	minConfidence = 0.01
	maxConfidence = 0.99
)

// Input is one training window. Series is column-major (one slice per ticker)
// and aligned with Market; Implied holds the equilibrium returns per ticker.
type Input struct {
	Tickers    []string
	Series     [][]float64
	Implied    []float64
	Market     []float64
	Volatility market_regime.VolatilityLabel
	// Override replaces the computed momentum weight when non-nil
	Override *float64
}

// Signal is the per-asset breakdown behind a view decision.
type Signal struct {
	Ticker   string
	Momentum float64 // z-score of the 12-month change
	Reversal float64 // z-score of the negated 21-day change
	Combined float64
}

// Result holds the generated views keyed by ticker plus the blend in force.
type Result struct {
	Views          map[string]float64
	Confidence     map[string]float64
	MomentumWeight float64
	ReversalWeight float64
	Cutoff         float64
	Signals        []Signal
}

// Generator builds views with a fixed engine configuration.
type Generator struct {
	cfg config.Engine
}

// NewGenerator creates a view generator.
func NewGenerator(cfg config.Engine) *Generator {
	return &Generator{cfg: cfg}
}

// Blend returns the momentum weight, reversal weight and z-cutoff for a
// market trend, volatility regime and optional override.
func (g *Generator) Blend(marketTrend float64, vol market_regime.VolatilityLabel, override *float64) (float64, float64, float64) {
	strength := math.Abs(marketTrend)
	if !formulas.IsFinite(strength) {
		strength = 0
	}
	mom := momentumFloor + momentumSpan*formulas.Sigmoid(trendSteepness*(strength-trendCenter))
	rev := 1 - mom
	cutoff := g.cfg.ViewZCutoff

	if vol == market_regime.VolatilityHigh {
		cutoff = g.cfg.HighVolZCutoff
		rev = formulas.Clamp(rev+g.cfg.HighVolReversalShift, 0, 1)
		mom = 1 - rev
	}
	if override != nil {
		mom = formulas.Clamp(*override, 0, g.cfg.MaxMomentumOverride)
		rev = 1 - mom
	}
	return mom, rev, cutoff
}

// Generate scores every asset whose 12-month and 21-day changes are defined
// and emits a view for those whose combined z-score clears the cutoff.
func (g *Generator) Generate(in Input) *Result {
	trend, _ := formulas.LastPctChange(in.Market, momentumLag)
	mom, rev, cutoff := g.Blend(trend, in.Volatility, in.Override)

	res := &Result{
		Views:          make(map[string]float64),
		Confidence:     make(map[string]float64),
		MomentumWeight: mom,
		ReversalWeight: rev,
		Cutoff:         cutoff,
	}

	var (
		idx    []int
		rawMom []float64
		rawRev []float64
		vols   []float64
	)
	for i, series := range in.Series {
		if i >= len(in.Implied) || !formulas.IsFinite(in.Implied[i]) {
			continue
		}
		m, okM := formulas.LastPctChange(series, momentumLag)
		r, okR := formulas.LastPctChange(series, reversalLag)
		if !okM || !okR || !formulas.IsFinite(m) || !formulas.IsFinite(r) {
			continue
		}
		idx = append(idx, i)
		rawMom = append(rawMom, m)
		rawRev = append(rawRev, -r)
		vols = append(vols, formulas.AnnualizedVolatility(formulas.CalculateReturns(series)))
	}
	if len(idx) == 0 {
		return res
	}

	zMom := formulas.ZScores(rawMom)
	zRev := formulas.ZScores(rawRev)

	for k, i := range idx {
		ticker := in.Tickers[i]
		z := mom*zMom[k] + rev*zRev[k]
		res.Signals = append(res.Signals, Signal{Ticker: ticker, Momentum: zMom[k], Reversal: zRev[k], Combined: z})

		if !formulas.IsFinite(z) || math.Abs(z) < cutoff {
			continue
		}
		vol := vols[k]
		if !formulas.IsFinite(vol) {
			continue
		}
		res.Views[ticker] = in.Implied[i] + g.cfg.ViewAlpha*vol*z
		res.Confidence[ticker] = formulas.Clamp(1-math.Exp(-math.Abs(z)), minConfidence, maxConfidence)
	}
	return res
}
