package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/sectorbl/internal/config"
	"github.com/aristath/sectorbl/internal/engine"
	"github.com/aristath/sectorbl/pkg/formulas"
	"gonum.org/v1/gonum/mat"
)

// anchorEpsilon keeps inverse volatility finite for zero-variance assets.
const anchorEpsilon = 1e-12

// Equilibrium is the Black-Litterman prior for one training window.
type Equilibrium struct {
	Cov           *mat.SymDense
	Shrinkage     float64
	Delta         float64 // smoothed, clamped risk aversion
	RawDelta      float64 // clamped estimate before smoothing
	DeltaFallback bool    // the estimate was unusable and cfg.DeltaFallback was substituted
	Anchor        []float64
	Implied       []float64
}

// MarketImpliedRiskAversion is the market's annualized excess return per unit
// of annualized variance, from daily closes.
func MarketImpliedRiskAversion(market []float64, riskFree float64) (float64, error) {
	returns := formulas.CalculateReturns(market)
	if len(returns) < 2 {
		return math.NaN(), fmt.Errorf("risk aversion: need at least 3 prices, got %d", len(market))
	}
	excess := formulas.Mean(returns)*formulas.TradingDays - riskFree
	variance := formulas.Variance(returns) * formulas.TradingDays
	delta := excess / variance
	if !formulas.IsFinite(delta) {
		return delta, fmt.Errorf("risk aversion: non-finite estimate (variance %g)", variance)
	}
	return delta, nil
}

// RiskParityAnchor weights assets by inverse volatility, normalized to one.
func RiskParityAnchor(cov mat.Symmetric) []float64 {
	n := cov.SymmetricDim()
	w := make([]float64, n)
	sum := 0.0
	for i := 0; i < n; i++ {
		w[i] = 1 / (math.Sqrt(math.Max(cov.At(i, i), 0)) + anchorEpsilon)
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// ImpliedReturns returns delta * S * w.
func ImpliedReturns(cov mat.Symmetric, w []float64, delta float64) []float64 {
	var v mat.VecDense
	v.MulVec(cov, mat.NewVecDense(len(w), append([]float64(nil), w...)))
	out := make([]float64, len(w))
	for i := range out {
		out[i] = delta * v.AtVec(i)
	}
	return out
}

// SmoothDelta clamps raw into range and blends it toward prev when prev is set.
func SmoothDelta(raw float64, prev *float64, cfg config.Engine) float64 {
	raw = formulas.Clamp(raw, cfg.DeltaMin, cfg.DeltaMax)
	if prev == nil {
		return raw
	}
	return cfg.DeltaSmooth*(*prev) + (1-cfg.DeltaSmooth)*raw
}

// WindowRiskFree converts the window's risk-free yields (percent) into an
// annual rate, falling back when no finite observation exists.
func WindowRiskFree(yields []float64, fallback float64) float64 {
	sum, count := 0.0, 0
	for _, y := range yields {
		if formulas.IsFinite(y) {
			sum += y
			count++
		}
	}
	if count == 0 {
		return fallback
	}
	return sum / float64(count) / 100
}

// EstimateEquilibrium builds the shrunk covariance, risk aversion, anchor and
// implied returns for a training window. series is column-major asset closes,
// market the matching market closes.
func EstimateEquilibrium(series [][]float64, market []float64, riskFree float64, prevDelta *float64, cfg config.Engine) (*Equilibrium, error) {
	returns := ReturnsMatrix(series)
	if returns == nil {
		return nil, engine.DataInsufficient("training window too short for covariance")
	}
	cov, shrinkage, err := LedoitWolf(returns)
	if err != nil {
		return nil, engine.DataInsufficient("%v", err)
	}

	eq := &Equilibrium{Cov: cov, Shrinkage: shrinkage}

	raw, err := MarketImpliedRiskAversion(market, riskFree)
	if err != nil {
		raw = cfg.DeltaFallback
		eq.DeltaFallback = true
	}
	eq.RawDelta = formulas.Clamp(raw, cfg.DeltaMin, cfg.DeltaMax)
	eq.Delta = SmoothDelta(raw, prevDelta, cfg)

	eq.Anchor = RiskParityAnchor(cov)
	eq.Implied = ImpliedReturns(cov, eq.Anchor, eq.Delta)
	return eq, nil
}
