package optimization

import (
	"math"

	"github.com/aristath/sectorbl/internal/config"
	"github.com/rs/zerolog"
)

// Fallback reasons reported on Allocation.
const (
	ReasonNoViews         = "no_views"
	ReasonPosteriorFailed = "posterior_failed"
	ReasonSolverFailed    = "solver_failed"
)

// cleanCutoff is the magnitude below which weights are zeroed.
const cleanCutoff = 1e-4

// defaultViewConfidence applies to a view with no stated confidence.
const defaultViewConfidence = 0.5

// Input is one optimization request. Views and Confidence are keyed by ticker.
type Input struct {
	Tickers     []string
	Equilibrium *Equilibrium
	Views       map[string]float64
	Confidence  map[string]float64
	MaxWeight   float64
}

// Allocation is the optimizer's answer, aligned to Input.Tickers.
type Allocation struct {
	Weights      []float64
	Posterior    []float64 // nil when no posterior was formed
	UsedFallback bool      // anchor weights were returned
	Reason       string    // why the anchor was used
}

// WeightMap returns the weights keyed by ticker.
func (a Allocation) WeightMap(tickers []string) map[string]float64 {
	out := make(map[string]float64, len(tickers))
	for i, t := range tickers {
		out[t] = a.Weights[i]
	}
	return out
}

// Optimizer turns an equilibrium plus views into portfolio weights.
type Optimizer struct {
	solver Solver
	cfg    config.Engine
	log    zerolog.Logger
}

// NewOptimizer creates an optimizer using solver for the max-Sharpe step.
func NewOptimizer(solver Solver, cfg config.Engine, log zerolog.Logger) *Optimizer {
	return &Optimizer{
		solver: solver,
		cfg:    cfg,
		log:    log.With().Str("component", "bl_optimizer").Logger(),
	}
}

// OptimizeBL returns anchor weights when there are no views; otherwise it
// forms the Idzorek posterior and maximizes its Sharpe ratio within
// [cfg.MinWeight, in.MaxWeight]. Any numeric failure falls back to the anchor.
func (o *Optimizer) OptimizeBL(in Input) Allocation {
	eq := in.Equilibrium
	anchor := append([]float64(nil), eq.Anchor...)

	views := make([]View, 0, len(in.Views))
	for i, t := range in.Tickers {
		ret, ok := in.Views[t]
		if !ok {
			continue
		}
		conf, ok := in.Confidence[t]
		if !ok {
			conf = defaultViewConfidence
		}
		views = append(views, View{Asset: i, Return: ret, Confidence: conf})
	}
	if len(views) == 0 {
		return Allocation{Weights: anchor, UsedFallback: true, Reason: ReasonNoViews}
	}

	post, err := BlackLitterman(eq.Cov, eq.Implied, views, o.cfg.Tau)
	if err != nil {
		o.log.Warn().Err(err).Msg("Posterior failed, using anchor weights")
		return Allocation{Weights: anchor, UsedFallback: true, Reason: ReasonPosteriorFailed}
	}

	n := len(in.Tickers)
	lower := make([]float64, n)
	upper := make([]float64, n)
	for i := range lower {
		lower[i] = o.cfg.MinWeight
		upper[i] = in.MaxWeight
	}

	w, err := o.solver.MaxSharpe(post.Returns, post.Cov, lower, upper, o.cfg.RiskFreeRate)
	if err != nil {
		o.log.Warn().Err(err).Int("views", len(views)).Msg("Solver failed, using anchor weights")
		return Allocation{Weights: anchor, Posterior: post.Returns, UsedFallback: true, Reason: ReasonSolverFailed}
	}

	return Allocation{Weights: CleanWeights(w), Posterior: post.Returns}
}

// CleanWeights zeroes weights below 1e-4 in magnitude and rounds to 5 decimals.
func CleanWeights(w []float64) []float64 {
	out := make([]float64, len(w))
	for i, v := range w {
		if math.Abs(v) < cleanCutoff {
			continue
		}
		out[i] = math.Round(v*1e5) / 1e5
	}
	return out
}
