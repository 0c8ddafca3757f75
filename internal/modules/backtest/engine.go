// Package backtest runs the Black-Litterman pipeline over price history:
// a single as-of scenario or a walk-forward backtest with periodic rebalancing.
package backtest

import (
	"math"

	"github.com/aristath/sectorbl/internal/config"
	"github.com/aristath/sectorbl/internal/engine"
	"github.com/aristath/sectorbl/internal/market_regime"
	"github.com/aristath/sectorbl/internal/metrics"
	"github.com/aristath/sectorbl/internal/modules/optimization"
	"github.com/aristath/sectorbl/internal/modules/overlay"
	"github.com/aristath/sectorbl/internal/modules/views"
	"github.com/aristath/sectorbl/internal/prices"
	"github.com/rs/zerolog"
)

// PriceSource hands out the current prepared price matrix. The matrix is
// shared and must be treated as read-only.
type PriceSource interface {
	Current() *prices.Matrix
}

// Engine holds only immutable collaborators; every run keeps its own State.
type Engine struct {
	prices    PriceSource
	cfg       config.Engine
	views     *views.Generator
	overlay   *overlay.Overlay
	optimizer *optimization.Optimizer
	metrics   metrics.Recorder
	log       zerolog.Logger
}

// NewEngine creates an engine. rec may be nil.
func NewEngine(src PriceSource, cfg config.Engine, solver optimization.Solver, rec metrics.Recorder, log zerolog.Logger) *Engine {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Engine{
		prices:    src,
		cfg:       cfg,
		views:     views.NewGenerator(cfg),
		overlay:   overlay.New(cfg, log),
		optimizer: optimization.NewOptimizer(solver, cfg, log),
		metrics:   rec,
		log:       log.With().Str("component", "bl_engine").Logger(),
	}
}

// Config returns the engine constants.
func (e *Engine) Config() config.Engine {
	return e.cfg
}

func (e *Engine) snapshot() (*prices.Matrix, error) {
	m := e.prices.Current()
	if m == nil || m.Len() == 0 {
		return nil, engine.DataInsufficient("no price data loaded")
	}
	return m, nil
}

// window is a training window as read-only sub-slices of the run's columns.
// Rows [end-len, end) of the matrix.
type window struct {
	end      int
	series   [][]float64
	market   []float64
	history  []float64 // market closes from the first row up to end
	riskFree float64
}

func newWindow(m *prices.Matrix, cols [][]float64, end int, cfg config.Engine) window {
	start := end - cfg.TrainWindow
	series := make([][]float64, len(cols))
	for j, c := range cols {
		series[j] = c[start:end]
	}
	rf := cfg.RiskFreeRate
	if cfg.WindowRiskFree && m.RiskFree != nil {
		rf = optimization.WindowRiskFree(m.RiskFree[start:end], cfg.RiskFreeRate)
	}
	return window{
		end:      end,
		series:   series,
		market:   m.Market[start:end],
		history:  m.Market[:end],
		riskFree: rf,
	}
}

// stepInput configures one pass of the pipeline over a window.
type stepInput struct {
	tickers   []string
	win       window
	prevDelta *float64
	rows      []overlay.Row
	useML     bool
	manual    []views.ManualView
	mode      views.Mode
}

// stepOutput is everything one pass decided.
type stepOutput struct {
	volatility    market_regime.VolatilityRegime
	concentration market_regime.ConcentrationRegime
	equilibrium   *optimization.Equilibrium
	features      *overlay.Features
	prediction    *overlay.Prediction
	override      *float64
	views         *views.Result
	applied       []string
	maxWeight     float64
	allocation    optimization.Allocation
}

// step runs regime detection, equilibrium, the optional overlay, view
// generation, the user-view merge and the optimizer over one window.
func (e *Engine) step(in stepInput) (*stepOutput, error) {
	out := &stepOutput{}
	out.volatility = market_regime.DetectVolatility(in.win.history, e.cfg.TrainWindow)

	eq, err := optimization.EstimateEquilibrium(in.win.series, in.win.market, in.win.riskFree, in.prevDelta, e.cfg)
	if err != nil {
		return nil, err
	}
	out.equilibrium = eq

	if lead, ok := market_regime.ComputeLeadership(in.tickers, in.win.series, in.win.market); ok {
		trend, vol := market_regime.MarketFeatures(in.win.market)
		out.features = &overlay.Features{
			LeaderStrength: lead.LeaderStrength,
			Breadth:        lead.Breadth,
			Dispersion:     lead.Dispersion,
			AvgCorr:        lead.AvgCorr,
			MarketTrend12m: trend,
			MarketVol6m:    vol,
		}
	}

	if in.useML && out.features != nil {
		pred, ok := e.overlay.Predict(in.rows, *out.features)
		e.metrics.RecordOverlayPrediction(ok)
		if ok {
			out.prediction = &pred
			override := pred.Override
			out.override = &override
		}
	}

	out.concentration = market_regime.DetectConcentration(in.tickers, in.win.series, e.cfg)
	out.maxWeight = market_regime.MaxWeightFor(out.concentration, e.cfg)
	if out.concentration.Concentrated && out.override != nil {
		boosted := e.overlay.ConcentrationBonus(*out.override)
		out.override = &boosted
	}

	out.views = e.views.Generate(views.Input{
		Tickers:    in.tickers,
		Series:     in.win.series,
		Implied:    eq.Implied,
		Market:     in.win.market,
		Volatility: out.volatility.Label,
		Override:   out.override,
	})
	out.applied = views.MergeManual(out.views, in.tickers, eq.Implied, in.manual, in.mode, e.cfg)

	out.allocation = e.optimizer.OptimizeBL(optimization.Input{
		Tickers:     in.tickers,
		Equilibrium: eq,
		Views:       out.views.Views,
		Confidence:  out.views.Confidence,
		MaxWeight:   out.maxWeight,
	})
	if out.allocation.UsedFallback {
		e.metrics.RecordOptimizerFallback(out.allocation.Reason)
	}
	return out, nil
}

// portfolioMoments returns w'pi and sqrt(w'Sw).
func portfolioMoments(w []float64, eq *optimization.Equilibrium) (float64, float64) {
	ret, variance := 0.0, 0.0
	for i := range w {
		ret += w[i] * eq.Implied[i]
		for j := range w {
			variance += w[i] * w[j] * eq.Cov.At(i, j)
		}
	}
	return ret, math.Sqrt(math.Max(variance, 0))
}
