package backtest

import (
	"context"
	"math"

	"github.com/aristath/sectorbl/internal/engine"
	"github.com/aristath/sectorbl/internal/modules/views"
	"github.com/aristath/sectorbl/internal/prices"
)

// ScenarioRequest asks for the allocation as of Date (latest when nil).
type ScenarioRequest struct {
	Views []views.ManualView `json:"views" msgpack:"views" validate:"dive"`
	Date  *string            `json:"date,omitempty" msgpack:"date,omitempty"`
}

// ScenarioRegime reports the regimes detected on the window.
type ScenarioRegime struct {
	Volatility   string `json:"volatility"`
	Concentrated bool   `json:"concentrated"`
}

// ScenarioMetrics are instantaneous portfolio statistics under the prior.
type ScenarioMetrics struct {
	Delta          float64 `json:"delta"`
	ExpectedReturn float64 `json:"expected_return"`
	Volatility     float64 `json:"volatility"`
}

// ScenarioResult is the allocation for one as-of date.
type ScenarioResult struct {
	Date             string             `json:"date"`
	Weights          map[string]float64 `json:"weights"`
	Regime           ScenarioRegime     `json:"regime"`
	Metrics          ScenarioMetrics    `json:"metrics"`
	AppliedScenarios []string           `json:"applied_scenarios"`
	UsedFallback     bool               `json:"used_fallback"`
	FallbackReason   string             `json:"fallback_reason,omitempty"`
}

// RunScenario optimizes the most recent training window ending on or before
// the requested date. There is no overlay, no delta smoothing and no
// turnover logic.
func (e *Engine) RunScenario(ctx context.Context, req ScenarioRequest) (*ScenarioResult, error) {
	m, err := e.snapshot()
	if err != nil {
		return nil, err
	}

	last := m.Len() - 1
	if req.Date != nil && *req.Date != "" {
		asOf, err := prices.ParseDate(*req.Date)
		if err != nil {
			return nil, engine.InvalidDateRange("invalid date %q", *req.Date)
		}
		last = m.IndexAtOrBefore(asOf)
		if last < 0 {
			return nil, engine.DataInsufficient("no price data on or before %s", *req.Date)
		}
	}
	end := last + 1
	if end < e.cfg.TrainWindow {
		return nil, engine.DataInsufficient("not enough data for %s: %d rows, need %d",
			m.Dates[last].Format(prices.DateLayout), end, e.cfg.TrainWindow)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	win := newWindow(m, m.AssetSeries(), end, e.cfg)
	out, err := e.step(stepInput{
		tickers: m.Tickers,
		win:     win,
		manual:  req.Views,
		mode:    views.ModeScenario,
	})
	if err != nil {
		return nil, err
	}

	w := out.allocation.Weights
	ret, vol := portfolioMoments(w, out.equilibrium)

	e.log.Info().
		Str("date", m.Dates[last].Format(prices.DateLayout)).
		Str("volatility", string(out.volatility.Label)).
		Bool("concentrated", out.concentration.Concentrated).
		Int("views", len(out.views.Views)).
		Int("manual", len(out.applied)).
		Msg("Scenario optimized")

	return &ScenarioResult{
		Date:    m.Dates[last].Format(prices.DateLayout),
		Weights: out.allocation.WeightMap(m.Tickers),
		Regime: ScenarioRegime{
			Volatility:   string(out.volatility.Label),
			Concentrated: out.concentration.Concentrated,
		},
		Metrics: ScenarioMetrics{
			Delta:          math.Round(out.equilibrium.Delta*100) / 100,
			ExpectedReturn: ret,
			Volatility:     vol,
		},
		AppliedScenarios: out.applied,
		UsedFallback:     out.allocation.UsedFallback,
		FallbackReason:   out.allocation.Reason,
	}, nil
}
