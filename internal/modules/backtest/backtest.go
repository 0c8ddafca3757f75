package backtest

import (
	"context"
	"time"

	"github.com/aristath/sectorbl/internal/engine"
	"github.com/aristath/sectorbl/internal/metrics"
	"github.com/aristath/sectorbl/internal/modules/overlay"
	"github.com/aristath/sectorbl/internal/modules/views"
	"github.com/aristath/sectorbl/internal/prices"
	"github.com/aristath/sectorbl/pkg/formulas"
	"github.com/google/uuid"
)

// BacktestRequest covers rebalances dated from Start through End (YYYY-MM-DD).
type BacktestRequest struct {
	Start string             `json:"start_date" msgpack:"start_date" validate:"required"`
	End   string             `json:"end_date" msgpack:"end_date" validate:"required"`
	Views []views.ManualView `json:"views" msgpack:"views" validate:"dive"`
}

// RebalanceEvent describes one iteration of the walk-forward loop.
type RebalanceEvent struct {
	Index          int                `json:"index" msgpack:"index"`
	Date           string             `json:"date" msgpack:"date"`               // last training date
	ActiveFrom     string             `json:"active_from" msgpack:"active_from"` // first date of the holding period
	Volatility     string             `json:"volatility" msgpack:"volatility"`
	Concentrated   bool               `json:"concentrated" msgpack:"concentrated"`
	MaxWeight      float64            `json:"max_weight" msgpack:"max_weight"`
	Delta          float64            `json:"delta" msgpack:"delta"`
	RawDelta       float64            `json:"raw_delta" msgpack:"raw_delta"`
	DeltaFallback  bool               `json:"delta_fallback" msgpack:"delta_fallback"`
	Probability    *float64           `json:"ml_probability,omitempty" msgpack:"ml_probability,omitempty"`
	Override       *float64           `json:"momentum_override,omitempty" msgpack:"momentum_override,omitempty"`
	MomentumWeight float64            `json:"momentum_weight" msgpack:"momentum_weight"`
	Views          int                `json:"views" msgpack:"views"`
	Fallback       string             `json:"fallback,omitempty" msgpack:"fallback,omitempty"`
	Turnover       float64            `json:"turnover" msgpack:"turnover"`
	Cost           float64            `json:"cost" msgpack:"cost"`
	Skipped        bool               `json:"skipped" msgpack:"skipped"`
	Weights        map[string]float64 `json:"weights" msgpack:"weights"` // held over the period
}

// BacktestResult is the full output of a run.
type BacktestResult struct {
	RunID       string           `json:"run_id" msgpack:"run_id"`
	Dates       []string         `json:"dates" msgpack:"dates"`
	Portfolio   []float64        `json:"portfolio" msgpack:"portfolio"`
	Benchmark   []float64        `json:"spy" msgpack:"spy"`
	Metrics     Summary          `json:"metrics" msgpack:"metrics"`
	YearlyTable []YearRow        `json:"yearly_table" msgpack:"yearly_table"`
	Rebalances  []RebalanceEvent `json:"rebalances" msgpack:"rebalances"`
}

// Option customizes a backtest run.
type Option func(*runOptions)

type runOptions struct {
	runID    string
	progress func(RebalanceEvent)
}

// WithProgress registers an observer called after every rebalance.
func WithProgress(fn func(RebalanceEvent)) Option {
	return func(o *runOptions) { o.progress = fn }
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(o *runOptions) { o.runID = id }
}

// RunBacktest walks forward from the first rebalance at or after Start,
// retraining every RebalanceFreq rows on the preceding TrainWindow rows.
// The loop stops once a rebalance date passes End or fewer than two rows
// remain for a holding period.
func (e *Engine) RunBacktest(ctx context.Context, req BacktestRequest, opts ...Option) (*BacktestResult, error) {
	o := runOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	log := e.log.With().Str("run_id", o.runID).Logger()

	start, err := prices.ParseDate(req.Start)
	if err != nil {
		return nil, engine.InvalidDateRange("invalid start date %q", req.Start)
	}
	end, err := prices.ParseDate(req.End)
	if err != nil {
		return nil, engine.InvalidDateRange("invalid end date %q", req.End)
	}
	if end.Before(start) {
		return nil, engine.InvalidDateRange("end date %s is before start date %s", req.End, req.Start)
	}

	m, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	n := m.Len()
	if n <= e.cfg.TrainWindow+1 {
		return nil, engine.DataInsufficient("need more than %d rows, have %d", e.cfg.TrainWindow+1, n)
	}

	first := e.cfg.TrainWindow
	for requested := m.IndexNearest(start); first < requested; {
		first += e.cfg.RebalanceFreq
	}

	log.Info().
		Str("start", req.Start).
		Str("end", req.End).
		Int("first_row", first).
		Int("manual_views", len(req.Views)).
		Msg("Backtest started")

	cols := m.AssetSeries()
	state := &State{}

	var (
		portRets, benchRets []float64
		retDates            []time.Time
		held                [][]float64
		events              []RebalanceEvent
	)

	for i := first; i < n; i += e.cfg.RebalanceFreq {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Int("rebalances", len(events)).Msg("Backtest cancelled")
			return nil, err
		}
		if m.Dates[i].After(end) {
			break
		}
		testEnd := min(i+e.cfg.RebalanceFreq, n)
		if testEnd-i < 2 {
			break
		}

		win := newWindow(m, cols, i, e.cfg)
		out, err := e.step(stepInput{
			tickers:   m.Tickers,
			win:       win,
			prevDelta: state.PrevDelta,
			rows:      state.Rows,
			useML:     true,
			manual:    req.Views,
			mode:      views.ModeBacktest,
		})
		if err != nil {
			return nil, err
		}
		state.SetDelta(out.equilibrium.Delta)

		decision := state.Rebalance(out.allocation.Weights, e.cfg.TurnoverSkip, e.cfg.CostPerTrade)
		if decision.Skipped {
			e.metrics.RecordRebalance(metrics.ActionSkipped)
		} else {
			e.metrics.RecordRebalance(metrics.ActionApplied)
		}

		period := periodReturns(m, i, testEnd, decision.Held)
		if len(period) > 0 {
			period[0] -= decision.Cost
		}
		portRets = append(portRets, period...)
		for t := i + 1; t < testEnd; t++ {
			benchRets = append(benchRets, m.Market[t]/m.Market[t-1]-1)
			retDates = append(retDates, m.Dates[t])
			held = append(held, decision.Held)
		}

		if out.features != nil {
			if label, ok := overlay.LabelPeriod(trailingMomentum(win.series), assetReturns(m, i, testEnd)); ok {
				state.AddRow(overlay.Row{Features: *out.features, Label: label})
			}
		}

		ev := RebalanceEvent{
			Index:          len(events),
			Date:           m.Dates[i-1].Format(prices.DateLayout),
			ActiveFrom:     m.Dates[i].Format(prices.DateLayout),
			Volatility:     string(out.volatility.Label),
			Concentrated:   out.concentration.Concentrated,
			MaxWeight:      out.maxWeight,
			Delta:          out.equilibrium.Delta,
			RawDelta:       out.equilibrium.RawDelta,
			DeltaFallback:  out.equilibrium.DeltaFallback,
			Override:       out.override,
			MomentumWeight: out.views.MomentumWeight,
			Views:          len(out.views.Views),
			Fallback:       out.allocation.Reason,
			Turnover:       decision.Turnover,
			Cost:           decision.Cost,
			Skipped:        decision.Skipped,
			Weights:        weightMap(m.Tickers, decision.Held),
		}
		if out.prediction != nil {
			p := out.prediction.Probability
			ev.Probability = &p
		}
		events = append(events, ev)
		if o.progress != nil {
			o.progress(ev)
		}

		log.Debug().
			Str("date", ev.Date).
			Str("volatility", ev.Volatility).
			Float64("delta", ev.Delta).
			Float64("turnover", ev.Turnover).
			Bool("skipped", ev.Skipped).
			Int("views", ev.Views).
			Msg("Rebalance")
	}

	if len(portRets) == 0 {
		return nil, engine.DataInsufficient("no simulation data generated between %s and %s", req.Start, req.End)
	}

	capital := e.cfg.InitialCapital
	portCurve := formulas.CompoundCurve(portRets, capital)
	benchCurve := formulas.CompoundCurve(benchRets, capital)

	dates := make([]string, len(retDates))
	for k, d := range retDates {
		dates[k] = d.Format(prices.DateLayout)
	}

	res := &BacktestResult{
		RunID:       o.runID,
		Dates:       dates,
		Portfolio:   portCurve,
		Benchmark:   benchCurve,
		Metrics:     summarize(portRets, benchRets, portCurve, benchCurve, capital),
		YearlyTable: yearlyTable(retDates, portCurve, benchCurve, held, m.Tickers, capital),
		Rebalances:  events,
	}

	log.Info().
		Int("rebalances", len(events)).
		Int("days", len(dates)).
		Float64("total_return", res.Metrics.TotalReturn).
		Float64("sharpe", res.Metrics.Sharpe).
		Msg("Backtest finished")
	return res, nil
}

// periodReturns is the daily return sequence of a buy-and-hold portfolio
// over rows [from, to), valued relative to the prices at row from.
func periodReturns(m *prices.Matrix, from, to int, w []float64) []float64 {
	base := m.Values[from]
	value := func(row int) float64 {
		v := 0.0
		for j, wj := range w {
			v += wj * m.Values[row][j] / base[j]
		}
		return v
	}

	out := make([]float64, 0, to-from-1)
	prev := value(from)
	for t := from + 1; t < to; t++ {
		cur := value(t)
		r := 0.0
		if prev != 0 {
			r = cur/prev - 1
		}
		out = append(out, r)
		prev = cur
	}
	return out
}

// trailingMomentum is each asset's 12-month change at the end of its window.
func trailingMomentum(series [][]float64) []float64 {
	out := make([]float64, len(series))
	for j, s := range series {
		out[j], _ = formulas.LastPctChange(s, 252)
	}
	return out
}

// assetReturns is each asset's change over rows [from, to).
func assetReturns(m *prices.Matrix, from, to int) []float64 {
	out := make([]float64, len(m.Tickers))
	for j := range out {
		out[j] = m.Values[to-1][j]/m.Values[from][j] - 1
	}
	return out
}

func weightMap(tickers []string, w []float64) map[string]float64 {
	out := make(map[string]float64, len(tickers))
	for i, t := range tickers {
		out[t] = w[i]
	}
	return out
}
