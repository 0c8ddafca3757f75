package reporting

import (
	"fmt"
	"io"
	"sort"

	"github.com/aristath/sectorbl/internal/modules/backtest"
	"github.com/aristath/sectorbl/internal/modules/simulation"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

// RenderTables prints the summary metrics, the calendar-year table and the
// rebalance log of a backtest.
func RenderTables(w io.Writer, res *backtest.BacktestResult) {
	m := res.Metrics
	summary := newTable(w, "BACKTEST SUMMARY")
	summary.AppendHeader(table.Row{"Metric", "Portfolio", "SPY"})
	summary.AppendRows([]table.Row{
		{"Total return", pct(m.TotalReturn), pct(m.BenchmarkTotalReturn)},
		{"Sharpe", fmt.Sprintf("%.2f", m.Sharpe), fmt.Sprintf("%.2f", m.BenchmarkSharpe)},
		{"Max drawdown", pct(m.MaxDrawdown), pct(m.BenchmarkMaxDrawdown)},
		{"Volatility", pct(m.Volatility), pct(m.BenchmarkVolatility)},
	})
	summary.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	summary.Render()
	fmt.Fprintln(w)

	yearly := newTable(w, "CALENDAR YEARS")
	yearly.AppendHeader(table.Row{"Year", "Portfolio", "SPY", "Diff", "Top Holdings"})
	for _, y := range res.YearlyTable {
		yearly.AppendRow(table.Row{y.Year, pct(y.Portfolio), pct(y.Benchmark), pct(y.Diff), y.TopHoldings})
	}
	yearly.Render()
	fmt.Fprintln(w)

	rebalances := newTable(w, "REBALANCES")
	rebalances.AppendHeader(table.Row{"Date", "Vol", "Conc", "Delta", "ML", "Views", "Turnover", "Top Weights"})
	for _, ev := range res.Rebalances {
		ml := "-"
		if ev.Probability != nil {
			ml = fmt.Sprintf("%.2f", *ev.Probability)
		}
		turnover := pct(ev.Turnover)
		if ev.Skipped {
			turnover = "skipped"
		}
		rebalances.AppendRow(table.Row{
			ev.Date, ev.Volatility, ev.Concentrated, fmt.Sprintf("%.2f", ev.Delta),
			ml, ev.Views, turnover, topWeights(ev.Weights, 3),
		})
	}
	rebalances.Render()
}

// RenderScenario prints a scenario allocation sorted by weight.
func RenderScenario(w io.Writer, res *backtest.ScenarioResult) {
	t := newTable(w, fmt.Sprintf("SCENARIO %s", res.Date))
	t.AppendHeader(table.Row{"Ticker", "Weight"})
	for _, tw := range sortedWeights(res.Weights) {
		t.AppendRow(table.Row{tw.ticker, pct(tw.weight)})
	}
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Volatility regime", res.Regime.Volatility},
		{"Concentrated", res.Regime.Concentrated},
		{"Delta", fmt.Sprintf("%.2f", res.Metrics.Delta)},
		{"Expected return", pct(res.Metrics.ExpectedReturn)},
		{"Expected volatility", pct(res.Metrics.Volatility)},
	})
	for _, s := range res.AppliedScenarios {
		t.AppendRow(table.Row{"Applied view", s})
	}
	if res.UsedFallback {
		t.AppendRow(table.Row{"Fallback", res.FallbackReason})
	}
	t.Render()
}

// RenderMonteCarlo prints the percentile bands at a few horizons.
func RenderMonteCarlo(w io.Writer, res *simulation.Result) {
	t := newTable(w, fmt.Sprintf("MONTE CARLO (%d paths, seed %d)", res.SimulationCount, res.Seed))
	t.AppendHeader(table.Row{"Day", "P05", "P25", "P50", "P75", "P95"})
	last := len(res.Days) - 1
	prev := -1
	for _, i := range []int{0, last / 4, last / 2, 3 * last / 4, last} {
		if i <= prev {
			continue
		}
		prev = i
		t.AppendRow(table.Row{
			res.Days[i],
			fmt.Sprintf("%.2f", res.P05[i]),
			fmt.Sprintf("%.2f", res.P25[i]),
			fmt.Sprintf("%.2f", res.P50[i]),
			fmt.Sprintf("%.2f", res.P75[i]),
			fmt.Sprintf("%.2f", res.P95[i]),
		})
	}
	t.Render()
}

type tickerWeight struct {
	ticker string
	weight float64
}

func sortedWeights(weights map[string]float64) []tickerWeight {
	out := make([]tickerWeight, 0, len(weights))
	for t, w := range weights {
		out = append(out, tickerWeight{t, w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].weight != out[j].weight {
			return out[i].weight > out[j].weight
		}
		return out[i].ticker < out[j].ticker
	})
	return out
}

func topWeights(weights map[string]float64, n int) string {
	s := ""
	for i, tw := range sortedWeights(weights) {
		if i == n || tw.weight <= 0 {
			break
		}
		if s != "" {
			s += " "
		}
		s += fmt.Sprintf("%s(%.0f%%)", tw.ticker, tw.weight*100)
	}
	return s
}
