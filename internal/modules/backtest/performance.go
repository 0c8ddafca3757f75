package backtest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/sectorbl/pkg/formulas"
)

// cashLabel stands in for holdings when nothing above 1% was held.
const cashLabel = "Cash/Div."

const minReportedWeight = 0.01

// Summary compares the portfolio with the benchmark.
type Summary struct {
	TotalReturn          float64 `json:"total_return" msgpack:"total_return"`
	BenchmarkTotalReturn float64 `json:"spy_total_return" msgpack:"spy_total_return"`
	Sharpe               float64 `json:"sharpe" msgpack:"sharpe"`
	BenchmarkSharpe      float64 `json:"spy_sharpe" msgpack:"spy_sharpe"`
	MaxDrawdown          float64 `json:"max_dd" msgpack:"max_dd"`
	BenchmarkMaxDrawdown float64 `json:"spy_max_dd" msgpack:"spy_max_dd"`
	Volatility           float64 `json:"volatility" msgpack:"volatility"`
	BenchmarkVolatility  float64 `json:"spy_volatility" msgpack:"spy_volatility"`
}

// YearRow is one calendar year of the yearly table.
type YearRow struct {
	Year        int     `json:"year" msgpack:"year"`
	Portfolio   float64 `json:"portfolio" msgpack:"portfolio"`
	Benchmark   float64 `json:"spy" msgpack:"spy"`
	Diff        float64 `json:"diff" msgpack:"diff"`
	TopHoldings string  `json:"top_holdings" msgpack:"top_holdings"`
}

func summarize(port, bench, portCurve, benchCurve []float64, capital float64) Summary {
	vol := func(r []float64) float64 {
		v := formulas.AnnualizedVolatility(r)
		if !formulas.IsFinite(v) {
			return 0
		}
		return v
	}
	total := func(curve []float64) float64 {
		if len(curve) == 0 {
			return 0
		}
		return curve[len(curve)-1]/capital - 1
	}
	return Summary{
		TotalReturn:          total(portCurve),
		BenchmarkTotalReturn: total(benchCurve),
		Sharpe:               formulas.AnnualizedSharpe(port),
		BenchmarkSharpe:      formulas.AnnualizedSharpe(bench),
		MaxDrawdown:          formulas.CalculateMaxDrawdown(portCurve),
		BenchmarkMaxDrawdown: formulas.CalculateMaxDrawdown(benchCurve),
		Volatility:           vol(port),
		BenchmarkVolatility:  vol(bench),
	}
}

// yearlyTable measures each calendar year from the previous year-end value
// (the starting capital for the first year). held[i] is the allocation in
// force on dates[i].
func yearlyTable(dates []time.Time, portCurve, benchCurve []float64, held [][]float64, tickers []string, capital float64) []YearRow {
	var rows []YearRow
	prevPort, prevBench := capital, capital

	for i := 0; i < len(dates); {
		year := dates[i].Year()
		j := i
		avg := make([]float64, len(tickers))
		for ; j < len(dates) && dates[j].Year() == year; j++ {
			for k, w := range held[j] {
				avg[k] += w
			}
		}
		days := float64(j - i)
		for k := range avg {
			avg[k] /= days
		}

		p := portCurve[j-1]/prevPort - 1
		b := benchCurve[j-1]/prevBench - 1
		rows = append(rows, YearRow{
			Year:        year,
			Portfolio:   p,
			Benchmark:   b,
			Diff:        p - b,
			TopHoldings: topHoldings(avg, tickers, 3),
		})
		prevPort, prevBench = portCurve[j-1], benchCurve[j-1]
		i = j
	}
	return rows
}

// topHoldings formats the n largest weights above 1% as "XLK(25%) XLV(20%)".
func topHoldings(weights []float64, tickers []string, n int) string {
	idx := make([]int, len(weights))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return weights[idx[a]] > weights[idx[b]] })

	parts := make([]string, 0, n)
	for _, i := range idx[:min(n, len(idx))] {
		if weights[i] > minReportedWeight {
			parts = append(parts, fmt.Sprintf("%s(%.0f%%)", tickers[i], weights[i]*100))
		}
	}
	if len(parts) == 0 {
		return cashLabel
	}
	return strings.Join(parts, " ")
}
