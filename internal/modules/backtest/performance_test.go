package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestYearlyTable(t *testing.T) {
	dates := []time.Time{day(2020, 12, 30), day(2020, 12, 31), day(2021, 1, 4), day(2021, 1, 5)}
	port := []float64{10100, 11000, 11550, 12100}
	bench := []float64{10000, 10500, 10500, 10290}
	held := [][]float64{
		{0.6, 0.4, 0},
		{0.6, 0.4, 0},
		{0.2, 0.795, 0.005},
		{0.2, 0.795, 0.005},
	}

	rows := yearlyTable(dates, port, bench, held, []string{"AAA", "BBB", "CCC"}, 10000)
	require.Len(t, rows, 2)

	assert.Equal(t, 2020, rows[0].Year)
	assert.InDelta(t, 0.10, rows[0].Portfolio, 1e-12)
	assert.InDelta(t, 0.05, rows[0].Benchmark, 1e-12)
	assert.InDelta(t, 0.05, rows[0].Diff, 1e-12)
	assert.Equal(t, "AAA(60%) BBB(40%)", rows[0].TopHoldings)

	assert.Equal(t, 2021, rows[1].Year)
	assert.InDelta(t, 0.10, rows[1].Portfolio, 1e-12)
	assert.InDelta(t, -0.02, rows[1].Benchmark, 1e-12)
	assert.Equal(t, "BBB(80%) AAA(20%)", rows[1].TopHoldings)
}

func TestTopHoldings(t *testing.T) {
	tickers := []string{"A", "B", "C", "D"}
	assert.Equal(t, "D(40%) B(30%) A(20%)", topHoldings([]float64{0.2, 0.3, 0.1, 0.4}, tickers, 3))
	assert.Equal(t, "A(50%) B(50%)", topHoldings([]float64{0.5, 0.5, 0, 0}, tickers, 3))
	assert.Equal(t, cashLabel, topHoldings([]float64{0, 0.005, 0, 0}, tickers, 3))
}

func TestSummarize(t *testing.T) {
	port := []float64{0.01, -0.02, 0.03}
	bench := []float64{0, 0, 0}
	portCurve := []float64{10100, 9898, 10194.94}
	benchCurve := []float64{10000, 10000, 10000}

	s := summarize(port, bench, portCurve, benchCurve, 10000)
	assert.InDelta(t, 0.019494, s.TotalReturn, 1e-9)
	assert.Zero(t, s.BenchmarkTotalReturn)
	assert.InDelta(t, 9898.0/10100-1, s.MaxDrawdown, 1e-12)
	assert.Zero(t, s.BenchmarkSharpe)
	assert.Zero(t, s.BenchmarkVolatility)
	assert.Greater(t, s.Volatility, 0.0)
}
