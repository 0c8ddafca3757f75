package testing

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/aristath/sectorbl/internal/prices"
)

// FixtureStart is the first trading date of generated matrices.
var FixtureStart = time.Date(2015, 1, 2, 0, 0, 0, 0, time.UTC)

// BusinessDays returns n consecutive weekdays starting at start (inclusive when it is a weekday).
func BusinessDays(start time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	d := start
	for len(out) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			out = append(out, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return out
}

// AssetSpec describes one generated asset: annual drift and volatility.
type AssetSpec struct {
	Ticker string
	Drift  float64
	Vol    float64
}

// MatrixSpec configures SyntheticMatrix.
type MatrixSpec struct {
	Rows     int
	Assets   []AssetSpec
	Seed     uint64
	RiskFree float64 // percent yield, 0 leaves RiskFree nil
}

// SyntheticMatrix builds a deterministic lognormal price matrix. Each asset
// loads on a common market factor plus its own noise; the market series is
// the equal-weighted index of the assets.
func SyntheticMatrix(spec MatrixSpec) *prices.Matrix {
	rng := rand.New(rand.NewPCG(spec.Seed, spec.Seed^0x9e3779b97f4a7c15))
	dt := 1.0 / 252.0
	n := spec.Rows

	m := &prices.Matrix{
		Dates:  BusinessDays(FixtureStart, n),
		Values: make([][]float64, n),
		Market: make([]float64, n),
	}
	for _, a := range spec.Assets {
		m.Tickers = append(m.Tickers, a.Ticker)
	}

	level := make([]float64, len(spec.Assets))
	for j := range level {
		level[j] = 100
	}
	market := 100.0
	for i := 0; i < n; i++ {
		row := make([]float64, len(spec.Assets))
		if i == 0 {
			copy(row, level)
		} else {
			common := rng.NormFloat64()
			sum := 0.0
			for j, a := range spec.Assets {
				shock := 0.6*common + 0.8*rng.NormFloat64()
				r := (a.Drift-0.5*a.Vol*a.Vol)*dt + a.Vol*math.Sqrt(dt)*shock
				prev := level[j]
				level[j] = prev * math.Exp(r)
				sum += level[j]/prev - 1
			}
			market *= 1 + sum/float64(len(spec.Assets))
			copy(row, level)
		}
		m.Values[i] = row
		m.Market[i] = market
	}

	if spec.RiskFree != 0 {
		m.RiskFree = make([]float64, n)
		for i := range m.RiskFree {
			m.RiskFree[i] = spec.RiskFree
		}
	}
	return m
}

// SectorSpecs returns eleven sector-like assets with spread-out drifts and vols.
func SectorSpecs() []AssetSpec {
	tickers := []string{"XLB", "XLC", "XLE", "XLF", "XLI", "XLK", "XLP", "XLRE", "XLU", "XLV", "XLY"}
	out := make([]AssetSpec, len(tickers))
	for i, t := range tickers {
		out[i] = AssetSpec{
			Ticker: t,
			Drift:  0.02 + 0.01*float64(i),
			Vol:    0.12 + 0.015*float64(i%5),
		}
	}
	return out
}

// SectorMatrix is SyntheticMatrix over SectorSpecs.
func SectorMatrix(rows int, seed uint64) *prices.Matrix {
	return SyntheticMatrix(MatrixSpec{Rows: rows, Assets: SectorSpecs(), Seed: seed, RiskFree: 2.0})
}

// FlatMatrix returns a matrix where every asset and the market close at 100 every day.
func FlatMatrix(rows int, tickers []string) *prices.Matrix {
	m := &prices.Matrix{
		Dates:   BusinessDays(FixtureStart, rows),
		Tickers: append([]string(nil), tickers...),
		Values:  make([][]float64, rows),
		Market:  make([]float64, rows),
	}
	for i := range m.Values {
		row := make([]float64, len(tickers))
		for j := range row {
			row[j] = 100
		}
		m.Values[i] = row
		m.Market[i] = 100
	}
	return m
}

// GrowthSeries returns n prices starting at 100 compounding at a constant daily rate.
func GrowthSeries(n int, daily float64) []float64 {
	out := make([]float64, n)
	p := 100.0
	for i := range out {
		out[i] = p
		p *= 1 + daily
	}
	return out
}

// StaticPrices serves a fixed matrix as the current price snapshot.
type StaticPrices struct {
	M *prices.Matrix
}

// Current returns the fixed matrix, nil when none is set.
func (s StaticPrices) Current() *prices.Matrix {
	return s.M
}
