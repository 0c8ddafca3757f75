// Package simulation runs Monte Carlo projections of a portfolio value.
package simulation

import (
	"math"
	"math/rand/v2"

	"github.com/aristath/sectorbl/internal/engine"
	"github.com/aristath/sectorbl/pkg/formulas"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	startValue = 100.0
	dt         = 1.0 / 252.0

	DefaultDays    = 252
	DefaultPaths   = 5000
	DefaultSamples = 5

	maxDays  = 2520
	maxPaths = 50000
	// maxCells caps Days*Paths, the size of the simulated grid
	maxCells = 10_000_000
)

// Params configures a geometric Brownian motion simulation. Zero Days, Paths
// or Samples take the defaults; a nil Seed draws one.
type Params struct {
	Mu      float64
	Sigma   float64
	Days    int
	Paths   int
	Samples int
	Seed    *uint64
}

// Result holds percentile curves per day plus a few raw paths.
type Result struct {
	Days            []int       `json:"days"`
	P05             []float64   `json:"p05"`
	P25             []float64   `json:"p25"`
	P50             []float64   `json:"p50"`
	P75             []float64   `json:"p75"`
	P95             []float64   `json:"p95"`
	SamplePaths     [][]float64 `json:"sample_paths"`
	SimulationCount int         `json:"simulation_count"`
	Seed            uint64      `json:"seed"`
}

func (p *Params) normalize() error {
	if p.Days == 0 {
		p.Days = DefaultDays
	}
	if p.Paths == 0 {
		p.Paths = DefaultPaths
	}
	if p.Samples == 0 {
		p.Samples = DefaultSamples
	}
	switch {
	case !formulas.IsFinite(p.Mu) || !formulas.IsFinite(p.Sigma):
		return engine.InvalidRequest("mu and sigma must be finite")
	case p.Sigma < 0:
		return engine.InvalidRequest("sigma must not be negative, got %g", p.Sigma)
	case p.Days < 2 || p.Days > maxDays:
		return engine.InvalidRequest("days must be within [2, %d], got %d", maxDays, p.Days)
	case p.Paths < 1 || p.Paths > maxPaths:
		return engine.InvalidRequest("paths must be within [1, %d], got %d", maxPaths, p.Paths)
	case p.Days*p.Paths > maxCells:
		return engine.InvalidRequest("days*paths must not exceed %d, got %d", maxCells, p.Days*p.Paths)
	case p.Samples < 0:
		return engine.InvalidRequest("samples must not be negative, got %d", p.Samples)
	}
	p.Samples = min(p.Samples, p.Paths)
	return nil
}

// Simulate runs independent GBM paths from 100 with daily step 1/252:
// S(t) = S(t-1) * exp((mu - sigma^2/2) dt + sigma sqrt(dt) Z).
func Simulate(params Params) (*Result, error) {
	if err := params.normalize(); err != nil {
		return nil, err
	}
	seed := rand.Uint64()
	if params.Seed != nil {
		seed = *params.Seed
	}
	rng := rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb))
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}

	days, paths := params.Days, params.Paths
	drift := (params.Mu - 0.5*params.Sigma*params.Sigma) * dt
	shock := params.Sigma * math.Sqrt(dt)

	// grid[t][k] is path k on day t
	grid := make([][]float64, days)
	grid[0] = make([]float64, paths)
	for k := range grid[0] {
		grid[0][k] = startValue
	}
	for t := 1; t < days; t++ {
		row := make([]float64, paths)
		prev := grid[t-1]
		for k := range row {
			row[k] = prev[k] * math.Exp(drift+shock*normal.Rand())
		}
		grid[t] = row
	}
	// Inf and NaN are absorbing, so checking the last day covers every path
	for _, v := range grid[days-1] {
		if !formulas.IsFinite(v) {
			return nil, engine.InvalidRequest("simulation overflowed with mu=%g sigma=%g over %d days", params.Mu, params.Sigma, days)
		}
	}

	res := &Result{
		Days:            make([]int, days),
		P05:             make([]float64, days),
		P25:             make([]float64, days),
		P50:             make([]float64, days),
		P75:             make([]float64, days),
		P95:             make([]float64, days),
		SimulationCount: paths,
		Seed:            seed,
	}
	for t, row := range grid {
		q := formulas.Percentiles(row, 5, 25, 50, 75, 95)
		res.Days[t] = t
		res.P05[t], res.P25[t], res.P50[t], res.P75[t], res.P95[t] = q[0], q[1], q[2], q[3], q[4]
	}

	res.SamplePaths = make([][]float64, 0, params.Samples)
	for _, k := range rng.Perm(paths)[:params.Samples] {
		path := make([]float64, days)
		for t := range path {
			path[t] = grid[t][k]
		}
		res.SamplePaths = append(res.SamplePaths, path)
	}
	return res, nil
}
