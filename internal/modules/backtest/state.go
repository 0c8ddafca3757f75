package backtest

import (
	"math"

	"github.com/aristath/sectorbl/internal/modules/overlay"
)

// State is carried from one rebalance to the next within a single run.
type State struct {
	// PrevWeights is the realized allocation, nil before the first rebalance.
	PrevWeights []float64
	PrevDelta   *float64
	Rows        []overlay.Row
}

// Decision is the outcome of comparing a target allocation with the held one.
type Decision struct {
	Held     []float64
	Turnover float64
	Cost     float64
	Skipped  bool
}

// Rebalance decides whether to trade into target. Turnover is half the L1
// distance from the realized allocation. Below threshold the previous weights
// are kept and nothing is charged; otherwise target is adopted and
// turnover*costPerTrade is charged. The first allocation is free.
func (s *State) Rebalance(target []float64, threshold, costPerTrade float64) Decision {
	if s.PrevWeights == nil {
		s.PrevWeights = append([]float64(nil), target...)
		return Decision{Held: s.PrevWeights, Turnover: turnover(nil, target)}
	}

	to := turnover(s.PrevWeights, target)
	if to < threshold {
		return Decision{Held: s.PrevWeights, Skipped: true}
	}
	s.PrevWeights = append([]float64(nil), target...)
	return Decision{Held: s.PrevWeights, Turnover: to, Cost: to * costPerTrade}
}

// SetDelta records the risk aversion used by the latest window.
func (s *State) SetDelta(delta float64) {
	s.PrevDelta = &delta
}

// AddRow appends a labelled overlay example.
func (s *State) AddRow(r overlay.Row) {
	s.Rows = append(s.Rows, r)
}

func turnover(prev, next []float64) float64 {
	sum := 0.0
	for i, w := range next {
		p := 0.0
		if i < len(prev) {
			p = prev[i]
		}
		sum += math.Abs(w - p)
	}
	return sum / 2
}
