package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateRebalance(t *testing.T) {
	s := &State{}

	first := s.Rebalance([]float64{0.5, 0.5, 0}, 0.08, 0.0005)
	assert.False(t, first.Skipped)
	assert.Zero(t, first.Cost)
	assert.InDelta(t, 0.5, first.Turnover, 1e-12)

	small := s.Rebalance([]float64{0.45, 0.5, 0.05}, 0.08, 0.0005)
	assert.True(t, small.Skipped)
	assert.Equal(t, []float64{0.5, 0.5, 0}, small.Held)
	assert.Zero(t, small.Cost)
	assert.Zero(t, small.Turnover)

	big := s.Rebalance([]float64{0.2, 0.5, 0.3}, 0.08, 0.0005)
	assert.False(t, big.Skipped)
	assert.InDelta(t, 0.3, big.Turnover, 1e-12)
	assert.InDelta(t, 0.3*0.0005, big.Cost, 1e-15)
	assert.Equal(t, []float64{0.2, 0.5, 0.3}, s.PrevWeights)
}

func TestStateDeltaAndRows(t *testing.T) {
	s := &State{}
	assert.Nil(t, s.PrevDelta)
	s.SetDelta(2.5)
	s.SetDelta(3.1)
	assert.Equal(t, 3.1, *s.PrevDelta)
}
