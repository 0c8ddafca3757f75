package backtest

import (
	"context"
	"testing"

	"github.com/aristath/sectorbl/internal/config"
	"github.com/aristath/sectorbl/internal/engine"
	"github.com/aristath/sectorbl/internal/prices"
	testutil "github.com/aristath/sectorbl/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullRange(m *prices.Matrix) BacktestRequest {
	return BacktestRequest{
		Start: m.Dates[0].Format(prices.DateLayout),
		End:   m.LastDate().Format(prices.DateLayout),
	}
}

func TestBacktestFlatPrices(t *testing.T) {
	cfg := config.DefaultEngine()
	m := testutil.FlatMatrix(cfg.TrainWindow+cfg.RebalanceFreq*3+11, sectorTickers())
	e := newTestEngine(m)

	res, err := e.RunBacktest(context.Background(), fullRange(m))
	require.NoError(t, err)

	require.Len(t, res.Rebalances, 4)
	assert.Len(t, res.Portfolio, len(res.Dates))
	assert.Len(t, res.Benchmark, len(res.Dates))
	for i := range res.Portfolio {
		assert.Equal(t, cfg.InitialCapital, res.Portfolio[i])
		assert.Equal(t, cfg.InitialCapital, res.Benchmark[i])
	}
	for _, ev := range res.Rebalances {
		assert.Zero(t, ev.Cost)
	}

	assert.Equal(t, Summary{}, res.Metrics)
	require.NotEmpty(t, res.YearlyTable)
	for _, row := range res.YearlyTable {
		assert.Zero(t, row.Portfolio)
		assert.Zero(t, row.Benchmark)
		assert.Zero(t, row.Diff)
	}
}

func TestBacktestInvariants(t *testing.T) {
	cfg := config.DefaultEngine()
	m := testutil.SectorMatrix(cfg.TrainWindow+cfg.RebalanceFreq*6+20, 9)
	e := newTestEngine(m)

	var observed []RebalanceEvent
	res, err := e.RunBacktest(context.Background(), fullRange(m), WithProgress(func(ev RebalanceEvent) {
		observed = append(observed, ev)
	}), WithRunID("run-1"))
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, res.Rebalances, observed)
	require.Len(t, res.Rebalances, 7)

	var prev map[string]float64
	for i, ev := range res.Rebalances {
		assert.GreaterOrEqual(t, ev.Delta, cfg.DeltaMin)
		assert.LessOrEqual(t, ev.Delta, cfg.DeltaMax)
		if ev.Concentrated {
			assert.Equal(t, cfg.ConcMaxWeight, ev.MaxWeight)
		} else {
			assert.Equal(t, cfg.MaxWeight, ev.MaxWeight)
		}

		sum := 0.0
		for _, w := range ev.Weights {
			assert.GreaterOrEqual(t, w, 0.0)
			assert.LessOrEqual(t, w, cfg.ConcMaxWeight+1e-5)
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-3)

		switch {
		case i == 0:
			assert.Zero(t, ev.Cost)
		case ev.Skipped:
			assert.Equal(t, prev, ev.Weights)
			assert.Zero(t, ev.Cost)
			assert.Zero(t, ev.Turnover)
		default:
			assert.GreaterOrEqual(t, ev.Turnover, cfg.TurnoverSkip)
			assert.InDelta(t, ev.Turnover*cfg.CostPerTrade, ev.Cost, 1e-15)
		}
		prev = ev.Weights
	}

	assert.Equal(t, m.Dates[cfg.TrainWindow+1].Format(prices.DateLayout), res.Dates[0])
	assert.LessOrEqual(t, res.Metrics.MaxDrawdown, 0.0)
	assert.Equal(t, res.Portfolio[len(res.Portfolio)-1]/cfg.InitialCapital-1, res.Metrics.TotalReturn)
}

func TestBacktestStartAlignsToRebalanceGrid(t *testing.T) {
	cfg := config.DefaultEngine()
	m := testutil.SectorMatrix(cfg.TrainWindow+cfg.RebalanceFreq*4+5, 4)
	e := newTestEngine(m)

	req := fullRange(m)
	req.Start = m.Dates[cfg.TrainWindow+cfg.RebalanceFreq+10].Format(prices.DateLayout)
	res, err := e.RunBacktest(context.Background(), req)
	require.NoError(t, err)

	// first grid row at or after the requested start
	first := cfg.TrainWindow + 2*cfg.RebalanceFreq
	assert.Equal(t, m.Dates[first].Format(prices.DateLayout), res.Rebalances[0].ActiveFrom)

	req.End = m.Dates[first].Format(prices.DateLayout)
	res, err = e.RunBacktest(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, res.Rebalances, 1)
}

func TestBacktestErrors(t *testing.T) {
	cfg := config.DefaultEngine()
	m := testutil.FlatMatrix(cfg.TrainWindow+cfg.RebalanceFreq, sectorTickers())
	e := newTestEngine(m)
	ctx := context.Background()

	_, err := e.RunBacktest(ctx, BacktestRequest{Start: "yesterday", End: "2020-01-01"})
	assert.ErrorIs(t, err, engine.ErrInvalidDateRange)

	_, err = e.RunBacktest(ctx, BacktestRequest{Start: "2020-01-01", End: "2019-01-01"})
	assert.ErrorIs(t, err, engine.ErrInvalidDateRange)

	_, err = e.RunBacktest(ctx, BacktestRequest{Start: "2030-01-01", End: "2031-01-01"})
	assert.ErrorIs(t, err, engine.ErrDataInsufficient)

	short := newTestEngine(testutil.FlatMatrix(cfg.TrainWindow, sectorTickers()))
	_, err = short.RunBacktest(ctx, fullRange(m))
	assert.ErrorIs(t, err, engine.ErrDataInsufficient)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = e.RunBacktest(cancelled, fullRange(m))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBacktestOverlayEngagesOnceRowsAccumulate(t *testing.T) {
	cfg := config.DefaultEngine()
	m := testutil.SectorMatrix(cfg.TrainWindow+cfg.RebalanceFreq*45, 1)
	e := newTestEngine(m)

	res, err := e.RunBacktest(context.Background(), fullRange(m))
	require.NoError(t, err)
	require.Greater(t, len(res.Rebalances), cfg.MLMinRows)

	predicted := 0
	for _, ev := range res.Rebalances {
		// one labelled row per completed period, so rebalance k trains on at most k rows
		if ev.Index < cfg.MLMinRows {
			assert.Nil(t, ev.Probability, "rebalance %d", ev.Index)
			assert.Nil(t, ev.Override, "rebalance %d", ev.Index)
			continue
		}
		if ev.Probability == nil {
			continue
		}
		predicted++
		require.NotNil(t, ev.Override)

		want := e.overlay.OverrideFor(*ev.Probability)
		if ev.Concentrated {
			want = e.overlay.ConcentrationBonus(want)
		}
		assert.InDelta(t, want, *ev.Override, 1e-12, "rebalance %d", ev.Index)
		assert.InDelta(t, *ev.Override, ev.MomentumWeight, 1e-12, "rebalance %d", ev.Index)
	}
	assert.Positive(t, predicted)
}
