package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/sectorbl/internal/config"
	testutil "github.com/aristath/sectorbl/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceCachesBacktests(t *testing.T) {
	cfg := config.DefaultEngine()
	m := testutil.FlatMatrix(cfg.TrainWindow+cfg.RebalanceFreq*2, sectorTickers())
	db := testutil.NewTestDB(t, "service")
	svc := NewService(newTestEngine(m), NewSQLiteCache(db.Conn(), time.Hour, zerolog.Nop()), nil, zerolog.Nop())
	ctx := context.Background()

	first, cached, err := svc.Backtest(ctx, fullRange(m))
	require.NoError(t, err)
	assert.False(t, cached)

	replayed := 0
	second, cached, err := svc.Backtest(ctx, fullRange(m), WithProgress(func(RebalanceEvent) { replayed++ }))
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, len(first.Rebalances), replayed)

	other := fullRange(m)
	other.Start = m.Dates[cfg.TrainWindow+cfg.RebalanceFreq].Format("2006-01-02")
	_, cached, err = svc.Backtest(ctx, other)
	require.NoError(t, err)
	assert.False(t, cached)
}

func TestServiceWithoutCache(t *testing.T) {
	cfg := config.DefaultEngine()
	m := testutil.FlatMatrix(cfg.TrainWindow+cfg.RebalanceFreq, sectorTickers())
	svc := NewService(newTestEngine(m), nil, nil, zerolog.Nop())

	_, cached, err := svc.Backtest(context.Background(), fullRange(m))
	require.NoError(t, err)
	assert.False(t, cached)

	res, err := svc.Scenario(context.Background(), ScenarioRequest{})
	require.NoError(t, err)
	assert.Len(t, res.Weights, len(sectorTickers()))
}

func TestServiceReady(t *testing.T) {
	assert.False(t, NewService(newTestEngine(nil), nil, nil, zerolog.Nop()).Ready())

	m := testutil.FlatMatrix(10, sectorTickers())
	assert.True(t, NewService(newTestEngine(m), nil, nil, zerolog.Nop()).Ready())
}
