package backtest

import (
	"context"
	"testing"
	"time"

	testutil "github.com/aristath/sectorbl/internal/testing"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *BacktestResult {
	override := 0.61
	return &BacktestResult{
		RunID:     "abc",
		Dates:     []string{"2020-01-02", "2020-01-03"},
		Portfolio: []float64{10010, 10020},
		Benchmark: []float64{10000, 9990},
		Metrics:   Summary{TotalReturn: 0.002, MaxDrawdown: -0.001},
		YearlyTable: []YearRow{
			{Year: 2020, Portfolio: 0.002, Benchmark: -0.001, Diff: 0.003, TopHoldings: "XLK(30%)"},
		},
		Rebalances: []RebalanceEvent{
			{Index: 0, Date: "2020-01-01", Override: &override, Weights: map[string]float64{"XLK": 0.3, "XLV": 0.7}},
		},
	}
}

func TestCacheKey(t *testing.T) {
	req := BacktestRequest{Start: "2020-01-01", End: "2021-01-01"}
	a, err := CacheKey(req, "v1")
	require.NoError(t, err)
	b, err := CacheKey(req, "v1")
	require.NoError(t, err)
	c, err := CacheKey(req, "v2")
	require.NoError(t, err)
	req.End = "2021-06-01"
	d, err := CacheKey(req, "v1")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Len(t, a, 64)
}

func TestSQLiteCache(t *testing.T) {
	db := testutil.NewTestDB(t, "cache")
	cache := NewSQLiteCache(db.Conn(), time.Hour, zerolog.Nop())
	ctx := context.Background()
	key, err := CacheKey(BacktestRequest{Start: "2020-01-01", End: "2021-01-01"}, "v1")
	require.NoError(t, err)

	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	want := sampleResult()
	require.NoError(t, cache.Put(ctx, key, want))
	require.NoError(t, cache.Put(ctx, key, want))

	got, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	// two hours later the entry has expired
	cache.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, ok, err = cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := cache.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestRedisCacheUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewRedisCache(client, time.Hour, "sectorbl:")

	_, ok, err := cache.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.Error(t, err)
	assert.Error(t, cache.Put(context.Background(), "k", sampleResult()))
}
