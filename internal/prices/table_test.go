package prices

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/aristath/sectorbl/internal/config"
	"github.com/aristath/sectorbl/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallEngine() config.Engine {
	cfg := config.DefaultEngine()
	cfg.Tickers = []string{"AAA", "REIT"}
	cfg.MarketSymbol = "MKT"
	cfg.RiskFreeSymbol = "RF"
	cfg.ProxyFills = []config.ProxyFill{{Primary: "REIT", Proxy: "PRX"}}
	return cfg
}

func series(dates []string, values []float64) map[time.Time]float64 {
	out := make(map[time.Time]float64, len(dates))
	for i, d := range dates {
		if !math.IsNaN(values[i]) {
			out[day(d)] = values[i]
		}
	}
	return out
}

func TestPrepare_ProxyFillAndAlignment(t *testing.T) {
	dates := []string{"2020-01-02", "2020-01-03", "2020-01-06", "2020-01-07", "2020-01-08"}
	nan := math.NaN()
	table := NewTable(map[string]map[time.Time]float64{
		"AAA":  series(dates, []float64{10, 11, 12, 13, 14}),
		"REIT": series(dates, []float64{nan, nan, 50, 51, 52}),
		"PRX":  series(dates, []float64{20, 22, 25, 26, 27}),
		"MKT":  series(dates, []float64{100, nan, 102, 103, 104}),
		"RF":   series(dates, []float64{1.0, nan, nan, 1.2, nan}),
	})

	m, err := Prepare(table, smallEngine())
	require.NoError(t, err)

	// 2020-01-03 dropped because the market is missing
	require.Equal(t, 4, m.Len())
	assert.Equal(t, day("2020-01-02"), m.Dates[0])
	assert.Equal(t, day("2020-01-06"), m.Dates[1])

	// proxy scaled by 50/25 at the first overlap
	reit, _ := m.Column("REIT")
	assert.InDelta(t, 40.0, reit[0], 1e-12)
	assert.InDelta(t, 50.0, reit[1], 1e-12)

	// risk-free forward-filled before rows are dropped
	assert.Equal(t, []float64{1.0, 1.0, 1.2, 1.2}, m.RiskFree)
}

func TestPrepare_Insufficient(t *testing.T) {
	_, err := Prepare(nil, smallEngine())
	assert.True(t, errors.Is(err, engine.ErrDataInsufficient))

	table := NewTable(map[string]map[time.Time]float64{
		"AAA": series([]string{"2020-01-02"}, []float64{1}),
		"MKT": series([]string{"2020-01-02"}, []float64{1}),
	})
	_, err = Prepare(table, smallEngine())
	assert.True(t, errors.Is(err, engine.ErrDataInsufficient))

	noMarket := NewTable(map[string]map[time.Time]float64{
		"AAA": series([]string{"2020-01-02"}, []float64{1}),
	})
	_, err = Prepare(noMarket, smallEngine())
	assert.True(t, errors.Is(err, engine.ErrDataInsufficient))
}

func TestPrepare_NoRiskFreeColumn(t *testing.T) {
	dates := []string{"2020-01-02", "2020-01-03"}
	table := NewTable(map[string]map[time.Time]float64{
		"AAA":  series(dates, []float64{10, 11}),
		"REIT": series(dates, []float64{5, 6}),
		"MKT":  series(dates, []float64{100, 101}),
	})
	m, err := Prepare(table, smallEngine())
	require.NoError(t, err)
	assert.Nil(t, m.RiskFree)
}
