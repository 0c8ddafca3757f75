package views

import (
	"testing"

	"github.com/aristath/sectorbl/internal/config"
	"github.com/stretchr/testify/assert"
)

func emptyResult() *Result {
	return &Result{Views: map[string]float64{"BBB": 0.01}, Confidence: map[string]float64{"BBB": 0.3}}
}

func TestMergeManualBacktestClamps(t *testing.T) {
	cfg := config.DefaultEngine()
	tickers := []string{"AAA", "BBB"}
	implied := []float64{0.05, 0.06}
	res := emptyResult()

	applied := MergeManual(res, tickers, implied, []ManualView{
		{Ticker: "AAA", Value: 0.30, Confidence: 0.95},
		{Ticker: "BBB", Value: -0.05, Confidence: 0.01},
		{Ticker: "ZZZ", Value: 0.10, Confidence: 0.5},
	}, ModeBacktest, cfg)

	assert.Equal(t, []string{"AAA +15.0%", "BBB -5.0%"}, applied)
	assert.InDelta(t, 0.20, res.Views["AAA"], 1e-12)
	assert.InDelta(t, 0.85, res.Confidence["AAA"], 1e-12)
	assert.InDelta(t, 0.01, res.Views["BBB"], 1e-12)
	assert.InDelta(t, 0.05, res.Confidence["BBB"], 1e-12)
	assert.NotContains(t, res.Views, "ZZZ")
}

func TestMergeManualScenarioKeepsTilt(t *testing.T) {
	cfg := config.DefaultEngine()
	res := emptyResult()

	applied := MergeManual(res, []string{"AAA", "BBB"}, []float64{0.05, 0.06}, []ManualView{
		{Ticker: "AAA", Value: 0.30, Confidence: 0.5},
	}, ModeScenario, cfg)

	assert.Equal(t, []string{"AAA +30.0%"}, applied)
	assert.InDelta(t, 0.35, res.Views["AAA"], 1e-12)
	assert.InDelta(t, 0.5, res.Confidence["AAA"], 1e-12)
}

func TestMergeManualNoViews(t *testing.T) {
	res := emptyResult()
	applied := MergeManual(res, []string{"AAA"}, []float64{0.05}, nil, ModeBacktest, config.DefaultEngine())
	assert.Empty(t, applied)
	assert.Len(t, res.Views, 1)
}
