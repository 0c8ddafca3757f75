package views

import (
	"fmt"

	"github.com/aristath/sectorbl/internal/config"
	"github.com/aristath/sectorbl/pkg/formulas"
)

// Mode selects how user views are bounded.
type Mode string

const (
	// ModeScenario applies the tilt as given
	ModeScenario Mode = "scenario"
	// ModeBacktest caps the tilt at +/- ManualExtraCap
	ModeBacktest Mode = "backtest"
)

// ManualView is a user-supplied tilt on one ticker, expressed relative to the
// implied return. StartDate and EndDate are accepted but the view applies to
// every rebalance of a run.
type ManualView struct {
	Ticker     string  `json:"ticker" msgpack:"ticker" validate:"required"`
	Value      float64 `json:"value" msgpack:"value" validate:"gte=-1,lte=1"`
	Confidence float64 `json:"confidence" msgpack:"confidence" validate:"gte=0,lte=1"`
	StartDate  *string `json:"start_date,omitempty" msgpack:"start_date,omitempty"`
	EndDate    *string `json:"end_date,omitempty" msgpack:"end_date,omitempty"`
}

// MergeManual overwrites generated views with user views on known tickers.
// The view becomes implied + tilt with confidence clamped to [ConfLo, ConfHi].
// It returns a description per applied view, e.g. "XLK +5.0%".
func MergeManual(res *Result, tickers []string, implied []float64, manual []ManualView, mode Mode, cfg config.Engine) []string {
	index := make(map[string]int, len(tickers))
	for i, t := range tickers {
		index[t] = i
	}

	applied := make([]string, 0, len(manual))
	for _, v := range manual {
		i, ok := index[v.Ticker]
		if !ok {
			continue
		}
		tilt := v.Value
		if mode == ModeBacktest {
			tilt = formulas.Clamp(tilt, -cfg.ManualExtraCap, cfg.ManualExtraCap)
		}
		res.Views[v.Ticker] = implied[i] + tilt
		res.Confidence[v.Ticker] = formulas.Clamp(v.Confidence, cfg.ConfLo, cfg.ConfHi)
		applied = append(applied, Describe(v.Ticker, tilt))
	}
	return applied
}

// Describe formats a tilt as "TICKER +x.x%".
func Describe(ticker string, tilt float64) string {
	return fmt.Sprintf("%s %+.1f%%", ticker, tilt*100)
}
