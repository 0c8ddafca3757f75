// Package overlay predicts, from leadership and market features, how much of
// the view blend should lean on momentum in the coming period.
package overlay

import "github.com/aristath/sectorbl/pkg/formulas"

// FeatureNames lists the columns in Features.Vector order.
var FeatureNames = []string{
	"leader_strength",
	"breadth",
	"dispersion",
	"avg_corr",
	"spy_trend_12m",
	"spy_vol_6m",
}

// Features describes one training window.
type Features struct {
	LeaderStrength float64 `json:"leader_strength" msgpack:"leader_strength"`
	Breadth        float64 `json:"breadth" msgpack:"breadth"`
	Dispersion     float64 `json:"dispersion" msgpack:"dispersion"`
	AvgCorr        float64 `json:"avg_corr" msgpack:"avg_corr"`
	MarketTrend12m float64 `json:"spy_trend_12m" msgpack:"spy_trend_12m"`
	MarketVol6m    float64 `json:"spy_vol_6m" msgpack:"spy_vol_6m"`
}

// Vector returns the features in FeatureNames order.
func (f Features) Vector() []float64 {
	return []float64{f.LeaderStrength, f.Breadth, f.Dispersion, f.AvgCorr, f.MarketTrend12m, f.MarketVol6m}
}

// Complete reports whether every feature is finite.
func (f Features) Complete() bool {
	for _, v := range f.Vector() {
		if !formulas.IsFinite(v) {
			return false
		}
	}
	return true
}

// Row is a labelled training example. Label is true when momentum worked
// over the period that followed the features.
type Row struct {
	Features
	Label bool `json:"label" msgpack:"label"`
}
