package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ProxyFill maps a primary ticker to the proxy used before the primary listed.
type ProxyFill struct {
	Primary string `yaml:"primary"`
	Proxy   string `yaml:"proxy"`
}

// Engine holds the allocation model's constants. A value is built once at
// startup and passed to the engine; nothing mutates it afterwards.
type Engine struct {
	Tickers        []string    `yaml:"tickers"`
	MarketSymbol   string      `yaml:"market_symbol"`
	RiskFreeSymbol string      `yaml:"risk_free_symbol"`
	ProxyFills     []ProxyFill `yaml:"proxy_fills"`

	TrainWindow   int     `yaml:"train_window"`
	RebalanceFreq int     `yaml:"rebalance_freq"`
	CostPerTrade  float64 `yaml:"cost_per_trade"`
	TurnoverSkip  float64 `yaml:"turnover_skip"`

	MaxWeight float64 `yaml:"max_weight"`
	MinWeight float64 `yaml:"min_weight"`

	DeltaMin      float64 `yaml:"delta_min"`
	DeltaMax      float64 `yaml:"delta_max"`
	DeltaSmooth   float64 `yaml:"delta_smooth"`
	DeltaFallback float64 `yaml:"delta_fallback"`

	ViewZCutoff          float64 `yaml:"view_z_cutoff"`
	HighVolZCutoff       float64 `yaml:"high_vol_z_cutoff"`
	HighVolReversalShift float64 `yaml:"high_vol_reversal_shift"`
	ViewAlpha            float64 `yaml:"view_alpha"`
	MaxMomentumOverride  float64 `yaml:"max_momentum_override"`

	ConcMaxWeight float64 `yaml:"conc_max_weight"`
	ConcMomBonus  float64 `yaml:"conc_mom_bonus"`
	ConcLeaderZ   float64 `yaml:"conc_leader_z"`
	ConcBreadth   float64 `yaml:"conc_breadth"`

	ManualExtraCap float64 `yaml:"manual_extra_cap"`
	ConfLo         float64 `yaml:"conf_lo"`
	ConfHi         float64 `yaml:"conf_hi"`

	Tau          float64 `yaml:"tau"`
	RiskFreeRate float64 `yaml:"risk_free_rate"`

	// WindowRiskFree prices the risk-aversion excess off the window's mean
	// risk-free yield instead of RiskFreeRate.
	WindowRiskFree bool `yaml:"window_risk_free"`

	MLMinRows      int     `yaml:"ml_min_rows"`
	OverlayBase    float64 `yaml:"overlay_base"`
	OverlaySlope   float64 `yaml:"overlay_slope"`
	OverlayMin     float64 `yaml:"overlay_min"`
	OverlayMax     float64 `yaml:"overlay_max"`
	ConcOverlayMin float64 `yaml:"conc_overlay_min"`
	ConcOverlayMax float64 `yaml:"conc_overlay_max"`

	InitialCapital float64 `yaml:"initial_capital"`
}

// DefaultEngine returns the production constants.
func DefaultEngine() Engine {
	return Engine{
		Tickers:        []string{"XLB", "XLC", "XLE", "XLF", "XLI", "XLK", "XLP", "XLRE", "XLU", "XLV", "XLY"},
		MarketSymbol:   "SPY",
		RiskFreeSymbol: "^IRX",
		ProxyFills: []ProxyFill{
			{Primary: "XLRE", Proxy: "VNQ"},
			{Primary: "XLC", Proxy: "VOX"},
		},

		TrainWindow:   504,
		RebalanceFreq: 63,
		CostPerTrade:  0.0005,
		TurnoverSkip:  0.08,

		MaxWeight: 0.30,
		MinWeight: 0.0,

		DeltaMin:      0.5,
		DeltaMax:      6.0,
		DeltaSmooth:   0.7,
		DeltaFallback: 2.5,

		ViewZCutoff:          0.35,
		HighVolZCutoff:       0.45,
		HighVolReversalShift: 0.20,
		ViewAlpha:            0.35,
		MaxMomentumOverride:  0.90,

		ConcMaxWeight: 0.40,
		ConcMomBonus:  0.20,
		ConcLeaderZ:   1.00,
		ConcBreadth:   0.40,

		ManualExtraCap: 0.15,
		ConfLo:         0.05,
		ConfHi:         0.85,

		Tau:          0.05,
		RiskFreeRate: 0.02,

		MLMinRows:      30,
		OverlayBase:    0.25,
		OverlaySlope:   0.60,
		OverlayMin:     0.25,
		OverlayMax:     0.85,
		ConcOverlayMin: 0.25,
		ConcOverlayMax: 0.90,

		InitialCapital: 10000,
	}
}

// LoadEngine returns the defaults, overridden by the YAML file at path when
// path is non-empty. Unknown keys are rejected.
func LoadEngine(path string) (Engine, error) {
	cfg := DefaultEngine()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Engine{}, fmt.Errorf("failed to read engine config %s: %w", path, err)
	}
	return ParseEngine(data)
}

// ParseEngine decodes YAML overrides on top of DefaultEngine and validates the result.
func ParseEngine(data []byte) (Engine, error) {
	cfg := DefaultEngine()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Engine{}, fmt.Errorf("failed to parse engine config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Engine{}, err
	}
	return cfg, nil
}

// Symbols returns every series the engine loads: tickers, proxies, market and risk-free.
func (e Engine) Symbols() []string {
	out := make([]string, 0, len(e.Tickers)+len(e.ProxyFills)+2)
	out = append(out, e.Tickers...)
	for _, p := range e.ProxyFills {
		out = append(out, p.Proxy)
	}
	out = append(out, e.MarketSymbol)
	if e.RiskFreeSymbol != "" {
		out = append(out, e.RiskFreeSymbol)
	}
	return out
}

// Validate checks internal consistency of the constants.
func (e Engine) Validate() error {
	if len(e.Tickers) < 2 {
		return fmt.Errorf("engine config: at least two tickers required")
	}
	seen := make(map[string]bool, len(e.Tickers))
	for _, t := range e.Tickers {
		if t == "" || seen[t] {
			return fmt.Errorf("engine config: duplicate or empty ticker %q", t)
		}
		seen[t] = true
	}
	if e.MarketSymbol == "" {
		return fmt.Errorf("engine config: market_symbol is required")
	}
	if e.TrainWindow < 2 {
		return fmt.Errorf("engine config: train_window must be at least 2")
	}
	if e.RebalanceFreq < 1 {
		return fmt.Errorf("engine config: rebalance_freq must be at least 1")
	}
	if e.MinWeight < 0 || e.MaxWeight <= e.MinWeight || e.MaxWeight > 1 {
		return fmt.Errorf("engine config: invalid weight bounds [%g, %g]", e.MinWeight, e.MaxWeight)
	}
	n := float64(len(e.Tickers))
	if e.MaxWeight*n < 1 || e.ConcMaxWeight*n < 1 {
		return fmt.Errorf("engine config: max weight too small for %d tickers", len(e.Tickers))
	}
	if e.MinWeight*n > 1 {
		return fmt.Errorf("engine config: min weight too large for %d tickers", len(e.Tickers))
	}
	if e.DeltaMin <= 0 || e.DeltaMax < e.DeltaMin {
		return fmt.Errorf("engine config: invalid delta range [%g, %g]", e.DeltaMin, e.DeltaMax)
	}
	if e.DeltaFallback < e.DeltaMin || e.DeltaFallback > e.DeltaMax {
		return fmt.Errorf("engine config: delta_fallback outside delta range")
	}
	if e.DeltaSmooth < 0 || e.DeltaSmooth > 1 {
		return fmt.Errorf("engine config: delta_smooth must be within [0, 1]")
	}
	if e.Tau <= 0 {
		return fmt.Errorf("engine config: tau must be positive")
	}
	if e.ConfLo <= 0 || e.ConfHi >= 1 || e.ConfLo > e.ConfHi {
		return fmt.Errorf("engine config: invalid confidence range [%g, %g]", e.ConfLo, e.ConfHi)
	}
	if e.TurnoverSkip < 0 || e.CostPerTrade < 0 {
		return fmt.Errorf("engine config: turnover_skip and cost_per_trade must be non-negative")
	}
	if e.MLMinRows < 2 {
		return fmt.Errorf("engine config: ml_min_rows must be at least 2")
	}
	if e.InitialCapital <= 0 {
		return fmt.Errorf("engine config: initial_capital must be positive")
	}
	return nil
}
