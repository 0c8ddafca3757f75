// Package metrics records engine activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run kinds and outcomes.
const (
	KindScenario   = "scenario"
	KindBacktest   = "backtest"
	KindMonteCarlo = "monte_carlo"

	OutcomeOK     = "ok"
	OutcomeError  = "error"
	OutcomeCached = "cached"
)

// Rebalance actions.
const (
	ActionApplied = "applied"
	ActionSkipped = "skipped"
)

// Recorder is what the engine reports to.
type Recorder interface {
	RecordRun(kind, outcome string, seconds float64)
	RecordRebalance(action string)
	RecordOverlayPrediction(active bool)
	RecordOptimizerFallback(reason string)
	RecordSnapshot(rows int, lastDateUnix int64)
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordRun(string, string, float64) {}
func (Noop) RecordRebalance(string)            {}
func (Noop) RecordOverlayPrediction(bool)      {}
func (Noop) RecordOptimizerFallback(string)    {}
func (Noop) RecordSnapshot(int, int64)         {}

// Prometheus implements Recorder on its own registry.
type Prometheus struct {
	registry *prometheus.Registry

	runsTotal          *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	rebalancesTotal    *prometheus.CounterVec
	overlayPredictions *prometheus.CounterVec
	optimizerFallbacks *prometheus.CounterVec
	snapshotRows       prometheus.Gauge
	snapshotLastDate   prometheus.Gauge
}

// NewPrometheus creates a recorder with Go runtime and process collectors
// registered alongside the engine metrics.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sectorbl_runs_total",
				Help: "Engine runs by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sectorbl_run_duration_seconds",
				Help:    "Duration of engine runs in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"kind"},
		),
		rebalancesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sectorbl_rebalances_total",
				Help: "Backtest rebalance decisions",
			},
			[]string{"action"},
		),
		overlayPredictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sectorbl_overlay_predictions_total",
				Help: "Rebalances by whether the ML overlay produced an override",
			},
			[]string{"active"},
		),
		optimizerFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sectorbl_optimizer_fallbacks_total",
				Help: "Optimizations that returned anchor weights, by reason",
			},
			[]string{"reason"},
		),
		snapshotRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sectorbl_snapshot_rows",
			Help: "Rows in the loaded price snapshot",
		}),
		snapshotLastDate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sectorbl_snapshot_last_date_seconds",
			Help: "Last date in the loaded price snapshot as a unix timestamp",
		}),
	}
}

// RecordRun counts a finished run and observes its duration.
func (p *Prometheus) RecordRun(kind, outcome string, seconds float64) {
	p.runsTotal.WithLabelValues(kind, outcome).Inc()
	p.runDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordRebalance counts a rebalance decision.
func (p *Prometheus) RecordRebalance(action string) {
	p.rebalancesTotal.WithLabelValues(action).Inc()
}

// RecordOverlayPrediction counts whether the overlay produced an override.
func (p *Prometheus) RecordOverlayPrediction(active bool) {
	p.overlayPredictions.WithLabelValues(strconv.FormatBool(active)).Inc()
}

// RecordOptimizerFallback counts an anchor fallback.
func (p *Prometheus) RecordOptimizerFallback(reason string) {
	p.optimizerFallbacks.WithLabelValues(reason).Inc()
}

// RecordSnapshot sets the snapshot gauges.
func (p *Prometheus) RecordSnapshot(rows int, lastDateUnix int64) {
	p.snapshotRows.Set(float64(rows))
	p.snapshotLastDate.Set(float64(lastDateUnix))
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
