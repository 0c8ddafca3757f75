package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/aristath/sectorbl/internal/config"
	"github.com/aristath/sectorbl/internal/metrics"
	"github.com/aristath/sectorbl/internal/modules/backtest"
	backtesthandlers "github.com/aristath/sectorbl/internal/modules/backtest/handlers"
	"github.com/aristath/sectorbl/internal/modules/optimization"
	simulationhandlers "github.com/aristath/sectorbl/internal/modules/simulation/handlers"
	"github.com/aristath/sectorbl/internal/prices"
	testutil "github.com/aristath/sectorbl/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	runs atomic.Int32
	err  error
}

func (j *stubJob) Name() string { return "stub" }

func (j *stubJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func newTestServer(t *testing.T, loaded bool, job *stubJob) *Server {
	t.Helper()
	cfg := config.DefaultEngine()
	log := zerolog.Nop()

	snap := prices.NewSnapshot(nil, cfg, log)
	if loaded {
		snap.Set(testutil.FlatMatrix(cfg.TrainWindow+cfg.RebalanceFreq, cfg.Tickers))
	}

	rec := metrics.NewPrometheus()
	solver := optimization.FallbackSolver{optimization.NewProjectedGradientSolver(), optimization.NewPenaltySolver()}
	eng := backtest.NewEngine(snap, cfg, solver, rec, log)
	svc := backtest.NewService(eng, nil, rec, log)

	system := NewSystemHandlers(snap, nil, log)
	if job != nil {
		system = NewSystemHandlers(snap, job, log)
	}
	system.stats = func() (float64, float64) { return 12.5, 40 }

	return New(Config{
		Log:        log,
		Port:       0,
		Backtest:   backtesthandlers.NewHandler(svc, nil, nil, log),
		Simulation: simulationhandlers.NewHandler(log),
		System:     system,
		Metrics:    rec.Handler(),
	})
}

func serve(s *Server, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	s.Handler().ServeHTTP(w, r)
	return w
}

func TestRootAndHealth(t *testing.T) {
	s := newTestServer(t, true, nil)

	w := serve(s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	var root map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &root))
	assert.Equal(t, "System Operational", root["status"])
	assert.Equal(t, "Black-Litterman ML", root["model"])

	w = serve(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, true, nil)

	require.Equal(t, http.StatusOK, serve(s, http.MethodPost, "/recommendation/scenario", `{"views":[]}`).Code)

	w := serve(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sectorbl_runs_total")
}

func TestSystemStatus(t *testing.T) {
	s := newTestServer(t, true, nil)

	w := serve(s, http.MethodGet, "/api/system/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp SystemStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	cfg := config.DefaultEngine()
	assert.Equal(t, "ready", resp.Status)
	assert.True(t, resp.Snapshot.Loaded)
	assert.Equal(t, cfg.TrainWindow+cfg.RebalanceFreq, resp.Snapshot.Rows)
	assert.Equal(t, "2015-01-02", resp.Snapshot.FirstDate)
	assert.NotEmpty(t, resp.Snapshot.Version)
	assert.Equal(t, 12.5, resp.CPUPercent)
	assert.Equal(t, 40.0, resp.MemoryPercent)
}

func TestNotReadyUntilSnapshotLoaded(t *testing.T) {
	s := newTestServer(t, false, nil)

	w := serve(s, http.MethodGet, "/api/system/status", "")
	var resp SystemStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "loading", resp.Status)
	assert.False(t, resp.Snapshot.Loaded)

	assert.Equal(t, http.StatusServiceUnavailable, serve(s, http.MethodPost, "/recommendation/scenario", `{"views":[]}`).Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(s, http.MethodPost, "/simulation/backtest", `{}`).Code)

	// Monte Carlo does not need prices
	w = serve(s, http.MethodPost, "/simulation/monte_carlo", `{"mu":0.05,"sigma":0.1,"days":5,"paths":10,"seed":1}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTriggerReload(t *testing.T) {
	job := &stubJob{}
	s := newTestServer(t, true, job)

	w := serve(s, http.MethodPost, "/api/jobs/reload-prices", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), job.runs.Load())

	job.err = errors.New("store offline")
	w = serve(s, http.MethodPost, "/api/jobs/reload-prices", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	unregistered := newTestServer(t, true, nil)
	w = serve(unregistered, http.MethodPost, "/api/jobs/reload-prices", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, true, nil)

	r := httptest.NewRequest(http.MethodOptions, "/simulation/backtest", nil)
	r.Header.Set("Origin", "http://localhost:5173")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)

	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
