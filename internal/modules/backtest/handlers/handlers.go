// Package handlers provides HTTP handlers for scenarios and backtests.
package handlers

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/aristath/sectorbl/internal/httpapi"
	"github.com/aristath/sectorbl/internal/modules/backtest"
	"github.com/aristath/sectorbl/internal/reporting"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const archiveTimeout = 2 * time.Minute

// Handler serves the scenario and backtest endpoints
type Handler struct {
	svc      *backtest.Service
	limiter  *rate.Limiter
	archiver reporting.Archiver
	origins  []string
	pending  sync.WaitGroup
	log      zerolog.Logger
}

// NewHandler creates a handler. limiter throttles backtest runs; archiver may
// be nil to disable report archiving.
func NewHandler(svc *backtest.Service, limiter *rate.Limiter, archiver reporting.Archiver, log zerolog.Logger) *Handler {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &Handler{
		svc:      svc,
		limiter:  limiter,
		archiver: archiver,
		log:      log.With().Str("handler", "backtest").Logger(),
	}
}

// WithOrigins sets the Origin host patterns, in path.Match syntax, that may
// open the backtest stream besides the serving host itself.
func (h *Handler) WithOrigins(patterns []string) *Handler {
	h.origins = append([]string(nil), patterns...)
	return h
}

// Wait blocks until in-flight report archives finish.
func (h *Handler) Wait() {
	h.pending.Wait()
}

// ready writes 503 and returns false until prices are loaded.
func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.svc.Ready() {
		return true
	}
	httpapi.WriteError(w, h.log, http.StatusServiceUnavailable, httpapi.KindUnavailable, "price snapshot not loaded yet")
	return false
}

// allow writes 429 and returns false when the backtest budget is spent.
func (h *Handler) allow(w http.ResponseWriter) bool {
	r := h.limiter.Reserve()
	if !r.OK() {
		httpapi.WriteError(w, h.log, http.StatusTooManyRequests, httpapi.KindRateLimited, "backtest rate limit exceeded")
		return false
	}
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
		httpapi.WriteError(w, h.log, http.StatusTooManyRequests, httpapi.KindRateLimited, "backtest rate limit exceeded")
		return false
	}
	return true
}

// HandleScenario handles POST /recommendation/scenario
func (h *Handler) HandleScenario(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req backtest.ScenarioRequest
	if err := httpapi.Decode(w, r, &req); err != nil {
		httpapi.WriteEngineError(w, h.log, err)
		return
	}

	res, err := h.svc.Scenario(r.Context(), req)
	if err != nil {
		httpapi.WriteEngineError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, res)
}

// HandleBacktest handles POST /simulation/backtest. ?format=xlsx returns the
// workbook instead of JSON.
func (h *Handler) HandleBacktest(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req backtest.BacktestRequest
	if err := httpapi.Decode(w, r, &req); err != nil {
		httpapi.WriteEngineError(w, h.log, err)
		return
	}
	if !h.allow(w) {
		return
	}

	res, cached, err := h.svc.Backtest(r.Context(), req)
	if err != nil {
		httpapi.WriteEngineError(w, h.log, err)
		return
	}
	if !cached {
		h.archive(res)
	}

	w.Header().Set("X-Cache", cacheHeader(cached))
	if r.URL.Query().Get("format") == "xlsx" {
		h.writeWorkbook(w, res)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, res)
}

func (h *Handler) writeWorkbook(w http.ResponseWriter, res *backtest.BacktestResult) {
	var buf bytes.Buffer
	if err := reporting.WriteXLSX(&buf, res); err != nil {
		httpapi.WriteEngineError(w, h.log, err)
		return
	}
	w.Header().Set("Content-Type", reporting.XLSXContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="backtest-%s.xlsx"`, res.RunID))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.log.Error().Err(err).Msg("Failed to write workbook response")
	}
}

// archive uploads the run's workbook in the background.
func (h *Handler) archive(res *backtest.BacktestResult) {
	if h.archiver == nil {
		return
	}
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if _, err := reporting.ArchiveBacktest(ctx, h.archiver, res); err != nil {
			h.log.Warn().Err(err).Str("run_id", res.RunID).Msg("Failed to archive backtest report")
		}
	}()
}

func cacheHeader(cached bool) string {
	if cached {
		return "hit"
	}
	return "miss"
}
