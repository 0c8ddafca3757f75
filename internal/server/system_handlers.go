package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/aristath/sectorbl/internal/httpapi"
	"github.com/aristath/sectorbl/internal/prices"
	"github.com/aristath/sectorbl/internal/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SnapshotSource exposes the loaded price snapshot
type SnapshotSource interface {
	Current() *prices.Matrix
	LoadedAt() time.Time
}

// SnapshotStatus describes the loaded price matrix
type SnapshotStatus struct {
	Loaded    bool     `json:"loaded"`
	Rows      int      `json:"rows"`
	FirstDate string   `json:"first_date,omitempty"`
	LastDate  string   `json:"last_date,omitempty"`
	Tickers   []string `json:"tickers,omitempty"`
	Version   string   `json:"version,omitempty"`
	LoadedAt  string   `json:"loaded_at,omitempty"`
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status        string         `json:"status"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Snapshot      SnapshotStatus `json:"snapshot"`
	CPUPercent    float64        `json:"cpu_percent"`
	MemoryPercent float64        `json:"memory_percent"`
	Goroutines    int            `json:"goroutines"`
}

// SystemHandlers handles monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	snapshot    SnapshotSource
	reloadJob   scheduler.Job
	stats       func() (float64, float64)
}

// NewSystemHandlers creates system handlers. reloadJob may be nil, which
// disables the manual reload endpoint.
func NewSystemHandlers(snapshot SnapshotSource, reloadJob scheduler.Job, log zerolog.Logger) *SystemHandlers {
	h := &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		startupTime: time.Now(),
		snapshot:    snapshot,
		reloadJob:   reloadJob,
	}
	h.stats = h.getSystemStats
	return h
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.stats()

	resp := SystemStatusResponse{
		Status:        "loading",
		UptimeSeconds: time.Since(h.startupTime).Seconds(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
	}

	if m := h.snapshot.Current(); m != nil && m.Len() > 0 {
		resp.Status = "ready"
		resp.Snapshot = SnapshotStatus{
			Loaded:    true,
			Rows:      m.Len(),
			FirstDate: m.Dates[0].Format(prices.DateLayout),
			LastDate:  m.LastDate().Format(prices.DateLayout),
			Tickers:   m.Tickers,
			Version:   m.Version(),
			LoadedAt:  h.snapshot.LoadedAt().UTC().Format(time.RFC3339),
		}
	}

	httpapi.WriteJSON(w, h.log, http.StatusOK, resp)
}

// HandleTriggerReload handles POST /api/jobs/reload-prices
func (h *SystemHandlers) HandleTriggerReload(w http.ResponseWriter, r *http.Request) {
	if h.reloadJob == nil {
		httpapi.WriteError(w, h.log, http.StatusServiceUnavailable, httpapi.KindUnavailable, "reload job not registered")
		return
	}

	h.log.Info().Msg("Manual price reload triggered")
	if err := h.reloadJob.Run(); err != nil {
		h.log.Error().Err(err).Msg("Manual price reload failed")
		httpapi.WriteError(w, h.log, http.StatusInternalServerError, httpapi.KindInternal, "price reload failed")
		return
	}

	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Prices reloaded",
	})
}

// RegisterRoutes registers the system routes under /api
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/system/status", h.HandleSystemStatus)
	r.Post("/jobs/reload-prices", h.HandleTriggerReload)
}

// getSystemStats returns CPU and RAM usage percentages, sampling CPU over 100ms
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
