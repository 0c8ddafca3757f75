// Package handlers provides HTTP handlers for Monte Carlo projections.
package handlers

import (
	"net/http"

	"github.com/aristath/sectorbl/internal/httpapi"
	"github.com/aristath/sectorbl/internal/modules/simulation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// MonteCarloRequest is the body of POST /simulation/monte_carlo. Mu and
// Sigma are annualized; omitted counts take the simulator defaults.
type MonteCarloRequest struct {
	Mu      *float64 `json:"mu" validate:"required"`
	Sigma   *float64 `json:"sigma" validate:"required,gte=0"`
	Days    int      `json:"days" validate:"omitempty,min=2,max=2520"`
	Paths   int      `json:"paths" validate:"omitempty,min=1,max=50000"`
	Samples int      `json:"samples" validate:"omitempty,min=0"`
	Seed    *uint64  `json:"seed"`
}

// Handler serves Monte Carlo requests
type Handler struct {
	log zerolog.Logger
}

// NewHandler creates a new Monte Carlo handler
func NewHandler(log zerolog.Logger) *Handler {
	return &Handler{
		log: log.With().Str("handler", "simulation").Logger(),
	}
}

// HandleMonteCarlo handles POST /simulation/monte_carlo
func (h *Handler) HandleMonteCarlo(w http.ResponseWriter, r *http.Request) {
	var req MonteCarloRequest
	if err := httpapi.Decode(w, r, &req); err != nil {
		httpapi.WriteEngineError(w, h.log, err)
		return
	}

	res, err := simulation.Simulate(simulation.Params{
		Mu:      *req.Mu,
		Sigma:   *req.Sigma,
		Days:    req.Days,
		Paths:   req.Paths,
		Samples: req.Samples,
		Seed:    req.Seed,
	})
	if err != nil {
		httpapi.WriteEngineError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, res)
}

// RegisterRoutes registers the simulation routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/simulation/monte_carlo", h.HandleMonteCarlo)
}
