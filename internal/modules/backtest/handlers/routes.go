package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the request/response routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/recommendation/scenario", h.HandleScenario)
	r.Post("/simulation/backtest", h.HandleBacktest)
}

// RegisterStreamRoutes registers the long-lived websocket route. It must be
// mounted outside any request timeout.
func (h *Handler) RegisterStreamRoutes(r chi.Router) {
	r.Get("/simulation/backtest/stream", h.HandleBacktestStream)
}
