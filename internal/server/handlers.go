package server

import (
	"net/http"

	"github.com/aristath/sectorbl/internal/httpapi"
)

// handleRoot reports that the service is up
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteJSON(w, s.log, http.StatusOK, map[string]string{
		"status": "System Operational",
		"model":  "Black-Litterman ML",
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "sectorbl",
	}

	httpapi.WriteJSON(w, s.log, http.StatusOK, response)
}
