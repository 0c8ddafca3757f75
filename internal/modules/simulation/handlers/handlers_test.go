package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/sectorbl/internal/httpapi"
	"github.com/aristath/sectorbl/internal/modules/simulation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMonteCarlo(t *testing.T) {
	h := NewHandler(zerolog.Nop())
	router := chi.NewRouter()
	h.RegisterRoutes(router)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		validate   func(*testing.T, []byte)
	}{
		{
			name:       "seeded run",
			body:       `{"mu":0.07,"sigma":0.15,"days":20,"paths":200,"seed":42}`,
			wantStatus: http.StatusOK,
			validate: func(t *testing.T, body []byte) {
				var res simulation.Result
				require.NoError(t, json.Unmarshal(body, &res))
				assert.Len(t, res.Days, 20)
				assert.Equal(t, 200, res.SimulationCount)
				assert.Equal(t, uint64(42), res.Seed)
				assert.Len(t, res.SamplePaths, simulation.DefaultSamples)
			},
		},
		{
			name:       "zero sigma",
			body:       `{"mu":0.1,"sigma":0,"days":5,"paths":10}`,
			wantStatus: http.StatusOK,
			validate: func(t *testing.T, body []byte) {
				var res simulation.Result
				require.NoError(t, json.Unmarshal(body, &res))
				assert.Equal(t, res.P05, res.P95)
			},
		},
		{name: "missing mu", body: `{"sigma":0.2}`, wantStatus: http.StatusBadRequest},
		{name: "negative sigma", body: `{"mu":0.1,"sigma":-0.2}`, wantStatus: http.StatusBadRequest},
		{name: "one day", body: `{"mu":0.1,"sigma":0.2,"days":1}`, wantStatus: http.StatusBadRequest},
		{name: "too many paths", body: `{"mu":0.1,"sigma":0.2,"paths":50001}`, wantStatus: http.StatusBadRequest},
		{name: "grid too large", body: `{"mu":0.1,"sigma":0.2,"days":2520,"paths":50000}`, wantStatus: http.StatusBadRequest},
		{name: "overflowing drift", body: `{"mu":100000,"sigma":0,"days":10,"paths":1,"seed":1}`, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/simulation/monte_carlo", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				var body httpapi.ErrorBody
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, "invalid_request", body.Error.Kind)
				return
			}
			tt.validate(t, w.Body.Bytes())
		})
	}
}
