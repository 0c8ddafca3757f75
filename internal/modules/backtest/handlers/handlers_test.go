package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aristath/sectorbl/internal/config"
	"github.com/aristath/sectorbl/internal/httpapi"
	"github.com/aristath/sectorbl/internal/modules/backtest"
	"github.com/aristath/sectorbl/internal/modules/optimization"
	"github.com/aristath/sectorbl/internal/prices"
	"github.com/aristath/sectorbl/internal/reporting"
	testutil "github.com/aristath/sectorbl/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func newService(m *prices.Matrix) *backtest.Service {
	cfg := config.DefaultEngine()
	solver := optimization.FallbackSolver{optimization.NewProjectedGradientSolver(), optimization.NewPenaltySolver()}
	eng := backtest.NewEngine(testutil.StaticPrices{M: m}, cfg, solver, nil, zerolog.Nop())
	return backtest.NewService(eng, nil, nil, zerolog.Nop())
}

func flatMatrix() *prices.Matrix {
	cfg := config.DefaultEngine()
	return testutil.FlatMatrix(cfg.TrainWindow+cfg.RebalanceFreq*2, cfg.Tickers)
}

func backtestBody(m *prices.Matrix) string {
	return `{"start_date":"` + m.Dates[0].Format(prices.DateLayout) +
		`","end_date":"` + m.LastDate().Format(prices.DateLayout) + `","views":[]}`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) httpapi.ErrorDetail {
	t.Helper()
	var body httpapi.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

type recordingArchiver struct {
	mu   sync.Mutex
	keys []string
}

func (a *recordingArchiver) Archive(ctx context.Context, key string, body io.Reader, contentType string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	return nil
}

func TestHandlersNotReady(t *testing.T) {
	h := NewHandler(newService(nil), nil, nil, zerolog.Nop())

	for _, target := range []string{"/recommendation/scenario", "/simulation/backtest"} {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(`{}`))
		if target == "/simulation/backtest" {
			h.HandleBacktest(w, r)
		} else {
			h.HandleScenario(w, r)
		}
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, target)
		assert.Equal(t, httpapi.KindUnavailable, decodeError(t, w).Kind)
	}
}

func TestHandleScenario(t *testing.T) {
	h := NewHandler(newService(flatMatrix()), nil, nil, zerolog.Nop())

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantKind   string
	}{
		{name: "no views", body: `{"views":[]}`, wantStatus: http.StatusOK},
		{name: "manual view", body: `{"views":[{"ticker":"XLK","value":-0.05,"confidence":0.6}]}`, wantStatus: http.StatusOK},
		{name: "missing ticker", body: `{"views":[{"value":0.1,"confidence":0.5}]}`, wantStatus: http.StatusBadRequest, wantKind: "invalid_request"},
		{name: "confidence out of range", body: `{"views":[{"ticker":"XLK","value":0.1,"confidence":2}]}`, wantStatus: http.StatusBadRequest, wantKind: "invalid_request"},
		{name: "bad date", body: `{"views":[],"date":"06/28/2024"}`, wantStatus: http.StatusBadRequest, wantKind: "invalid_date_range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.HandleScenario(w, httptest.NewRequest(http.MethodPost, "/recommendation/scenario", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, decodeError(t, w).Kind)
				return
			}
			var res backtest.ScenarioResult
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			assert.Len(t, res.Weights, len(config.DefaultEngine().Tickers))
		})
	}
}

func TestHandleBacktest(t *testing.T) {
	m := flatMatrix()
	archiver := &recordingArchiver{}
	h := NewHandler(newService(m), nil, archiver, zerolog.Nop())

	w := httptest.NewRecorder()
	h.HandleBacktest(w, httptest.NewRequest(http.MethodPost, "/simulation/backtest", strings.NewReader(backtestBody(m))))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "miss", w.Header().Get("X-Cache"))

	var res backtest.BacktestResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.NotEmpty(t, res.Rebalances)
	assert.Equal(t, len(res.Dates), len(res.Portfolio))

	h.Wait()
	assert.Equal(t, []string{reporting.ReportKey(&res)}, archiver.keys)
}

func TestHandleBacktestErrors(t *testing.T) {
	m := flatMatrix()
	h := NewHandler(newService(m), nil, nil, zerolog.Nop())

	tests := []struct {
		name     string
		body     string
		wantKind string
	}{
		{"missing dates", `{"views":[]}`, "invalid_request"},
		{"unparseable date", `{"start_date":"yesterday","end_date":"2020-01-01","views":[]}`, "invalid_date_range"},
		{"reversed range", `{"start_date":"2020-01-01","end_date":"2019-01-01","views":[]}`, "invalid_date_range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.HandleBacktest(w, httptest.NewRequest(http.MethodPost, "/simulation/backtest", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantKind, decodeError(t, w).Kind)
		})
	}
}

func TestHandleBacktestRateLimited(t *testing.T) {
	m := flatMatrix()
	h := NewHandler(newService(m), rate.NewLimiter(rate.Every(time.Hour), 1), nil, zerolog.Nop())

	first := httptest.NewRecorder()
	h.HandleBacktest(first, httptest.NewRequest(http.MethodPost, "/simulation/backtest", strings.NewReader(backtestBody(m))))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	h.HandleBacktest(second, httptest.NewRequest(http.MethodPost, "/simulation/backtest", strings.NewReader(backtestBody(m))))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.Equal(t, httpapi.KindRateLimited, decodeError(t, second).Kind)
}

func TestHandleBacktestWorkbook(t *testing.T) {
	m := flatMatrix()
	h := NewHandler(newService(m), nil, nil, zerolog.Nop())

	w := httptest.NewRecorder()
	h.HandleBacktest(w, httptest.NewRequest(http.MethodPost, "/simulation/backtest?format=xlsx", strings.NewReader(backtestBody(m))))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, reporting.XLSXContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	// xlsx files are zip archives
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))
}

func streamServer(t *testing.T, h *Handler) string {
	t.Helper()
	router := chi.NewRouter()
	h.RegisterStreamRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/simulation/backtest/stream"
}

func TestHandleBacktestStream(t *testing.T) {
	m := flatMatrix()
	h := NewHandler(newService(m), nil, nil, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, streamServer(t, h), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(1 << 24)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(backtestBody(m))))

	rebalances := 0
	var final StreamMessage
	for {
		var msg StreamMessage
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if msg.Type != MessageRebalance {
			final = msg
			break
		}
		require.NotNil(t, msg.Event)
		rebalances++
	}

	require.Equal(t, MessageResult, final.Type)
	require.NotNil(t, final.Result)
	assert.False(t, final.Cached)
	assert.Equal(t, len(final.Result.Rebalances), rebalances)
}

func TestHandleBacktestStreamInvalidRequest(t *testing.T) {
	h := NewHandler(newService(flatMatrix()), nil, nil, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, streamServer(t, h), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, wsjson.Write(ctx, conn, map[string]interface{}{"views": []interface{}{}}))

	var msg StreamMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, MessageError, msg.Type)
	require.NotNil(t, msg.Error)
	assert.Equal(t, "invalid_request", msg.Error.Kind)
}

func TestHandleBacktestStreamOrigins(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	foreign := &websocket.DialOptions{HTTPHeader: http.Header{"Origin": []string{"https://app.example.com"}}}

	h := NewHandler(newService(flatMatrix()), nil, nil, zerolog.Nop())
	_, resp, err := websocket.Dial(ctx, streamServer(t, h), foreign)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	h = NewHandler(newService(flatMatrix()), nil, nil, zerolog.Nop()).WithOrigins([]string{"*.example.com"})
	conn, _, err := websocket.Dial(ctx, streamServer(t, h), foreign)
	require.NoError(t, err)
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestRegisterRoutes(t *testing.T) {
	h := NewHandler(newService(nil), nil, nil, zerolog.Nop())
	router := chi.NewRouter()

	assert.NotPanics(t, func() {
		h.RegisterRoutes(router)
		h.RegisterStreamRoutes(router)
	})
}
