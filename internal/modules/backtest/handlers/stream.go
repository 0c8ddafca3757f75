package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/aristath/sectorbl/internal/httpapi"
	"github.com/aristath/sectorbl/internal/modules/backtest"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	requestReadTimeout  = 30 * time.Second
	messageWriteTimeout = 10 * time.Second
)

// Stream message types
const (
	MessageRebalance = "rebalance"
	MessageResult    = "result"
	MessageError     = "error"
)

// StreamMessage is one frame of the backtest stream.
type StreamMessage struct {
	Type   string                   `json:"type"`
	Event  *backtest.RebalanceEvent `json:"event,omitempty"`
	Result *backtest.BacktestResult `json:"result,omitempty"`
	Cached bool                     `json:"cached,omitempty"`
	Error  *httpapi.ErrorDetail     `json:"error,omitempty"`
}

// HandleBacktestStream handles GET /simulation/backtest/stream. The client
// sends one backtest request after the upgrade and receives a rebalance frame
// per iteration, then a result or error frame. Closing the socket cancels the run.
func (h *Handler) HandleBacktestStream(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if !h.allow(w) {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.log.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected shutdown")

	readCtx, cancelRead := context.WithTimeout(r.Context(), requestReadTimeout)
	var req backtest.BacktestRequest
	err = wsjson.Read(readCtx, conn, &req)
	cancelRead()
	if err != nil {
		h.log.Debug().Err(err).Msg("No backtest request received on stream")
		conn.Close(websocket.StatusUnsupportedData, "expected a backtest request")
		return
	}

	// from here on only close frames are read; a client close cancels ctx
	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	defer cancel()

	if err := httpapi.Validate(&req); err != nil {
		h.sendError(ctx, conn, err)
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}

	progress := func(ev backtest.RebalanceEvent) {
		if ctx.Err() != nil {
			return
		}
		if err := h.send(ctx, conn, StreamMessage{Type: MessageRebalance, Event: &ev}); err != nil {
			h.log.Debug().Err(err).Msg("Stream client went away")
			cancel()
		}
	}

	res, cached, err := h.svc.Backtest(ctx, req, backtest.WithProgress(progress))
	if err != nil {
		if ctx.Err() == nil {
			h.sendError(ctx, conn, err)
			conn.Close(websocket.StatusNormalClosure, "")
		}
		return
	}
	if !cached {
		h.archive(res)
	}

	if err := h.send(ctx, conn, StreamMessage{Type: MessageResult, Result: res, Cached: cached}); err != nil {
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg StreamMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, messageWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, msg)
}

func (h *Handler) sendError(ctx context.Context, conn *websocket.Conn, err error) {
	_, detail := httpapi.Detail(h.log, err)
	_ = h.send(ctx, conn, StreamMessage{Type: MessageError, Error: &detail})
}
