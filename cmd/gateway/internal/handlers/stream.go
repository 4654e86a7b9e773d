package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bankerai/orchestrator/internal/aggregation"
	"github.com/bankerai/orchestrator/internal/classification"
	"github.com/bankerai/orchestrator/internal/orchestrator"
	"github.com/bankerai/orchestrator/internal/streaming"
)

// StreamHandler serves GET /api/v1/stream over WebSocket. The client sends a
// single {"query": ...} frame; the handler runs the query, relays its
// lifecycle events as they happen and finishes with the aggregate response
// frame followed by a normal close. With ?watch=1 no query is read and the
// connection instead observes every event on the hub.
type StreamHandler struct {
	orch   *orchestrator.Orchestrator
	hub    *streaming.Hub
	logger *zap.Logger

	upgrader websocket.Upgrader
}

func NewStreamHandler(orch *orchestrator.Orchestrator, hub *streaming.Hub, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		orch:   orch,
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if r.URL.Query().Get("watch") == "1" {
		h.watch(conn)
		return
	}
	h.serveQuery(r.Context(), conn)
}

// serveQuery runs one query for the connection and streams its lifecycle.
// The subscription is registered before the query starts, so no event is
// missed; the response frame is always the last data frame.
func (h *StreamHandler) serveQuery(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	var req queryRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.closeWithError(conn, "invalid query frame")
		return
	}
	conn.SetReadDeadline(time.Time{})

	requestID := uuid.NewString()
	events := h.hub.Subscribe(requestID, 128)
	defer h.hub.Unsubscribe(requestID, events)

	type outcome struct {
		resp *aggregation.Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := h.orch.HandleQueryWithID(ctx, requestID, req.Query)
		done <- outcome{resp: resp, err: err}
	}()

	// Reader goroutine only to observe the close handshake.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case ev := <-events:
			if !h.writeJSON(conn, ev) {
				return
			}
		case out := <-done:
			h.drainEvents(conn, events)
			if out.err != nil {
				msg := "internal error"
				if errors.Is(out.err, classification.ErrEmptyQuery) {
					msg = "query must not be empty"
				}
				h.closeWithError(conn, msg)
				return
			}
			if !h.writeJSON(conn, out.resp) {
				return
			}
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(5*time.Second))
			return
		}
	}
}

// watch relays every hub event until the client disconnects.
func (h *StreamHandler) watch(conn *websocket.Conn) {
	events := h.hub.Subscribe("", 128)
	defer h.hub.Unsubscribe("", events)

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !h.writeJSON(conn, ev) {
				return
			}
		}
	}
}

// drainEvents flushes events already queued ahead of the final frame.
func (h *StreamHandler) drainEvents(conn *websocket.Conn, events chan orchestrator.Event) {
	for {
		select {
		case ev := <-events:
			if !h.writeJSON(conn, ev) {
				return
			}
		default:
			return
		}
	}
}

func (h *StreamHandler) writeJSON(conn *websocket.Conn, v interface{}) bool {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(v); err != nil {
		h.logger.Debug("WebSocket write failed", zap.Error(err))
		return false
	}
	return true
}

func (h *StreamHandler) closeWithError(conn *websocket.Conn, message string) {
	h.writeJSON(conn, map[string]string{"error": message})
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message),
		time.Now().Add(5*time.Second))
}
