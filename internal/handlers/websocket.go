package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/interfaces"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local tool, same trust boundary as the REST surface
	},
}

// WebSocketHandler streams system events (ingest, reconcile) to connected
// clients as JSON frames.
type WebSocketHandler struct {
	events interfaces.EventPublisher
	logger arbor.ILogger
}

// NewWebSocketHandler creates the event stream handler.
func NewWebSocketHandler(events interfaces.EventPublisher, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{events: events, logger: logger}
}

// ServeHTTP upgrades the connection and forwards events until the client
// disconnects.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	stream, cancel := h.events.Subscribe()
	defer cancel()

	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("WebSocket client connected")

	// Reader goroutine only detects disconnects; inbound frames are ignored.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-stream:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug().Err(err).Msg("WebSocket write failed, dropping client")
				return
			}
		case <-done:
			return
		}
	}
}
