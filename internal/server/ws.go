package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/emiller/vigil/internal/detect"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// EventsHandler broadcasts motion events to websocket clients. The
// pipeline calls Broadcast from the detection goroutine; a slow client
// is dropped rather than allowed to stall the tick.
type EventsHandler struct {
	logger  *zap.SugaredLogger
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
}

// NewEventsHandler creates an empty broadcast hub.
func NewEventsHandler(logger *zap.SugaredLogger) *EventsHandler {
	return &EventsHandler{
		logger:  logger.Named("ws"),
		clients: make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP handles websocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep the connection registered until the client goes away;
	// inbound messages are ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// eventJSON is the wire form of a motion event.
type eventJSON struct {
	At        time.Time `json:"at"`
	Detected  bool      `json:"detected"`
	Magnitude float64   `json:"magnitude"`
	Raw       float64   `json:"raw_magnitude"`
}

// Broadcast pushes one event to every connected client.
func (h *EventsHandler) Broadcast(ev detect.Event) {
	msg := eventJSON{
		At:        ev.Timestamp,
		Detected:  ev.Detected,
		Magnitude: ev.Magnitude,
		Raw:       ev.RawMagnitude,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *EventsHandler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
