package collector

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/grovesense/weatherlink/logging"
)

const writeWait = time.Second

// liveReading is the websocket message for one stored reading.
type liveReading struct {
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
}

// Hub fans stored readings out to connected websocket clients. Clients only listen; anything
// they send is discarded.
type Hub struct {
	upgrader websocket.Upgrader
	logger   logging.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	closed  bool
	active  sync.WaitGroup
}

// NewHub returns a hub with no clients.
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// the dashboard may be served from anywhere, same as the REST endpoints.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the connection registered until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debugw("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		//nolint:errcheck
		conn.Close()
		return
	}
	h.clients[conn] = struct{}{}
	h.active.Add(1)
	h.mu.Unlock()
	defer h.active.Done()
	h.logger.Debugw("websocket client connected", "remote", r.RemoteAddr)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(conn)
	h.logger.Debugw("websocket client disconnected", "remote", r.RemoteAddr)
}

// Broadcast sends reading to every client. Clients that cannot keep up are dropped.
func (h *Hub) Broadcast(reading StoredReading) {
	message, err := json.Marshal(liveReading{
		Timestamp:   reading.Timestamp,
		Temperature: reading.Temperature,
		Humidity:    reading.Humidity,
		Pressure:    reading.Pressure,
	})
	if err != nil {
		h.logger.Errorw("encoding live reading", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		//nolint:errcheck
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Debugw("dropping websocket client", "error", err)
			//nolint:errcheck
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their handlers to return. Later clients are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for conn := range h.clients {
		//nolint:errcheck
		conn.Close()
		delete(h.clients, conn)
	}
	h.mu.Unlock()
	h.active.Wait()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		//nolint:errcheck
		conn.Close()
		delete(h.clients, conn)
	}
}
