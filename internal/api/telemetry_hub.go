package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rovercontrol/robot-panel/internal/metrics"
	"github.com/rovercontrol/robot-panel/internal/pktdef"
)

// TelemetryFrame is the websocket message pushed to subscribers
type TelemetryFrame struct {
	Type       string           `json:"type"` // "telemetry" or "pong"
	Telemetry  pktdef.Telemetry `json:"telemetry"`
	ReceivedAt time.Time        `json:"received_at"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// TelemetryHub fans out every telemetry snapshot the gateway reads to
// websocket subscribers. Slow subscribers drop frames rather than block.
type TelemetryHub struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration

	mu      sync.Mutex
	clients map[*subscriber]struct{}
	last    []byte
	closed  bool
}

// NewTelemetryHub creates a hub. A nil checkOrigin accepts any origin.
func NewTelemetryHub(checkOrigin func(r *http.Request) bool, pingInterval time.Duration) *TelemetryHub {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &TelemetryHub{
		upgrader:     websocket.Upgrader{CheckOrigin: checkOrigin},
		pingInterval: pingInterval,
		clients:      make(map[*subscriber]struct{}),
	}
}

// Publish broadcasts a snapshot and remembers it for late subscribers
func (h *TelemetryHub) Publish(t pktdef.Telemetry) {
	data, err := json.Marshal(TelemetryFrame{Type: "telemetry", Telemetry: t, ReceivedAt: time.Now()})
	if err != nil {
		log.Printf("Failed to marshal telemetry frame: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = data
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Println("Telemetry subscriber too slow, dropping frame")
		}
	}
}

// Count returns the number of connected subscribers
func (h *TelemetryHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all subscribers
func (h *TelemetryHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	metrics.TelemetrySubscribers.Set(0)
}

// ServeHTTP upgrades the request and streams frames until the peer leaves
func (h *TelemetryHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Telemetry websocket upgrade failed: %v", err)
		return
	}

	c := &subscriber{conn: conn, send: make(chan []byte, 16)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	metrics.TelemetrySubscribers.Set(float64(len(h.clients)))
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *TelemetryHub) remove(c *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	metrics.TelemetrySubscribers.Set(float64(len(h.clients)))
}

// readLoop answers application pings and detects disconnects
func (h *TelemetryHub) readLoop(c *subscriber) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Telemetry websocket read error: %v", err)
			}
			return
		}

		var msg struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(message, &msg) == nil && msg.Type == "ping" {
			pong, _ := json.Marshal(TelemetryFrame{Type: "pong", ReceivedAt: time.Now()})
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				select {
				case c.send <- pong:
				default:
				}
			}
			h.mu.Unlock()
		}
	}
}

// writeLoop is the only writer on the connection
func (h *TelemetryHub) writeLoop(c *subscriber) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				c.conn.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Telemetry websocket write error: %v", err)
				c.conn.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}
