package stream

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rovercontrol/robot-panel/internal/config"
	"github.com/rovercontrol/robot-panel/internal/pktdef"
)

// WSClient subscribes to the gateway's live telemetry websocket
type WSClient struct {
	config config.StreamConfig
	dialer *websocket.Dialer
	conn   *websocket.Conn
	mu     sync.Mutex

	// State
	connected    bool
	reconnecting bool
	lastError    error
	lastSeen     time.Time
	latest       *pktdef.Telemetry

	done     chan struct{}
	stopOnce sync.Once

	// OnTelemetry is called from the read loop for every telemetry frame
	OnTelemetry func(t pktdef.Telemetry, receivedAt time.Time)
	// OnStatus is called whenever the connection state changes
	OnStatus func(ConnectionStatus)
}

// NewWSClient creates a new WebSocket client
func NewWSClient(cfg config.StreamConfig) *WSClient {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = cfg.ReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &WSClient{
		config: cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		done:   make(chan struct{}),
	}
}

// Start begins the connection and reconnection loop
func (c *WSClient) Start() {
	go c.connectionLoop()
}

// Stop closes the connection and ends the reconnection loop
func (c *WSClient) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	})
}

// Status returns the current connection status
func (c *WSClient) Status() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *WSClient) statusLocked() ConnectionStatus {
	errStr := ""
	if c.lastError != nil {
		errStr = c.lastError.Error()
	}
	return ConnectionStatus{
		Connected:    c.connected,
		Reconnecting: c.reconnecting,
		LastError:    errStr,
		LastSeen:     c.lastSeen,
	}
}

// Latest returns the most recent telemetry frame, if any arrived
func (c *WSClient) Latest() (pktdef.Telemetry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return pktdef.Telemetry{}, false
	}
	return *c.latest, true
}

// connectionLoop manages connection and reconnection
func (c *WSClient) connectionLoop() {
	delay := c.config.ReconnectDelay

	for {
		select {
		case <-c.done:
			return
		default:
		}

		err := c.connect()
		if err != nil {
			c.setState(func() {
				c.connected = false
				c.reconnecting = true
				c.lastError = err
			})

			log.Printf("Telemetry stream connection failed: %v. Reconnecting in %v...", err, delay)

			select {
			case <-c.done:
				return
			case <-time.After(delay):
			}

			delay = nextDelay(delay, c.config.MaxReconnectDelay)
			continue
		}

		delay = c.config.ReconnectDelay
		c.runConnection()
	}
}

// nextDelay doubles d up to max
func nextDelay(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		d = max
	}
	return d
}

// connect establishes the WebSocket connection
func (c *WSClient) connect() error {
	log.Printf("Connecting to telemetry stream: %s", c.config.Endpoint)

	conn, _, err := c.dialer.Dial(c.config.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("client stopped")
	default:
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(func() {
		c.connected = true
		c.reconnecting = false
		c.lastError = nil
		c.lastSeen = time.Now()
	})

	log.Println("Telemetry stream connected")
	return nil
}

// runConnection handles read/write on an established connection
func (c *WSClient) runConnection() {
	var wg sync.WaitGroup
	wg.Add(2)

	stop := make(chan struct{})
	go func() {
		defer wg.Done()
		defer close(stop)
		c.readLoop()
	}()
	go func() {
		defer wg.Done()
		c.writeLoop(stop)
	}()

	wg.Wait()

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
	c.setState(func() { c.connected = false })
}

// readLoop reads incoming messages until the connection drops
func (c *WSClient) readLoop() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.setState(func() { c.lastError = err })
				log.Printf("Telemetry stream read error: %v", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

// writeLoop sends keepalive pings. Returning closes the connection so the
// read loop unblocks.
func (c *WSClient) writeLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	defer conn.Close()

	ping, _ := json.Marshal(OutgoingMessage{Type: "ping"})
	for {
		select {
		case <-c.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case <-stop:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				log.Printf("Telemetry stream ping error: %v", err)
				return
			}
		}
	}
}

// handleMessage processes one incoming frame
func (c *WSClient) handleMessage(data []byte) {
	var msg IncomingMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Failed to parse telemetry frame: %v", err)
		return
	}

	switch msg.Type {
	case "telemetry":
		t := msg.Telemetry
		c.mu.Lock()
		c.latest = &t
		c.lastSeen = time.Now()
		c.mu.Unlock()
		if c.OnTelemetry != nil {
			c.OnTelemetry(t, msg.ReceivedAt)
		}
	case "pong":
		c.mu.Lock()
		c.lastSeen = time.Now()
		c.mu.Unlock()
	default:
		log.Printf("Unknown message type: %s", msg.Type)
	}
}

func (c *WSClient) setState(fn func()) {
	c.mu.Lock()
	fn()
	st := c.statusLocked()
	c.mu.Unlock()
	if c.OnStatus != nil {
		c.OnStatus(st)
	}
}
