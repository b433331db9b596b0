package stream

import (
	"time"

	"github.com/rovercontrol/robot-panel/internal/pktdef"
)

// ConnectionStatus represents the state of a telemetry feed
type ConnectionStatus struct {
	Connected    bool      `json:"connected"`
	Reconnecting bool      `json:"reconnecting"`
	LastError    string    `json:"last_error,omitempty"`
	LastSeen     time.Time `json:"last_seen"`
}

// Message types from the gateway
type IncomingMessage struct {
	Type       string           `json:"type"`
	Telemetry  pktdef.Telemetry `json:"telemetry"`
	ReceivedAt time.Time        `json:"received_at"`
}

// Message types to the gateway
type OutgoingMessage struct {
	Type string `json:"type"`
}
