package api

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Telecommand record statuses
const (
	StatusPending = "pending"
	StatusAcked   = "acked"
	StatusNak     = "nak"
	StatusFailed  = "failed"
)

// CommandRecord is one telecommand issued through the gateway
type CommandRecord struct {
	ID          string     `json:"id"`
	Command     string     `json:"command"`
	Duration    *int       `json:"duration"`
	Angle       *int       `json:"angle"`
	PktCount    uint16     `json:"pkt_count,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// CommandBuffer is a thread-safe ring of recent telecommands
type CommandBuffer struct {
	mu      sync.RWMutex
	entries []CommandRecord
	cap     int
}

// NewCommandBuffer creates a new command buffer with the given capacity
func NewCommandBuffer(capacity int) *CommandBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &CommandBuffer{
		entries: make([]CommandRecord, 0, capacity),
		cap:     capacity,
	}
}

// Start records a pending telecommand and returns its ID
func (cb *CommandBuffer) Start(command string, duration, angle *int) string {
	rec := CommandRecord{
		ID:        uuid.New().String(),
		Command:   command,
		Duration:  duration,
		Angle:     angle,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if len(cb.entries) >= cb.cap {
		copy(cb.entries, cb.entries[1:])
		cb.entries[len(cb.entries)-1] = rec
	} else {
		cb.entries = append(cb.entries, rec)
	}
	return rec.ID
}

// Finish sets the outcome of a recorded telecommand. Unknown IDs (already
// rotated out) are ignored.
func (cb *CommandBuffer) Finish(id, status string, pktCount uint16, errMsg string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	for i := len(cb.entries) - 1; i >= 0; i-- {
		if cb.entries[i].ID != id {
			continue
		}
		now := time.Now()
		cb.entries[i].Status = status
		cb.entries[i].PktCount = pktCount
		cb.entries[i].Error = errMsg
		cb.entries[i].CompletedAt = &now
		return
	}
}

// Entries returns all records (newest first)
func (cb *CommandBuffer) Entries() []CommandRecord {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	result := make([]CommandRecord, len(cb.entries))
	for i, j := 0, len(cb.entries)-1; j >= 0; i, j = i+1, j-1 {
		result[i] = cb.entries[j]
	}
	return result
}
