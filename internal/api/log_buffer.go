package api

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// LogBuffer keeps the most recent log entries for the /api/logs view
type LogBuffer struct {
	mu    sync.RWMutex
	ring  []LogEntry
	next  int
	count int

	captured bool
}

// NewLogBuffer creates a new log buffer with the given capacity
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &LogBuffer{ring: make([]LogEntry, capacity)}
}

// Add appends an entry, overwriting the oldest once full
func (lb *LogBuffer) Add(level, message string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.ring[lb.next] = LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	}
	lb.next = (lb.next + 1) % len(lb.ring)
	if lb.count < len(lb.ring) {
		lb.count++
	}
}

// Entries returns entries oldest first, optionally filtered by level
func (lb *LogBuffer) Entries(levels []string) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	want := make(map[string]bool, len(levels))
	for _, l := range levels {
		if l = strings.TrimSpace(strings.ToLower(l)); l != "" {
			want[l] = true
		}
	}

	result := make([]LogEntry, 0, lb.count)
	start := (lb.next - lb.count + len(lb.ring)) % len(lb.ring)
	for i := 0; i < lb.count; i++ {
		e := lb.ring[(start+i)%len(lb.ring)]
		if len(want) > 0 && !want[e.Level] {
			continue
		}
		result = append(result, e)
	}
	return result
}

// Len returns the number of stored entries
func (lb *LogBuffer) Len() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.count
}

// Clear removes all entries
func (lb *LogBuffer) Clear() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.next, lb.count = 0, 0
}

// logWriter adapts LogBuffer to io.Writer for use with Go's log package
type logWriter struct {
	buf *LogBuffer
}

func (lw *logWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}

	// Strip standard log prefix "2006/01/02 15:04:05 "
	if len(msg) > 20 && msg[4] == '/' && msg[7] == '/' && msg[10] == ' ' {
		msg = msg[20:]
	}

	level, msg := classify(msg)
	lw.buf.Add(level, msg)
	return len(p), nil
}

// classify picks a level for a captured line. The WARN:/ERROR: prefixes
// written by the Log helpers win and are stripped; other lines are
// guessed from their wording.
func classify(msg string) (string, string) {
	switch {
	case strings.HasPrefix(msg, "ERROR: "):
		return LevelError, strings.TrimPrefix(msg, "ERROR: ")
	case strings.HasPrefix(msg, "WARN: "):
		return LevelWarn, strings.TrimPrefix(msg, "WARN: ")
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.HasPrefix(lower, "error") || strings.Contains(lower, "fail"):
		return LevelError, msg
	case strings.HasPrefix(lower, "warn"):
		return LevelWarn, msg
	}
	return LevelInfo, msg
}

// InstallLogCapture tees Go's log package into the LogBuffer as well as
// the previous log output.
func InstallLogCapture(buf *LogBuffer) io.Writer {
	buf.mu.Lock()
	buf.captured = true
	buf.mu.Unlock()

	lw := &logWriter{buf: buf}
	multi := io.MultiWriter(lw, log.Writer())
	log.SetOutput(multi)
	log.SetFlags(log.LstdFlags)
	return multi
}

// LogInfo logs an info message
func (lb *LogBuffer) LogInfo(format string, args ...interface{}) {
	lb.emit(LevelInfo, "", format, args...)
}

// LogWarn logs a warning message
func (lb *LogBuffer) LogWarn(format string, args ...interface{}) {
	lb.emit(LevelWarn, "WARN: ", format, args...)
}

// LogError logs an error message
func (lb *LogBuffer) LogError(format string, args ...interface{}) {
	lb.emit(LevelError, "ERROR: ", format, args...)
}

// emit records the entry once: through the log capture when installed,
// directly otherwise.
func (lb *LogBuffer) emit(level, prefix, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	lb.mu.RLock()
	captured := lb.captured
	lb.mu.RUnlock()

	if !captured {
		lb.Add(level, msg)
	}
	log.Printf("%s%s", prefix, msg)
}
