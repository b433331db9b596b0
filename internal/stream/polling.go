package stream

import (
	"context"
	"log"
	"sync"
	"time"
)

// TelemetrySource is anything that can fetch a telemetry text snapshot.
// *panel.Panel satisfies it.
type TelemetrySource interface {
	RequestTelemetry(ctx context.Context) (string, error)
}

// Poller refreshes telemetry on a fixed interval
type Poller struct {
	source   TelemetrySource
	interval time.Duration
	timeout  time.Duration
	mu       sync.Mutex

	connected bool
	lastError error
	lastSeen  time.Time
	polls     int

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPoller creates a poller. Each request is bounded by timeout when
// positive.
func NewPoller(source TelemetrySource, interval, timeout time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		source:   source,
		interval: interval,
		timeout:  timeout,
		done:     make(chan struct{}),
	}
}

// Start begins the polling loop
func (p *Poller) Start() {
	p.wg.Add(1)
	go p.pollLoop()
}

// Stop stops the polling loop and waits for an in-flight poll to finish
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
	p.wg.Wait()
}

// Status returns the current feed status
func (p *Poller) Status() ConnectionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	errStr := ""
	if p.lastError != nil {
		errStr = p.lastError.Error()
	}
	return ConnectionStatus{
		Connected: p.connected,
		LastError: errStr,
		LastSeen:  p.lastSeen,
	}
}

// Polls returns how many requests have been issued
func (p *Poller) Polls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	var ctx context.Context
	var cancel context.CancelFunc
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), p.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	go func() {
		select {
		case <-p.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	_, err := p.source.RequestTelemetry(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	if err != nil {
		p.connected = false
		p.lastError = err
		log.Printf("Telemetry poll failed: %v", err)
		return
	}
	p.connected = true
	p.lastError = nil
	p.lastSeen = time.Now()
}
