package panel

import (
	"sync"
	"time"
)

// DefaultToastDuration is how long a toast stays visible
const DefaultToastDuration = 3 * time.Second

// Toast is the active notification
type Toast struct {
	Message string    `json:"message"`
	Visible bool      `json:"visible"`
	Error   bool      `json:"error"`
	ShownAt time.Time `json:"shown_at"`
}

// Notifier shows one toast at a time. Show replaces the current text at
// once; every Show schedules its own hide and earlier hides are not
// cancelled, so an overlapping hide may clear a newer toast early.
type Notifier struct {
	mu       sync.Mutex
	delay    time.Duration
	toast    Toast
	timers   map[uint64]*time.Timer
	nextID   uint64
	closed   bool
	onChange func()
}

// NewNotifier creates a notifier. onChange, if set, runs after every
// show and hide.
func NewNotifier(delay time.Duration, onChange func()) *Notifier {
	if delay <= 0 {
		delay = DefaultToastDuration
	}
	return &Notifier{
		delay:    delay,
		timers:   make(map[uint64]*time.Timer),
		onChange: onChange,
	}
}

// Show sets the toast text and marks it visible
func (n *Notifier) Show(message string, isError bool) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.toast = Toast{Message: message, Visible: true, Error: isError, ShownAt: time.Now()}
	n.nextID++
	id := n.nextID
	n.timers[id] = time.AfterFunc(n.delay, func() { n.hide(id) })
	n.mu.Unlock()

	n.changed()
}

func (n *Notifier) hide(id uint64) {
	n.mu.Lock()
	delete(n.timers, id)
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.toast.Visible = false
	n.mu.Unlock()

	n.changed()
}

// Current returns a copy of the toast
func (n *Notifier) Current() Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.toast
}

// Pending returns the number of scheduled hides
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.timers)
}

// Close stops every scheduled hide
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
}

func (n *Notifier) changed() {
	if n.onChange != nil {
		n.onChange()
	}
}
