// Package panel is the operator command panel: it turns form input into
// requests against the robot-control gateway and owns the output text and
// toast that front-ends render.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Toast messages
const (
	ToastCommandSent = "✅ Command sent successfully"
	ToastSleep       = "💤 Robot put to sleep"
	ToastTelemetry   = "📡 Telemetry received"

	SleepPrompt = "Are you sure you want to put the robot to sleep?"
)

// ErrDeclined is returned by SendSleep when the operator says no
var ErrDeclined = errors.New("operator declined")

// ErrUnknownPolicy is returned by ParsePolicy
var ErrUnknownPolicy = errors.New("unknown response policy")

// ResponsePolicy decides which of several overlapping responses is shown
type ResponsePolicy string

const (
	// PolicyLastResolved shows whichever response arrives last
	PolicyLastResolved ResponsePolicy = "last-resolved"
	// PolicyLatestIssued drops responses older than the newest one shown
	PolicyLatestIssued ResponsePolicy = "latest-issued"
)

// ParsePolicy maps a config value to a ResponsePolicy. Empty means
// last-resolved.
func ParsePolicy(s string) (ResponsePolicy, error) {
	switch ResponsePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyLastResolved:
		return PolicyLastResolved, nil
	case PolicyLatestIssued:
		return PolicyLatestIssued, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// State is a snapshot of everything a front-end renders
type State struct {
	Output   string `json:"output"`
	Toast    Toast  `json:"toast"`
	Err      error  `json:"-"`
	InFlight int    `json:"in_flight"`
	Dropped  int    `json:"dropped"`
}

// Options configures a Panel
type Options struct {
	Dialog        Dialog
	ToastDuration time.Duration
	Policy        ResponsePolicy
	// OnChange receives a fresh snapshot after every state change. It is
	// called without internal locks held.
	OnChange func(State)
}

// Panel is the command panel view-model. It is safe for concurrent use.
type Panel struct {
	backend  Backend
	dialog   Dialog
	policy   ResponsePolicy
	notifier *Notifier

	mu       sync.Mutex
	onChange func(State)
	output   string
	err      error
	inFlight int
	dropped  int
	issued   uint64
	applied  uint64
}

// New creates a panel talking to backend
func New(backend Backend, opts Options) *Panel {
	if opts.Dialog == nil {
		opts.Dialog = AutoDialog{}
	}
	if opts.Policy == "" {
		opts.Policy = PolicyLastResolved
	}
	p := &Panel{
		backend:  backend,
		dialog:   opts.Dialog,
		policy:   opts.Policy,
		onChange: opts.OnChange,
	}
	p.notifier = NewNotifier(opts.ToastDuration, p.emit)
	return p
}

// SetOnChange replaces the change callback
func (p *Panel) SetOnChange(fn func(State)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// Policy returns the response policy in use
func (p *Panel) Policy() ResponsePolicy {
	return p.policy
}

// State returns a snapshot of the output, toast and error
func (p *Panel) State() State {
	toast := p.notifier.Current()
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		Output:   p.output,
		Toast:    toast,
		Err:      p.err,
		InFlight: p.inFlight,
		Dropped:  p.dropped,
	}
}

// Close stops pending toast timers
func (p *Panel) Close() {
	p.notifier.Close()
}

// Connect sends one connect request. The port is parsed with ParseInt and
// an empty protocol is left out of the body. The response text is shown
// through the dialog's alert.
func (p *Panel) Connect(ctx context.Context, host, port, protocol string) (string, error) {
	req := ConnectRequest{IP: host, Port: ParseInt(port), Protocol: protocol}

	p.begin(false)
	text, err := p.backend.Connect(ctx, req)
	if err != nil {
		p.fail(0, "Connect", err)
		return "", err
	}
	p.finish()

	if err := p.dialog.Alert(ctx, text); err != nil {
		return text, fmt.Errorf("alert: %w", err)
	}
	return text, nil
}

// SubmitDrive handles the drive form. Duration and speed go through
// ParseInt; nothing is range-checked here.
func (p *Panel) SubmitDrive(ctx context.Context, form DriveForm) (string, error) {
	return p.SendCommand(ctx, form.Direction, ParseInt(form.Duration), ParseInt(form.Speed))
}

// SendCommand sends one telecommand and shows the response as output
func (p *Panel) SendCommand(ctx context.Context, command string, duration, angle *int) (string, error) {
	cmd := Telecommand{Command: command, Duration: duration, Angle: angle}
	return p.send(ctx, "Command", cmd, ToastCommandSent)
}

// SendSleep asks for confirmation and then sends the sleep command.
// It returns ErrDeclined without touching any state when the operator
// says no.
func (p *Panel) SendSleep(ctx context.Context) (string, error) {
	ok, err := p.dialog.Confirm(ctx, SleepPrompt)
	if err != nil {
		return "", fmt.Errorf("confirm: %w", err)
	}
	if !ok {
		return "", ErrDeclined
	}
	return p.send(ctx, "Sleep", SleepCommand(), ToastSleep)
}

// RequestTelemetry fetches telemetry and shows the text verbatim
func (p *Panel) RequestTelemetry(ctx context.Context) (string, error) {
	seq := p.begin(true)
	text, err := p.backend.RequestTelemetry(ctx)
	if err != nil {
		p.fail(seq, "Telemetry", err)
		return "", err
	}
	p.apply(seq, text, ToastTelemetry)
	return text, nil
}

// Notify shows a toast that hides itself after the toast duration
func (p *Panel) Notify(message string) {
	p.notifier.Show(message, false)
}

func (p *Panel) send(ctx context.Context, op string, cmd Telecommand, toast string) (string, error) {
	seq := p.begin(true)
	text, err := p.backend.SendCommand(ctx, cmd)
	if err != nil {
		p.fail(seq, op, err)
		return "", err
	}
	p.apply(seq, text, toast)
	return text, nil
}

// begin counts a request in flight. Sequenced requests write the output
// and get a token; seq 0 means unsequenced.
func (p *Panel) begin(sequenced bool) uint64 {
	var seq uint64
	p.mu.Lock()
	if sequenced {
		p.issued++
		seq = p.issued
	}
	p.inFlight++
	p.mu.Unlock()

	p.emit()
	return seq
}

// settle marks seq as resolved and reports whether its result may be shown
func (p *Panel) settle(seq uint64) bool {
	p.inFlight--
	if seq == 0 {
		return true
	}
	if p.policy == PolicyLatestIssued && seq < p.applied {
		p.dropped++
		return false
	}
	p.applied = seq
	return true
}

func (p *Panel) finish() {
	p.mu.Lock()
	p.inFlight--
	p.err = nil
	p.mu.Unlock()
	p.emit()
}

func (p *Panel) apply(seq uint64, text, toast string) {
	p.mu.Lock()
	if !p.settle(seq) {
		p.mu.Unlock()
		p.emit()
		return
	}
	p.output = text
	p.err = nil
	p.mu.Unlock()

	p.notifier.Show(toast, false)
}

func (p *Panel) fail(seq uint64, op string, err error) {
	log.Printf("%s failed: %v", op, err)

	p.mu.Lock()
	if !p.settle(seq) {
		p.mu.Unlock()
		p.emit()
		return
	}
	p.err = err
	p.mu.Unlock()

	p.notifier.Show(fmt.Sprintf("❌ %s failed: %v", op, err), true)
}

func (p *Panel) emit() {
	p.mu.Lock()
	fn := p.onChange
	p.mu.Unlock()
	if fn != nil {
		fn(p.State())
	}
}
