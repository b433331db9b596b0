package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovercontrol/robot-panel/internal/panel"
	"github.com/rovercontrol/robot-panel/internal/pktdef"
	"github.com/rovercontrol/robot-panel/internal/stream"
)

type fakeBackend struct {
	mu        sync.Mutex
	connects  []panel.ConnectRequest
	commands  []panel.Telecommand
	telemetry int
	err       error
}

func (f *fakeBackend) Connect(_ context.Context, req panel.ConnectRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, req)
	return "Connected to robot at " + req.IP, f.err
}

func (f *fakeBackend) SendCommand(_ context.Context, cmd panel.Telecommand) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	if f.err != nil {
		return "", f.err
	}
	return "Command " + cmd.Command + " acknowledged", nil
}

func (f *fakeBackend) RequestTelemetry(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.telemetry++
	if f.err != nil {
		return "", f.err
	}
	return "Telemetry Packet Received:\n - LastPktCounter: 2", nil
}

func newTestModel(t *testing.T, backend panel.Backend) Model {
	t.Helper()
	m := New(Options{Backend: backend, ToastDuration: time.Minute, IP: "192.168.1.5", Port: "8080", Protocol: "tcp"})
	t.Cleanup(func() {
		m.cancel()
		m.panel.Close()
	})
	return m
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func key(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// runAsync executes cmd in the background so a dialog prompt can be answered
func runAsync(cmd tea.Cmd) <-chan tea.Msg {
	out := make(chan tea.Msg, 1)
	go func() { out <- cmd() }()
	return out
}

func nextPrompt(t *testing.T, m Model) promptMsg {
	t.Helper()
	select {
	case msg := <-m.events:
		p, ok := msg.(promptMsg)
		require.True(t, ok, "unexpected message %T", msg)
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no prompt shown")
	}
	return promptMsg{}
}

func TestDriveFromForm(t *testing.T) {
	backend := &fakeBackend{}
	m := newTestModel(t, backend)
	m.inputs[fieldDuration].SetValue("5")
	m.inputs[fieldSpeed].SetValue("10")

	m, cmd := update(m, key(tea.KeyEnter))
	require.NotNil(t, cmd)
	m, _ = update(m, cmd())

	require.Len(t, backend.commands, 1)
	assert.Equal(t, panel.Telecommand{Command: "forward", Duration: panel.Int(5), Angle: panel.Int(10)}, backend.commands[0])
	assert.Equal(t, "Command forward acknowledged", m.state.Output)
	assert.Equal(t, "drive done", m.statusLine)

	view := m.View()
	assert.Contains(t, view, "Command forward acknowledged")
	assert.Contains(t, view, panel.ToastCommandSent)
}

func TestSleepConfirmedInsideTUI(t *testing.T) {
	backend := &fakeBackend{}
	m := newTestModel(t, backend)

	m, cmd := update(m, key(tea.KeyCtrlS))
	done := runAsync(cmd)

	m, _ = update(m, nextPrompt(t, m))
	require.Len(t, m.prompts, 1)
	assert.Contains(t, m.View(), panel.SleepPrompt)

	// drive keys are ignored while the prompt is open
	m, _ = update(m, key(tea.KeyEnter))
	m, _ = update(m, runes("y"))
	assert.Empty(t, m.prompts)

	m, _ = update(m, <-done)
	require.Len(t, backend.commands, 1)
	assert.Equal(t, panel.SleepCommand(), backend.commands[0])
	assert.Equal(t, panel.ToastSleep, m.state.Toast.Message)
}

func TestSleepDeclinedInsideTUI(t *testing.T) {
	backend := &fakeBackend{}
	m := newTestModel(t, backend)

	m, cmd := update(m, key(tea.KeyCtrlS))
	done := runAsync(cmd)
	m, _ = update(m, nextPrompt(t, m))
	m, _ = update(m, runes("n"))

	m, _ = update(m, <-done)
	assert.Empty(t, backend.commands)
	assert.Equal(t, "sleep cancelled", m.statusLine)
	assert.False(t, m.state.Toast.Visible)
}

func TestConnectShowsAlert(t *testing.T) {
	backend := &fakeBackend{}
	m := newTestModel(t, backend)

	m, cmd := update(m, key(tea.KeyCtrlK))
	done := runAsync(cmd)

	p := nextPrompt(t, m)
	assert.False(t, p.confirm)
	assert.Equal(t, "Connected to robot at 192.168.1.5", p.text)
	m, _ = update(m, p)
	m, _ = update(m, key(tea.KeyEnter))

	m, _ = update(m, <-done)
	require.Len(t, backend.connects, 1)
	assert.Equal(t, panel.ConnectRequest{IP: "192.168.1.5", Port: panel.Int(8080), Protocol: "tcp"}, backend.connects[0])
	assert.Equal(t, "connect done", m.statusLine)
}

func TestFailureRendersErrorToast(t *testing.T) {
	backend := &fakeBackend{err: errors.New("connection refused")}
	m := newTestModel(t, backend)

	m, cmd := update(m, key(tea.KeyCtrlT))
	m, _ = update(m, cmd())

	assert.Equal(t, "telemetry failed", m.statusLine)
	assert.True(t, m.state.Toast.Error)
	assert.Contains(t, m.View(), "❌ Telemetry failed: connection refused")
	assert.Contains(t, m.View(), "No response yet")
}

func TestFocusAndTyping(t *testing.T) {
	m := newTestModel(t, &fakeBackend{})
	assert.Equal(t, fieldDirection, m.focus)

	m, _ = update(m, key(tea.KeyTab))
	assert.Equal(t, fieldDuration, m.focus)
	m, _ = update(m, runes("7"))
	assert.Equal(t, "7", m.value(fieldDuration))

	m, _ = update(m, key(tea.KeyShiftTab))
	m, _ = update(m, key(tea.KeyShiftTab))
	m, _ = update(m, key(tea.KeyShiftTab))
	m, _ = update(m, key(tea.KeyShiftTab))
	assert.Equal(t, fieldIP, m.focus)
	m, _ = update(m, key(tea.KeyShiftTab))
	assert.Equal(t, fieldSpeed, m.focus)
}

func TestLiveTelemetryAndQuit(t *testing.T) {
	m := newTestModel(t, &fakeBackend{})

	m, _ = update(m, streamStatusMsg(stream.ConnectionStatus{Connected: false, Reconnecting: true}))
	assert.Contains(t, m.View(), "live telemetry offline")

	m, _ = update(m, liveMsg{telemetry: pktdef.Telemetry{LastPktCounter: 9, CurrentGrade: 100, LastCmd: pktdef.Backward, LastCmdSpeed: 40}})
	assert.Contains(t, m.View(), "live: pkt 9, grade 100, hits 0, last backward @ 40")

	m, cmd := update(m, key(tea.KeyEsc))
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
	assert.Empty(t, m.View())
	assert.Error(t, m.ctx.Err())
}

func TestOverlappingPromptsAreQueued(t *testing.T) {
	backend := &fakeBackend{}
	m := newTestModel(t, backend)

	m, connect := update(m, key(tea.KeyCtrlK))
	m, sleep := update(m, key(tea.KeyCtrlS))
	connectDone := runAsync(connect)
	first := nextPrompt(t, m)
	sleepDone := runAsync(sleep)
	second := nextPrompt(t, m)

	m, _ = update(m, first)
	m, _ = update(m, second)
	require.Len(t, m.prompts, 2)
	assert.Contains(t, m.View(), "(1 more)")

	// answer the alert, then the sleep confirm that was queued behind it
	m, _ = update(m, key(tea.KeyEnter))
	require.Len(t, m.prompts, 1)
	assert.True(t, m.prompts[0].confirm)
	m, _ = update(m, runes("y"))
	assert.Empty(t, m.prompts)

	for _, done := range []<-chan tea.Msg{connectDone, sleepDone} {
		select {
		case msg := <-done:
			m, _ = update(m, msg)
		case <-time.After(2 * time.Second):
			t.Fatal("an operation is still waiting on its prompt")
		}
	}
	require.Len(t, backend.connects, 1)
	require.Len(t, backend.commands, 1)
	assert.Equal(t, panel.SleepCommand(), backend.commands[0])
}

func TestQuitReleasesQueuedPrompts(t *testing.T) {
	m := newTestModel(t, &fakeBackend{})
	a := promptMsg{confirm: true, text: "one", reply: make(chan bool, 1)}
	b := promptMsg{text: "two", reply: make(chan bool, 1)}
	m, _ = update(m, a)
	m, _ = update(m, b)

	m, _ = update(m, key(tea.KeyCtrlC))
	assert.False(t, <-a.reply)
	assert.False(t, <-b.reply)
	assert.Empty(t, m.prompts)
}
