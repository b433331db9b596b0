// Package tui is the terminal front-end for the command panel
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rovercontrol/robot-panel/internal/panel"
	"github.com/rovercontrol/robot-panel/internal/pktdef"
	"github.com/rovercontrol/robot-panel/internal/stream"
)

// form field order; tab cycles through it
const (
	fieldIP = iota
	fieldPort
	fieldProtocol
	fieldDirection
	fieldDuration
	fieldSpeed
	fieldCount
)

var fieldLabels = [fieldCount]string{"IP", "Port", "Protocol", "Direction", "Duration", "Speed"}

// Options configures the terminal panel
type Options struct {
	Backend       panel.Backend
	ToastDuration time.Duration
	Policy        panel.ResponsePolicy
	// Stream, if set, feeds live telemetry into the view
	Stream *stream.WSClient
	// PollInterval, when positive, refreshes the output with a telemetry
	// request on that interval
	PollInterval time.Duration

	IP       string
	Port     string
	Protocol string
}

type stateMsg struct{}

type opDoneMsg struct {
	op  string
	err error
}

type liveMsg struct {
	telemetry pktdef.Telemetry
	at        time.Time
}

type streamStatusMsg stream.ConnectionStatus

// Model is the bubbletea model. The panel owns output and toast state; the
// view renders a snapshot of it.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc
	panel  *panel.Panel
	events chan tea.Msg
	change chan struct{}
	theme  uiTheme

	inputs []textinput.Model
	focus  int

	state      panel.State
	prompts    []promptMsg // head is on screen
	statusLine string
	live       *liveMsg
	liveStatus *stream.ConnectionStatus
	width      int
	quitting   bool
}

// New builds the model and its panel
func New(opts Options) Model {
	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		ctx:    ctx,
		cancel: cancel,
		events: make(chan tea.Msg, 16),
		change: make(chan struct{}, 1),
		theme:  newTheme(),
		width:  80,
	}

	m.panel = panel.New(opts.Backend, panel.Options{
		Dialog:        promptDialog{events: m.events},
		ToastDuration: opts.ToastDuration,
		Policy:        opts.Policy,
		OnChange: func(panel.State) {
			select {
			case m.change <- struct{}{}:
			default:
			}
		},
	})

	if opts.Stream != nil {
		events := m.events
		opts.Stream.OnTelemetry = func(t pktdef.Telemetry, at time.Time) {
			select {
			case events <- liveMsg{telemetry: t, at: at}:
			default:
			}
		}
		opts.Stream.OnStatus = func(st stream.ConnectionStatus) {
			select {
			case events <- streamStatusMsg(st):
			default:
			}
		}
	}

	defaults := [fieldCount]string{opts.IP, opts.Port, opts.Protocol, "forward", "", ""}
	placeholders := [fieldCount]string{"192.168.1.5", "8080", "udp or tcp", "forward/backward/left/right", "seconds", "0-255"}
	m.inputs = make([]textinput.Model, fieldCount)
	for i := range m.inputs {
		in := textinput.New()
		in.Prompt = ""
		in.CharLimit = 64
		in.Placeholder = placeholders[i]
		in.SetValue(defaults[i])
		m.inputs[i] = in
	}
	m.focus = fieldDirection
	m.inputs[m.focus].Focus()
	m.statusLine = "ready"
	return m
}

// Panel exposes the underlying view-model
func (m Model) Panel() *panel.Panel {
	return m.panel
}

// Run starts the program and blocks until the operator quits. The log
// package is silenced while the alternate screen is up.
func Run(opts Options) error {
	prev := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(prev)

	m := New(opts)
	defer m.panel.Close()
	if opts.Stream != nil {
		opts.Stream.Start()
		defer opts.Stream.Stop()
	}
	if opts.PollInterval > 0 {
		poller := stream.NewPoller(m.panel, opts.PollInterval, opts.PollInterval)
		poller.Start()
		defer poller.Stop()
	}
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitMsg(m.events), waitChange(m.change))
}

func waitMsg(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func waitChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return stateMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case stateMsg:
		m.state = m.panel.State()
		return m, waitChange(m.change)

	case promptMsg:
		m.prompts = append(m.prompts, msg)
		return m, waitMsg(m.events)

	case liveMsg:
		m.live = &msg
		return m, waitMsg(m.events)

	case streamStatusMsg:
		st := stream.ConnectionStatus(msg)
		m.liveStatus = &st
		return m, waitMsg(m.events)

	case opDoneMsg:
		switch {
		case errors.Is(msg.err, panel.ErrDeclined):
			m.statusLine = "sleep cancelled"
		case msg.err != nil:
			m.statusLine = fmt.Sprintf("%s failed", msg.op)
		default:
			m.statusLine = fmt.Sprintf("%s done", msg.op)
		}
		m.state = m.panel.State()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if len(m.prompts) > 0 {
			return m.answerPrompt(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) answerPrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.prompts[0]
	if !p.confirm {
		switch msg.String() {
		case "enter", "esc", " ":
			return m.popPrompt(true), nil
		}
		return m, nil
	}

	switch msg.String() {
	case "y", "Y":
		return m.popPrompt(true), nil
	case "n", "N", "esc":
		return m.popPrompt(false), nil
	}
	return m, nil
}

// popPrompt answers the visible prompt and shows the next queued one
func (m Model) popPrompt(answer bool) Model {
	m.prompts[0].reply <- answer
	m.prompts = append([]promptMsg(nil), m.prompts[1:]...)
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m.quit()
	case "tab", "down":
		return m.moveFocus(1), nil
	case "shift+tab", "up":
		return m.moveFocus(-1), nil
	case "ctrl+k":
		m.statusLine = "connecting..."
		return m, m.run("connect", func(ctx context.Context) error {
			_, err := m.panel.Connect(ctx, m.value(fieldIP), m.value(fieldPort), m.value(fieldProtocol))
			return err
		})
	case "enter":
		form := panel.DriveForm{
			Direction: m.value(fieldDirection),
			Duration:  m.value(fieldDuration),
			Speed:     m.value(fieldSpeed),
		}
		m.statusLine = "sending " + form.Direction + "..."
		return m, m.run("drive", func(ctx context.Context) error {
			_, err := m.panel.SubmitDrive(ctx, form)
			return err
		})
	case "ctrl+s":
		return m, m.run("sleep", func(ctx context.Context) error {
			_, err := m.panel.SendSleep(ctx)
			return err
		})
	case "ctrl+t":
		m.statusLine = "requesting telemetry..."
		return m, m.run("telemetry", func(ctx context.Context) error {
			_, err := m.panel.RequestTelemetry(ctx)
			return err
		})
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

// run executes a panel operation off the update loop
func (m Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	for _, p := range m.prompts {
		p.reply <- false
	}
	m.prompts = nil
	m.quitting = true
	m.cancel()
	return m, tea.Quit
}

func (m Model) moveFocus(delta int) Model {
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + delta + fieldCount) % fieldCount
	m.inputs[m.focus].Focus()
	return m
}

func (m Model) value(field int) string {
	return strings.TrimSpace(m.inputs[field].Value())
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	t := m.theme
	var b strings.Builder

	b.WriteString(t.title.Render("🤖 Robot Command Panel"))
	b.WriteString("\n")

	b.WriteString(t.section.Render("Connection"))
	b.WriteString("\n")
	for i := fieldIP; i <= fieldProtocol; i++ {
		b.WriteString(m.fieldRow(i))
	}

	b.WriteString(t.section.Render("Drive"))
	b.WriteString("\n")
	for i := fieldDirection; i <= fieldSpeed; i++ {
		b.WriteString(m.fieldRow(i))
	}

	b.WriteString(t.section.Render("Response"))
	b.WriteString("\n")
	out := m.state.Output
	if out == "" {
		out = t.muted.Render("No response yet")
	}
	width := m.width - 4
	if width < 20 {
		width = 20
	}
	b.WriteString(t.output.Width(width).Render(out))
	b.WriteString("\n")

	if m.state.Toast.Visible {
		style := t.toast
		if m.state.Toast.Error {
			style = t.toastError
		}
		b.WriteString(style.Render(m.state.Toast.Message))
		b.WriteString("\n")
	}

	if m.live != nil {
		tel := m.live.telemetry
		b.WriteString(t.live.Render(fmt.Sprintf("● live: pkt %d, grade %d, hits %d, last %s @ %d",
			tel.LastPktCounter, tel.CurrentGrade, tel.HitCount, pktdef.DirectionName(tel.LastCmd), tel.LastCmdSpeed)))
		b.WriteString("\n")
	} else if m.liveStatus != nil && !m.liveStatus.Connected {
		b.WriteString(t.muted.Render("○ live telemetry offline"))
		b.WriteString("\n")
	}

	if len(m.prompts) > 0 {
		p := m.prompts[0]
		hint := "[enter] ok"
		if p.confirm {
			hint = "[y] yes  [n] no"
		}
		if len(m.prompts) > 1 {
			hint += fmt.Sprintf("  (%d more)", len(m.prompts)-1)
		}
		b.WriteString(t.prompt.Render(p.text + "\n\n" + hint))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	status := m.statusLine
	if m.state.InFlight > 0 {
		status = fmt.Sprintf("%s (%d in flight)", status, m.state.InFlight)
	}
	b.WriteString(t.muted.Render(status))
	b.WriteString("\n")
	b.WriteString(t.muted.Render("tab move · ctrl+k connect · enter drive · ctrl+s sleep · ctrl+t telemetry · esc quit"))
	return b.String()
}

func (m Model) fieldRow(i int) string {
	label := m.theme.label
	if i == m.focus {
		label = m.theme.focused
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, label.Render(fieldLabels[i]), m.inputs[i].View()) + "\n"
}
