package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// promptMsg asks the model to show a confirm or alert box. The answer goes
// back on reply.
type promptMsg struct {
	confirm bool
	text    string
	reply   chan bool
}

// promptDialog implements panel.Dialog by handing prompts to the running
// program and blocking until the operator answers.
type promptDialog struct {
	events chan<- tea.Msg
}

func (d promptDialog) Confirm(ctx context.Context, message string) (bool, error) {
	return d.ask(ctx, promptMsg{confirm: true, text: message, reply: make(chan bool, 1)})
}

func (d promptDialog) Alert(ctx context.Context, message string) error {
	_, err := d.ask(ctx, promptMsg{text: message, reply: make(chan bool, 1)})
	return err
}

func (d promptDialog) ask(ctx context.Context, msg promptMsg) (bool, error) {
	select {
	case d.events <- msg:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case ok := <-msg.reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
