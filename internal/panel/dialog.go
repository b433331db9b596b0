package panel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Dialog is the operator acknowledgement gate. Confirm blocks until the
// operator answers yes or no; Alert blocks until the message is dismissed.
type Dialog interface {
	Confirm(ctx context.Context, message string) (bool, error)
	Alert(ctx context.Context, message string) error
}

// AutoDialog answers every confirmation with Answer and discards alerts
type AutoDialog struct {
	Answer bool
}

func (d AutoDialog) Confirm(context.Context, string) (bool, error) { return d.Answer, nil }
func (d AutoDialog) Alert(context.Context, string) error          { return nil }

// TerminalDialog prompts on a line-oriented terminal
type TerminalDialog struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalDialog reads answers from in and writes prompts to out
func NewTerminalDialog(in io.Reader, out io.Writer) *TerminalDialog {
	return &TerminalDialog{in: bufio.NewReader(in), out: out}
}

// Confirm asks a y/N question. Anything but y/yes is a no, including EOF.
func (d *TerminalDialog) Confirm(ctx context.Context, message string) (bool, error) {
	fmt.Fprintf(d.out, "%s [y/N]: ", message)
	line, err := d.readLine(ctx)
	if err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Alert prints the message and waits for Enter
func (d *TerminalDialog) Alert(ctx context.Context, message string) error {
	fmt.Fprintf(d.out, "%s\n[press Enter] ", message)
	_, err := d.readLine(ctx)
	if err == io.EOF {
		return nil
	}
	return err
}

func (d *TerminalDialog) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := d.in.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		ch <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.line, r.err
	}
}
