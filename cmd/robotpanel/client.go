package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rovercontrol/robot-panel/internal/config"
	"github.com/rovercontrol/robot-panel/internal/panel"
	"github.com/rovercontrol/robot-panel/internal/pktdef"
	"github.com/rovercontrol/robot-panel/internal/stream"
)

var (
	connectProtocol string
	assumeYes       bool
	watchInterval   time.Duration
	liveStream      bool
)

// cliDialog asks confirmations on the terminal and prints alerts without
// waiting, so client commands stay scriptable.
type cliDialog struct {
	confirm panel.Dialog
	out     io.Writer
}

func (d cliDialog) Confirm(ctx context.Context, message string) (bool, error) {
	return d.confirm.Confirm(ctx, message)
}

func (d cliDialog) Alert(_ context.Context, message string) error {
	color.New(color.FgGreen).Fprintln(d.out, message)
	return nil
}

func newPanel(cfg *config.Config) (*panel.Panel, error) {
	policy, err := panel.ParsePolicy(cfg.Panel.ResponsePolicy)
	if err != nil {
		return nil, err
	}
	var confirm panel.Dialog = panel.NewTerminalDialog(os.Stdin, os.Stdout)
	if assumeYes {
		confirm = panel.AutoDialog{Answer: true}
	}
	return panel.New(panel.NewClient(cfg.Panel.BaseURL, cfg.Panel.RequestTimeout), panel.Options{
		Dialog:        cliDialog{confirm: confirm, out: os.Stdout},
		ToastDuration: cfg.Panel.ToastDuration,
		Policy:        policy,
	}), nil
}

// printResult writes the panel output followed by its toast
func printResult(out io.Writer, st panel.State) {
	if st.Output != "" {
		fmt.Fprintln(out, st.Output)
	}
	if st.Toast.Visible {
		c := color.New(color.FgGreen)
		if st.Toast.Error {
			c = color.New(color.FgRed)
		}
		c.Fprintln(out, st.Toast.Message)
	}
}

// withPanel loads config, builds a panel and runs fn with a signal-aware
// context
func withPanel(fn func(ctx context.Context, p *panel.Panel) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := newPanel(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, p)
}

var connectCmd = &cobra.Command{
	Use:   "connect <ip> <port>",
	Short: "Tell the gateway which robot to talk to",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPanel(func(ctx context.Context, p *panel.Panel) error {
			_, err := p.Connect(ctx, args[0], args[1], connectProtocol)
			return err
		})
	},
}

var driveCmd = &cobra.Command{
	Use:   "drive <direction> <duration> <speed>",
	Short: "Send a drive telecommand",
	Long: `Sends one drive telecommand. Direction is forward, backward, left or
right. Duration and speed are read like the web form reads them: leading
digits only, anything else is sent as null for the gateway to reject.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPanel(func(ctx context.Context, p *panel.Panel) error {
			_, err := p.SubmitDrive(ctx, panel.DriveForm{Direction: args[0], Duration: args[1], Speed: args[2]})
			if err == nil {
				printResult(cmd.OutOrStdout(), p.State())
			}
			return err
		})
	},
}

var sleepCmd = &cobra.Command{
	Use:   "sleep",
	Short: "Put the robot to sleep (asks for confirmation)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPanel(func(ctx context.Context, p *panel.Panel) error {
			_, err := p.SendSleep(ctx)
			if errors.Is(err, panel.ErrDeclined) {
				color.New(color.FgYellow).Fprintln(cmd.OutOrStdout(), "Sleep cancelled")
				return nil
			}
			if err == nil {
				printResult(cmd.OutOrStdout(), p.State())
			}
			return err
		})
	},
}

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Request robot telemetry",
	Long: `Requests one telemetry snapshot. With --watch it keeps polling on the
given interval; with --live it follows the gateway's websocket feed
instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if liveStream {
			return followLive(out)
		}
		return withPanel(func(ctx context.Context, p *panel.Panel) error {
			if _, err := p.RequestTelemetry(ctx); err != nil {
				return err
			}
			printResult(out, p.State())
			if watchInterval <= 0 {
				return nil
			}

			poller := stream.NewPoller(printingSource{p: p, out: out}, watchInterval, watchInterval)
			poller.Start()
			<-ctx.Done()
			poller.Stop()
			return nil
		})
	},
}

// printingSource prints every telemetry snapshot the poller fetches
type printingSource struct {
	p   *panel.Panel
	out io.Writer
}

func (s printingSource) RequestTelemetry(ctx context.Context) (string, error) {
	text, err := s.p.RequestTelemetry(ctx)
	if err != nil {
		color.New(color.FgRed).Fprintf(s.out, "%s\n", s.p.State().Toast.Message)
		return "", err
	}
	fmt.Fprintf(s.out, "\n[%s]\n%s\n", time.Now().Format("15:04:05"), text)
	return text, nil
}

func followLive(out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ws := stream.NewWSClient(cfg.Stream)
	ws.OnTelemetry = func(t pktdef.Telemetry, at time.Time) {
		fmt.Fprintf(out, "\n[%s]\n%s\n", at.Local().Format("15:04:05"), t)
	}
	ws.OnStatus = func(st stream.ConnectionStatus) {
		switch {
		case st.Connected:
			color.New(color.FgGreen).Fprintf(out, "Following %s\n", cfg.Stream.Endpoint)
		case st.LastError != "":
			color.New(color.FgYellow).Fprintf(out, "Stream offline: %s\n", st.LastError)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws.Start()
	<-ctx.Done()
	ws.Stop()
	return nil
}

func init() {
	connectCmd.Flags().StringVar(&connectProtocol, "protocol", "", "udp or tcp (omitted from the request when empty)")
	sleepCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	telemetryCmd.Flags().DurationVarP(&watchInterval, "watch", "w", 0, "Keep polling on this interval")
	telemetryCmd.Flags().BoolVar(&liveStream, "live", false, "Follow the gateway's websocket feed")

	rootCmd.AddCommand(connectCmd, driveCmd, sleepCmd, telemetryCmd)
}
