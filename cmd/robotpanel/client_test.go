package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/rovercontrol/robot-panel/internal/config"
	"github.com/rovercontrol/robot-panel/internal/panel"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "simulate", "connect", "drive", "sleep", "telemetry", "tui"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}

func TestPrintResult(t *testing.T) {
	var out bytes.Buffer
	printResult(&out, panel.State{
		Output: "Command forward acknowledged (packet 1)",
		Toast:  panel.Toast{Message: panel.ToastCommandSent, Visible: true},
	})
	assert.Contains(t, out.String(), "Command forward acknowledged (packet 1)\n")
	assert.Contains(t, out.String(), panel.ToastCommandSent)

	out.Reset()
	printResult(&out, panel.State{Toast: panel.Toast{Message: "gone", Visible: false}})
	assert.Empty(t, out.String())
}

func TestCLIDialogAlertDoesNotBlock(t *testing.T) {
	var out bytes.Buffer
	d := cliDialog{confirm: panel.AutoDialog{Answer: true}, out: &out}

	require.NoError(t, d.Alert(context.Background(), "Connected to robot at 10.0.0.2:5000 over UDP"))
	assert.Contains(t, out.String(), "Connected to robot")

	ok, err := d.Confirm(context.Background(), panel.SleepPrompt)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestServeFlagsAreValidated(t *testing.T) {
	t.Cleanup(func() { servePort, serveHost, openBrowser = 0, "", false })

	cmd := &cobra.Command{Use: "serve"}
	bindServeFlags(cmd)
	require.NoError(t, cmd.Flags().Set("port", "99999"))
	err := applyServeFlags(cmd, config.Default())
	assert.ErrorContains(t, err, "server port out of range")

	cmd = &cobra.Command{Use: "serve"}
	bindServeFlags(cmd)
	require.NoError(t, cmd.Flags().Set("port", "9090"))
	require.NoError(t, cmd.Flags().Set("host", "127.0.0.1"))
	cfg := config.Default()
	require.NoError(t, applyServeFlags(cmd, cfg))
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}
