package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rovercontrol/robot-panel/internal/panel"
	"github.com/rovercontrol/robot-panel/internal/stream"
	"github.com/rovercontrol/robot-panel/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive terminal panel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		policy, err := panel.ParsePolicy(cfg.Panel.ResponsePolicy)
		if err != nil {
			return err
		}

		opts := tui.Options{
			Backend:       panel.NewClient(cfg.Panel.BaseURL, cfg.Panel.RequestTimeout),
			ToastDuration: cfg.Panel.ToastDuration,
			Policy:        policy,
			IP:            cfg.Robot.Address,
			Port:          strconv.Itoa(cfg.Robot.Port),
			Protocol:      cfg.Robot.Protocol,
			PollInterval:  cfg.Stream.PollInterval,
		}
		if cfg.Stream.Enabled {
			opts.Stream = stream.NewWSClient(cfg.Stream)
		}
		return tui.Run(opts)
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
