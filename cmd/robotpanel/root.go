package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rovercontrol/robot-panel/internal/config"
)

var (
	configPath string
	baseURL    string
)

var rootCmd = &cobra.Command{
	Use:   "robotpanel",
	Short: "Robot command panel and control gateway",
	Long: `robotpanel drives a robot over a small binary packet protocol.

"serve" runs the control gateway and its web panel. The other commands
are panel clients that talk to a running gateway over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml (default: search config.yaml, configs/, /etc/robotpanel/)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "", "Gateway URL for client commands (default: panel.base_url)")
}

// loadConfig resolves the config and applies command-line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Resolve(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if baseURL != "" {
		cfg.Panel.BaseURL = baseURL
	}
	return cfg, nil
}
