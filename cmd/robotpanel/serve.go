package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"

	"github.com/rovercontrol/robot-panel/internal/api"
	"github.com/rovercontrol/robot-panel/internal/config"
)

var (
	servePort   int
	serveHost   string
	openBrowser bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the robot control gateway and web panel",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := applyServeFlags(cmd, cfg); err != nil {
			return err
		}

		fmt.Println("Robot Control Gateway")
		fmt.Println("=====================")

		logBuf := api.NewLogBuffer(cfg.Server.LogCapacity)
		api.InstallLogCapture(logBuf)

		fmt.Printf("Server Port: %d\n", cfg.Server.Port)
		fmt.Printf("Robot: %s:%d over %s (auto-connect: %v)\n",
			cfg.Robot.Address, cfg.Robot.Port, cfg.Robot.Protocol, cfg.Robot.AutoConnect)

		logBuf.LogInfo("Gateway starting...")
		server := api.NewServer(cfg, logBuf)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		panelURL := fmt.Sprintf("http://localhost:%d/", cfg.Server.Port)
		fmt.Printf("\nStarting server on %s\n", panelURL)
		fmt.Println("Press Ctrl+C to stop")

		if cfg.Server.OpenBrowser {
			if err := open.Run(panelURL); err != nil {
				log.Printf("Could not open browser: %v", err)
			}
		}

		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		log.Println("Gateway stopped")
		return nil
	},
}

// applyServeFlags overrides cfg with explicitly set flags and validates
// the result again
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("open") {
		cfg.Server.OpenBrowser = openBrowser
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func bindServeFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP port (default: server.port)")
	cmd.Flags().StringVar(&serveHost, "host", "", "Listen address (default: server.host)")
	cmd.Flags().BoolVar(&openBrowser, "open", false, "Open the web panel in a browser")
}

func init() {
	bindServeFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}
