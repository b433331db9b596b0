package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rovercontrol/robot-panel/internal/robot"
)

var (
	simListen   string
	simProtocol string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated robot that answers the packet protocol",
	Long: `Runs a software robot on UDP or TCP. It acknowledges drive and sleep
packets, rejects corrupt ones and answers telemetry requests, so the gateway
can be exercised without hardware.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		protocol, err := robot.ParseProtocol(simProtocol)
		if err != nil {
			return err
		}
		sim, err := robot.NewSimulator(protocol, simListen)
		if err != nil {
			return fmt.Errorf("failed to start simulator: %w", err)
		}
		defer sim.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		color.New(color.FgCyan, color.Bold).Printf("Simulated robot listening on %s\n", sim.Target())
		fmt.Println("Press Ctrl+C to stop")

		if err := sim.Serve(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simListen, "listen", "127.0.0.1:5000", "Address to listen on")
	simulateCmd.Flags().StringVar(&simProtocol, "protocol", "udp", "udp or tcp")
	rootCmd.AddCommand(simulateCmd)
}
