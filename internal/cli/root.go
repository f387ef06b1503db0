// Package cli implements the gridmon command-line interface using Cobra.
// serve runs the agent; the other commands are clients of a running agent's
// HTTP API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gridmon/gridmon/internal/daemon"
)

var rootCmd = &cobra.Command{
	Use:   "gridmon",
	Short: "gridmon: live statistics and predicate queries for a data grid",
	Long: `gridmon is a monitoring agent for a partitioned in-memory data grid.
It samples per-member statistics of executors, queues and topics, runs
predicate queries next to the data, and serves both over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	agentAddr string
	instance  string
)

func init() {
	cfg, _ := daemon.LoadConfig()
	rootCmd.PersistentFlags().StringVar(&agentAddr, "addr",
		fmt.Sprintf("http://%s:%d", cfg.API.Host, cfg.API.Port), "Agent API address")
	rootCmd.PersistentFlags().StringVarP(&instance, "instance", "i", cfg.Grid.Instance, "Grid instance name")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
