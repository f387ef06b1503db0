package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gridmon/gridmon/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().IntVar(&serveMembers, "members", 0, "Number of grid members (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoDemo, "no-demo", false, "Start with an empty grid")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost    string
	servePort    int
	serveMembers int
	serveNoDemo  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gridmon agent",
	Long:  `Start the grid and the HTTP API at localhost:8480.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}

	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	if serveMembers > 0 {
		cfg.Grid.Members = serveMembers
	}
	if serveNoDemo {
		cfg.Grid.Demo = false
	}

	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Serve(context.Background())
}
