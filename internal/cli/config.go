package cli

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/gridmon/gridmon/internal/daemon"
)

func init() {
	configCmd.Flags().BoolVar(&configSave, "save", false, "Write the effective config to the config file")
	rootCmd.AddCommand(configCmd)
}

var configSave bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE:  runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}

	if configSave {
		if err := daemon.SaveConfig(cfg); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved %s\n", daemon.ConfigPath())
	}

	fmt.Printf("# %s\n", daemon.ConfigPath())
	return toml.NewEncoder(os.Stdout).Encode(cfg)
}
