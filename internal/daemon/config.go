// Package daemon manages the gridmon agent lifecycle and configuration.
package daemon

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

// Config holds all agent configuration.
type Config struct {
	Node      NodeConfig      `toml:"node"`
	Grid      GridConfig      `toml:"grid"`
	Dispatch  DispatchConfig  `toml:"dispatch"`
	API       APIConfig       `toml:"api"`
	Topics    TopicsConfig    `toml:"topics"`
	Health    HealthConfig    `toml:"health"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
}

// NodeConfig identifies this agent.
type NodeConfig struct {
	ID     string `toml:"id"`
	Region string `toml:"region"`
}

// GridConfig shapes the in-process grid the agent monitors.
type GridConfig struct {
	Instance         string `toml:"instance"`
	Members          int    `toml:"members"`
	PartitionCount   int    `toml:"partition_count"`
	WorkersPerMember int    `toml:"workers_per_member"`
	Host             string `toml:"host"`
	BasePort         int    `toml:"base_port"`
	Demo             bool   `toml:"demo"`
}

// DispatchConfig names the execution services and bounds member waits.
type DispatchConfig struct {
	StatsExecutor string `toml:"stats_executor"`
	QueryExecutor string `toml:"query_executor"`
	MemberTimeout string `toml:"member_timeout"`
	QueryTimeout  string `toml:"query_timeout"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// TopicsConfig controls subscription feeds and product history.
type TopicsConfig struct {
	DefaultFrequency string `toml:"default_frequency"`
	MinFrequency     string `toml:"min_frequency"`
	Buffer           int    `toml:"buffer"`
	History          bool   `toml:"history"`
	HistoryKeep      int    `toml:"history_keep"`
}

// HealthConfig controls the periodic health checks.
type HealthConfig struct {
	Interval string `toml:"interval"`
}

// TelemetryConfig controls metrics export.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level     string `toml:"level"`
	Format    string `toml:"format"`
	AddSource bool   `toml:"add_source"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Node: NodeConfig{
			Region: "local",
		},
		Grid: GridConfig{
			Instance:         "gridmon",
			Members:          3,
			PartitionCount:   271,
			WorkersPerMember: 16,
			Host:             "127.0.0.1",
			BasePort:         5701,
			Demo:             true,
		},
		Dispatch: DispatchConfig{
			StatsExecutor: "_gridmon_stats",
			QueryExecutor: "_gridmon_predicateSearch",
			MemberTimeout: "5s",
			QueryTimeout:  "30s",
		},
		API: APIConfig{
			Host:        "127.0.0.1",
			Port:        8480,
			CORSOrigins: []string{"*"},
		},
		Topics: TopicsConfig{
			DefaultFrequency: "5s",
			MinFrequency:     "1s",
			Buffer:           16,
			History:          true,
			HistoryKeep:      500,
		},
		Health: HealthConfig{
			Interval: "30s",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads config from $GRIDMON_HOME/config.toml, falling back to
// defaults for anything the file does not set.
func LoadConfig() (Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile reads config from path. A missing file yields defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}

// SaveConfig writes the config to $GRIDMON_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// ConfigPath returns the config file location.
func ConfigPath() string {
	return filepath.Join(Home(), "config.toml")
}

// Home returns the gridmon data directory.
func Home() string {
	if env := os.Getenv("GRIDMON_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gridmon")
}
