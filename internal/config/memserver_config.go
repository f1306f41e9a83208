package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// MemserverConfig holds configuration for the memory server
type MemserverConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	DataAddr       string `yaml:"data_addr"`
	AdminAddr      string `yaml:"admin_addr"`
	Provider       string `yaml:"provider"`
	DataDir        string `yaml:"data_dir"`
	MaxRegionBytes uint64 `yaml:"max_region_bytes"`
	MaxConnections int    `yaml:"max_connections"`
	Hugepages      bool   `yaml:"hugepages"`
	RPCRateLimit   int    `yaml:"rpc_rate_limit"` // calls per second, 0 disables
	LogLevel       string `yaml:"log_level"`
}

// DefaultMemserverConfig returns the built in defaults
func DefaultMemserverConfig() MemserverConfig {
	return MemserverConfig{
		ListenAddr:     "0.0.0.0:50051",
		DataAddr:       "0.0.0.0:35287",
		AdminAddr:      "0.0.0.0:9102",
		Provider:       "soft",
		DataDir:        ".",
		MaxRegionBytes: 64 << 30, // 64 GiB
		MaxConnections: 64,
		Hugepages:      false,
		RPCRateLimit:   1000,
		LogLevel:       "info",
	}
}

// SetupMemserverFlags sets up the command line flags for the memory server
func SetupMemserverFlags(flagSet *pflag.FlagSet) {
	d := DefaultMemserverConfig()
	flagSet.String("config", "", "Path to configuration file")
	flagSet.Bool("create-config", false, "Create a default configuration file")
	flagSet.String("config-output", "memserver.yaml", "Path where to write the default configuration")
	flagSet.Bool("version", false, "Show version information")
	flagSet.String("listen-addr", d.ListenAddr, "Address to listen on for gRPC connections")
	flagSet.String("data-addr", d.DataAddr, "Address to listen on for RDMA connections")
	flagSet.String("admin-addr", d.AdminAddr, "Address serving /metrics and /healthz, empty disables")
	flagSet.String("provider", d.Provider, "RDMA provider (soft, verbs)")
	flagSet.String("data-dir", d.DataDir, "Directory MapRemoteFile paths are resolved against")
	flagSet.Uint64("max-region-bytes", d.MaxRegionBytes, "Upper bound on bytes mapped across all sessions")
	flagSet.Int("max-connections", d.MaxConnections, "Maximum concurrent RDMA connections")
	flagSet.Bool("hugepages", d.Hugepages, "Back allocated regions with huge pages")
	flagSet.Int("rpc-rate-limit", d.RPCRateLimit, "Control plane calls per second, 0 disables")
	flagSet.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")
}

// LoadMemserverConfig loads the configuration from flags, environment
// variables prefixed FAMGRAPH_MEMSERVER and an optional file, in that order
// of precedence
func LoadMemserverConfig(flagSet *pflag.FlagSet) (*MemserverConfig, error) {
	path := configPath(flagSet)
	v := newViper("FAMGRAPH_MEMSERVER", "memserver", path)

	d := DefaultMemserverConfig()
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("data_addr", d.DataAddr)
	v.SetDefault("admin_addr", d.AdminAddr)
	v.SetDefault("provider", d.Provider)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("max_region_bytes", d.MaxRegionBytes)
	v.SetDefault("max_connections", d.MaxConnections)
	v.SetDefault("hugepages", d.Hugepages)
	v.SetDefault("rpc_rate_limit", d.RPCRateLimit)
	v.SetDefault("log_level", d.LogLevel)

	if err := bindFlags(v, flagSet); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	if err := readConfig(v, path != ""); err != nil {
		return nil, err
	}

	config := &MemserverConfig{
		ListenAddr:     v.GetString("listen_addr"),
		DataAddr:       v.GetString("data_addr"),
		AdminAddr:      v.GetString("admin_addr"),
		Provider:       v.GetString("provider"),
		DataDir:        v.GetString("data_dir"),
		MaxRegionBytes: v.GetUint64("max_region_bytes"),
		MaxConnections: v.GetInt("max_connections"),
		Hugepages:      v.GetBool("hugepages"),
		RPCRateLimit:   v.GetInt("rpc_rate_limit"),
		LogLevel:       v.GetString("log_level"),
	}
	if config.DataDir == "" {
		return nil, fmt.Errorf("data_dir must not be empty")
	}

	return config, nil
}

// CreateDefaultMemserverConfig creates a default configuration file for the
// memory server
func CreateDefaultMemserverConfig(path string) error {
	d := DefaultMemserverConfig()
	return writeConfigFile(path, "famgraph memory server configuration", &d)
}
