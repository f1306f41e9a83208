package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// Graph access modes
const (
	ModeRemote = "remote"
	ModeLocal  = "local"
)

// FamgraphConfig holds configuration for the famgraph CLI
type FamgraphConfig struct {
	Graph    string `yaml:"graph"` // path stem; .idx/.adj or .idx2/.adj2 are appended
	Mode     string `yaml:"mode"`
	Compress bool   `yaml:"compressed"`

	ServerAddr string        `yaml:"server_addr"`
	DataAddr   string        `yaml:"data_addr"`
	Provider   string        `yaml:"provider"`
	RPCTimeout time.Duration `yaml:"rpc_timeout"`

	Channels         int           `yaml:"channels"`
	MaxOutstandingWR int           `yaml:"max_outstanding_wr"`
	WindowBytes      uint64        `yaml:"window_bytes"`
	Hugepages        bool          `yaml:"hugepages"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	SpinYield        int           `yaml:"spin_yield"`
	Grain            uint32        `yaml:"grain"`

	OtelCollectorAddr string `yaml:"otel_collector_addr"`
	DatabaseURI       string `yaml:"database_uri"`
	LogLevel          string `yaml:"log_level"`
}

// DefaultFamgraphConfig returns the built in defaults
func DefaultFamgraphConfig() FamgraphConfig {
	return FamgraphConfig{
		Mode:             ModeRemote,
		ServerAddr:       "localhost:50051",
		DataAddr:         "localhost:35287",
		Provider:         "soft",
		RPCTimeout:       5 * time.Second,
		Channels:         4,
		MaxOutstandingWR: 16,
		WindowBytes:      1 << 20, // 1 MiB per channel
		ConnectTimeout:   2 * time.Second,
		SpinYield:        1024,
		Grain:            1 << 14,
		LogLevel:         "info",
	}
}

// SetupFamgraphFlags sets up the persistent flags shared by every famgraph
// subcommand
func SetupFamgraphFlags(flagSet *pflag.FlagSet) {
	d := DefaultFamgraphConfig()
	flagSet.String("config", "", "Path to configuration file")
	flagSet.String("graph", "", "Graph path stem")
	flagSet.String("mode", d.Mode, "Graph access mode (remote, local)")
	flagSet.Bool("compressed", false, "Use the delta compressed .idx2/.adj2 files")
	flagSet.String("server-addr", d.ServerAddr, "Memory server gRPC address")
	flagSet.String("data-addr", d.DataAddr, "Memory server RDMA address")
	flagSet.String("provider", d.Provider, "RDMA provider (soft, verbs)")
	flagSet.Duration("rpc-timeout", d.RPCTimeout, "Timeout for each control plane call")
	flagSet.Int("channels", d.Channels, "Number of reliable connections, one worker each")
	flagSet.Int("max-outstanding-wr", d.MaxOutstandingWR, "Work requests per batch and channel")
	flagSet.Uint64("window-bytes", d.WindowBytes, "Receive window per channel in bytes")
	flagSet.Bool("hugepages", false, "Back receive windows with huge pages")
	flagSet.Duration("connect-timeout", d.ConnectTimeout, "Timeout for address and route resolution")
	flagSet.Int("spin-yield", d.SpinYield, "Sentinel spins between scheduler yields")
	flagSet.Uint32("grain", d.Grain, "Vertices claimed by a worker per step")
	flagSet.String("otel-collector-addr", "", "OTLP collector address, empty disables metrics")
	flagSet.String("database-uri", "", "rqlite URI for run history, empty disables")
	flagSet.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")
}

// LoadFamgraphConfig loads the configuration from flags, environment
// variables prefixed FAMGRAPH and an optional file
func LoadFamgraphConfig(flagSet *pflag.FlagSet) (*FamgraphConfig, error) {
	path := configPath(flagSet)
	v := newViper("FAMGRAPH", "famgraph", path)

	d := DefaultFamgraphConfig()
	v.SetDefault("mode", d.Mode)
	v.SetDefault("compressed", d.Compress)
	v.SetDefault("server_addr", d.ServerAddr)
	v.SetDefault("data_addr", d.DataAddr)
	v.SetDefault("provider", d.Provider)
	v.SetDefault("rpc_timeout", d.RPCTimeout)
	v.SetDefault("channels", d.Channels)
	v.SetDefault("max_outstanding_wr", d.MaxOutstandingWR)
	v.SetDefault("window_bytes", d.WindowBytes)
	v.SetDefault("hugepages", d.Hugepages)
	v.SetDefault("connect_timeout", d.ConnectTimeout)
	v.SetDefault("spin_yield", d.SpinYield)
	v.SetDefault("grain", d.Grain)
	v.SetDefault("log_level", d.LogLevel)

	if err := bindFlags(v, flagSet); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	if err := readConfig(v, path != ""); err != nil {
		return nil, err
	}

	config := &FamgraphConfig{
		Graph:             v.GetString("graph"),
		Mode:              v.GetString("mode"),
		Compress:          v.GetBool("compressed"),
		ServerAddr:        v.GetString("server_addr"),
		DataAddr:          v.GetString("data_addr"),
		Provider:          v.GetString("provider"),
		RPCTimeout:        v.GetDuration("rpc_timeout"),
		Channels:          v.GetInt("channels"),
		MaxOutstandingWR:  v.GetInt("max_outstanding_wr"),
		WindowBytes:       v.GetUint64("window_bytes"),
		Hugepages:         v.GetBool("hugepages"),
		ConnectTimeout:    v.GetDuration("connect_timeout"),
		SpinYield:         v.GetInt("spin_yield"),
		Grain:             v.GetUint32("grain"),
		OtelCollectorAddr: v.GetString("otel_collector_addr"),
		DatabaseURI:       v.GetString("database_uri"),
		LogLevel:          v.GetString("log_level"),
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the fields that have no usable zero value
func (c *FamgraphConfig) Validate() error {
	switch c.Mode {
	case ModeRemote, ModeLocal:
	default:
		return fmt.Errorf("unknown mode %q (want %s or %s)", c.Mode, ModeRemote, ModeLocal)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.MaxOutstandingWR <= 0 {
		return fmt.Errorf("max_outstanding_wr must be positive, got %d", c.MaxOutstandingWR)
	}
	if c.WindowBytes < 4 {
		return fmt.Errorf("window_bytes must hold at least one word, got %d", c.WindowBytes)
	}
	return nil
}

// CreateDefaultFamgraphConfig creates a default configuration file for the
// famgraph CLI
func CreateDefaultFamgraphConfig(path string) error {
	d := DefaultFamgraphConfig()
	return writeConfigFile(path, "famgraph configuration", &d)
}
