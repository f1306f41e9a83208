package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/yuuki/famgraph/internal/config"
	"github.com/yuuki/famgraph/internal/memserver"
	_ "github.com/yuuki/famgraph/internal/rdma/softrdma"
	_ "github.com/yuuki/famgraph/internal/rdma/verbs"
)

func main() {
	// Set up command line flags
	flagSet := pflag.NewFlagSet("memserver", pflag.ExitOnError)
	config.SetupMemserverFlags(flagSet)

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	version, _ := flagSet.GetBool("version")
	if version {
		fmt.Println("famgraph memserver v0.1.0")
		os.Exit(0)
	}

	createConfig, _ := flagSet.GetBool("create-config")
	if createConfig {
		configOutput, _ := flagSet.GetString("config-output")
		if err := config.CreateDefaultMemserverConfig(configOutput); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating default config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created default configuration at %s\n", configOutput)
		os.Exit(0)
	}

	cfg, err := config.LoadMemserverConfig(flagSet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if err := config.SetupLogging(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		os.Exit(1)
	}

	s, err := memserver.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create memory server")
	}

	if err := s.Run(); err != nil {
		log.Fatal().Err(err).Msg("Memory server failed")
	}
}
