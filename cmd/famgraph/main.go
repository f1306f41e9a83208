package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yuuki/famgraph/internal/config"
	_ "github.com/yuuki/famgraph/internal/rdma/softrdma"
	_ "github.com/yuuki/famgraph/internal/rdma/verbs"
)

var (
	// Version is set at build time
	Version = "0.1.0"
	// Commit is set at build time
	Commit = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "famgraph",
		Short: "Run graph algorithms over adjacency held in remote memory",
		Long: `famgraph streams the adjacency array of a graph from a memory server
with one-sided RDMA reads while keeping the index and vertex state local.

Configure through flags, a famgraph.yaml file or FAMGRAPH_* environment
variables, for example FAMGRAPH_SERVER_ADDR and FAMGRAPH_CHANNELS.`,
		Version:       fmt.Sprintf("%s (commit: %s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.SetupFamgraphFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newBFSCmd())
	rootCmd.AddCommand(newKCoreCmd())
	rootCmd.AddCommand(newCCCmd())
	rootCmd.AddCommand(newPageRankCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newCreateConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
