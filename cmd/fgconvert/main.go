// Command fgconvert turns edge lists into famgraph index and adjacency files
// and delta compresses existing ones.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/yuuki/famgraph/internal/codec"
	"github.com/yuuki/famgraph/internal/config"
	"github.com/yuuki/famgraph/internal/fgidx"
)

func main() {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "fgconvert",
		Short:         "Build and compress famgraph graph files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.SetupLogging(logLevel)
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newEdgeListCmd())
	rootCmd.AddCommand(newCompressCmd())
	rootCmd.AddCommand(newPrintCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newEdgeListCmd() *cobra.Command {
	var (
		sorted     bool
		undirected bool
	)

	cmd := &cobra.Command{
		Use:   "edgelist <input> <stem>",
		Short: "Convert a whitespace separated edge list into <stem>.idx and <stem>.adj",
		Long: `Convert an edge list into CSR index and adjacency files.

The input may be plain text or compressed with zstd (.zst) or lz4 (.lz4).
Lines starting with # or % are ignored.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := fgidx.OpenEdgeList(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			edges, maxV, err := fgidx.ReadEdgeList(r, undirected)
			if err != nil {
				return err
			}
			offsets, adj, err := fgidx.BuildCSR(edges, maxV, sorted)
			if err != nil {
				return err
			}
			if err := fgidx.WriteGraph(args[1], false, offsets, adj); err != nil {
				return err
			}

			idx, adjPath := fgidx.Paths(args[1], false)
			fmt.Fprintf(cmd.OutOrStdout(), "%d vertices, %d edges written to %s and %s\n", len(offsets), len(adj), idx, adjPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&sorted, "sorted", false, "Input is already sorted by source vertex")
	cmd.Flags().BoolVar(&undirected, "make-undirected", false, "Add the reverse of every edge")

	return cmd
}

func newCompressCmd() *cobra.Command {
	opts := codec.DefaultCompressionOptions()

	cmd := &cobra.Command{
		Use:   "compress <stem>",
		Short: "Delta compress <stem>.idx/.adj into <stem>.idx2/.adj2",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			offsets, adj, err := loadGraph(args[0], false)
			if err != nil {
				return err
			}

			coffsets, words, err := codec.CompressGraph(offsets, adj, opts)
			if err != nil {
				return err
			}
			if err := fgidx.WriteGraph(args[0], true, coffsets, words); err != nil {
				return err
			}

			ratio := 0.0
			if len(adj) > 0 {
				ratio = float64(len(words)) / float64(len(adj))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d edges packed into %d words (%.2f)\n", len(adj), len(words), ratio)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&opts.MinBlockSize, "min-block", opts.MinBlockSize, "Minimum values per block")
	cmd.Flags().Uint32Var(&opts.MaxBlockSize, "max-block", opts.MaxBlockSize, "Maximum values per block")

	return cmd
}

func newPrintCmd() *cobra.Command {
	var compressed bool

	cmd := &cobra.Command{
		Use:   "print <stem> <vertex>",
		Short: "Print the out neighbours of one vertex",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("bad vertex %q: %w", args[1], err)
			}
			offsets, words, err := loadGraph(args[0], compressed)
			if err != nil {
				return err
			}
			if v >= uint64(len(offsets)) {
				return fmt.Errorf("vertex %d out of range [0, %d)", v, len(offsets))
			}

			end := uint64(len(words))
			if v+1 < uint64(len(offsets)) {
				end = offsets[v+1]
			}
			body := words[offsets[v]:end]

			var decoder codec.Decoder = codec.Nop{}
			if compressed {
				decoder = codec.Delta{}
			}
			out := cmd.OutOrStdout()
			decoder.Decompress(body, func(dst uint32, degree uint64) {
				fmt.Fprintf(out, "%d -> %d (degree %d)\n", v, dst, degree)
			})
			return nil
		},
	}
	cmd.Flags().BoolVar(&compressed, "compressed", false, "Read the .idx2/.adj2 pair")

	return cmd
}

// loadGraph reads both files of a graph and returns per vertex offsets
func loadGraph(stem string, compressed bool) ([]uint64, []uint32, error) {
	idxPath, adjPath := fgidx.Paths(stem, compressed)
	adj, err := fgidx.LoadAdjacencyArray(adjPath)
	if err != nil {
		return nil, nil, err
	}
	idx, err := fgidx.LoadDenseIndex(idxPath, adj.Edges)
	if err != nil {
		return nil, nil, err
	}

	offsets := make([]uint64, idx.NumVertices())
	for v := range offsets {
		offsets[v] = idx.At(uint32(v)).Begin
	}
	return offsets, adj.Array, nil
}
