package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/yuuki/famgraph/internal/algorithms"
	"github.com/yuuki/famgraph/internal/config"
	"github.com/yuuki/famgraph/internal/famgraph"
	"github.com/yuuki/famgraph/internal/results"
	"github.com/yuuki/famgraph/internal/session"
	"github.com/yuuki/famgraph/internal/telemetry"
)

// outcome is what an algorithm reports back to runAlgorithm
type outcome struct {
	parameter string
	result    string
	rounds    int
}

type algorithmFunc func(ctx context.Context, g famgraph.Graph, opts algorithms.Options) (outcome, error)

// runAlgorithm opens the configured graph, runs fn on it and records the run
func runAlgorithm(cmd *cobra.Command, name string, fn algorithmFunc) error {
	cfg, err := config.LoadFamgraphConfig(cmd.Flags())
	if err != nil {
		return err
	}
	if err := config.SetupLogging(cfg.LogLevel); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	opts := session.OptionsFromConfig(cfg)
	algOpts := algorithms.Options{Grain: cfg.Grain}

	if cfg.OtelCollectorAddr != "" {
		metrics, err := telemetry.NewMetrics(ctx, runID, cfg.OtelCollectorAddr)
		if err != nil {
			return fmt.Errorf("failed to create metrics: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metrics.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Failed to flush metrics")
			}
		}()
		opts.BatchObserver = metrics
		opts.CompletionObserver = metrics
		algOpts.OnRound = func(_ int, active uint64, took time.Duration) {
			metrics.RecordRound(ctx, name, active, took)
		}
	}

	sess, err := session.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to open graph: %w", err)
	}
	defer func() {
		if err := sess.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to close session")
		}
	}()

	started := time.Now()
	out, err := fn(ctx, sess.Graph(), algOpts)
	if err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	took := time.Since(started)

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s (rounds=%d, took=%s)\n", name, out.parameter, out.result, out.rounds, took)

	if cfg.DatabaseURI != "" {
		store, err := results.NewStore(cfg.DatabaseURI)
		if err != nil {
			return err
		}
		defer store.Close()
		err = store.RecordRun(ctx, results.Run{
			ID:        runID,
			Algorithm: name,
			Graph:     cfg.Graph,
			Mode:      cfg.Mode,
			Parameter: out.parameter,
			Result:    out.result,
			Rounds:    out.rounds,
			Duration:  took,
			Started:   started,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func newBFSCmd() *cobra.Command {
	var start uint32

	cmd := &cobra.Command{
		Use:   "bfs",
		Short: "Breadth first search; prints the largest distance from the start vertex",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAlgorithm(cmd, "bfs", func(ctx context.Context, g famgraph.Graph, opts algorithms.Options) (outcome, error) {
				res, err := algorithms.BFS(ctx, g, start, opts)
				if err != nil {
					return outcome{}, err
				}
				return outcome{
					parameter: "start=" + strconv.FormatUint(uint64(start), 10),
					result:    fmt.Sprintf("max distance %d, %d visited", res.MaxDistance, res.Visited),
					rounds:    res.Rounds,
				}, nil
			})
		},
	}
	cmd.Flags().Uint32Var(&start, "start", 0, "Start vertex")

	return cmd
}

func newKCoreCmd() *cobra.Command {
	var k uint32

	cmd := &cobra.Command{
		Use:   "kcore",
		Short: "Size of the k-core of a symmetric graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAlgorithm(cmd, "kcore", func(ctx context.Context, g famgraph.Graph, opts algorithms.Options) (outcome, error) {
				res, err := algorithms.KCore(ctx, g, k, opts)
				if err != nil {
					return outcome{}, err
				}
				return outcome{
					parameter: "k=" + strconv.FormatUint(uint64(k), 10),
					result:    fmt.Sprintf("core size %d", res.CoreSize),
					rounds:    res.Rounds,
				}, nil
			})
		},
	}
	cmd.Flags().Uint32Var(&k, "k", 2, "Core order")

	return cmd
}

func newCCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cc",
		Short: "Connected components of a symmetric graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAlgorithm(cmd, "cc", func(ctx context.Context, g famgraph.Graph, opts algorithms.Options) (outcome, error) {
				res, err := algorithms.ConnectedComponents(ctx, g, opts)
				if err != nil {
					return outcome{}, err
				}
				return outcome{
					parameter: "-",
					result:    fmt.Sprintf("%d components", res.Components),
					rounds:    res.Rounds,
				}, nil
			})
		},
	}
}

func newPageRankCmd() *cobra.Command {
	var (
		iterations int
		damping    float64
		top        int
	)

	cmd := &cobra.Command{
		Use:   "pagerank",
		Short: "Push based PageRank; prints the highest ranked vertices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAlgorithm(cmd, "pagerank", func(ctx context.Context, g famgraph.Graph, opts algorithms.Options) (outcome, error) {
				res, err := algorithms.PageRank(ctx, g, iterations, damping, opts)
				if err != nil {
					return outcome{}, err
				}
				best := algorithms.TopRanked(res.Ranks, top)
				for _, v := range best {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%.6g\n", v, res.Ranks[v])
				}
				result := "empty graph"
				if len(best) > 0 {
					result = fmt.Sprintf("top vertex %d rank %.6g", best[0], res.Ranks[best[0]])
				}
				return outcome{
					parameter: fmt.Sprintf("iterations=%d damping=%g", res.Iterations, damping),
					result:    result,
					rounds:    res.Iterations,
				}, nil
			})
		},
	}
	cmd.Flags().IntVar(&iterations, "iterations", algorithms.DefaultIterations, "Push iterations")
	cmd.Flags().Float64Var(&damping, "damping", algorithms.DefaultDamping, "Damping factor")
	cmd.Flags().IntVar(&top, "top", 10, "Number of vertices to print")

	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		algorithm string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs from the run history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFamgraphConfig(cmd.Flags())
			if err != nil {
				return err
			}
			if cfg.DatabaseURI == "" {
				return fmt.Errorf("database_uri is not configured")
			}
			store, err := results.NewStore(cfg.DatabaseURI)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.RecentRuns(cmd.Context(), algorithm, limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					r.Started.Format(time.RFC3339), r.ID, r.Algorithm, r.Graph, r.Parameter, r.Result, r.Rounds, r.Duration)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "Only list runs of this algorithm")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")

	return cmd
}

func newCreateConfigCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "create-config",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.CreateDefaultFamgraphConfig(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default configuration written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "famgraph.yaml", "Path where to write the default configuration")

	return cmd
}

