package algorithms

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/yuuki/famgraph/internal/famgraph"
	"github.com/yuuki/famgraph/internal/frontier"
)

const (
	DefaultDamping    = 0.85
	DefaultIterations = 10
)

// PageRankResult holds the final ranks
type PageRankResult struct {
	Iterations int
	Ranks      []float64
}

// atomicFloat is a float64 updated with compare and swap on its bits
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Load() float64   { return math.Float64frombits(f.bits.Load()) }
func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }

func (f *atomicFloat) Add(delta float64) {
	for {
		old := f.bits.Load()
		if f.bits.CompareAndSwap(old, math.Float64bits(math.Float64frombits(old)+delta)) {
			return
		}
	}
}

// PageRank runs a fixed number of push iterations. Every vertex is active in
// every iteration and contributes rank/degree to each out neighbour. Mass
// held by vertices without out edges is not redistributed.
func PageRank(ctx context.Context, g famgraph.Graph, iterations int, damping float64, opts Options) (PageRankResult, error) {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	if damping <= 0 || damping >= 1 {
		return PageRankResult{}, fmt.Errorf("damping %v must be in (0, 1)", damping)
	}

	n := g.NumVertices()
	ranks := make([]float64, n)
	for v := range ranks {
		ranks[v] = 1 / float64(n)
	}
	acc := make([]atomicFloat, n)
	base := (1 - damping) / float64(n)
	all := frontier.Full(g.MaxV())

	push := func(v, w uint32, degree uint64) {
		acc[w].Add(ranks[v] / float64(degree))
	}

	for it := range iterations {
		began := time.Now()
		for v := range acc {
			acc[v].Store(0)
		}
		if err := famgraph.ParallelEdgeMap(ctx, g, nil, push, opts.edgeMap()); err != nil {
			return PageRankResult{}, fmt.Errorf("pagerank iteration %d: %w", it, err)
		}
		err := famgraph.VertexMap(ctx, all, g.Channels(), func(v uint32) error {
			ranks[v] = base + damping*acc[v].Load()
			return nil
		})
		if err != nil {
			return PageRankResult{}, err
		}
		opts.round("pagerank", it+1, uint64(n), time.Since(began))
	}

	return PageRankResult{Iterations: iterations, Ranks: ranks}, nil
}

// TopRanked returns up to n vertices ordered by decreasing rank, ties broken
// by the smaller vertex ID
func TopRanked(ranks []float64, n int) []uint32 {
	n = min(max(n, 0), len(ranks))
	order := make([]uint32, len(ranks))
	for v := range order {
		order[v] = uint32(v)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return ranks[order[i]] > ranks[order[j]]
	})
	return order[:n]
}
