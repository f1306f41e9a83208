// Package algorithms holds vertex centric programs written against the
// famgraph.Graph surface. Each round is one ParallelEdgeMap over the current
// frontier; the frontiers are swapped at the barrier it returns at.
package algorithms

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/yuuki/famgraph/internal/famgraph"
	"github.com/yuuki/famgraph/internal/frontier"
)

// NullVertex marks an unvisited vertex
const NullVertex = ^uint32(0)

// Options are shared by every algorithm
type Options struct {
	// Grain is the vertex chunk a worker claims per step
	Grain uint32
	// OnRound is called after every round with its duration and the
	// number of vertices active in it
	OnRound func(round int, active uint64, took time.Duration)
}

func (o Options) edgeMap() famgraph.EdgeMapOptions {
	return famgraph.EdgeMapOptions{Grain: o.Grain}
}

func (o Options) round(name string, round int, active uint64, took time.Duration) {
	log.Debug().
		Str("algorithm", name).
		Int("round", round).
		Uint64("active", active).
		Dur("took", took).
		Msg("Round finished")
	if o.OnRound != nil {
		o.OnRound(round, active, took)
	}
}

// BFSResult is the outcome of a breadth first search
type BFSResult struct {
	MaxDistance uint32
	Rounds      int
	Visited     uint64
}

// BFS searches from start. Parents are claimed with compare and swap so every
// vertex joins exactly one frontier.
func BFS(ctx context.Context, g famgraph.Graph, start uint32, opts Options) (BFSResult, error) {
	if start > g.MaxV() {
		return BFSResult{}, fmt.Errorf("start vertex %d out of range [0, %d]", start, g.MaxV())
	}

	parents := make([]atomic.Uint32, g.NumVertices())
	for i := range parents {
		parents[i].Store(NullVertex)
	}
	parents[start].Store(start)

	cur := frontier.New(g.MaxV())
	next := frontier.New(g.MaxV())
	cur.Set(start)

	push := func(v, w uint32, _ uint64) {
		if parents[w].CompareAndSwap(NullVertex, v) {
			next.Set(w)
		}
	}

	visited := uint64(1)
	rounds := 0
	for !cur.IsEmpty() {
		began := time.Now()
		active := cur.Count()
		if err := famgraph.ParallelEdgeMap(ctx, g, cur, push, opts.edgeMap()); err != nil {
			return BFSResult{}, fmt.Errorf("bfs round %d: %w", rounds, err)
		}
		cur.Clear()
		cur, next = next, cur
		rounds++
		visited += cur.Count()
		opts.round("bfs", rounds, active, time.Since(began))
	}

	return BFSResult{
		MaxDistance: uint32(max(rounds-1, 0)),
		Rounds:      rounds,
		Visited:     visited,
	}, nil
}
