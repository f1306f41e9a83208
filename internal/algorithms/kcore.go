package algorithms

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/yuuki/famgraph/internal/famgraph"
	"github.com/yuuki/famgraph/internal/frontier"
)

// KCoreResult is the size of the k-th core
type KCoreResult struct {
	K        uint32
	CoreSize uint64
	Rounds   int
	Degrees  []int64
}

// KCore peels every vertex of degree below k. Removing a vertex decrements
// the degree of each neighbour; a neighbour whose degree drops from k to k-1
// joins the next frontier. The graph is expected to be symmetric.
func KCore(ctx context.Context, g famgraph.Graph, k uint32, opts Options) (KCoreResult, error) {
	degrees := make([]atomic.Int64, g.NumVertices())
	cur := frontier.New(g.MaxV())
	next := frontier.New(g.MaxV())

	err := famgraph.VertexMap(ctx, frontier.Full(g.MaxV()), g.Channels(), func(v uint32) error {
		d, err := g.Degree(v)
		if err != nil {
			return err
		}
		degrees[v].Store(int64(d))
		if d < uint64(k) {
			cur.Set(v)
		}
		return nil
	})
	if err != nil {
		return KCoreResult{}, fmt.Errorf("failed to read degrees: %w", err)
	}

	push := func(_, w uint32, _ uint64) {
		if degrees[w].Add(-1) == int64(k)-1 {
			next.Set(w)
		}
	}

	rounds := 0
	for !cur.IsEmpty() {
		began := time.Now()
		active := cur.Count()
		if err := famgraph.ParallelEdgeMap(ctx, g, cur, push, opts.edgeMap()); err != nil {
			return KCoreResult{}, fmt.Errorf("kcore round %d: %w", rounds, err)
		}
		cur.Clear()
		cur, next = next, cur
		rounds++
		opts.round("kcore", rounds, active, time.Since(began))
	}

	res := KCoreResult{K: k, Rounds: rounds, Degrees: make([]int64, len(degrees))}
	for v := range degrees {
		d := degrees[v].Load()
		res.Degrees[v] = d
		if d >= int64(k) {
			res.CoreSize++
		}
	}
	return res, nil
}
