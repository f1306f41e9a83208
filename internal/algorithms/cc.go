package algorithms

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/yuuki/famgraph/internal/famgraph"
	"github.com/yuuki/famgraph/internal/frontier"
)

// CCResult labels every vertex with the smallest ID that reaches it
type CCResult struct {
	Components uint64
	Rounds     int
	Labels     []uint32
}

// ConnectedComponents propagates minimum labels until no label changes.
// On a symmetric graph the labels identify the connected components.
func ConnectedComponents(ctx context.Context, g famgraph.Graph, opts Options) (CCResult, error) {
	labels := make([]atomic.Uint32, g.NumVertices())
	for v := range labels {
		labels[v].Store(uint32(v))
	}

	cur := frontier.New(g.MaxV())
	next := frontier.New(g.MaxV())
	cur.SetAll()

	push := func(v, w uint32, _ uint64) {
		lv := labels[v].Load()
		for {
			lw := labels[w].Load()
			if lv >= lw {
				return
			}
			if labels[w].CompareAndSwap(lw, lv) {
				next.Set(w)
				return
			}
		}
	}

	rounds := 0
	for !cur.IsEmpty() {
		began := time.Now()
		active := cur.Count()
		if err := famgraph.ParallelEdgeMap(ctx, g, cur, push, opts.edgeMap()); err != nil {
			return CCResult{}, fmt.Errorf("cc round %d: %w", rounds, err)
		}
		cur.Clear()
		cur, next = next, cur
		rounds++
		opts.round("cc", rounds, active, time.Since(began))
	}

	res := CCResult{Rounds: rounds, Labels: make([]uint32, len(labels))}
	for v := range labels {
		l := labels[v].Load()
		res.Labels[v] = l
		if l == uint32(v) {
			res.Components++
		}
	}
	return res, nil
}
