package famgraph

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/yuuki/famgraph/internal/frontier"
	"golang.org/x/sync/errgroup"
)

// DefaultGrain is the number of vertices a worker claims at a time
const DefaultGrain = 1 << 14

// EdgeMapOptions tune ParallelEdgeMap
type EdgeMapOptions struct {
	// Grain is the vertex chunk size claimed per step
	Grain uint32
	// Range restricts the traversal; the zero range means every vertex
	Range frontier.Range
}

// ParallelEdgeMap runs one worker per graph channel. Worker i drives
// channel i and claims Grain sized chunks of the range from a shared
// counter until the range is exhausted. It returns after every worker has
// finished, which makes it the barrier between rounds.
func ParallelEdgeMap(ctx context.Context, g Graph, active *frontier.VertexSubset, fn EdgeFunc, opts EdgeMapOptions) error {
	r := opts.Range
	if r.Empty() {
		r = frontier.Full(g.MaxV())
	}
	grain := opts.Grain
	if grain == 0 {
		grain = DefaultGrain
	}

	var next atomic.Uint64
	next.Store(uint64(r.Begin))

	eg, ctx := errgroup.WithContext(ctx)
	for ch := range g.Channels() {
		eg.Go(func() error {
			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				begin := next.Add(uint64(grain)) - uint64(grain)
				if begin >= uint64(r.End) {
					return nil
				}
				end := min(begin+uint64(grain), uint64(r.End))
				chunk := frontier.Range{Begin: uint32(begin), End: uint32(end)}
				if err := g.EdgeMap(fn, active, chunk, ch); err != nil {
					return err
				}
			}
		})
	}
	return eg.Wait()
}

// VertexMap calls fn for every vertex of r on up to workers goroutines;
// zero means GOMAXPROCS
func VertexMap(ctx context.Context, r frontier.Range, workers int, fn func(v uint32) error) error {
	if r.Empty() {
		return nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := max(r.Len()/uint32(workers*4), 1)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for lo := uint64(r.Begin); lo < uint64(r.End); lo += uint64(chunk) {
		hi := min(lo+uint64(chunk), uint64(r.End))
		eg.Go(func() error {
			for v := lo; v < hi; v++ {
				if err := fn(uint32(v)); err != nil {
					return err
				}
			}
			return ctx.Err()
		})
	}
	return eg.Wait()
}
