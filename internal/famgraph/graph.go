// Package famgraph exposes a CSR graph whose adjacency array is either held
// in local memory or streamed from a remote region through per-channel
// windows. Both variants present the same Graph surface to algorithms.
package famgraph

import (
	"errors"

	"github.com/yuuki/famgraph/internal/codec"
	"github.com/yuuki/famgraph/internal/frontier"
)

// Sentinel marks window words whose data has not arrived yet. No vertex id
// and no compressed word may take this value at a batch boundary.
const Sentinel = ^uint32(0)

var (
	// ErrWindowTooSmall is returned when a window cannot hold one vertex
	ErrWindowTooSmall = errors.New("famgraph: window too small for vertex adjacency")
	// ErrRegionTooSmall is returned when a remote region does not cover the index
	ErrRegionTooSmall = errors.New("famgraph: remote region smaller than adjacency")
	// ErrCursorOverrun is returned when a vertex slice runs past the filled window
	ErrCursorOverrun = errors.New("famgraph: window cursor overrun")
	// ErrNoChannel is returned for a channel index the graph does not have
	ErrNoChannel = errors.New("famgraph: no such channel")
)

// EdgeFunc is applied to every edge (src, dst). degree is the out degree of
// src as reported by the decoder.
type EdgeFunc func(src, dst uint32, degree uint64)

// Graph is the surface algorithms traverse
type Graph interface {
	// MaxV returns the largest vertex id
	MaxV() uint32
	// NumVertices returns MaxV()+1
	NumVertices() uint64
	// Channels returns the number of independent EdgeMap lanes
	Channels() int
	// Degree returns the out degree of v
	Degree(v uint32) (uint64, error)
	// EdgeMap applies fn to every edge leaving an active vertex of r, or
	// every vertex of r when active is nil. Calls on one channel must not
	// overlap.
	EdgeMap(fn EdgeFunc, active *frontier.VertexSubset, r frontier.Range, channel int) error
	// Decoder returns the adjacency decoder
	Decoder() codec.Decoder
}

// activeRanges returns the runs of r to visit
func activeRanges(active *frontier.VertexSubset, r frontier.Range) []frontier.Range {
	if r.Empty() {
		return nil
	}
	if active == nil {
		return []frontier.Range{r}
	}
	return frontier.ConvertToRanges(active, r.Begin, r.End)
}
