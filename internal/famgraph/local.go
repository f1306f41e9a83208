package famgraph

import (
	"fmt"
	"runtime"

	"github.com/yuuki/famgraph/internal/codec"
	"github.com/yuuki/famgraph/internal/fgidx"
	"github.com/yuuki/famgraph/internal/frontier"
)

// LocalGraph walks an adjacency array held in memory
type LocalGraph struct {
	idx     *fgidx.DenseIndex
	adj     []uint32
	decoder codec.Decoder
	lanes   int
}

// NewLocalGraph binds idx to adj. lanes sets the parallelism reported by
// Channels; zero means GOMAXPROCS.
func NewLocalGraph(idx *fgidx.DenseIndex, adj []uint32, decoder codec.Decoder, lanes int) (*LocalGraph, error) {
	if uint64(len(adj)) < idx.EdgeCount() {
		return nil, fmt.Errorf("%w: adjacency holds %d words, index needs %d",
			ErrRegionTooSmall, len(adj), idx.EdgeCount())
	}
	if decoder == nil {
		decoder = codec.Nop{}
	}
	if lanes <= 0 {
		lanes = runtime.GOMAXPROCS(0)
	}
	return &LocalGraph{idx: idx, adj: adj, decoder: decoder, lanes: lanes}, nil
}

// LoadLocalGraph reads <stem>.idx and <stem>.adj, or the compressed pair
// when decoder carries a degree prefix
func LoadLocalGraph(stem string, decoder codec.Decoder, lanes int) (*LocalGraph, error) {
	if decoder == nil {
		decoder = codec.Nop{}
	}
	indexPath, adjPath := fgidx.Paths(stem, decoder.PrefixedDegree())
	adj, err := fgidx.LoadAdjacencyArray(adjPath)
	if err != nil {
		return nil, err
	}
	idx, err := fgidx.LoadDenseIndex(indexPath, adj.Edges)
	if err != nil {
		return nil, err
	}
	return NewLocalGraph(idx, adj.Array, decoder, lanes)
}

func (g *LocalGraph) MaxV() uint32             { return g.idx.MaxV() }
func (g *LocalGraph) NumVertices() uint64      { return g.idx.NumVertices() }
func (g *LocalGraph) Channels() int            { return g.lanes }
func (g *LocalGraph) Decoder() codec.Decoder   { return g.decoder }
func (g *LocalGraph) Index() *fgidx.DenseIndex { return g.idx }

func (g *LocalGraph) Degree(v uint32) (uint64, error) {
	iv := g.idx.At(v)
	if !g.decoder.PrefixedDegree() {
		return iv.Len(), nil
	}
	if iv.Len() == 0 {
		return 0, nil
	}
	return uint64(g.adj[iv.Begin]), nil
}

func (g *LocalGraph) EdgeMap(fn EdgeFunc, active *frontier.VertexSubset, r frontier.Range, channel int) error {
	if channel < 0 || channel >= g.lanes {
		return fmt.Errorf("%w: %d of %d", ErrNoChannel, channel, g.lanes)
	}
	for _, run := range activeRanges(active, r) {
		for v := run.Begin; v < run.End; v++ {
			iv := g.idx.At(v)
			if iv.Len() == 0 {
				continue
			}
			g.decoder.Decompress(g.adj[iv.Begin:iv.End], func(dst uint32, degree uint64) {
				fn(v, dst, degree)
			})
		}
	}
	return nil
}
