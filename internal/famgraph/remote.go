package famgraph

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/yuuki/famgraph/internal/codec"
	"github.com/yuuki/famgraph/internal/fgidx"
	"github.com/yuuki/famgraph/internal/frontier"
	"github.com/yuuki/famgraph/internal/rdma"
)

// RemoteOptions tune a RemoteGraph
type RemoteOptions struct {
	Decoder   codec.Decoder
	SpinYield int
	Observer  BatchObserver
}

// Lane is the transport state one EdgeMap channel needs: the connected
// channel, its window and the slot single word degree reads land in. The
// degree slot may be nil when the decoder keeps no degree prefix.
type Lane struct {
	Channel    *rdma.Channel
	Window     *rdma.LocalRegion
	DegreeSlot *rdma.LocalRegion
}

// degreeSlot is one word of registered memory with its own single entry pool
type degreeSlot struct {
	ch     *rdma.Channel
	region *rdma.LocalRegion
	pool   *rdma.WRPool
	segs   [1]rdma.Segment
}

// RemoteGraph streams the adjacency array out of a remote region
type RemoteGraph struct {
	idx       *fgidx.DenseIndex
	remote    rdma.RemoteRegion
	decoder   codec.Decoder
	iters     []*Iterator
	slots     chan *degreeSlot
	spinYield int
}

// NewRemoteGraph binds idx to remote, with one iterator per lane. Every
// window must hold the largest vertex and the region must hold every
// adjacency word the index names.
func NewRemoteGraph(idx *fgidx.DenseIndex, remote rdma.RemoteRegion, lanes []Lane, opts RemoteOptions) (*RemoteGraph, error) {
	if len(lanes) == 0 {
		return nil, errors.New("famgraph: remote graph needs at least one lane")
	}
	if opts.Decoder == nil {
		opts.Decoder = codec.Nop{}
	}
	if opts.SpinYield <= 0 {
		opts.SpinYield = DefaultSpinYield
	}
	if remote.Words() < idx.EdgeCount() {
		return nil, fmt.Errorf("%w: region holds %d words, index needs %d",
			ErrRegionTooSmall, remote.Words(), idx.EdgeCount())
	}

	g := &RemoteGraph{
		idx:       idx,
		remote:    remote,
		decoder:   opts.Decoder,
		iters:     make([]*Iterator, len(lanes)),
		spinYield: opts.SpinYield,
	}
	if opts.Decoder.PrefixedDegree() {
		g.slots = make(chan *degreeSlot, len(lanes))
	}

	for i, lane := range lanes {
		if lane.Channel == nil || lane.Window == nil {
			return nil, fmt.Errorf("famgraph: lane %d is incomplete", i)
		}
		if lane.Window.Channel != lane.Channel.Index {
			return nil, fmt.Errorf("famgraph: lane %d window is registered on channel %d, not %d",
				i, lane.Window.Channel, lane.Channel.Index)
		}
		capacity := uint64(lane.Window.Len() / rdma.WordSize)
		if capacity < idx.MaxOutDegree() {
			return nil, fmt.Errorf("%w: lane %d holds %d words, max out degree is %d",
				ErrWindowTooSmall, i, capacity, idx.MaxOutDegree())
		}
		capacity = min(capacity, math.MaxUint32/rdma.WordSize)

		planner := SegmentPlanner{
			Index:         idx,
			Remote:        remote,
			MaxSegments:   lane.Channel.MaxOutstanding(),
			CapacityWords: capacity,
		}
		g.iters[i] = newIterator(lane.Channel, lane.Window, planner, opts.SpinYield, opts.Observer)

		if g.slots != nil {
			if lane.DegreeSlot == nil || lane.DegreeSlot.Len() < rdma.WordSize {
				return nil, fmt.Errorf("famgraph: lane %d has no degree slot", i)
			}
			if lane.DegreeSlot.Channel != lane.Channel.Index {
				return nil, fmt.Errorf("famgraph: lane %d degree slot is registered on channel %d", i, lane.DegreeSlot.Channel)
			}
			g.slots <- &degreeSlot{ch: lane.Channel, region: lane.DegreeSlot, pool: rdma.NewWRPool(1)}
		}
	}

	log.Debug().
		Uint32("v_max", idx.MaxV()).
		Uint64("edges", idx.EdgeCount()).
		Int("lanes", len(lanes)).
		Str("decoder", opts.Decoder.Name()).
		Msg("Remote graph ready")
	return g, nil
}

func (g *RemoteGraph) MaxV() uint32           { return g.idx.MaxV() }
func (g *RemoteGraph) NumVertices() uint64    { return g.idx.NumVertices() }
func (g *RemoteGraph) Channels() int          { return len(g.iters) }
func (g *RemoteGraph) Decoder() codec.Decoder { return g.decoder }

// Index returns the dense index the graph was built on
func (g *RemoteGraph) Index() *fgidx.DenseIndex { return g.idx }

// Degree returns the out degree of v. With a degree prefixed layout the
// first word of v is read with a single RDMA read.
func (g *RemoteGraph) Degree(v uint32) (uint64, error) {
	iv := g.idx.At(v)
	if g.slots == nil || iv.Len() == 0 {
		return iv.Len(), nil
	}

	slot := <-g.slots
	defer func() { g.slots <- slot }()

	word := &slot.region.Words()[0]
	atomic.StoreUint32(word, Sentinel)
	slot.segs[0] = rdma.Segment{RemoteAddr: g.remote.WordAddr(iv.Begin), Length: rdma.WordSize}
	if err := slot.ch.ReadUsing(slot.pool, slot.region, g.remote.RKey, slot.segs[:]); err != nil {
		return 0, err
	}
	if _, err := awaitArrival(slot.ch, word, word, g.spinYield); err != nil {
		return 0, err
	}
	return uint64(atomic.LoadUint32(word)), nil
}

func (g *RemoteGraph) EdgeMap(fn EdgeFunc, active *frontier.VertexSubset, r frontier.Range, channel int) error {
	if channel < 0 || channel >= len(g.iters) {
		return fmt.Errorf("%w: %d of %d", ErrNoChannel, channel, len(g.iters))
	}
	ranges := activeRanges(active, r)
	if len(ranges) == 0 {
		return nil
	}

	it := g.iters[channel]
	it.Reset(ranges)
	return it.ForEach(func(v uint32, adj []uint32) {
		g.decoder.Decompress(adj, func(dst uint32, degree uint64) {
			fn(v, dst, degree)
		})
	})
}
