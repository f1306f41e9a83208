package famgraph

import (
	"runtime"
	"sync/atomic"

	"github.com/yuuki/famgraph/internal/frontier"
	"github.com/yuuki/famgraph/internal/rdma"
)

// DefaultSpinYield is the number of sentinel polls between yields
const DefaultSpinYield = 1024

// BatchObserver is told about every batch an iterator completes
type BatchObserver interface {
	ObserveBatch(channel, segments int, words, spins uint64)
}

// WindowCursor hands out consecutive slices of a filled window
type WindowCursor struct {
	words []uint32
	off   uint64
}

// Take returns the next n words
func (c *WindowCursor) Take(n uint64) ([]uint32, error) {
	if n > c.Remaining() {
		return nil, ErrCursorOverrun
	}
	s := c.words[c.off : c.off+n : c.off+n]
	c.off += n
	return s, nil
}

// Remaining returns the number of words not taken yet
func (c *WindowCursor) Remaining() uint64 { return uint64(len(c.words)) - c.off }

// Iterator streams the adjacency of a list of vertex ranges through one
// channel window. It is owned by one goroutine.
type Iterator struct {
	ch        *rdma.Channel
	window    *rdma.LocalRegion
	words     []uint32
	planner   SegmentPlanner
	spinYield int
	observer  BatchObserver

	cursor rangeCursor
	batch  Batch
}

func newIterator(ch *rdma.Channel, window *rdma.LocalRegion, planner SegmentPlanner, spinYield int, observer BatchObserver) *Iterator {
	return &Iterator{
		ch:        ch,
		window:    window,
		words:     window.Words(),
		planner:   planner,
		spinYield: spinYield,
		observer:  observer,
		batch: Batch{
			Segments: make([]rdma.Segment, 0, planner.MaxSegments),
		},
	}
}

// Reset positions the iterator at the first vertex of ranges with an empty
// window
func (it *Iterator) Reset(ranges []frontier.Range) {
	it.cursor.reset(ranges)
	it.batch.reset()
}

// Next plans the next batch, reads it into the window and waits for it to
// arrive. It returns false once the ranges are exhausted.
func (it *Iterator) Next() (bool, error) {
	if err := it.planner.Plan(&it.cursor, &it.batch); err != nil {
		return false, err
	}
	if len(it.batch.Segments) == 0 {
		return false, nil
	}

	first := &it.words[0]
	last := &it.words[it.batch.Words-1]
	atomic.StoreUint32(first, Sentinel)
	atomic.StoreUint32(last, Sentinel)

	if err := it.ch.Read(it.window, it.planner.Remote.RKey, it.batch.Segments); err != nil {
		return false, err
	}
	spins, err := awaitArrival(it.ch, first, last, it.spinYield)
	if err != nil {
		return false, err
	}

	if it.observer != nil {
		it.observer.ObserveBatch(it.ch.Index, len(it.batch.Segments), it.batch.Words, spins)
	}
	return true, nil
}

// Vertices returns the vertices of the current batch in window order
func (it *Iterator) Vertices() []uint32 { return it.batch.Vertices }

// Cursor returns a cursor over the filled part of the window
func (it *Iterator) Cursor() WindowCursor {
	return WindowCursor{words: it.words[:it.batch.Words]}
}

// ForEach calls fn with the adjacency words of every non-empty vertex
func (it *Iterator) ForEach(fn func(v uint32, adj []uint32)) error {
	for {
		ok, err := it.Next()
		if err != nil || !ok {
			return err
		}
		cur := it.Cursor()
		for _, v := range it.batch.Vertices {
			adj, err := cur.Take(it.planner.Index.Degree(v))
			if err != nil {
				return err
			}
			fn(v, adj)
		}
	}
}

// awaitArrival spins until neither boundary word holds the sentinel. Every
// yield iterations it gives up the processor and checks the channel for a
// transport fault. Interior words are not checked: reads on one reliable
// connection are placed in issue order, so the last word lands last.
func awaitArrival(ch *rdma.Channel, first, last *uint32, yield int) (uint64, error) {
	var spins uint64
	for atomic.LoadUint32(first) == Sentinel || atomic.LoadUint32(last) == Sentinel {
		spins++
		if spins%uint64(yield) == 0 {
			if err := ch.Err(); err != nil {
				return spins, err
			}
			runtime.Gosched()
		}
	}
	return spins, nil
}
