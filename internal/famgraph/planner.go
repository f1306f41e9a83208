package famgraph

import (
	"fmt"

	"github.com/yuuki/famgraph/internal/fgidx"
	"github.com/yuuki/famgraph/internal/frontier"
	"github.com/yuuki/famgraph/internal/rdma"
)

// rangeCursor walks the vertices of an ascending list of ranges
type rangeCursor struct {
	ranges []frontier.Range
	i      int
	next   uint32
}

func (c *rangeCursor) reset(ranges []frontier.Range) {
	c.ranges = ranges
	c.i = 0
	if len(ranges) > 0 {
		c.next = ranges[0].Begin
	}
	c.skipEmpty()
}

func (c *rangeCursor) skipEmpty() {
	for c.i < len(c.ranges) && c.next >= c.ranges[c.i].End {
		c.i++
		if c.i < len(c.ranges) {
			c.next = c.ranges[c.i].Begin
		}
	}
}

// peek returns the next vertex without consuming it
func (c *rangeCursor) peek() (uint32, bool) {
	if c.i >= len(c.ranges) {
		return 0, false
	}
	return c.next, true
}

func (c *rangeCursor) advance() {
	c.next++
	c.skipEmpty()
}

// Batch is one planned transfer: the segments to read, the vertices whose
// adjacency they carry and the number of window words they fill
type Batch struct {
	Segments []rdma.Segment
	Vertices []uint32
	Words    uint64
}

func (b *Batch) reset() {
	b.Segments = b.Segments[:0]
	b.Vertices = b.Vertices[:0]
	b.Words = 0
}

// SegmentPlanner groups consecutive active vertices into batches that fit
// one window and one chain of work requests
type SegmentPlanner struct {
	Index         *fgidx.DenseIndex
	Remote        rdma.RemoteRegion
	MaxSegments   int
	CapacityWords uint64
}

// Plan fills b with the longest prefix of the cursor that fits. Zero degree
// vertices are consumed without taking space. Adjacent intervals share one
// segment. An empty batch means the cursor is exhausted.
func (p *SegmentPlanner) Plan(c *rangeCursor, b *Batch) error {
	b.reset()
	var lastEnd uint64

	for {
		v, ok := c.peek()
		if !ok {
			return nil
		}
		iv := p.Index.At(v)
		n := iv.Len()
		if n == 0 {
			c.advance()
			continue
		}
		if b.Words+n > p.CapacityWords {
			break
		}

		last := len(b.Segments) - 1
		if last >= 0 && iv.Begin == lastEnd {
			b.Segments[last].Length += uint32(n * rdma.WordSize)
		} else {
			if len(b.Segments) == p.MaxSegments {
				break
			}
			b.Segments = append(b.Segments, rdma.Segment{
				RemoteAddr:  p.Remote.WordAddr(iv.Begin),
				LocalOffset: b.Words * rdma.WordSize,
				Length:      uint32(n * rdma.WordSize),
			})
		}
		b.Vertices = append(b.Vertices, v)
		b.Words += n
		lastEnd = iv.End
		c.advance()
	}

	if len(b.Segments) == 0 {
		v, _ := c.peek()
		return fmt.Errorf("%w: vertex %d needs %d words, window holds %d",
			ErrWindowTooSmall, v, p.Index.Degree(v), p.CapacityWords)
	}
	return nil
}
