package rdma

import (
	"errors"
	"fmt"
)

// ErrPoolCapacity is returned when a batch does not fit the pool
var ErrPoolCapacity = errors.New("rdma: batch does not fit work request pool")

// Segment is one contiguous transfer between a remote region and a local one
type Segment struct {
	RemoteAddr  uint64
	LocalOffset uint64
	Length      uint32 // bytes
}

// WRPool is a fixed arena of send descriptors reused for every post on one
// channel. It is not safe for concurrent use; each channel user owns one.
type WRPool struct {
	slots  []WorkRequest
	nextID uint64
}

// NewWRPool creates a pool of n descriptor slots
func NewWRPool(n int) *WRPool {
	return &WRPool{slots: make([]WorkRequest, n)}
}

// Cap returns the number of slots
func (p *WRPool) Cap() int { return len(p.slots) }

// Post issues one RDMA READ per segment from the remote region identified by
// rkey into local, as a single chain with only the last request signaled.
func (p *WRPool) Post(conn ConnID, local *LocalRegion, rkey uint32, segs []Segment) error {
	return p.post(conn, OpRDMARead, local, rkey, segs)
}

// PostWrite is Post with the RDMA WRITE opcode
func (p *WRPool) PostWrite(conn ConnID, local *LocalRegion, rkey uint32, segs []Segment) error {
	return p.post(conn, OpRDMAWrite, local, rkey, segs)
}

func (p *WRPool) post(conn ConnID, op Opcode, local *LocalRegion, rkey uint32, segs []Segment) error {
	k, err := p.fill(op, local.Addr(), uint64(local.Len()), local.LKey(), rkey, segs)
	if err != nil {
		return err
	}
	if err := conn.PostSend(&p.slots[0]); err != nil {
		return fmt.Errorf("failed to post %d work requests: %w", k, err)
	}
	return nil
}

// fill resets and links slots 0..len(segs)-1
func (p *WRPool) fill(op Opcode, localAddr, localLen uint64, lkey, rkey uint32, segs []Segment) (int, error) {
	k := len(segs)
	if k == 0 || k > len(p.slots) {
		return 0, fmt.Errorf("%w: %d segments, %d slots", ErrPoolCapacity, k, len(p.slots))
	}

	for i := range k {
		seg := segs[i]
		if seg.LocalOffset+uint64(seg.Length) > localLen {
			return 0, fmt.Errorf("segment %d overruns local region: offset %d length %d region %d",
				i, seg.LocalOffset, seg.Length, localLen)
		}

		p.nextID++
		wr := &p.slots[i]
		*wr = WorkRequest{
			ID:     p.nextID,
			Opcode: op,
			SGE: SGE{
				Addr:   localAddr + seg.LocalOffset,
				Length: seg.Length,
				LKey:   lkey,
			},
			RemoteAddr: seg.RemoteAddr,
			RKey:       rkey,
		}
		if i > 0 {
			p.slots[i-1].Next = wr
		}
	}
	p.slots[k-1].Signaled = true
	return k, nil
}
