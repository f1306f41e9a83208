// Package frontier implements the concurrent vertex set that drives each
// round of a traversal and its conversion into contiguous vertex ranges.
package frontier

import (
	"math/bits"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

const (
	wordBits = 64
	allOnes  = ^uint64(0)

	// emptyScanChunk is the number of words one IsEmpty worker scans
	emptyScanChunk = 4096
)

// VertexSubset is a bitmap over the vertices [0, maxV]. Set may be called
// from any number of goroutines; IsEmpty, Clear, SetAll and Count must only
// be called at a barrier when no Set is in flight.
type VertexSubset struct {
	maxV  uint32
	words []atomic.Uint64
}

// New returns an empty subset covering [0, maxV]
func New(maxV uint32) *VertexSubset {
	n := (uint64(maxV) + wordBits) / wordBits
	return &VertexSubset{
		maxV:  maxV,
		words: make([]atomic.Uint64, n),
	}
}

// MaxV returns the largest vertex the subset covers
func (s *VertexSubset) MaxV() uint32 { return s.maxV }

// Set marks v active and reports whether this call changed the bit from 0 to 1
func (s *VertexSubset) Set(v uint32) bool {
	mask := uint64(1) << (v % wordBits)
	old := s.words[v/wordBits].Or(mask)
	return old&mask == 0
}

// Get reports whether v is active
func (s *VertexSubset) Get(v uint32) bool {
	return s.words[v/wordBits].Load()&(uint64(1)<<(v%wordBits)) != 0
}

// IsEmpty reports whether no vertex is active. Large subsets are scanned in
// parallel chunks.
func (s *VertexSubset) IsEmpty() bool {
	if len(s.words) <= emptyScanChunk {
		return s.emptyRange(0, len(s.words))
	}

	var found atomic.Bool
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for lo := 0; lo < len(s.words); lo += emptyScanChunk {
		hi := min(lo+emptyScanChunk, len(s.words))
		g.Go(func() error {
			if found.Load() {
				return nil
			}
			if !s.emptyRange(lo, hi) {
				found.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()
	return !found.Load()
}

func (s *VertexSubset) emptyRange(lo, hi int) bool {
	for i := lo; i < hi; i++ {
		if s.words[i].Load() != 0 {
			return false
		}
	}
	return true
}

// Clear deactivates every vertex
func (s *VertexSubset) Clear() {
	for i := range s.words {
		s.words[i].Store(0)
	}
}

// SetAll activates every vertex in [0, maxV]
func (s *VertexSubset) SetAll() {
	last := len(s.words) - 1
	for i := 0; i < last; i++ {
		s.words[i].Store(allOnes)
	}
	tail := s.maxV%wordBits + 1
	if tail == wordBits {
		s.words[last].Store(allOnes)
	} else {
		s.words[last].Store(uint64(1)<<tail - 1)
	}
}

// Count returns the number of active vertices
func (s *VertexSubset) Count() uint64 {
	var n int
	for i := range s.words {
		n += bits.OnesCount64(s.words[i].Load())
	}
	return uint64(n)
}

// word returns the raw bitmap word i
func (s *VertexSubset) word(i uint32) uint64 {
	return s.words[i].Load()
}
