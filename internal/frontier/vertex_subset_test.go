package frontier

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetReportsTransition(t *testing.T) {
	s := New(100)
	assert.True(t, s.IsEmpty())

	assert.True(t, s.Set(63))
	assert.False(t, s.Set(63))
	assert.True(t, s.Get(63))
	assert.False(t, s.Get(64))
	assert.False(t, s.IsEmpty())

	s.Clear()
	assert.True(t, s.IsEmpty())
	assert.True(t, s.Set(63), "a cleared vertex transitions again")
}

func TestConcurrentSetActivatesOnce(t *testing.T) {
	s := New(1023)
	var wins atomic.Int64
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for v := range uint32(1024) {
				if s.Set(v) {
					wins.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1024), wins.Load())
	assert.Equal(t, uint64(1024), s.Count())
}

func TestSetAllMasksTail(t *testing.T) {
	for _, maxV := range []uint32{0, 62, 63, 64, 127, 200} {
		s := New(maxV)
		s.SetAll()
		assert.Equal(t, uint64(maxV)+1, s.Count(), "maxV=%d", maxV)
		assert.Equal(t, []Range{Full(maxV)}, s.Ranges(), "maxV=%d", maxV)
	}
}

func TestIsEmptyParallel(t *testing.T) {
	maxV := uint32(emptyScanChunk*wordBits*3 + 17)
	s := New(maxV)
	assert.True(t, s.IsEmpty())

	s.Set(maxV)
	assert.False(t, s.IsEmpty())

	s.Clear()
	assert.True(t, s.IsEmpty())
}

func TestConvertToRangesEdgeCases(t *testing.T) {
	s := New(199)
	assert.Empty(t, ConvertToRanges(s, 0, 200), "empty subset")

	s.Set(130)
	assert.Equal(t, []Range{{Begin: 130, End: 131}}, ConvertToRanges(s, 0, 200), "single bit")

	s.SetAll()
	assert.Equal(t, []Range{{Begin: 0, End: 200}}, ConvertToRanges(s, 0, 200), "all bits")
	assert.Equal(t, []Range{{Begin: 10, End: 70}}, ConvertToRanges(s, 10, 70), "clipped")
	assert.Empty(t, ConvertToRanges(s, 70, 70))
	assert.Equal(t, []Range{{Begin: 150, End: 200}}, ConvertToRanges(s, 150, 1000), "end past maxV")
}

func TestConvertToRangesRunsAcrossWords(t *testing.T) {
	s := New(255)
	for v := uint32(60); v < 200; v++ {
		s.Set(v)
	}
	s.Set(0)
	s.Set(2)
	s.Set(255)

	want := []Range{
		{Begin: 0, End: 1},
		{Begin: 2, End: 3},
		{Begin: 60, End: 200},
		{Begin: 255, End: 256},
	}
	assert.Equal(t, want, s.Ranges())
}

// naiveRanges is the bit-by-bit reference scan
func naiveRanges(s *VertexSubset, start, end uint32) []Range {
	var out []Range
	for v := start; v < end; v++ {
		if !s.Get(v) {
			continue
		}
		b := v
		for v < end && s.Get(v) {
			v++
		}
		out = append(out, Range{Begin: b, End: v})
	}
	return out
}

func TestConvertToRangesMatchesReferenceAndRoundTrips(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for trial := range 200 {
		maxV := uint32(rng.IntN(700))
		s := New(maxV)
		density := rng.Float64()
		for v := uint32(0); v <= maxV; v++ {
			if rng.Float64() < density {
				s.Set(v)
			}
		}
		start := uint32(rng.IntN(int(maxV) + 1))
		end := start + uint32(rng.IntN(int(maxV)+2-int(start)))

		got := ConvertToRanges(s, start, end)
		require.Equal(t, naiveRanges(s, start, end), got, "trial %d", trial)

		for i := 1; i < len(got); i++ {
			require.Less(t, got[i-1].End, got[i].Begin, "ranges are disjoint and maximal")
		}

		full := s.Ranges()
		rebuilt := New(maxV)
		for _, r := range full {
			for v := r.Begin; v < r.End; v++ {
				rebuilt.Set(v)
			}
		}
		for v := uint32(0); v <= maxV; v++ {
			require.Equal(t, s.Get(v), rebuilt.Get(v), "trial %d vertex %d", trial, v)
		}
	}
}
