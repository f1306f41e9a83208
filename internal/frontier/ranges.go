package frontier

import "math/bits"

// Range is the half-open vertex interval [Begin, End)
type Range struct {
	Begin uint32
	End   uint32
}

// Len returns the number of vertices in r
func (r Range) Len() uint32 { return r.End - r.Begin }

// Empty reports whether r holds no vertex
func (r Range) Empty() bool { return r.End <= r.Begin }

// Full returns the range covering every vertex in [0, maxV]
func Full(maxV uint32) Range { return Range{Begin: 0, End: maxV + 1} }

// ConvertToRanges returns the maximal runs of active vertices inside
// [start, endExclusive) in ascending order. Zero words are skipped and
// all-ones words are consumed whole.
func ConvertToRanges(s *VertexSubset, start, endExclusive uint32) []Range {
	if end := s.maxV + 1; endExclusive > end {
		endExclusive = end
	}
	if start >= endExclusive {
		return nil
	}

	var (
		out    []Range
		open   bool
		runBeg uint32
	)
	closeRun := func(at uint32) {
		if open {
			out = append(out, Range{Begin: runBeg, End: at})
			open = false
		}
	}

	v := start
	for v < endExclusive {
		wi := v / wordBits
		off := v % wordBits
		w := s.word(wi) >> off
		avail := min(uint32(wordBits)-off, endExclusive-v)

		switch {
		case w == 0:
			closeRun(v)
			v += avail
		case off == 0 && w == allOnes:
			if !open {
				open, runBeg = true, v
			}
			v += avail
		default:
			if w&1 == 0 {
				closeRun(v)
				skip := uint32(bits.TrailingZeros64(w))
				if skip >= avail {
					v += avail
					continue
				}
				v += skip
				w >>= skip
				avail -= skip
			}
			if !open {
				open, runBeg = true, v
			}
			ones := uint32(bits.TrailingZeros64(^w))
			if ones >= avail {
				v += avail
				continue
			}
			v += ones
			closeRun(v)
		}
	}
	closeRun(endExclusive)
	return out
}

// Ranges returns the active runs of the whole subset
func (s *VertexSubset) Ranges() []Range {
	return ConvertToRanges(s, 0, s.maxV+1)
}
