// Package codec holds the adjacency decoders a graph can be read through and
// the block delta compressor that produces the compressed layout.
package codec

import "fmt"

// Decoder expands the adjacency words of one vertex
type Decoder interface {
	// Name identifies the decoder in configuration
	Name() string
	// PrefixedDegree reports whether the first word of every vertex holds
	// its uncompressed degree
	PrefixedDegree() bool
	// Decompress calls emit for every neighbour encoded in buf, in order
	Decompress(buf []uint32, emit func(dst uint32, degree uint64))
}

// Decoder names
const (
	NopName   = "nop"
	DeltaName = "delta"
)

// Nop emits every word as a neighbour
type Nop struct{}

func (Nop) Name() string         { return NopName }
func (Nop) PrefixedDegree() bool { return false }

func (Nop) Decompress(buf []uint32, emit func(dst uint32, degree uint64)) {
	degree := uint64(len(buf))
	for _, w := range buf {
		emit(w, degree)
	}
}

// Delta decodes the [degree][block...] layout written by CompressVertex.
// Decoding stops once degree values were emitted, so trailing padding is
// ignored. A truncated block or a header with an unknown delta size ends the
// vertex early.
type Delta struct{}

func (Delta) Name() string         { return DeltaName }
func (Delta) PrefixedDegree() bool { return true }

func (Delta) Decompress(buf []uint32, emit func(dst uint32, degree uint64)) {
	if len(buf) == 0 {
		return
	}
	degree := uint64(buf[0])
	var emitted uint64

	p := 1
	for p < len(buf) && emitted < degree {
		b := UnpackBlock(buf[p])
		size := int(b.AlignedWords())
		if b.NumVals == 0 || !validDeltaSize(b.DeltaSize) || p+size > len(buf) {
			return
		}
		applyBlock(buf[p+1:p+size], b, degree, emit)
		emitted += uint64(b.NumVals)
		p += size
	}
}

// applyBlock emits the first value of body, then every delta added to
// the running value. body starts at the first-value word.
func applyBlock(body []uint32, b Block, degree uint64, emit func(uint32, uint64)) {
	acc := body[0]
	emit(acc, degree)
	deltas := body[1:]
	for i := uint32(0); i < b.NumVals-1; i++ {
		acc += readDelta(deltas, i, b.DeltaSize)
		emit(acc, degree)
	}
}

// readDelta returns delta i of size bytes packed little endian into words
func readDelta(words []uint32, i, size uint32) uint32 {
	if size == 4 {
		return words[i]
	}
	off := i * size
	w := words[off/4] >> (8 * (off % 4))
	if size == 1 {
		return w & 0xff
	}
	return w & 0xffff
}

// Lookup returns the decoder registered under name
func Lookup(name string) (Decoder, error) {
	switch name {
	case "", NopName:
		return Nop{}, nil
	case DeltaName:
		return Delta{}, nil
	default:
		return nil, fmt.Errorf("unknown decoder %q", name)
	}
}
