package codec

import (
	"errors"
	"fmt"
)

// Block limits and compressor defaults
const (
	MaxBlockVals        = 1<<24 - 1
	DefaultMinBlockSize = 10
	DefaultMaxBlockSize = 1000

	blockHeaderWords = 2
	sentinelWord     = ^uint32(0)
)

var (
	// ErrInversion is returned when a neighbour list is not sorted ascending
	ErrInversion = errors.New("codec: cannot compress a sequence with an inversion")
	// ErrInvalidBlock is returned when a block cannot be packed
	ErrInvalidBlock = errors.New("codec: invalid block")
)

// Block describes NumVals values whose deltas take DeltaSize bytes each
type Block struct {
	NumVals   uint32
	DeltaSize uint32
}

// AlignedWords returns the words the block occupies: header, first value and
// the packed deltas rounded up to a word
func (b Block) AlignedWords() uint32 {
	bytes := b.DeltaSize * (b.NumVals - 1)
	return blockHeaderWords + (bytes+3)/4
}

// Pack encodes the header word delta_size<<24 | num_vals
func (b Block) Pack() (uint32, error) {
	if !validDeltaSize(b.DeltaSize) {
		return 0, fmt.Errorf("%w: delta size %d", ErrInvalidBlock, b.DeltaSize)
	}
	if b.NumVals == 0 || b.NumVals > MaxBlockVals {
		return 0, fmt.Errorf("%w: %d values", ErrInvalidBlock, b.NumVals)
	}
	return b.DeltaSize<<24 | b.NumVals, nil
}

func validDeltaSize(size uint32) bool {
	return size == 1 || size == 2 || size == 4
}

// UnpackBlock decodes a header word
func UnpackBlock(w uint32) Block {
	return Block{NumVals: w & MaxBlockVals, DeltaSize: w >> 24}
}

// CompressionOptions bound the number of values per block
type CompressionOptions struct {
	MinBlockSize uint32
	MaxBlockSize uint32
}

// DefaultCompressionOptions returns min 10, max 1000
func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{MinBlockSize: DefaultMinBlockSize, MaxBlockSize: DefaultMaxBlockSize}
}

// Validate checks the block size bounds
func (o CompressionOptions) Validate() error {
	if o.MaxBlockSize == 0 || o.MinBlockSize > o.MaxBlockSize {
		return fmt.Errorf("%d is not a valid block size (max %d)", o.MinBlockSize, o.MaxBlockSize)
	}
	if o.MaxBlockSize > MaxBlockVals {
		return fmt.Errorf("max block size %d is too big", o.MaxBlockSize)
	}
	return nil
}

func deltaSize(diff uint32) uint32 {
	switch {
	case diff <= 0xff:
		return 1
	case diff <= 0xffff:
		return 2
	default:
		return 4
	}
}

// nextBlock picks the block starting at vals[0]. The delta width may only
// grow while fewer than MinBlockSize values were taken; after that a wider
// delta closes the block.
func nextBlock(vals []uint32, opts CompressionOptions) (Block, error) {
	if len(vals) == 1 {
		return Block{NumVals: 1, DeltaSize: 4}, nil
	}

	delta := uint32(1)
	taken := uint32(1)
	limit := min(uint32(min(len(vals), MaxBlockVals)), opts.MaxBlockSize)
	for i := uint32(1); i < limit; i++ {
		if vals[i-1] > vals[i] {
			return Block{}, fmt.Errorf("%w at position %d", ErrInversion, i)
		}
		if d := deltaSize(vals[i] - vals[i-1]); d > delta {
			if i >= opts.MinBlockSize {
				break
			}
			delta = d
		}
		taken++
	}
	return Block{NumVals: taken, DeltaSize: delta}, nil
}

// Compress encodes an ascending neighbour list as a sequence of blocks
func Compress(vals []uint32, opts CompressionOptions) ([]uint32, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var out []uint32
	for len(vals) > 0 {
		b, err := nextBlock(vals, opts)
		if err != nil {
			return nil, err
		}
		header, err := b.Pack()
		if err != nil {
			return nil, err
		}

		start := len(out)
		out = append(out, make([]uint32, b.AlignedWords())...)
		out[start] = header
		out[start+1] = vals[0]
		deltas := out[start+2:]
		for i := uint32(1); i < b.NumVals; i++ {
			writeDelta(deltas, i-1, b.DeltaSize, vals[i]-vals[i-1])
		}
		vals = vals[b.NumVals:]
	}
	return out, nil
}

func writeDelta(words []uint32, i, size, diff uint32) {
	if size == 4 {
		words[i] = diff
		return
	}
	off := i * size
	shift := 8 * (off % 4)
	words[off/4] |= diff << shift
}

// CompressVertex encodes one vertex as [degree][blocks]. A vertex whose last
// word would equal the 0xFFFFFFFF arrival marker gets one zero padding word.
func CompressVertex(vals []uint32, opts CompressionOptions) ([]uint32, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	if uint64(len(vals)) >= uint64(sentinelWord) {
		return nil, fmt.Errorf("degree %d does not fit the degree word", len(vals))
	}
	blocks, err := Compress(vals, opts)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, len(blocks)+2)
	out = append(out, uint32(len(vals)))
	out = append(out, blocks...)
	if out[len(out)-1] == sentinelWord {
		out = append(out, 0)
	}
	return out, nil
}

// CompressGraph compresses every vertex of a CSR graph given its V offsets
// and adjacency array. It returns the offsets and words of the compressed
// layout.
func CompressGraph(offsets []uint64, adj []uint32, opts CompressionOptions) ([]uint64, []uint32, error) {
	outOffsets := make([]uint64, len(offsets))
	var out []uint32
	for v := range offsets {
		outOffsets[v] = uint64(len(out))
		begin := offsets[v]
		end := uint64(len(adj))
		if v+1 < len(offsets) {
			end = offsets[v+1]
		}
		if end < begin || end > uint64(len(adj)) {
			return nil, nil, fmt.Errorf("vertex %d: invalid interval [%d, %d)", v, begin, end)
		}
		enc, err := CompressVertex(adj[begin:end], opts)
		if err != nil {
			return nil, nil, fmt.Errorf("vertex %d: %w", v, err)
		}
		out = append(out, enc...)
	}
	return outOffsets, out, nil
}
