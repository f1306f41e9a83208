package codec

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(d Decoder, buf []uint32) (vals []uint32, degrees []uint64) {
	d.Decompress(buf, func(dst uint32, degree uint64) {
		vals = append(vals, dst)
		degrees = append(degrees, degree)
	})
	return vals, degrees
}

func TestBlockPackUnpack(t *testing.T) {
	b := Block{NumVals: 1000, DeltaSize: 2}
	w, err := b.Pack()
	require.NoError(t, err)
	assert.Equal(t, uint32(2<<24|1000), w)
	assert.Equal(t, b, UnpackBlock(w))

	_, err = Block{NumVals: 3, DeltaSize: 3}.Pack()
	assert.ErrorIs(t, err, ErrInvalidBlock)
	_, err = Block{NumVals: MaxBlockVals + 1, DeltaSize: 1}.Pack()
	assert.ErrorIs(t, err, ErrInvalidBlock)
}

func TestAlignedWords(t *testing.T) {
	tests := []struct {
		block Block
		want  uint32
	}{
		{Block{NumVals: 1, DeltaSize: 4}, 2},
		{Block{NumVals: 2, DeltaSize: 1}, 3},
		{Block{NumVals: 5, DeltaSize: 1}, 3},
		{Block{NumVals: 6, DeltaSize: 1}, 4},
		{Block{NumVals: 3, DeltaSize: 2}, 3},
		{Block{NumVals: 3, DeltaSize: 4}, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.block.AlignedWords(), "%+v", tt.block)
	}
}

func TestNopEmitsEveryWord(t *testing.T) {
	vals, degrees := decodeAll(Nop{}, []uint32{7, 3, 9})
	assert.Equal(t, []uint32{7, 3, 9}, vals)
	assert.Equal(t, []uint64{3, 3, 3}, degrees)

	vals, _ = decodeAll(Nop{}, nil)
	assert.Empty(t, vals)
}

func TestNextBlockWidensOnlyBeforeMinimum(t *testing.T) {
	opts := CompressionOptions{MinBlockSize: 3, MaxBlockSize: 100}

	b, err := nextBlock([]uint32{1, 2, 1000, 1001}, opts)
	require.NoError(t, err)
	assert.Equal(t, Block{NumVals: 4, DeltaSize: 2}, b, "widened at position 2")

	b, err = nextBlock([]uint32{1, 2, 3, 70000, 70001}, opts)
	require.NoError(t, err)
	assert.Equal(t, Block{NumVals: 3, DeltaSize: 1}, b, "wider delta after the minimum closes the block")

	b, err = nextBlock([]uint32{42}, opts)
	require.NoError(t, err)
	assert.Equal(t, Block{NumVals: 1, DeltaSize: 4}, b)

	b, err = nextBlock(make([]uint32, 250), CompressionOptions{MinBlockSize: 1, MaxBlockSize: 100})
	require.NoError(t, err)
	assert.Equal(t, uint32(100), b.NumVals)

	_, err = nextBlock([]uint32{5, 4}, opts)
	assert.ErrorIs(t, err, ErrInversion)
}

func TestCompressRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	opts := DefaultCompressionOptions()

	for trial := range 100 {
		n := 1 + rng.IntN(3000)
		vals := make([]uint32, n)
		for i := range vals {
			switch rng.IntN(3) {
			case 0:
				vals[i] = rng.Uint32N(1 << 8)
			case 1:
				vals[i] = rng.Uint32N(1 << 20)
			default:
				vals[i] = rng.Uint32N(1<<32 - 2)
			}
		}
		slices.Sort(vals)

		enc, err := CompressVertex(vals, opts)
		require.NoError(t, err)
		require.Equal(t, uint32(n), enc[0])
		require.NotEqual(t, sentinelWord, enc[len(enc)-1])

		got, degrees := decodeAll(Delta{}, enc)
		require.Equal(t, vals, got, "trial %d", trial)
		for _, d := range degrees {
			require.Equal(t, uint64(n), d)
		}
	}
}

func TestCompressVertexPadsArrivalMarker(t *testing.T) {
	// Four deltas of 255 fill the last delta word with 0xff bytes.
	vals := []uint32{0, 255, 510, 765, 1020}
	enc, err := CompressVertex(vals, DefaultCompressionOptions())
	require.NoError(t, err)
	assert.Equal(t, []uint32{5, 1<<24 | 5, 0, sentinelWord, 0}, enc)

	got, _ := decodeAll(Delta{}, enc)
	assert.Equal(t, vals, got)
}

func TestCompressRejectsBadInput(t *testing.T) {
	_, err := CompressVertex([]uint32{3, 1}, DefaultCompressionOptions())
	assert.ErrorIs(t, err, ErrInversion)

	_, err = Compress([]uint32{1}, CompressionOptions{MinBlockSize: 20, MaxBlockSize: 10})
	assert.Error(t, err)
	_, err = Compress([]uint32{1}, CompressionOptions{MinBlockSize: 1, MaxBlockSize: MaxBlockVals + 1})
	assert.ErrorContains(t, err, "too big")

	enc, err := CompressVertex(nil, DefaultCompressionOptions())
	require.NoError(t, err)
	assert.Empty(t, enc)
}

func TestCompressGraph(t *testing.T) {
	offsets := []uint64{0, 3, 5, 5, 6, 6}
	adj := []uint32{1, 2, 4, 3, 5, 0}

	outOffsets, words, err := CompressGraph(offsets, adj, DefaultCompressionOptions())
	require.NoError(t, err)
	require.Len(t, outOffsets, len(offsets))

	for v := range offsets {
		begin := outOffsets[v]
		end := uint64(len(words))
		if v+1 < len(outOffsets) {
			end = outOffsets[v+1]
		}
		want := adj[offsets[v]:]
		if v+1 < len(offsets) {
			want = adj[offsets[v]:offsets[v+1]]
		}
		got, _ := decodeAll(Delta{}, words[begin:end])
		if len(want) == 0 {
			assert.Empty(t, got, "vertex %d", v)
			assert.Equal(t, begin, end, "empty vertex takes no words")
			continue
		}
		assert.Equal(t, want, got, "vertex %d", v)
	}

	_, _, err = CompressGraph([]uint64{0, 2}, []uint32{5, 1, 0}, DefaultCompressionOptions())
	assert.ErrorContains(t, err, "vertex 0")
}

func TestDeltaStopsOnTruncatedBlock(t *testing.T) {
	enc, err := CompressVertex([]uint32{10, 20, 30, 40, 50, 60}, DefaultCompressionOptions())
	require.NoError(t, err)

	got, _ := decodeAll(Delta{}, enc[:len(enc)-1])
	assert.Empty(t, got)
}

func TestDeltaStopsOnUnknownDeltaSize(t *testing.T) {
	var got []uint32
	require.NotPanics(t, func() {
		got, _ = decodeAll(Delta{}, []uint32{3, 3, 7})
	})
	assert.Empty(t, got)

	first, err := Block{NumVals: 1, DeltaSize: 4}.Pack()
	require.NoError(t, err)
	buf := []uint32{3, first, 10, 5<<24 | 2, 11, 1}
	require.NotPanics(t, func() {
		got, _ = decodeAll(Delta{}, buf)
	})
	assert.Equal(t, []uint32{10}, got, "blocks before the bad header are still emitted")
}

func TestLookup(t *testing.T) {
	d, err := Lookup("delta")
	require.NoError(t, err)
	assert.True(t, d.PrefixedDegree())

	d, err = Lookup("")
	require.NoError(t, err)
	assert.Equal(t, NopName, d.Name())

	_, err = Lookup("zstd")
	assert.Error(t, err)
}
