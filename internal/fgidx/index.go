// Package fgidx reads and writes the CSR files a graph is stored in: a dense
// index of 64-bit offsets and a flat adjacency array of 32-bit vertex ids.
package fgidx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// File suffixes
const (
	IndexSuffix           = ".idx"
	AdjacencySuffix       = ".adj"
	CompressedIndexSuffix = ".idx2"
	CompressedAdjSuffix   = ".adj2"

	offsetSize = 8
	vertexSize = 4

	// MaxVertexID is the largest storable vertex id. 0xFFFFFFFF marks words
	// that have not arrived yet.
	MaxVertexID = ^uint32(0) - 1
)

var (
	// ErrCorruptIndex is returned when offsets decrease or exceed the edge count
	ErrCorruptIndex = errors.New("fgidx: corrupt index")
	// ErrEmptyIndex is returned for an index without vertices
	ErrEmptyIndex = errors.New("fgidx: index holds no vertices")
)

// HalfInterval is the adjacency word interval [Begin, End) of one vertex
type HalfInterval struct {
	Begin uint64
	End   uint64
}

// Len returns the number of words in the interval
func (h HalfInterval) Len() uint64 { return h.End - h.Begin }

// DenseIndex is the immutable CSR offset table. It holds V+1 offsets, the
// last one being the number of adjacency words.
type DenseIndex struct {
	idx          []uint64
	vMax         uint32
	maxOutDegree uint64
}

// NewDenseIndex builds an index from the V per-vertex offsets and the total
// number of adjacency words, which becomes offset V. It validates that the
// offsets never decrease.
func NewDenseIndex(offsets []uint64, nEdges uint64) (*DenseIndex, error) {
	if len(offsets) == 0 {
		return nil, ErrEmptyIndex
	}
	if uint64(len(offsets)) > uint64(MaxVertexID)+1 {
		return nil, fmt.Errorf("%w: %d vertices exceed the 32-bit id space", ErrCorruptIndex, len(offsets))
	}

	idx := make([]uint64, len(offsets)+1)
	copy(idx, offsets)
	idx[len(offsets)] = nEdges

	var maxDeg uint64
	for v := 0; v < len(offsets); v++ {
		if idx[v+1] < idx[v] {
			return nil, fmt.Errorf("%w: offset of vertex %d (%d) is below vertex %d (%d)",
				ErrCorruptIndex, v+1, idx[v+1], v, idx[v])
		}
		maxDeg = max(maxDeg, idx[v+1]-idx[v])
	}

	return &DenseIndex{
		idx:          idx,
		vMax:         uint32(len(offsets) - 1),
		maxOutDegree: maxDeg,
	}, nil
}

// LoadDenseIndex reads an index file of little-endian 64-bit offsets, one per
// vertex, and appends nEdges as the closing offset
func LoadDenseIndex(path string, nEdges uint64) (*DenseIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", path, err)
	}
	if len(data)%offsetSize != 0 {
		return nil, fmt.Errorf("%w: %s is %d bytes, not a multiple of %d", ErrCorruptIndex, path, len(data), offsetSize)
	}

	offsets := make([]uint64, len(data)/offsetSize)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint64(data[i*offsetSize:])
	}

	idx, err := NewDenseIndex(offsets, nEdges)
	if err != nil {
		return nil, fmt.Errorf("failed to load index %s: %w", path, err)
	}

	log.Debug().
		Str("path", path).
		Uint32("v_max", idx.vMax).
		Uint64("edges", nEdges).
		Uint64("max_out_degree", idx.maxOutDegree).
		Msg("Loaded dense index")
	return idx, nil
}

// At returns the adjacency interval of v
func (d *DenseIndex) At(v uint32) HalfInterval {
	return HalfInterval{Begin: d.idx[v], End: d.idx[v+1]}
}

// Degree returns the number of adjacency words of v
func (d *DenseIndex) Degree(v uint32) uint64 { return d.idx[v+1] - d.idx[v] }

// MaxV returns the largest vertex id
func (d *DenseIndex) MaxV() uint32 { return d.vMax }

// NumVertices returns V
func (d *DenseIndex) NumVertices() uint64 { return uint64(d.vMax) + 1 }

// MaxOutDegree returns the largest per-vertex word count
func (d *DenseIndex) MaxOutDegree() uint64 { return d.maxOutDegree }

// EdgeCount returns the closing offset, the number of adjacency words
func (d *DenseIndex) EdgeCount() uint64 { return d.idx[d.vMax+1] }

// Paths returns the index and adjacency file names for a graph stem
func Paths(stem string, compressed bool) (index, adjacency string) {
	if compressed {
		return stem + CompressedIndexSuffix, stem + CompressedAdjSuffix
	}
	return stem + IndexSuffix, stem + AdjacencySuffix
}
