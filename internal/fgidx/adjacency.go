package fgidx

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
)

// AdjacencyArray is a fully loaded adjacency file
type AdjacencyArray struct {
	Edges uint64
	Array []uint32
}

// AdjacencyWords returns the number of 32-bit words in an adjacency file
// without reading it
func AdjacencyWords(path string) (uint64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat adjacency %s: %w", path, err)
	}
	if st.Size()%vertexSize != 0 {
		return 0, fmt.Errorf("%w: %s is %d bytes, not a multiple of %d", ErrCorruptIndex, path, st.Size(), vertexSize)
	}
	return uint64(st.Size()) / vertexSize, nil
}

// LoadAdjacencyArray reads a little-endian adjacency file into memory
func LoadAdjacencyArray(path string) (*AdjacencyArray, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read adjacency %s: %w", path, err)
	}
	if len(data)%vertexSize != 0 {
		return nil, fmt.Errorf("%w: %s is %d bytes, not a multiple of %d", ErrCorruptIndex, path, len(data), vertexSize)
	}

	words := make([]uint32, len(data)/vertexSize)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*vertexSize:])
	}

	log.Debug().Str("path", path).Int("edges", len(words)).Msg("Loaded adjacency array")
	return &AdjacencyArray{Edges: uint64(len(words)), Array: words}, nil
}

// WriteIndex writes the per-vertex offsets, without the closing edge count
func WriteIndex(w io.Writer, offsets []uint64) error {
	bw := bufio.NewWriter(w)
	var b [offsetSize]byte
	for _, off := range offsets {
		binary.LittleEndian.PutUint64(b[:], off)
		if _, err := bw.Write(b[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteAdjacency writes 32-bit words in little-endian order
func WriteAdjacency(w io.Writer, words []uint32) error {
	bw := bufio.NewWriter(w)
	var b [vertexSize]byte
	for _, word := range words {
		binary.LittleEndian.PutUint32(b[:], word)
		if _, err := bw.Write(b[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteGraph writes <stem>.idx and <stem>.adj, or the compressed suffixes
func WriteGraph(stem string, compressed bool, offsets []uint64, words []uint32) error {
	indexPath, adjPath := Paths(stem, compressed)
	if err := writeFile(indexPath, func(w io.Writer) error { return WriteIndex(w, offsets) }); err != nil {
		return err
	}
	if err := writeFile(adjPath, func(w io.Writer) error { return WriteAdjacency(w, words) }); err != nil {
		return err
	}

	log.Info().
		Str("index", indexPath).
		Str("adjacency", adjPath).
		Int("vertices", len(offsets)).
		Int("words", len(words)).
		Msg("Wrote graph")
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
