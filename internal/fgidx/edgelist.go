package fgidx

import (
	"bufio"
	"cmp"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var (
	// ErrUnsorted is returned when an edge list declared sorted is not
	ErrUnsorted = errors.New("fgidx: edge list is not sorted by source vertex")
	// ErrNoEdges is returned for an edge list without a single edge
	ErrNoEdges = errors.New("fgidx: edge list holds no edges")
)

// Edge is one directed edge
type Edge struct {
	From uint32
	To   uint32
}

// OpenEdgeList opens a text edge list. Files ending in .zst or .lz4 are
// decompressed on the fly.
func OpenEdgeList(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open edge list %s: %w", path, err)
	}

	switch {
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to open zstd stream %s: %w", path, err)
		}
		return &zstdFile{Decoder: dec, f: f}, nil
	case strings.HasSuffix(path, ".lz4"):
		return &lz4File{Reader: lz4.NewReader(f), f: f}, nil
	default:
		return f, nil
	}
}

type zstdFile struct {
	*zstd.Decoder
	f *os.File
}

func (z *zstdFile) Close() error {
	z.Decoder.Close()
	return z.f.Close()
}

type lz4File struct {
	*lz4.Reader
	f *os.File
}

func (l *lz4File) Close() error { return l.f.Close() }

// ReadEdgeList parses "src dst" lines. Blank lines and lines starting with
// '#' or '%' are skipped; columns past the second are ignored. With
// undirected set every edge is also added reversed. It returns the edges and
// the largest vertex id seen.
func ReadEdgeList(r io.Reader, undirected bool) ([]Edge, uint32, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		edges   []Edge
		maxVert uint32
		line    int
	)
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || text[0] == '#' || text[0] == '%' {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, 0, fmt.Errorf("line %d: want two vertex ids, got %q", line, text)
		}
		from, err := parseVertex(fields[0])
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", line, err)
		}
		to, err := parseVertex(fields[1])
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", line, err)
		}

		edges = append(edges, Edge{From: from, To: to})
		if undirected {
			edges = append(edges, Edge{From: to, To: from})
		}
		maxVert = max(maxVert, from, to)
	}
	if err := sc.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read edge list: %w", err)
	}
	if len(edges) == 0 {
		return nil, 0, ErrNoEdges
	}
	return edges, maxVert, nil
}

func parseVertex(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid vertex id %q: %w", s, err)
	}
	if v > uint64(MaxVertexID) {
		return 0, fmt.Errorf("vertex id %d is reserved", v)
	}
	return uint32(v), nil
}

// BuildCSR turns edges over [0, maxVert] into the per-vertex offsets and the
// destination array. Unless sorted is set the edges are sorted first by
// source, then by destination; a list declared sorted is verified.
func BuildCSR(edges []Edge, maxVert uint32, sorted bool) ([]uint64, []uint32, error) {
	if sorted {
		for i := 1; i < len(edges); i++ {
			if edges[i].From < edges[i-1].From {
				return nil, nil, fmt.Errorf("%w: edge %d", ErrUnsorted, i)
			}
		}
	} else {
		slices.SortFunc(edges, func(a, b Edge) int {
			if c := cmp.Compare(a.From, b.From); c != 0 {
				return c
			}
			return cmp.Compare(a.To, b.To)
		})
	}

	offsets := make([]uint64, uint64(maxVert)+1)
	dest := make([]uint32, len(edges))
	next := uint64(0)
	for i, e := range edges {
		for next <= uint64(e.From) {
			offsets[next] = uint64(i)
			next++
		}
		dest[i] = e.To
	}
	for ; next < uint64(len(offsets)); next++ {
		offsets[next] = uint64(len(edges))
	}
	return offsets, dest, nil
}
