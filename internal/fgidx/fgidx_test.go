package fgidx

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEdgeList = `# six vertex sample
% generated by hand
3 0
0 1
0 2

0 4
1 3
1 5
`

func TestLoadDenseIndexScenario(t *testing.T) {
	stem := filepath.Join(t.TempDir(), "g")
	require.NoError(t, WriteGraph(stem, false, []uint64{0, 3, 5, 5, 6, 6}, []uint32{1, 2, 4, 3, 5, 0}))

	indexPath, adjPath := Paths(stem, false)
	words, err := AdjacencyWords(adjPath)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), words)

	idx, err := LoadDenseIndex(indexPath, words)
	require.NoError(t, err)

	assert.Equal(t, uint32(5), idx.MaxV())
	assert.Equal(t, uint64(6), idx.NumVertices())
	assert.Equal(t, uint64(6), idx.EdgeCount())
	assert.Equal(t, uint64(3), idx.MaxOutDegree())
	assert.Equal(t, HalfInterval{Begin: 0, End: 3}, idx.At(0))
	assert.Equal(t, HalfInterval{Begin: 5, End: 6}, idx.At(3))
	assert.Equal(t, HalfInterval{Begin: 6, End: 6}, idx.At(4))
	assert.Zero(t, idx.Degree(5))

	for v := uint32(0); v < idx.MaxV(); v++ {
		assert.Equal(t, idx.At(v).End, idx.At(v+1).Begin, "vertex %d", v)
	}

	adj, err := LoadAdjacencyArray(adjPath)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 4, 3, 5, 0}, adj.Array)
}

func TestLoadDenseIndexRejectsCorruptFiles(t *testing.T) {
	dir := t.TempDir()

	short := filepath.Join(dir, "short.idx")
	require.NoError(t, os.WriteFile(short, []byte{1, 2, 3}, 0o644))
	_, err := LoadDenseIndex(short, 0)
	assert.ErrorIs(t, err, ErrCorruptIndex)

	empty := filepath.Join(dir, "empty.idx")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = LoadDenseIndex(empty, 0)
	assert.ErrorIs(t, err, ErrEmptyIndex)

	_, err = NewDenseIndex([]uint64{0, 4, 2}, 5)
	assert.ErrorIs(t, err, ErrCorruptIndex)

	_, err = NewDenseIndex([]uint64{0, 4}, 3)
	assert.ErrorIs(t, err, ErrCorruptIndex, "closing edge count below the last offset")

	_, err = LoadDenseIndex(filepath.Join(dir, "missing.idx"), 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadEdgeListAndBuildCSR(t *testing.T) {
	edges, maxVert, err := ReadEdgeList(strings.NewReader(sampleEdgeList), false)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), maxVert)
	assert.Len(t, edges, 6)

	offsets, dest, err := BuildCSR(edges, maxVert, false)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 3, 5, 5, 6, 6}, offsets)
	assert.Equal(t, []uint32{1, 2, 4, 3, 5, 0}, dest)

	_, _, err = BuildCSR([]Edge{{From: 2}, {From: 1}}, 2, true)
	assert.ErrorIs(t, err, ErrUnsorted)
}

func TestReadEdgeListUndirected(t *testing.T) {
	edges, maxVert, err := ReadEdgeList(strings.NewReader("0 1\n1 2\n"), true)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), maxVert)

	offsets, dest, err := BuildCSR(edges, maxVert, false)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 3}, offsets)
	assert.Equal(t, []uint32{1, 0, 2, 1}, dest)
}

func TestReadEdgeListErrors(t *testing.T) {
	_, _, err := ReadEdgeList(strings.NewReader("# nothing\n"), false)
	assert.ErrorIs(t, err, ErrNoEdges)

	_, _, err = ReadEdgeList(strings.NewReader("0 1\n7\n"), false)
	assert.ErrorContains(t, err, "line 2")

	_, _, err = ReadEdgeList(strings.NewReader("0 4294967295\n"), false)
	assert.ErrorContains(t, err, "reserved")

	_, _, err = ReadEdgeList(strings.NewReader("0 x\n"), false)
	assert.ErrorContains(t, err, "invalid vertex id")
}

func TestOpenEdgeListDecompresses(t *testing.T) {
	dir := t.TempDir()

	var zbuf bytes.Buffer
	zw, err := zstd.NewWriter(&zbuf)
	require.NoError(t, err)
	_, err = io.WriteString(zw, sampleEdgeList)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var lbuf bytes.Buffer
	lw := lz4.NewWriter(&lbuf)
	_, err = io.WriteString(lw, sampleEdgeList)
	require.NoError(t, err)
	require.NoError(t, lw.Close())

	files := map[string][]byte{
		"plain.el":     []byte(sampleEdgeList),
		"graph.el.zst": zbuf.Bytes(),
		"graph.el.lz4": lbuf.Bytes(),
	}
	for name, data := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, data, 0o644))

			rc, err := OpenEdgeList(path)
			require.NoError(t, err)
			defer rc.Close()

			edges, maxVert, err := ReadEdgeList(rc, false)
			require.NoError(t, err)
			assert.Len(t, edges, 6)
			assert.Equal(t, uint32(5), maxVert)
		})
	}
}
