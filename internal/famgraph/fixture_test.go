package famgraph

import (
	"context"
	"math/rand/v2"
	"net"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuuki/famgraph/internal/codec"
	"github.com/yuuki/famgraph/internal/fgidx"
	"github.com/yuuki/famgraph/internal/rdma"
	"github.com/yuuki/famgraph/internal/rdma/softrdma"
)

// testGraph is a CSR graph in memory
type testGraph struct {
	name    string
	offsets []uint64
	adj     []uint32
}

func scenarioGraph() testGraph {
	return testGraph{
		name:    "scenario",
		offsets: []uint64{0, 3, 5, 5, 6, 6},
		adj:     []uint32{1, 2, 4, 3, 5, 0},
	}
}

// randomGraph builds a sparse graph with sorted neighbour lists whose last
// vertex has no out edges
func randomGraph(seed uint64, vertices, maxDegree int) testGraph {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	g := testGraph{name: "random", offsets: make([]uint64, vertices)}
	for v := range vertices {
		g.offsets[v] = uint64(len(g.adj))
		if v == vertices-1 {
			break
		}
		deg := rng.IntN(maxDegree + 1)
		nbrs := make([]uint32, deg)
		for i := range nbrs {
			nbrs[i] = rng.Uint32N(uint32(vertices))
		}
		slices.Sort(nbrs)
		g.adj = append(g.adj, nbrs...)
	}
	return g
}

// edgeListGraph builds testdata/file into a CSR graph, writes it with fgidx
// and returns what the loaders read back
func edgeListGraph(t *testing.T, file string) testGraph {
	t.Helper()

	r, err := fgidx.OpenEdgeList(filepath.Join("testdata", file))
	require.NoError(t, err)
	defer r.Close()
	edges, maxVert, err := fgidx.ReadEdgeList(r, false)
	require.NoError(t, err)
	offsets, dest, err := fgidx.BuildCSR(edges, maxVert, false)
	require.NoError(t, err)

	name := strings.TrimSuffix(file, filepath.Ext(file))
	stem := filepath.Join(t.TempDir(), name)
	require.NoError(t, fgidx.WriteGraph(stem, false, offsets, dest))
	indexPath, adjPath := fgidx.Paths(stem, false)
	adj, err := fgidx.LoadAdjacencyArray(adjPath)
	require.NoError(t, err)
	idx, err := fgidx.LoadDenseIndex(indexPath, adj.Edges)
	require.NoError(t, err)

	g := testGraph{name: name, offsets: make([]uint64, idx.NumVertices()), adj: adj.Array}
	for v := range g.offsets {
		g.offsets[v] = idx.At(uint32(v)).Begin
	}
	return g
}

func (tg testGraph) index(t *testing.T) *fgidx.DenseIndex {
	t.Helper()
	idx, err := fgidx.NewDenseIndex(tg.offsets, uint64(len(tg.adj)))
	require.NoError(t, err)
	return idx
}

// compressed returns the delta encoded layout of tg
func (tg testGraph) compressed(t *testing.T) testGraph {
	t.Helper()
	offsets, words, err := codec.CompressGraph(tg.offsets, tg.adj, codec.DefaultCompressionOptions())
	require.NoError(t, err)
	return testGraph{name: tg.name + "/delta", offsets: offsets, adj: words}
}

// serveWords exposes words through a software RDMA listener
func serveWords(t *testing.T, words []uint32) (rdma.RemoteRegion, string, int) {
	t.Helper()

	l, err := softrdma.Listen("127.0.0.1:0", rdma.ListenOptions{MaxConnections: 16})
	require.NoError(t, err)

	size := max(len(words), 1) * rdma.WordSize
	buf, err := rdma.AllocateRegion(uint64(size), false)
	require.NoError(t, err)
	copy(rdma.Words(buf), words)

	mr, err := l.RegisterMemory(buf, rdma.AccessRemoteRead)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
		_ = mr.Deregister()
		_ = rdma.FreeRegion(buf)
	})

	host, portStr, err := net.SplitHostPort(l.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	region := rdma.RemoteRegion{Addr: mr.Addr(), Length: uint64(len(words) * rdma.WordSize), RKey: mr.RKey()}
	return region, host, port
}

type faultLog struct {
	mu     sync.Mutex
	faults []error
}

func (f *faultLog) handle(_ *rdma.Channel, err error) {
	f.mu.Lock()
	f.faults = append(f.faults, err)
	f.mu.Unlock()
}

func (f *faultLog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.faults)
}

type remoteSetup struct {
	channels    int
	maxWR       int
	windowWords int
	decoder     codec.Decoder
	rkey        uint32 // overrides the served key when set
	observer    BatchObserver
}

// openRemote serves tg and connects a RemoteGraph to it
func openRemote(t *testing.T, tg testGraph, s remoteSetup) (*RemoteGraph, *faultLog) {
	t.Helper()

	region, host, port := serveWords(t, tg.adj)
	if s.rkey != 0 {
		region.RKey = s.rkey
	}

	faults := &faultLog{}
	m, err := rdma.NewManager(softrdma.Provider, rdma.Options{
		Channels:         s.channels,
		MaxOutstandingWR: s.maxWR,
		OnFatal:          faults.handle,
	})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, m.Close()) })
	require.NoError(t, m.Connect(context.Background(), host, port))

	lanes := make([]Lane, s.channels)
	for i := range lanes {
		ch, err := m.Channel(i)
		require.NoError(t, err)
		window, err := m.RegisterRegion(i, uint64(s.windowWords*rdma.WordSize), false, true)
		require.NoError(t, err)
		slot, err := m.RegisterRegion(i, rdma.WordSize, false, true)
		require.NoError(t, err)
		lanes[i] = Lane{Channel: ch, Window: window, DegreeSlot: slot}
	}

	g, err := NewRemoteGraph(tg.index(t), region, lanes, RemoteOptions{
		Decoder:   s.decoder,
		SpinYield: 64,
		Observer:  s.observer,
	})
	require.NoError(t, err)
	return g, faults
}

type edge struct {
	src, dst uint32
	degree   uint64
}

// collectEdges runs a full parallel EdgeMap and returns the sorted edges
func collectEdges(t *testing.T, g Graph) []edge {
	t.Helper()
	var (
		mu    sync.Mutex
		edges []edge
	)
	err := ParallelEdgeMap(context.Background(), g, nil, func(src, dst uint32, degree uint64) {
		mu.Lock()
		edges = append(edges, edge{src: src, dst: dst, degree: degree})
		mu.Unlock()
	}, EdgeMapOptions{Grain: 7})
	require.NoError(t, err)

	slices.SortFunc(edges, func(a, b edge) int {
		if a.src != b.src {
			return int(a.src) - int(b.src)
		}
		return int(a.dst) - int(b.dst)
	})
	return edges
}
