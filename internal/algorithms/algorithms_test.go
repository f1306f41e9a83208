package algorithms

import (
	"context"
	"math"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuuki/famgraph/internal/codec"
	"github.com/yuuki/famgraph/internal/famgraph"
	"github.com/yuuki/famgraph/internal/fgidx"
	"github.com/yuuki/famgraph/internal/rdma"
	"github.com/yuuki/famgraph/internal/rdma/softrdma"
)

// scenario is the directed graph 0->{1,2,4} 1->{3,5} 3->{0}
func scenario(t *testing.T) (*fgidx.DenseIndex, []uint32) {
	t.Helper()
	idx, err := fgidx.NewDenseIndex([]uint64{0, 3, 5, 5, 6, 6}, 6)
	require.NoError(t, err)
	return idx, []uint32{1, 2, 4, 3, 5, 0}
}

// symmetric holds a triangle 0-1-2 with a tail 2-3-4, the isolated vertex 5
// and the pair 6-7
func symmetric(t *testing.T) (*fgidx.DenseIndex, []uint32) {
	t.Helper()
	edges, maxV, err := fgidx.ReadEdgeList(strings.NewReader("0 1\n0 2\n1 2\n2 3\n3 4\n6 7\n5 5\n"), true)
	require.NoError(t, err)
	// Drop the self loop used to declare vertex 5.
	kept := edges[:0]
	for _, e := range edges {
		if e.From != e.To {
			kept = append(kept, e)
		}
	}
	offsets, adj, err := fgidx.BuildCSR(kept, maxV, false)
	require.NoError(t, err)
	idx, err := fgidx.NewDenseIndex(offsets, uint64(len(adj)))
	require.NoError(t, err)
	return idx, adj
}

func localGraph(t *testing.T, idx *fgidx.DenseIndex, adj []uint32) famgraph.Graph {
	t.Helper()
	g, err := famgraph.NewLocalGraph(idx, adj, nil, 2)
	require.NoError(t, err)
	return g
}

// remoteGraph serves the delta encoded adjacency through the software transport
func remoteGraph(t *testing.T, idx *fgidx.DenseIndex, adj []uint32) famgraph.Graph {
	t.Helper()

	offsets := make([]uint64, idx.NumVertices())
	for v := range offsets {
		offsets[v] = idx.At(uint32(v)).Begin
	}
	coffsets, words, err := codec.CompressGraph(offsets, adj, codec.DefaultCompressionOptions())
	require.NoError(t, err)
	cidx, err := fgidx.NewDenseIndex(coffsets, uint64(len(words)))
	require.NoError(t, err)

	l, err := softrdma.Listen("127.0.0.1:0", rdma.ListenOptions{MaxConnections: 4})
	require.NoError(t, err)
	buf, err := rdma.AllocateRegion(uint64(len(words)*rdma.WordSize), false)
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

	m, err := rdma.NewManager(softrdma.Provider, rdma.Options{Channels: 2, MaxOutstandingWR: 4})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, m.Close()) })
	require.NoError(t, m.Connect(context.Background(), host, port))

	lanes := make([]famgraph.Lane, 2)
	for i := range lanes {
		ch, err := m.Channel(i)
		require.NoError(t, err)
		window, err := m.RegisterRegion(i, 16*rdma.WordSize, false, true)
		require.NoError(t, err)
		slot, err := m.RegisterRegion(i, rdma.WordSize, false, true)
		require.NoError(t, err)
		lanes[i] = famgraph.Lane{Channel: ch, Window: window, DegreeSlot: slot}
	}

	region := rdma.RemoteRegion{Addr: mr.Addr(), Length: uint64(len(words) * rdma.WordSize), RKey: mr.RKey()}
	g, err := famgraph.NewRemoteGraph(cidx, region, lanes, famgraph.RemoteOptions{Decoder: codec.Delta{}, SpinYield: 64})
	require.NoError(t, err)
	return g
}

type graphCase struct {
	name string
	open func(*testing.T, *fgidx.DenseIndex, []uint32) famgraph.Graph
}

var graphCases = []graphCase{{"local", localGraph}, {"remote", remoteGraph}}

func TestBFSScenarioDistance(t *testing.T) {
	for _, gc := range graphCases {
		t.Run(gc.name, func(t *testing.T) {
			idx, adj := scenario(t)
			g := gc.open(t, idx, adj)

			var rounds []uint64
			res, err := BFS(context.Background(), g, 0, Options{Grain: 2, OnRound: func(_ int, active uint64, _ time.Duration) {
				rounds = append(rounds, active)
			}})
			require.NoError(t, err)
			assert.Equal(t, uint32(2), res.MaxDistance)
			assert.Equal(t, uint64(6), res.Visited)
			assert.Equal(t, []uint64{1, 3, 2}, rounds)

			res, err = BFS(context.Background(), g, 2, Options{})
			require.NoError(t, err)
			assert.Zero(t, res.MaxDistance)
			assert.Equal(t, uint64(1), res.Visited)

			_, err = BFS(context.Background(), g, 6, Options{})
			assert.Error(t, err)
		})
	}
}

func TestKCore(t *testing.T) {
	for _, gc := range graphCases {
		t.Run(gc.name, func(t *testing.T) {
			idx, adj := symmetric(t)
			g := gc.open(t, idx, adj)

			res, err := KCore(context.Background(), g, 2, Options{})
			require.NoError(t, err)
			assert.Equal(t, uint64(3), res.CoreSize)
			for v, d := range res.Degrees {
				if v <= 2 {
					assert.GreaterOrEqual(t, d, int64(2), "vertex %d", v)
				} else {
					assert.Less(t, d, int64(2), "vertex %d", v)
				}
			}

			res, err = KCore(context.Background(), g, 1, Options{})
			require.NoError(t, err)
			assert.Equal(t, uint64(7), res.CoreSize, "only the isolated vertex leaves the 1-core")

			res, err = KCore(context.Background(), g, 3, Options{})
			require.NoError(t, err)
			assert.Zero(t, res.CoreSize)
		})
	}
}

func TestConnectedComponents(t *testing.T) {
	for _, gc := range graphCases {
		t.Run(gc.name, func(t *testing.T) {
			idx, adj := symmetric(t)
			g := gc.open(t, idx, adj)

			res, err := ConnectedComponents(context.Background(), g, Options{Grain: 3})
			require.NoError(t, err)
			assert.Equal(t, uint64(3), res.Components)
			assert.Equal(t, []uint32{0, 0, 0, 0, 0, 5, 6, 6}, res.Labels)
		})
	}
}

func TestPageRank(t *testing.T) {
	idx, adj := symmetric(t)
	want, err := PageRank(context.Background(), localGraph(t, idx, adj), 20, DefaultDamping, Options{})
	require.NoError(t, err)
	got, err := PageRank(context.Background(), remoteGraph(t, idx, adj), 20, DefaultDamping, Options{})
	require.NoError(t, err)

	require.Len(t, got.Ranks, 8)
	assert.InDeltaSlice(t, want.Ranks, got.Ranks, 1e-12)

	// The pair is symmetric and the triangle corners 0 and 1 are equivalent.
	assert.InDelta(t, want.Ranks[6], want.Ranks[7], 1e-12)
	assert.InDelta(t, want.Ranks[0], want.Ranks[1], 1e-12)
	assert.Greater(t, want.Ranks[2], want.Ranks[0], "vertex 2 has the most neighbours")
	assert.InDelta(t, (1-DefaultDamping)/8, want.Ranks[5], 1e-12, "isolated vertex keeps the teleport share")

	var sum float64
	for _, r := range want.Ranks {
		sum += r
	}
	assert.False(t, math.IsNaN(sum))
	assert.LessOrEqual(t, sum, 1.0+1e-9)

	_, err = PageRank(context.Background(), localGraph(t, idx, adj), 1, 1.5, Options{})
	assert.Error(t, err)
}

func TestTopRanked(t *testing.T) {
	ranks := []float64{0.1, 0.4, 0.1, 0.3}
	assert.Equal(t, []uint32{1, 3}, TopRanked(ranks, 2))
	assert.Equal(t, []uint32{1, 3, 0, 2}, TopRanked(ranks, 10))
	assert.Empty(t, TopRanked(ranks, -1))
	assert.Empty(t, TopRanked(nil, 3))
}
