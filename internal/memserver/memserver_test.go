package memserver

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuuki/famgraph/internal/config"
	"github.com/yuuki/famgraph/internal/famrpc"
	"github.com/yuuki/famgraph/internal/rdma"
	"github.com/yuuki/famgraph/internal/rdma/softrdma"
	"github.com/yuuki/famgraph/proto/memory_server"
	"go.uber.org/ratelimit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fixture struct {
	svc      *Service
	client   memory_server.MemoryServerClient
	registry *prometheus.Registry
	dataDir  string
}

func newFixture(t *testing.T, maxBytes uint64) *fixture {
	t.Helper()

	dataDir := t.TempDir()
	listener, err := softrdma.Listen("127.0.0.1:0", rdma.ListenOptions{})
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	svc, err := NewService(listener, ServiceOptions{DataDir: dataDir, MaxRegionBytes: maxBytes, Registry: registry})
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.UnaryInterceptor(svc.unaryInterceptor(ratelimit.NewUnlimited())))
	memory_server.RegisterMemoryServerServer(server, svc)
	go func() { _ = server.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		server.Stop()
		assert.NoError(t, svc.Close())
		assert.NoError(t, listener.Close())
	})

	return &fixture{svc: svc, client: memory_server.NewMemoryServerClient(conn), registry: registry, dataDir: dataDir}
}

func (f *fixture) writeWords(t *testing.T, name string, words ...uint32) {
	t.Helper()
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	path := filepath.Join(f.dataDir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, buf, 0644))
}

func requireCode(t *testing.T, want codes.Code, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, status.Code(err), "error: %v", err)
}

func TestPingAndSessionRequirement(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.client.Ping(ctx, &memory_server.PingRequest{})
	require.NoError(t, err)

	_, err = f.client.AllocateRegion(ctx, &memory_server.AllocateRegionRequest{Size: 64})
	requireCode(t, codes.FailedPrecondition, err)
	_, err = f.client.EndSession(famrpc.WithSession(ctx, "nobody"), &memory_server.EndSessionRequest{})
	requireCode(t, codes.FailedPrecondition, err)
}

func TestAllocateRegionBudget(t *testing.T) {
	f := newFixture(t, 8192)
	ctx := famrpc.WithSession(context.Background(), "s1")

	_, err := f.client.AllocateRegion(ctx, &memory_server.AllocateRegionRequest{Size: 0})
	requireCode(t, codes.InvalidArgument, err)

	resp, err := f.client.AllocateRegion(ctx, &memory_server.AllocateRegionRequest{Size: 8192})
	require.NoError(t, err)
	region, err := famrpc.RegionFromProto(resp)
	require.NoError(t, err)
	assert.Equal(t, uint64(8192), region.Length)
	assert.NotZero(t, region.Addr)

	_, err = f.client.AllocateRegion(famrpc.WithSession(context.Background(), "s2"), &memory_server.AllocateRegionRequest{Size: 1})
	requireCode(t, codes.ResourceExhausted, err)

	sessions := f.svc.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)
	assert.Equal(t, uint64(8192), sessions[0].Bytes)

	_, err = f.client.EndSession(ctx, &memory_server.EndSessionRequest{})
	require.NoError(t, err)
	assert.Empty(t, f.svc.Sessions())

	_, err = f.client.AllocateRegion(famrpc.WithSession(context.Background(), "s2"), &memory_server.AllocateRegionRequest{Size: 4096})
	require.NoError(t, err, "ending a session returns its bytes to the budget")
}

func TestEndSessionReleasesSubPageRegions(t *testing.T) {
	f := newFixture(t, 0)
	ctx := famrpc.WithSession(context.Background(), "s1")

	for _, size := range []uint64{rdma.WordSize, 100, 4096 + rdma.WordSize} {
		resp, err := f.client.AllocateRegion(ctx, &memory_server.AllocateRegionRequest{Size: size})
		require.NoError(t, err)
		assert.Equal(t, size, resp.GetLength())
		assert.NotZero(t, resp.GetAddr())
	}

	resp, err := f.client.EndSession(ctx, &memory_server.EndSessionRequest{})
	require.NoError(t, err)
	assert.Equal(t, uint32(3), resp.GetRegions())
	assert.Equal(t, uint64(rdma.WordSize+100+4096+rdma.WordSize), resp.GetBytes())
	assert.Empty(t, f.svc.Sessions())
}

func TestMapRemoteFile(t *testing.T) {
	f := newFixture(t, 0)
	ctx := famrpc.WithSession(context.Background(), "s1")
	f.writeWords(t, "graphs/g.adj", 1, 2, 4, 3, 5, 0)
	require.NoError(t, os.WriteFile(filepath.Join(f.dataDir, "empty.adj"), nil, 0644))

	resp, err := f.client.MapRemoteFile(ctx, &memory_server.MapRemoteFileRequest{Path: "graphs/g.adj"})
	require.NoError(t, err)
	region, err := famrpc.RegionFromProto(resp)
	require.NoError(t, err)
	assert.Equal(t, uint64(24), region.Length)

	resp, err = f.client.MapRemoteFile(ctx, &memory_server.MapRemoteFileRequest{Path: filepath.Join(f.dataDir, "graphs", "g.adj")})
	require.NoError(t, err, "absolute paths inside the data directory are accepted")
	second, err := famrpc.RegionFromProto(resp)
	require.NoError(t, err)
	assert.NotEqual(t, region.RKey, second.RKey)

	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("abcd"), 0644))
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret"), filepath.Join(f.dataDir, "link")))

	for _, path := range []string{"", "../secret", filepath.Join(outside, "secret"), "link", "empty.adj"} {
		_, err := f.client.MapRemoteFile(ctx, &memory_server.MapRemoteFileRequest{Path: path})
		requireCode(t, codes.InvalidArgument, err)
	}
	_, err = f.client.MapRemoteFile(ctx, &memory_server.MapRemoteFileRequest{Path: "missing.adj"})
	requireCode(t, codes.NotFound, err)

	sessions := f.svc.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].Regions)
}

func TestAdminRouter(t *testing.T) {
	f := newFixture(t, 0)
	ctx := famrpc.WithSession(context.Background(), "s1")
	_, err := f.client.AllocateRegion(ctx, &memory_server.AllocateRegionRequest{Size: 4096})
	require.NoError(t, err)

	srv := httptest.NewServer(adminRouter(f.svc, f.registry))
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `famgraph_memserver_requests_total{code="OK",method="/famgraph.MemoryServer/AllocateRegion"} 1`)
	assert.Contains(t, body, "famgraph_memserver_region_bytes 4096")
	assert.Contains(t, body, "famgraph_memserver_regions 1")

	code, body = get("/api/v1/sessions")
	assert.Equal(t, http.StatusOK, code)
	var sessions []SessionInfo
	require.NoError(t, json.Unmarshal([]byte(body), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].Regions)
}

func TestServerLifecycle(t *testing.T) {
	cfg := config.DefaultMemserverConfig()
	cfg.DataAddr = "127.0.0.1:0"
	cfg.AdminAddr = ""
	cfg.DataDir = t.TempDir()

	s, err := New(&cfg)
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, s.Start(lis))

	conn, err := grpc.NewClient("passthrough:///"+lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	client := memory_server.NewMemoryServerClient(conn)

	ctx := famrpc.WithSession(context.Background(), "s1")
	_, err = client.Ping(ctx, &memory_server.PingRequest{})
	require.NoError(t, err)
	_, err = client.AllocateRegion(ctx, &memory_server.AllocateRegionRequest{Size: 4096})
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	s.Stop()
	assert.Empty(t, s.Service().Sessions(), "stopping releases live sessions")

	cfg.Provider = "missing"
	_, err = New(&cfg)
	assert.ErrorIs(t, err, rdma.ErrUnknownProvider)
}
