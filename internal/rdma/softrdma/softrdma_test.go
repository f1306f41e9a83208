package softrdma

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuuki/famgraph/internal/rdma"
)

type faultRecorder struct {
	faults chan error
}

func newFaultRecorder() *faultRecorder {
	return &faultRecorder{faults: make(chan error, 16)}
}

func (f *faultRecorder) handle(_ *rdma.Channel, err error) {
	select {
	case f.faults <- err:
	default:
	}
}

// startListener serves one region holding words and returns it with the
// listener address
func startListener(t *testing.T, words []uint32, access rdma.AccessFlags) (*Listener, rdma.MemoryRegion, string, int) {
	t.Helper()

	l, err := Listen("127.0.0.1:0", rdma.ListenOptions{MaxConnections: 8})
	require.NoError(t, err)

	buf, err := rdma.AllocateRegion(uint64(len(words)*rdma.WordSize), false)
	require.NoError(t, err)
	copy(rdma.Words(buf), words)

	mr, err := l.RegisterMemory(buf, access)
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
	return l, mr, host, port
}

func connect(t *testing.T, host string, port int, channels int, rec *faultRecorder) *rdma.Manager {
	t.Helper()
	m, err := rdma.NewManager(Provider, rdma.Options{
		Channels:         channels,
		MaxOutstandingWR: 8,
		OnFatal:          rec.handle,
	})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, m.Close()) })

	require.NoError(t, m.Connect(context.Background(), host, port))
	return m
}

func sequence(n int) []uint32 {
	words := make([]uint32, n)
	for i := range words {
		words[i] = uint32(i * 3)
	}
	return words
}

func waitWord(t *testing.T, words []uint32, i int, want uint32) {
	t.Helper()
	require.Eventually(t, func() bool {
		return atomic.LoadUint32(&words[i]) == want
	}, 5*time.Second, time.Millisecond)
}

func TestReadChain(t *testing.T) {
	remote := sequence(1024)
	_, mr, host, port := startListener(t, remote, rdma.AccessRemoteRead)
	rec := newFaultRecorder()
	m := connect(t, host, port, 2, rec)

	local, err := m.RegisterRegion(1, 4096, false, false)
	require.NoError(t, err)
	words := local.Words()
	for i := range words {
		words[i] = 0xFFFFFFFF
	}

	ch, err := m.Channel(1)
	require.NoError(t, err)
	segs := []rdma.Segment{
		{RemoteAddr: mr.Addr() + 10*4, LocalOffset: 0, Length: 5 * 4},
		{RemoteAddr: mr.Addr() + 500*4, LocalOffset: 5 * 4, Length: 3 * 4},
	}
	require.NoError(t, ch.Read(local, mr.RKey(), segs))

	waitWord(t, words, 7, remote[502])
	assert.Equal(t, remote[10:15], words[0:5])
	assert.Equal(t, remote[500:503], words[5:8])
	assert.Equal(t, uint32(0xFFFFFFFF), words[8])
	assert.Empty(t, rec.faults)
}

func TestReadUsingAlongsideRead(t *testing.T) {
	remote := sequence(1024)
	_, mr, host, port := startListener(t, remote, rdma.AccessRemoteRead)
	rec := newFaultRecorder()
	m := connect(t, host, port, 1, rec)
	ch, err := m.Channel(0)
	require.NoError(t, err)

	window, err := m.RegisterRegion(0, 64, false, false)
	require.NoError(t, err)
	slot, err := m.RegisterRegion(0, rdma.WordSize, false, false)
	require.NoError(t, err)
	side := rdma.NewWRPool(1)

	segs := []rdma.Segment{
		{RemoteAddr: mr.Addr() + 100*4, LocalOffset: 0, Length: 2 * 4},
		{RemoteAddr: mr.Addr() + 600*4, LocalOffset: 2 * 4, Length: 4},
	}
	slotSeg := []rdma.Segment{{RemoteAddr: mr.Addr() + 900*4, Length: 4}}

	var wg sync.WaitGroup
	loop := func(post func() error, words []uint32, last int, want uint32) {
		defer wg.Done()
		for range 200 {
			atomic.StoreUint32(&words[last], 0xFFFFFFFF)
			if !assert.NoError(t, post()) {
				return
			}
			if !assert.Eventually(t, func() bool {
				return atomic.LoadUint32(&words[last]) == want
			}, 5*time.Second, time.Millisecond) {
				return
			}
		}
	}
	wg.Add(2)
	go loop(func() error { return ch.Read(window, mr.RKey(), segs) }, window.Words(), 2, remote[600])
	go loop(func() error { return ch.ReadUsing(side, slot, mr.RKey(), slotSeg) }, slot.Words(), 0, remote[900])
	wg.Wait()

	assert.Equal(t, remote[100:102], window.Words()[:2])
	assert.Empty(t, rec.faults)
}

func TestWriteThenRead(t *testing.T) {
	_, mr, host, port := startListener(t, make([]uint32, 256), rdma.AccessRemoteRead|rdma.AccessRemoteWrite)
	rec := newFaultRecorder()
	m := connect(t, host, port, 1, rec)
	ch, err := m.Channel(0)
	require.NoError(t, err)

	src, err := m.RegisterRegion(0, 64, false, false)
	require.NoError(t, err)
	copy(src.Words(), []uint32{7, 8, 9, 10})

	dst, err := m.RegisterRegion(0, 64, false, false)
	require.NoError(t, err)
	dstWords := dst.Words()
	dstWords[3] = 0

	require.NoError(t, ch.Write(src, mr.RKey(), []rdma.Segment{{RemoteAddr: mr.Addr() + 40, Length: 16}}))
	require.NoError(t, ch.Read(dst, mr.RKey(), []rdma.Segment{{RemoteAddr: mr.Addr() + 40, Length: 16}}))

	waitWord(t, dstWords, 3, 10)
	assert.Equal(t, []uint32{7, 8, 9, 10}, dstWords[:4])
}

func TestBadRemoteKeyIsFatal(t *testing.T) {
	_, mr, host, port := startListener(t, sequence(64), rdma.AccessRemoteRead)
	rec := newFaultRecorder()
	m := connect(t, host, port, 1, rec)
	ch, err := m.Channel(0)
	require.NoError(t, err)

	local, err := m.RegisterRegion(0, 64, false, false)
	require.NoError(t, err)
	require.NoError(t, ch.Read(local, mr.RKey()+1000, []rdma.Segment{{RemoteAddr: mr.Addr(), Length: 8}}))

	select {
	case err := <-rec.faults:
		var cerr *rdma.CompletionError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, rdma.WCRemoteAccessError, cerr.WC.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("no transport fault reported")
	}
	assert.Error(t, ch.Err())
	assert.Error(t, ch.Read(local, mr.RKey(), []rdma.Segment{{RemoteAddr: mr.Addr(), Length: 8}}))
}

func TestOutOfBoundsAndReadOnly(t *testing.T) {
	_, mr, host, port := startListener(t, sequence(16), rdma.AccessRemoteRead)
	rec := newFaultRecorder()
	m := connect(t, host, port, 2, rec)

	for i, seg := range []rdma.Segment{
		{RemoteAddr: mr.Addr() + 60, Length: 8},
		{RemoteAddr: mr.Addr(), Length: 4},
	} {
		ch, err := m.Channel(i)
		require.NoError(t, err)
		local, err := m.RegisterRegion(i, 64, false, false)
		require.NoError(t, err)
		if i == 0 {
			require.NoError(t, ch.Read(local, mr.RKey(), []rdma.Segment{seg}))
		} else {
			require.NoError(t, ch.Write(local, mr.RKey(), []rdma.Segment{seg}))
		}

		select {
		case err := <-rec.faults:
			assert.ErrorContains(t, err, "remote access error")
		case <-time.After(5 * time.Second):
			t.Fatalf("request %d: no transport fault reported", i)
		}
	}
}

func TestConnectUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	m, err := rdma.NewManager(Provider, rdma.Options{Channels: 1})
	require.NoError(t, err)
	defer m.Close()

	err = m.Connect(context.Background(), "127.0.0.1", port)
	require.ErrorIs(t, err, rdma.ErrUnexpectedEvent)
	assert.ErrorContains(t, err, "UNREACHABLE")
	assert.Nil(t, m.Channels())
}

func TestListenerCloseDropsSessions(t *testing.T) {
	l, err := Listen("127.0.0.1:0", rdma.ListenOptions{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- l.Serve(context.Background()) }()

	host, portStr, err := net.SplitHostPort(l.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	rec := newFaultRecorder()
	m, err := rdma.NewManager(Provider, rdma.Options{Channels: 1, OnFatal: rec.handle})
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, m.Connect(context.Background(), host, port))

	require.NoError(t, l.Close())
	require.NoError(t, <-done)

	select {
	case err := <-rec.faults:
		assert.ErrorContains(t, err, "retry counter exceeded")
	case <-time.After(5 * time.Second):
		t.Fatal("connection loss not reported")
	}
}

func TestPublishOrdersBoundaryWords(t *testing.T) {
	src := make([]byte, 16)
	for i := range src {
		src[i] = byte(i + 1)
	}
	dst := make([]byte, 16)
	publish(dst, src)
	assert.Equal(t, src, dst)

	odd := make([]byte, 3)
	publish(odd, []byte{1, 2, 3})
	assert.Equal(t, []byte{1, 2, 3}, odd)
}
