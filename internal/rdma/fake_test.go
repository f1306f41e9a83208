package rdma

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// mockConn records posts and serves completions pushed by the test
type mockConn struct {
	mock.Mock

	mu  sync.Mutex
	cq  []WorkCompletion
	mrs int
}

func (m *mockConn) ResolveAddr(host string, port int, timeout time.Duration) error {
	return m.Called(host, port).Error(0)
}

func (m *mockConn) ResolveRoute(timeout time.Duration) error {
	return m.Called().Error(0)
}

func (m *mockConn) CreateQP(attr QPAttr) error {
	return m.Called(attr).Error(0)
}

func (m *mockConn) Connect(param ConnParam) error {
	return m.Called(param).Error(0)
}

func (m *mockConn) RegisterMemory(buf []byte, access AccessFlags) (MemoryRegion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mrs++
	return &fakeMR{addr: BufferAddr(buf), size: len(buf), key: uint32(m.mrs)}, nil
}

func (m *mockConn) PostSend(chain *WorkRequest) error {
	// Copy the chain; the pool reuses its slots.
	var wrs []WorkRequest
	for wr := chain; wr != nil; wr = wr.Next {
		c := *wr
		c.Next = nil
		wrs = append(wrs, c)
	}
	return m.Called(wrs).Error(0)
}

func (m *mockConn) PollCQ(wc []WorkCompletion) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := copy(wc, m.cq)
	m.cq = m.cq[n:]
	return n, nil
}

func (m *mockConn) push(wc WorkCompletion) {
	m.mu.Lock()
	m.cq = append(m.cq, wc)
	m.mu.Unlock()
}

func (m *mockConn) Disconnect() error { return nil }
func (m *mockConn) Destroy() error    { return nil }

type fakeMR struct {
	addr uint64
	size int
	key  uint32
}

func (f *fakeMR) Addr() uint64      { return f.addr }
func (f *fakeMR) Len() int          { return f.size }
func (f *fakeMR) LKey() uint32      { return f.key }
func (f *fakeMR) RKey() uint32      { return f.key }
func (f *fakeMR) Deregister() error { return nil }

// scriptedChannel hands out connection ids that accept every call and emits
// the events in script, one per GetEvent call
type scriptedChannel struct {
	mu      sync.Mutex
	script  []CMEventType
	created []*scriptedConn
	closed  bool
}

func (s *scriptedChannel) CreateID() (ConnID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &scriptedConn{}
	s.created = append(s.created, c)
	return c, nil
}

func (s *scriptedChannel) GetEvent(timeout time.Duration) (CMEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.script) == 0 {
		return CMEvent{}, ErrTimeout
	}
	ev := s.script[0]
	s.script = s.script[1:]
	return CMEvent{Type: ev}, nil
}

func (s *scriptedChannel) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type scriptedConn struct {
	mockConnNoop
	destroyed bool
}

func (c *scriptedConn) Destroy() error {
	c.destroyed = true
	return nil
}

// mockConnNoop accepts every call
type mockConnNoop struct{}

func (mockConnNoop) ResolveAddr(string, int, time.Duration) error { return nil }
func (mockConnNoop) ResolveRoute(time.Duration) error             { return nil }
func (mockConnNoop) CreateQP(QPAttr) error                        { return nil }
func (mockConnNoop) Connect(ConnParam) error                      { return nil }
func (mockConnNoop) RegisterMemory(buf []byte, _ AccessFlags) (MemoryRegion, error) {
	return &fakeMR{addr: BufferAddr(buf), size: len(buf), key: 1}, nil
}
func (mockConnNoop) PostSend(*WorkRequest) error          { return nil }
func (mockConnNoop) PollCQ([]WorkCompletion) (int, error) { return 0, nil }
func (mockConnNoop) Disconnect() error                    { return nil }
func (mockConnNoop) Destroy() error                       { return nil }

type scriptedProvider struct {
	ch *scriptedChannel
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) CreateEventChannel() (EventChannel, error) { return p.ch, nil }

func (p *scriptedProvider) Listen(string, ListenOptions) (Listener, error) {
	return nil, context.Canceled
}
