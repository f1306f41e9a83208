// Package softrdma is an RDMA provider that carries one-sided reads and
// writes over TCP. A listener serves registered memory the way an RNIC would,
// without involving the serving application in individual transfers.
package softrdma

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yuuki/famgraph/internal/rdma"
)

// Name is the name the provider registers under
const Name = "soft"

const eventQueueSize = 64

// Provider is the registered software provider
var Provider rdma.Provider = provider{}

func init() {
	rdma.Register(Provider)
}

type provider struct{}

func (provider) Name() string { return Name }

func (provider) CreateEventChannel() (rdma.EventChannel, error) {
	return &eventChannel{events: make(chan rdma.CMEvent, eventQueueSize)}, nil
}

func (provider) Listen(addr string, opts rdma.ListenOptions) (rdma.Listener, error) {
	return Listen(addr, opts)
}

// ErrChannelClosed is returned by operations on a closed event channel
var ErrChannelClosed = errors.New("softrdma: event channel closed")

type eventChannel struct {
	events    chan rdma.CMEvent
	closed    atomic.Bool
	closeOnce sync.Once
}

func (ec *eventChannel) CreateID() (rdma.ConnID, error) {
	if ec.closed.Load() {
		return nil, ErrChannelClosed
	}
	return newConnID(ec), nil
}

func (ec *eventChannel) GetEvent(timeout time.Duration) (rdma.CMEvent, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev, ok := <-ec.events:
		if !ok {
			return rdma.CMEvent{}, ErrChannelClosed
		}
		return ev, nil
	case <-timer.C:
		return rdma.CMEvent{}, rdma.ErrTimeout
	}
}

func (ec *eventChannel) post(t rdma.CMEventType, status int) {
	if ec.closed.Load() {
		return
	}
	select {
	case ec.events <- rdma.CMEvent{Type: t, Status: status}:
	default:
		// Nobody is draining; events after setup are informational only.
	}
}

func (ec *eventChannel) Close() error {
	ec.closeOnce.Do(func() {
		ec.closed.Store(true)
	})
	return nil
}

var keySeq atomic.Uint32

func init() {
	keySeq.Store(0x100)
}

func nextKey() uint32 {
	return keySeq.Add(1)
}

// memoryRegion is a registration record. Deregistering removes it from the
// table it was registered in.
type memoryRegion struct {
	buf    []byte
	addr   uint64
	key    uint32
	access rdma.AccessFlags
	remove func(key uint32)
	once   sync.Once
}

func (m *memoryRegion) Addr() uint64 { return m.addr }
func (m *memoryRegion) Len() int     { return len(m.buf) }
func (m *memoryRegion) LKey() uint32 { return m.key }
func (m *memoryRegion) RKey() uint32 { return m.key }
func (m *memoryRegion) Deregister() error {
	m.once.Do(func() { m.remove(m.key) })
	return nil
}

// contains reports whether [addr, addr+length) lies inside the region
func (m *memoryRegion) contains(addr uint64, length uint32) bool {
	if addr < m.addr {
		return false
	}
	off := addr - m.addr
	return off <= uint64(len(m.buf)) && uint64(length) <= uint64(len(m.buf))-off
}

// regionTable maps keys to registrations
type regionTable struct {
	mu      sync.RWMutex
	regions map[uint32]*memoryRegion
}

func newRegionTable() *regionTable {
	return &regionTable{regions: make(map[uint32]*memoryRegion)}
}

func (t *regionTable) register(buf []byte, access rdma.AccessFlags) (*memoryRegion, error) {
	if len(buf) == 0 {
		return nil, rdma.ErrEmptyRegion
	}
	mr := &memoryRegion{
		buf:    buf,
		addr:   rdma.BufferAddr(buf),
		key:    nextKey(),
		access: access,
		remove: t.remove,
	}
	t.mu.Lock()
	t.regions[mr.key] = mr
	t.mu.Unlock()
	return mr, nil
}

// with runs fn on the registration for key while holding the table's read
// lock, so the region cannot be deregistered mid transfer
func (t *regionTable) with(key uint32, fn func(mr *memoryRegion) uint8) uint8 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	mr, ok := t.regions[key]
	if !ok {
		return statusBadKey
	}
	return fn(mr)
}

func (t *regionTable) remove(key uint32) {
	t.mu.Lock()
	delete(t.regions, key)
	t.mu.Unlock()
}

func (t *regionTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.regions)
}
