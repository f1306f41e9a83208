package rdma

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// CMEventType is a connection manager event type
type CMEventType int

const (
	// EventAddrResolved is posted once the destination address was resolved
	EventAddrResolved CMEventType = iota
	// EventAddrError is posted when address resolution failed
	EventAddrError
	// EventRouteResolved is posted once a route to the destination was found
	EventRouteResolved
	// EventRouteError is posted when route resolution failed
	EventRouteError
	// EventConnectRequest is posted on a listener for an incoming connection
	EventConnectRequest
	// EventConnectError is posted when the connection attempt failed
	EventConnectError
	// EventUnreachable is posted when the peer did not answer
	EventUnreachable
	// EventRejected is posted when the peer refused the connection
	EventRejected
	// EventEstablished is posted once the connection is usable
	EventEstablished
	// EventDisconnected is posted when the peer went away
	EventDisconnected
)

var eventNames = map[CMEventType]string{
	EventAddrResolved:   "ADDR_RESOLVED",
	EventAddrError:      "ADDR_ERROR",
	EventRouteResolved:  "ROUTE_RESOLVED",
	EventRouteError:     "ROUTE_ERROR",
	EventConnectRequest: "CONNECT_REQUEST",
	EventConnectError:   "CONNECT_ERROR",
	EventUnreachable:    "UNREACHABLE",
	EventRejected:       "REJECTED",
	EventEstablished:    "ESTABLISHED",
	EventDisconnected:   "DISCONNECTED",
}

func (t CMEventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(t))
}

// CMEvent is a single connection manager event
type CMEvent struct {
	Type   CMEventType
	Status int
}

// Opcode is the operation carried by a work request
type Opcode int

const (
	// OpRDMARead reads remote memory into a local buffer
	OpRDMARead Opcode = iota
	// OpRDMAWrite writes a local buffer into remote memory
	OpRDMAWrite
)

// AccessFlags controls how a registered region may be accessed
type AccessFlags uint32

const (
	AccessLocalWrite AccessFlags = 1 << iota
	AccessRemoteRead
	AccessRemoteWrite
)

// SGE is a scatter/gather element pointing into a registered local region
type SGE struct {
	Addr   uint64
	Length uint32
	LKey   uint32
}

// WorkRequest is one send-queue descriptor. Requests are linked through Next
// and posted as one chain.
type WorkRequest struct {
	ID         uint64
	Opcode     Opcode
	SGE        SGE
	RemoteAddr uint64
	RKey       uint32
	Signaled   bool
	Next       *WorkRequest
}

// WCStatus is the status of a work completion
type WCStatus int

const (
	WCSuccess WCStatus = iota
	WCLocalLengthError
	WCLocalProtectionError
	WCFlushError
	WCRemoteAccessError
	WCRemoteOperationError
	WCRetryExceeded
	WCGeneralError
)

var wcStatusNames = map[WCStatus]string{
	WCSuccess:              "success",
	WCLocalLengthError:     "local length error",
	WCLocalProtectionError: "local protection error",
	WCFlushError:           "work request flushed",
	WCRemoteAccessError:    "remote access error",
	WCRemoteOperationError: "remote operation error",
	WCRetryExceeded:        "transport retry counter exceeded",
	WCGeneralError:         "general error",
}

func (s WCStatus) String() string {
	if name, ok := wcStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// WorkCompletion is one entry drained from a completion queue
type WorkCompletion struct {
	WRID    uint64
	Status  WCStatus
	Opcode  Opcode
	ByteLen uint32
}

// QPAttr describes the queue pair created for a connection
type QPAttr struct {
	MaxSendWR  int
	MaxRecvWR  int
	MaxSendSGE int
	MaxRecvSGE int
}

// ConnParam carries the connection negotiation parameters
type ConnParam struct {
	ResponderResources int
	InitiatorDepth     int
	RetryCount         int
	RNRRetryCount      int
}

// MemoryRegion is a buffer registered with a provider
type MemoryRegion interface {
	Addr() uint64
	Len() int
	LKey() uint32
	RKey() uint32
	Deregister() error
}

// ConnID is one connection identifier and, once connected, its queue pair and
// completion queue.
type ConnID interface {
	ResolveAddr(host string, port int, timeout time.Duration) error
	ResolveRoute(timeout time.Duration) error
	CreateQP(attr QPAttr) error
	Connect(param ConnParam) error
	RegisterMemory(buf []byte, access AccessFlags) (MemoryRegion, error)
	PostSend(chain *WorkRequest) error
	// PollCQ fills wc with up to len(wc) completions and never blocks.
	PollCQ(wc []WorkCompletion) (int, error)
	Disconnect() error
	Destroy() error
}

// EventChannel delivers connection manager events for the ids created on it
type EventChannel interface {
	CreateID() (ConnID, error)
	// GetEvent waits at most timeout for the next event.
	GetEvent(timeout time.Duration) (CMEvent, error)
	Close() error
}

// Listener is the serving side of a provider. Memory registered on it is
// readable (and optionally writable) by every connected peer.
type Listener interface {
	Addr() string
	RegisterMemory(buf []byte, access AccessFlags) (MemoryRegion, error)
	Serve(ctx context.Context) error
	Close() error
}

// Provider creates client event channels and serving listeners
type Provider interface {
	Name() string
	CreateEventChannel() (EventChannel, error)
	Listen(addr string, opts ListenOptions) (Listener, error)
}

// ListenOptions tunes a serving listener
type ListenOptions struct {
	MaxConnections int
	Backlog        int
}

var (
	// ErrTimeout is returned by GetEvent when no event arrived in time
	ErrTimeout = errors.New("rdma: timed out waiting for event")
	// ErrUnknownProvider is returned by Lookup for unregistered names
	ErrUnknownProvider = errors.New("rdma: unknown provider")
)

var (
	providersMu sync.RWMutex
	providers   = make(map[string]Provider)
)

// Register makes a provider available by name. It is meant to be called from
// the provider package's init function.
func Register(p Provider) {
	providersMu.Lock()
	defer providersMu.Unlock()
	if _, dup := providers[p.Name()]; dup {
		panic("rdma: Register called twice for provider " + p.Name())
	}
	providers[p.Name()] = p
}

// Lookup returns the provider registered under name
func Lookup(name string) (Provider, error) {
	providersMu.RLock()
	defer providersMu.RUnlock()
	p, ok := providers[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownProvider, name, providerNames())
	}
	return p, nil
}

func providerNames() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
