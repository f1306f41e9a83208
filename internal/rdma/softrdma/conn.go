package softrdma

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/rs/zerolog/log"
	"github.com/yuuki/famgraph/internal/rdma"
)

const (
	dialTimeout   = 500 * time.Millisecond
	ioBufferSize  = 64 << 10
	cqInitialSize = 64
)

var (
	// ErrNotConnected is returned when posting on an unconnected id
	ErrNotConnected = errors.New("softrdma: not connected")
	// ErrSendQueueFull is returned when a chain exceeds the free send slots
	ErrSendQueueFull = errors.New("softrdma: send queue full")
)

// pendingWR is an issued request waiting for its response
type pendingWR struct {
	id       uint64
	op       rdma.Opcode
	dst      []byte
	signaled bool
}

// connID emulates one RC queue pair. Requests are answered in issue order,
// and read payloads are stored so that the last word of every transfer is
// published last.
type connID struct {
	ec     *eventChannel
	local  *regionTable
	addr   *net.TCPAddr
	routed bool
	qp     *rdma.QPAttr

	conn    net.Conn
	w       *bufio.Writer
	wmu     sync.Mutex
	pending chan pendingWR
	slots   atomic.Int64

	cq   []rdma.WorkCompletion
	cqMu sync.Mutex

	closing  atomic.Bool
	recvDone chan struct{}
	discOnce sync.Once
}

func newConnID(ec *eventChannel) *connID {
	return &connID{
		ec:    ec,
		local: newRegionTable(),
		cq:    make([]rdma.WorkCompletion, 0, cqInitialSize),
	}
}

func (c *connID) ResolveAddr(host string, port int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		log.Debug().Err(err).Str("host", host).Msg("Address resolution failed")
		c.ec.post(rdma.EventAddrError, -1)
		return nil
	}
	c.addr = &net.TCPAddr{IP: addrs[0].IP, Port: port, Zone: addrs[0].Zone}
	c.ec.post(rdma.EventAddrResolved, 0)
	return nil
}

func (c *connID) ResolveRoute(timeout time.Duration) error {
	if c.addr == nil {
		c.ec.post(rdma.EventRouteError, -1)
		return nil
	}
	c.routed = true
	c.ec.post(rdma.EventRouteResolved, 0)
	return nil
}

func (c *connID) CreateQP(attr rdma.QPAttr) error {
	if attr.MaxSendWR <= 0 {
		return fmt.Errorf("softrdma: invalid send queue depth %d", attr.MaxSendWR)
	}
	c.qp = &attr
	c.pending = make(chan pendingWR, attr.MaxSendWR)
	c.slots.Store(int64(attr.MaxSendWR))
	return nil
}

func (c *connID) Connect(param rdma.ConnParam) error {
	if !c.routed || c.qp == nil {
		return fmt.Errorf("softrdma: connect before route resolution or queue pair creation")
	}

	addr := net.JoinHostPort(c.addr.IP.String(), strconv.Itoa(c.addr.Port))
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		log.Debug().Err(err).Str("addr", addr).Msg("Data plane dial failed")
		c.ec.post(rdma.EventUnreachable, -1)
		return nil
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	var b [helloSize]byte
	hello{magic: protocolMagic, version: protocolVersion, depth: uint16(param.InitiatorDepth)}.encode(b[:])
	if _, err := conn.Write(b[:]); err != nil {
		conn.Close()
		c.ec.post(rdma.EventConnectError, -1)
		return nil
	}
	r := bufio.NewReaderSize(conn, ioBufferSize)
	reply, err := readHello(r)
	if err != nil || reply.depth == 0 {
		conn.Close()
		c.ec.post(rdma.EventRejected, -1)
		return nil
	}

	c.conn = conn
	c.w = bufio.NewWriterSize(conn, ioBufferSize)
	c.recvDone = make(chan struct{})
	go c.receive(r)

	c.ec.post(rdma.EventEstablished, 0)
	return nil
}

func (c *connID) RegisterMemory(buf []byte, access rdma.AccessFlags) (rdma.MemoryRegion, error) {
	return c.local.register(buf, access)
}

func (c *connID) PostSend(chain *rdma.WorkRequest) error {
	if c.conn == nil || c.closing.Load() {
		return ErrNotConnected
	}

	n := int64(0)
	for wr := chain; wr != nil; wr = wr.Next {
		n++
	}
	if c.slots.Add(-n) < 0 {
		c.slots.Add(n)
		return fmt.Errorf("%w: %d requests", ErrSendQueueFull, n)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	var hdr [requestSize]byte
	for wr := chain; wr != nil; wr = wr.Next {
		dst, status := c.localSlice(wr.SGE, wr.Opcode)
		if status != rdma.WCSuccess {
			c.slots.Add(1)
			c.complete(rdma.WorkCompletion{WRID: wr.ID, Status: status, Opcode: wr.Opcode})
			continue
		}

		q := request{wrid: wr.ID, remoteAddr: wr.RemoteAddr, rkey: wr.RKey, length: wr.SGE.Length}
		if wr.Opcode == rdma.OpRDMARead {
			q.op = opRead
		} else {
			q.op = opWrite
		}
		c.pending <- pendingWR{id: wr.ID, op: wr.Opcode, dst: dst, signaled: wr.Signaled}

		q.encode(hdr[:])
		if _, err := c.w.Write(hdr[:]); err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		if q.op == opWrite {
			if _, err := c.w.Write(dst); err != nil {
				return fmt.Errorf("failed to send payload: %w", err)
			}
		}
	}
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush requests: %w", err)
	}
	return nil
}

// localSlice resolves the local side of a request against the registrations
// made on this id
func (c *connID) localSlice(sge rdma.SGE, op rdma.Opcode) ([]byte, rdma.WCStatus) {
	var dst []byte
	status := c.local.with(sge.LKey, func(mr *memoryRegion) uint8 {
		if !mr.contains(sge.Addr, sge.Length) {
			return statusOutOfBounds
		}
		if op == rdma.OpRDMARead && mr.access&rdma.AccessLocalWrite == 0 {
			return statusAccessDenied
		}
		off := sge.Addr - mr.addr
		dst = mr.buf[off : off+uint64(sge.Length)]
		return statusOK
	})
	switch status {
	case statusOK:
		return dst, rdma.WCSuccess
	case statusOutOfBounds:
		return nil, rdma.WCLocalLengthError
	default:
		return nil, rdma.WCLocalProtectionError
	}
}

func (c *connID) receive(r *bufio.Reader) {
	defer close(c.recvDone)

	var hdr [responseSize]byte
	var scratch []byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			c.flush(err)
			return
		}
		resp := decodeResponse(hdr[:])

		p := <-c.pending
		c.slots.Add(1)
		if resp.wrid != p.id {
			c.flush(fmt.Errorf("%w: response for %d, expected %d", ErrProtocol, resp.wrid, p.id))
			return
		}

		status := statusToWC(resp.status)
		if status == rdma.WCSuccess && p.op == rdma.OpRDMARead {
			if int(resp.length) != len(p.dst) {
				c.flush(fmt.Errorf("%w: %d payload bytes, expected %d", ErrProtocol, resp.length, len(p.dst)))
				return
			}
			if cap(scratch) < len(p.dst) {
				scratch = make([]byte, len(p.dst))
			}
			scratch = scratch[:len(p.dst)]
			if _, err := io.ReadFull(r, scratch); err != nil {
				c.flush(err)
				return
			}
			publish(p.dst, scratch)
		}

		if p.signaled || status != rdma.WCSuccess {
			c.complete(rdma.WorkCompletion{WRID: p.id, Status: status, Opcode: p.op, ByteLen: resp.length})
		}
	}
}

// flush fails every outstanding request once the connection is gone
func (c *connID) flush(cause error) {
	if !c.closing.Load() {
		log.Error().Err(cause).Msg("Data plane connection lost")
	}
	for {
		select {
		case p := <-c.pending:
			c.slots.Add(1)
			c.complete(rdma.WorkCompletion{WRID: p.id, Status: rdma.WCFlushError, Opcode: p.op})
		default:
			if !c.closing.Load() {
				c.complete(rdma.WorkCompletion{Status: rdma.WCRetryExceeded})
			}
			return
		}
	}
}

func (c *connID) complete(wc rdma.WorkCompletion) {
	c.cqMu.Lock()
	c.cq = append(c.cq, wc)
	c.cqMu.Unlock()
}

func (c *connID) PollCQ(wc []rdma.WorkCompletion) (int, error) {
	c.cqMu.Lock()
	defer c.cqMu.Unlock()
	n := copy(wc, c.cq)
	if n == 0 {
		return 0, nil
	}
	rest := copy(c.cq, c.cq[n:])
	c.cq = c.cq[:rest]
	return n, nil
}

func (c *connID) Disconnect() error {
	var err error
	c.discOnce.Do(func() {
		if c.conn == nil {
			return
		}
		c.closing.Store(true)
		err = c.conn.Close()
		<-c.recvDone
		c.ec.post(rdma.EventDisconnected, 0)
	})
	return err
}

func (c *connID) Destroy() error {
	return c.Disconnect()
}

func statusToWC(s uint8) rdma.WCStatus {
	switch s {
	case statusOK:
		return rdma.WCSuccess
	case statusBadKey, statusAccessDenied:
		return rdma.WCRemoteAccessError
	case statusOutOfBounds:
		return rdma.WCRemoteAccessError
	default:
		return rdma.WCRemoteOperationError
	}
}

// publish copies src into dst. When both ends are word aligned the first and
// last words are stored atomically after the interior, which lets a reader
// spinning on those words observe the whole transfer once they change.
func publish(dst, src []byte) {
	n := len(dst)
	if n < rdma.WordSize || n%rdma.WordSize != 0 || uintptr(unsafe.Pointer(&dst[0]))%rdma.WordSize != 0 {
		copy(dst, src)
		return
	}
	last := n - rdma.WordSize
	if n > 2*rdma.WordSize {
		copy(dst[rdma.WordSize:last], src[rdma.WordSize:last])
	}
	storeWord(dst[:rdma.WordSize], src[:rdma.WordSize])
	if last > 0 {
		storeWord(dst[last:], src[last:])
	}
}

func storeWord(dst, src []byte) {
	v := *(*uint32)(unsafe.Pointer(&src[0]))
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&dst[0])), v)
}
