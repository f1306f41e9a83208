package softrdma

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/yuuki/famgraph/internal/rdma"
	"golang.org/x/net/netutil"
)

// Listener serves memory registered on it to every connected peer
type Listener struct {
	ln      net.Listener
	regions *regionTable

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	wg     sync.WaitGroup
	closed atomic.Bool

	served atomic.Uint64
}

// Listen starts accepting data plane connections on addr
func Listen(addr string, opts rdma.ListenOptions) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if opts.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, opts.MaxConnections)
	}

	log.Info().Str("addr", ln.Addr().String()).Int("max_connections", opts.MaxConnections).Msg("Soft RDMA listener started")

	return &Listener{
		ln:      ln,
		regions: newRegionTable(),
		conns:   make(map[net.Conn]struct{}),
	}, nil
}

// Addr returns the bound address
func (l *Listener) Addr() string { return l.ln.Addr().String() }

// RegisterMemory exposes buf to peers under a fresh remote key
func (l *Listener) RegisterMemory(buf []byte, access rdma.AccessFlags) (rdma.MemoryRegion, error) {
	return l.regions.register(buf, access)
}

// Regions returns the number of live registrations
func (l *Listener) Regions() int { return l.regions.len() }

// BytesServed returns the number of payload bytes transferred so far
func (l *Listener) BytesServed() uint64 { return l.served.Load() }

// Serve accepts connections until ctx is done or the listener is closed
func (l *Listener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.closed.Load() {
				return nil
			}
			return fmt.Errorf("failed to accept: %w", err)
		}

		l.mu.Lock()
		if l.closed.Load() {
			l.mu.Unlock()
			conn.Close()
			return nil
		}
		l.conns[conn] = struct{}{}
		l.wg.Add(1)
		l.mu.Unlock()

		go func() {
			defer l.wg.Done()
			defer l.forget(conn)
			s := &session{conn: conn, regions: l.regions, served: &l.served}
			if err := s.serve(); err != nil && !l.closed.Load() {
				log.Warn().Err(err).Str("peer", conn.RemoteAddr().String()).Msg("Data plane session ended")
			}
		}()
	}
}

func (l *Listener) forget(conn net.Conn) {
	conn.Close()
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
}

// Close stops accepting, drops every connection and waits for the sessions
// to finish
func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := l.ln.Close()

	l.mu.Lock()
	for conn := range l.conns {
		conn.Close()
	}
	l.mu.Unlock()

	l.wg.Wait()
	return err
}

// session serves one peer. It only touches the region table it was given.
type session struct {
	conn    net.Conn
	regions *regionTable
	served  *atomic.Uint64
}

func (s *session) serve() error {
	r := bufio.NewReaderSize(s.conn, ioBufferSize)
	w := bufio.NewWriterSize(s.conn, ioBufferSize)

	h, err := readHello(r)
	if err != nil {
		return fmt.Errorf("failed handshake: %w", err)
	}
	var b [helloSize]byte
	hello{magic: protocolMagic, version: protocolVersion, depth: 1}.encode(b[:])
	if _, err := w.Write(b[:]); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	log.Debug().Str("peer", s.conn.RemoteAddr().String()).Uint16("initiator_depth", h.depth).Msg("Data plane peer connected")

	var hdr [requestSize]byte
	var out [responseSize]byte
	var buf []byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		q, err := decodeRequest(hdr[:])
		if err != nil {
			return err
		}

		if cap(buf) < int(q.length) {
			buf = make([]byte, q.length)
		}
		buf = buf[:q.length]

		var status uint8
		if q.op == opWrite {
			if _, err := io.ReadFull(r, buf); err != nil {
				return err
			}
			status = s.regions.with(q.rkey, func(mr *memoryRegion) uint8 {
				if mr.access&rdma.AccessRemoteWrite == 0 {
					return statusAccessDenied
				}
				if !mr.contains(q.remoteAddr, q.length) {
					return statusOutOfBounds
				}
				off := q.remoteAddr - mr.addr
				copy(mr.buf[off:], buf)
				return statusOK
			})
		} else {
			status = s.regions.with(q.rkey, func(mr *memoryRegion) uint8 {
				if mr.access&rdma.AccessRemoteRead == 0 {
					return statusAccessDenied
				}
				if !mr.contains(q.remoteAddr, q.length) {
					return statusOutOfBounds
				}
				off := q.remoteAddr - mr.addr
				copy(buf, mr.buf[off:off+uint64(q.length)])
				return statusOK
			})
		}

		resp := response{status: status, wrid: q.wrid}
		if status == statusOK && q.op == opRead {
			resp.length = q.length
		}
		resp.encode(out[:])
		if _, err := w.Write(out[:]); err != nil {
			return err
		}
		if resp.length > 0 {
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
		if status == statusOK {
			s.served.Add(uint64(q.length))
		}
		// Flush once the pipelined requests already buffered are answered.
		if r.Buffered() == 0 {
			if err := w.Flush(); err != nil {
				return err
			}
		}
	}
}
