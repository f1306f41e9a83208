//go:build rdma

package verbs

// #cgo LDFLAGS: -lrdmacm -libverbs
// #include <stdlib.h>
// #include <string.h>
// #include <errno.h>
// #include <poll.h>
// #include <netdb.h>
// #include <rdma/rdma_cma.h>
// #include <infiniband/verbs.h>
//
// static int get_errno(void) {
//     return errno;
// }
//
// // Wait for the next CM event. Returns 1 when an event was read, 0 on
// // timeout and -1 on error.
// static int fam_get_event(struct rdma_event_channel *ec, int timeout_ms,
//                          int *type, int *status, struct rdma_cm_id **id) {
//     struct pollfd pfd;
//     struct rdma_cm_event *ev = NULL;
//     int rc;
//
//     pfd.fd = ec->fd;
//     pfd.events = POLLIN;
//     pfd.revents = 0;
//     rc = poll(&pfd, 1, timeout_ms);
//     if (rc <= 0) {
//         return rc;
//     }
//     if (rdma_get_cm_event(ec, &ev)) {
//         return -1;
//     }
//     *type = ev->event;
//     *status = ev->status;
//     *id = ev->id;
//     rdma_ack_cm_event(ev);
//     return 1;
// }
//
// static int fam_resolve_addr(struct rdma_cm_id *id, const char *host, const char *port, int timeout_ms) {
//     struct addrinfo hints;
//     struct addrinfo *res = NULL;
//     int rc;
//
//     memset(&hints, 0, sizeof(hints));
//     hints.ai_family = AF_INET;
//     hints.ai_socktype = SOCK_STREAM;
//     if (getaddrinfo(host, port, &hints, &res) != 0 || res == NULL) {
//         return -1;
//     }
//     rc = rdma_resolve_addr(id, NULL, res->ai_addr, timeout_ms);
//     freeaddrinfo(res);
//     return rc;
// }
//
// static int fam_bind_listen(struct rdma_cm_id *id, const char *host, const char *port, int backlog) {
//     struct addrinfo hints;
//     struct addrinfo *res = NULL;
//     int rc;
//
//     memset(&hints, 0, sizeof(hints));
//     hints.ai_family = AF_INET;
//     hints.ai_socktype = SOCK_STREAM;
//     hints.ai_flags = AI_PASSIVE;
//     if (getaddrinfo(host, port, &hints, &res) != 0 || res == NULL) {
//         return -1;
//     }
//     rc = rdma_bind_addr(id, res->ai_addr);
//     freeaddrinfo(res);
//     if (rc) {
//         return rc;
//     }
//     return rdma_listen(id, backlog);
// }
//
// static struct ibv_context *fam_id_verbs(struct rdma_cm_id *id) {
//     return id->verbs;
// }
//
// static int fam_create_qp(struct rdma_cm_id *id, struct ibv_pd *pd, struct ibv_cq **cq_out,
//                          int send_wr, int recv_wr, int send_sge, int recv_sge) {
//     struct ibv_qp_init_attr attr;
//     struct ibv_cq *cq;
//
//     cq = ibv_create_cq(id->verbs, send_wr + recv_wr, NULL, NULL, 0);
//     if (cq == NULL) {
//         return -1;
//     }
//     memset(&attr, 0, sizeof(attr));
//     attr.send_cq = cq;
//     attr.recv_cq = cq;
//     attr.qp_type = IBV_QPT_RC;
//     attr.sq_sig_all = 0;
//     attr.cap.max_send_wr = send_wr;
//     attr.cap.max_recv_wr = recv_wr;
//     attr.cap.max_send_sge = send_sge;
//     attr.cap.max_recv_sge = recv_sge;
//     if (rdma_create_qp(id, pd, &attr)) {
//         ibv_destroy_cq(cq);
//         return -1;
//     }
//     *cq_out = cq;
//     return 0;
// }
//
// static void fam_conn_param(struct rdma_conn_param *p, int rr, int depth, int retry, int rnr) {
//     memset(p, 0, sizeof(*p));
//     p->responder_resources = rr;
//     p->initiator_depth = depth;
//     p->retry_count = retry;
//     p->rnr_retry_count = rnr;
// }
//
// static int fam_connect(struct rdma_cm_id *id, int rr, int depth, int retry, int rnr) {
//     struct rdma_conn_param p;
//     fam_conn_param(&p, rr, depth, retry, rnr);
//     return rdma_connect(id, &p);
// }
//
// static int fam_accept(struct rdma_cm_id *id, int rr, int depth, int retry, int rnr) {
//     struct rdma_conn_param p;
//     fam_conn_param(&p, rr, depth, retry, rnr);
//     return rdma_accept(id, &p);
// }
//
// static struct ibv_pd *fam_qp_pd(struct rdma_cm_id *id) {
//     return id->qp ? id->qp->pd : NULL;
// }
//
// typedef struct {
//     uint64_t wr_id;
//     uint64_t laddr;
//     uint64_t raddr;
//     uint32_t length;
//     uint32_t lkey;
//     uint32_t rkey;
//     int32_t  write;
//     int32_t  signaled;
// } fam_wr;
//
// // Post n requests as one linked chain built in wr and sge, which hold at
// // least n entries each.
// static int fam_post_chain(struct ibv_qp *qp, struct ibv_send_wr *wr, struct ibv_sge *sge,
//                           fam_wr *in, int n) {
//     struct ibv_send_wr *bad = NULL;
//     int i;
//
//     memset(wr, 0, n * sizeof(*wr));
//     for (i = 0; i < n; i++) {
//         sge[i].addr = in[i].laddr;
//         sge[i].length = in[i].length;
//         sge[i].lkey = in[i].lkey;
//         wr[i].wr_id = in[i].wr_id;
//         wr[i].sg_list = &sge[i];
//         wr[i].num_sge = 1;
//         wr[i].opcode = in[i].write ? IBV_WR_RDMA_WRITE : IBV_WR_RDMA_READ;
//         wr[i].send_flags = in[i].signaled ? IBV_SEND_SIGNALED : 0;
//         wr[i].wr.rdma.remote_addr = in[i].raddr;
//         wr[i].wr.rdma.rkey = in[i].rkey;
//         wr[i].next = (i + 1 < n) ? &wr[i + 1] : NULL;
//     }
//     return ibv_post_send(qp, wr, &bad);
// }
//
// typedef struct {
//     uint64_t wr_id;
//     int32_t  status;
//     int32_t  opcode;
//     uint32_t byte_len;
// } fam_wc;
//
// static int fam_poll(struct ibv_cq *cq, fam_wc *out, int n) {
//     struct ibv_wc wc[32];
//     int got, i;
//
//     if (n > 32) {
//         n = 32;
//     }
//     got = ibv_poll_cq(cq, n, wc);
//     for (i = 0; i < got; i++) {
//         out[i].wr_id = wc[i].wr_id;
//         out[i].status = wc[i].status;
//         out[i].opcode = wc[i].opcode;
//         out[i].byte_len = wc[i].byte_len;
//     }
//     return got;
// }
import "C"

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/rs/zerolog/log"
	"github.com/yuuki/famgraph/internal/rdma"
)

// Provider is the registered verbs provider
var Provider rdma.Provider = provider{}

func init() {
	rdma.Register(Provider)
}

const listenPollInterval = 100 * time.Millisecond

type provider struct{}

func (provider) Name() string { return Name }

func (provider) CreateEventChannel() (rdma.EventChannel, error) {
	ec := C.rdma_create_event_channel()
	if ec == nil {
		return nil, fmt.Errorf("rdma_create_event_channel failed: %w", syscall.Errno(C.get_errno()))
	}
	return &eventChannel{ec: ec}, nil
}

func (provider) Listen(addr string, opts rdma.ListenOptions) (rdma.Listener, error) {
	return listen(addr, opts)
}

func errnoErr(what string) error {
	return fmt.Errorf("%s failed: %w", what, syscall.Errno(C.get_errno()))
}

var cmEvents = map[C.int]rdma.CMEventType{
	C.RDMA_CM_EVENT_ADDR_RESOLVED:   rdma.EventAddrResolved,
	C.RDMA_CM_EVENT_ADDR_ERROR:      rdma.EventAddrError,
	C.RDMA_CM_EVENT_ROUTE_RESOLVED:  rdma.EventRouteResolved,
	C.RDMA_CM_EVENT_ROUTE_ERROR:     rdma.EventRouteError,
	C.RDMA_CM_EVENT_CONNECT_REQUEST: rdma.EventConnectRequest,
	C.RDMA_CM_EVENT_CONNECT_ERROR:   rdma.EventConnectError,
	C.RDMA_CM_EVENT_UNREACHABLE:     rdma.EventUnreachable,
	C.RDMA_CM_EVENT_REJECTED:        rdma.EventRejected,
	C.RDMA_CM_EVENT_ESTABLISHED:     rdma.EventEstablished,
	C.RDMA_CM_EVENT_DISCONNECTED:    rdma.EventDisconnected,
}

func toEventType(t C.int) rdma.CMEventType {
	if ev, ok := cmEvents[t]; ok {
		return ev
	}
	return rdma.CMEventType(100 + int(t))
}

type eventChannel struct {
	ec *C.struct_rdma_event_channel
}

func (e *eventChannel) CreateID() (rdma.ConnID, error) {
	var id *C.struct_rdma_cm_id
	if C.rdma_create_id(e.ec, &id, nil, C.RDMA_PS_TCP) != 0 {
		return nil, errnoErr("rdma_create_id")
	}
	return &connID{id: id}, nil
}

func (e *eventChannel) GetEvent(timeout time.Duration) (rdma.CMEvent, error) {
	ev, _, err := getEvent(e.ec, timeout)
	return ev, err
}

func getEvent(ec *C.struct_rdma_event_channel, timeout time.Duration) (rdma.CMEvent, *C.struct_rdma_cm_id, error) {
	var (
		typ, status C.int
		id          *C.struct_rdma_cm_id
	)
	switch C.fam_get_event(ec, C.int(timeout.Milliseconds()), &typ, &status, &id) {
	case 1:
		return rdma.CMEvent{Type: toEventType(typ), Status: int(status)}, id, nil
	case 0:
		return rdma.CMEvent{}, nil, rdma.ErrTimeout
	default:
		return rdma.CMEvent{}, nil, errnoErr("rdma_get_cm_event")
	}
}

func (e *eventChannel) Close() error {
	if e.ec != nil {
		C.rdma_destroy_event_channel(e.ec)
		e.ec = nil
	}
	return nil
}

// connID wraps one rdma_cm id and the protection domain, completion queue
// and queue pair created for it
type connID struct {
	id        *C.struct_rdma_cm_id
	pd        *C.struct_ibv_pd
	cq        *C.struct_ibv_cq
	ownsPD    bool
	connected bool

	// postMu guards the send scratch: wrs and the C chain built from it
	postMu  sync.Mutex
	wrs     []C.fam_wr
	sendWR  *C.struct_ibv_send_wr
	sendSGE *C.struct_ibv_sge

	pollMu sync.Mutex
	wcs    []C.fam_wc
}

func (c *connID) ResolveAddr(host string, port int, timeout time.Duration) error {
	chost := C.CString(host)
	defer C.free(unsafe.Pointer(chost))
	cport := C.CString(strconv.Itoa(port))
	defer C.free(unsafe.Pointer(cport))

	if C.fam_resolve_addr(c.id, chost, cport, C.int(timeout.Milliseconds())) != 0 {
		return errnoErr("rdma_resolve_addr")
	}
	return nil
}

func (c *connID) ResolveRoute(timeout time.Duration) error {
	if C.rdma_resolve_route(c.id, C.int(timeout.Milliseconds())) != 0 {
		return errnoErr("rdma_resolve_route")
	}
	return nil
}

func (c *connID) CreateQP(attr rdma.QPAttr) error {
	if c.pd == nil {
		pd := C.ibv_alloc_pd(C.fam_id_verbs(c.id))
		if pd == nil {
			return errnoErr("ibv_alloc_pd")
		}
		c.pd = pd
		c.ownsPD = true
	}
	return c.createQP(attr)
}

func (c *connID) createQP(attr rdma.QPAttr) error {
	if attr.MaxSendWR <= 0 {
		return fmt.Errorf("verbs: invalid send queue depth %d", attr.MaxSendWR)
	}
	if C.fam_create_qp(c.id, c.pd, &c.cq,
		C.int(attr.MaxSendWR), C.int(attr.MaxRecvWR), C.int(attr.MaxSendSGE), C.int(attr.MaxRecvSGE)) != 0 {
		return errnoErr("rdma_create_qp")
	}
	n := C.size_t(attr.MaxSendWR)
	c.sendWR = (*C.struct_ibv_send_wr)(C.calloc(n, C.sizeof_struct_ibv_send_wr))
	c.sendSGE = (*C.struct_ibv_sge)(C.calloc(n, C.sizeof_struct_ibv_sge))
	if c.sendWR == nil || c.sendSGE == nil {
		c.destroyQP()
		return fmt.Errorf("verbs: allocate send chain of %d requests: %w", attr.MaxSendWR, syscall.ENOMEM)
	}
	c.wrs = make([]C.fam_wr, attr.MaxSendWR)
	return nil
}

// destroyQP releases the queue pair, the completion queue and the send chain
func (c *connID) destroyQP() {
	if c.id.qp != nil {
		C.rdma_destroy_qp(c.id)
	}
	if c.cq != nil {
		C.ibv_destroy_cq(c.cq)
		c.cq = nil
	}
	c.postMu.Lock()
	C.free(unsafe.Pointer(c.sendWR))
	C.free(unsafe.Pointer(c.sendSGE))
	c.sendWR, c.sendSGE, c.wrs = nil, nil, nil
	c.postMu.Unlock()
}

func (c *connID) Connect(param rdma.ConnParam) error {
	if C.fam_connect(c.id, C.int(param.ResponderResources), C.int(param.InitiatorDepth),
		C.int(param.RetryCount), C.int(param.RNRRetryCount)) != 0 {
		return errnoErr("rdma_connect")
	}
	c.connected = true
	return nil
}

func (c *connID) RegisterMemory(buf []byte, access rdma.AccessFlags) (rdma.MemoryRegion, error) {
	if c.pd == nil {
		return nil, errors.New("verbs: no protection domain before queue pair creation")
	}
	return registerMemory(c.pd, buf, access)
}

// PostSend posts chain as one linked list. Read and ReadUsing may post on one
// connection at the same time, so callers are serialized.
func (c *connID) PostSend(chain *rdma.WorkRequest) error {
	c.postMu.Lock()
	defer c.postMu.Unlock()
	if c.sendWR == nil {
		return errors.New("verbs: no queue pair")
	}
	n := 0
	for wr := chain; wr != nil; wr = wr.Next {
		if n == len(c.wrs) {
			return fmt.Errorf("verbs: chain longer than send queue (%d)", len(c.wrs))
		}
		w := &c.wrs[n]
		w.wr_id = C.uint64_t(wr.ID)
		w.laddr = C.uint64_t(wr.SGE.Addr)
		w.length = C.uint32_t(wr.SGE.Length)
		w.lkey = C.uint32_t(wr.SGE.LKey)
		w.raddr = C.uint64_t(wr.RemoteAddr)
		w.rkey = C.uint32_t(wr.RKey)
		w.write = 0
		if wr.Opcode == rdma.OpRDMAWrite {
			w.write = 1
		}
		w.signaled = 0
		if wr.Signaled {
			w.signaled = 1
		}
		n++
	}
	if n == 0 {
		return nil
	}
	if rc := C.fam_post_chain(c.id.qp, c.sendWR, c.sendSGE, &c.wrs[0], C.int(n)); rc != 0 {
		return fmt.Errorf("ibv_post_send failed: %w", syscall.Errno(rc))
	}
	return nil
}

func (c *connID) PollCQ(wc []rdma.WorkCompletion) (int, error) {
	if len(wc) == 0 || c.cq == nil {
		return 0, nil
	}
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	if len(c.wcs) < len(wc) {
		c.wcs = make([]C.fam_wc, len(wc))
	}
	got := C.fam_poll(c.cq, &c.wcs[0], C.int(len(wc)))
	if got < 0 {
		return 0, errors.New("ibv_poll_cq failed")
	}
	for i := range int(got) {
		w := c.wcs[i]
		wc[i] = rdma.WorkCompletion{
			WRID:    uint64(w.wr_id),
			Status:  toWCStatus(int(w.status)),
			Opcode:  toOpcode(int(w.opcode)),
			ByteLen: uint32(w.byte_len),
		}
	}
	return int(got), nil
}

func toWCStatus(s int) rdma.WCStatus {
	switch s {
	case C.IBV_WC_SUCCESS:
		return rdma.WCSuccess
	case C.IBV_WC_LOC_LEN_ERR:
		return rdma.WCLocalLengthError
	case C.IBV_WC_LOC_PROT_ERR:
		return rdma.WCLocalProtectionError
	case C.IBV_WC_WR_FLUSH_ERR:
		return rdma.WCFlushError
	case C.IBV_WC_REM_ACCESS_ERR:
		return rdma.WCRemoteAccessError
	case C.IBV_WC_REM_OP_ERR:
		return rdma.WCRemoteOperationError
	case C.IBV_WC_RETRY_EXC_ERR, C.IBV_WC_RNR_RETRY_EXC_ERR:
		return rdma.WCRetryExceeded
	default:
		return rdma.WCGeneralError
	}
}

func toOpcode(op int) rdma.Opcode {
	if op == C.IBV_WC_RDMA_WRITE {
		return rdma.OpRDMAWrite
	}
	return rdma.OpRDMARead
}

func (c *connID) Disconnect() error {
	if !c.connected {
		return nil
	}
	c.connected = false
	if C.rdma_disconnect(c.id) != 0 {
		return errnoErr("rdma_disconnect")
	}
	return nil
}

func (c *connID) Destroy() error {
	if c.id == nil {
		return nil
	}
	c.destroyQP()
	if c.ownsPD && c.pd != nil {
		C.ibv_dealloc_pd(c.pd)
	}
	c.pd = nil
	rc := C.rdma_destroy_id(c.id)
	c.id = nil
	if rc != 0 {
		return errnoErr("rdma_destroy_id")
	}
	return nil
}

type memoryRegion struct {
	mr *C.struct_ibv_mr
}

func registerMemory(pd *C.struct_ibv_pd, buf []byte, access rdma.AccessFlags) (*memoryRegion, error) {
	if len(buf) == 0 {
		return nil, rdma.ErrEmptyRegion
	}
	flags := C.int(0)
	if access&rdma.AccessLocalWrite != 0 {
		flags |= C.IBV_ACCESS_LOCAL_WRITE
	}
	if access&rdma.AccessRemoteRead != 0 {
		flags |= C.IBV_ACCESS_REMOTE_READ
	}
	if access&rdma.AccessRemoteWrite != 0 {
		flags |= C.IBV_ACCESS_REMOTE_WRITE | C.IBV_ACCESS_LOCAL_WRITE
	}
	// buf is mmap'd memory outside the Go heap.
	mr := C.ibv_reg_mr(pd, unsafe.Pointer(&buf[0]), C.size_t(len(buf)), flags)
	if mr == nil {
		return nil, errnoErr("ibv_reg_mr")
	}
	return &memoryRegion{mr: mr}, nil
}

func (m *memoryRegion) Addr() uint64 { return uint64(uintptr(m.mr.addr)) }
func (m *memoryRegion) Len() int     { return int(m.mr.length) }
func (m *memoryRegion) LKey() uint32 { return uint32(m.mr.lkey) }
func (m *memoryRegion) RKey() uint32 { return uint32(m.mr.rkey) }

func (m *memoryRegion) Deregister() error {
	if m.mr == nil {
		return nil
	}
	if rc := C.ibv_dereg_mr(m.mr); rc != 0 {
		return fmt.Errorf("ibv_dereg_mr failed: %w", syscall.Errno(rc))
	}
	m.mr = nil
	return nil
}

// listenSession holds the protection domain every accepted queue pair and
// every served region share. It is handed to the accept handler explicitly.
type listenSession struct {
	pd    *C.struct_ibv_pd
	conns map[*C.struct_rdma_cm_id]*connID
	max   int
}

type listener struct {
	addr    string
	ec      *C.struct_rdma_event_channel
	id      *C.struct_rdma_cm_id
	session *listenSession

	mu     sync.Mutex
	closed bool
}

func listen(addr string, opts rdma.ListenOptions) (*listener, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}

	ec := C.rdma_create_event_channel()
	if ec == nil {
		return nil, errnoErr("rdma_create_event_channel")
	}
	var id *C.struct_rdma_cm_id
	if C.rdma_create_id(ec, &id, nil, C.RDMA_PS_TCP) != 0 {
		C.rdma_destroy_event_channel(ec)
		return nil, errnoErr("rdma_create_id")
	}

	backlog := opts.Backlog
	if backlog <= 0 {
		backlog = 16
	}
	chost := C.CString(host)
	defer C.free(unsafe.Pointer(chost))
	cport := C.CString(port)
	defer C.free(unsafe.Pointer(cport))
	if C.fam_bind_listen(id, chost, cport, C.int(backlog)) != 0 {
		err := errnoErr("rdma_bind_addr/rdma_listen")
		C.rdma_destroy_id(id)
		C.rdma_destroy_event_channel(ec)
		return nil, err
	}

	verbs := C.fam_id_verbs(id)
	if verbs == nil {
		C.rdma_destroy_id(id)
		C.rdma_destroy_event_channel(ec)
		return nil, fmt.Errorf("listen address %s is not bound to an RDMA device", addr)
	}
	pd := C.ibv_alloc_pd(verbs)
	if pd == nil {
		err := errnoErr("ibv_alloc_pd")
		C.rdma_destroy_id(id)
		C.rdma_destroy_event_channel(ec)
		return nil, err
	}

	log.Info().Str("addr", addr).Msg("Verbs listener started")
	return &listener{
		addr: addr,
		ec:   ec,
		id:   id,
		session: &listenSession{
			pd:    pd,
			conns: make(map[*C.struct_rdma_cm_id]*connID),
			max:   opts.MaxConnections,
		},
	}, nil
}

func (l *listener) Addr() string { return l.addr }

func (l *listener) RegisterMemory(buf []byte, access rdma.AccessFlags) (rdma.MemoryRegion, error) {
	return registerMemory(l.session.pd, buf, access)
}

func (l *listener) Serve(ctx context.Context) error {
	for {
		if ctx.Err() != nil || l.isClosed() {
			return nil
		}
		ev, id, err := getEvent(l.ec, listenPollInterval)
		if errors.Is(err, rdma.ErrTimeout) {
			continue
		}
		if err != nil {
			return err
		}
		handleEvent(l.session, ev, id)
	}
}

// handleEvent drives one accepted connection through its lifecycle
func handleEvent(s *listenSession, ev rdma.CMEvent, id *C.struct_rdma_cm_id) {
	switch ev.Type {
	case rdma.EventConnectRequest:
		if s.max > 0 && len(s.conns) >= s.max {
			C.rdma_reject(id, nil, 0)
			log.Warn().Int("max_connections", s.max).Msg("Rejected data plane connection")
			return
		}
		c := &connID{id: id, pd: s.pd}
		attr := rdma.QPAttr{MaxSendWR: 1, MaxRecvWR: rdma.DefaultRecvDepth, MaxSendSGE: 1, MaxRecvSGE: 1}
		if err := c.createQP(attr); err != nil {
			log.Error().Err(err).Msg("Failed to create queue pair for peer")
			C.rdma_reject(id, nil, 0)
			return
		}
		if C.fam_accept(id, 1, 1, 7, 7) != 0 {
			log.Error().Err(errnoErr("rdma_accept")).Msg("Failed to accept peer")
			_ = c.Destroy()
			return
		}
		s.conns[id] = c
	case rdma.EventEstablished:
		if c, ok := s.conns[id]; ok {
			c.connected = true
			log.Debug().Int("peers", len(s.conns)).Msg("Data plane peer connected")
		}
	case rdma.EventDisconnected:
		if c, ok := s.conns[id]; ok {
			delete(s.conns, id)
			c.connected = false
			if err := c.Destroy(); err != nil {
				log.Warn().Err(err).Msg("Failed to release peer")
			}
			log.Debug().Int("peers", len(s.conns)).Msg("Data plane peer disconnected")
		}
	default:
		log.Debug().Str("event", ev.Type.String()).Msg("Ignoring listener event")
	}
}

func (l *listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for id, c := range l.session.conns {
		_ = c.Disconnect()
		_ = c.Destroy()
		delete(l.session.conns, id)
	}
	C.rdma_destroy_id(l.id)
	C.ibv_dealloc_pd(l.session.pd)
	C.rdma_destroy_event_channel(l.ec)
	return nil
}
