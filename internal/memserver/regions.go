package memserver

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/yuuki/famgraph/internal/rdma"
)

// Region kinds
const (
	KindAnonymous = "anonymous"
	KindFile      = "file"
)

// region is one registered mapping owned by a session
type region struct {
	kind string
	path string
	buf  []byte
	mr   rdma.MemoryRegion
}

func (r *region) remote() rdma.RemoteRegion {
	return rdma.RemoteRegion{Addr: r.mr.Addr(), Length: uint64(len(r.buf)), RKey: r.mr.RKey()}
}

func (r *region) release() error {
	var errs []error
	if err := r.mr.Deregister(); err != nil {
		errs = append(errs, fmt.Errorf("failed to deregister %s region: %w", r.kind, err))
	}
	if err := rdma.FreeRegion(r.buf); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

type session struct {
	id      string
	created time.Time
	regions []*region
	bytes   uint64
}

// SessionInfo is the admin view of a session
type SessionInfo struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	Regions int       `json:"regions"`
	Bytes   uint64    `json:"bytes"`
}

// regionTable tracks every mapping per session against a global byte budget
type regionTable struct {
	mu       sync.Mutex
	sessions map[string]*session
	used     uint64
	limit    uint64
}

var errBudget = errors.New("region budget exhausted")

func newRegionTable(limit uint64) *regionTable {
	return &regionTable{sessions: make(map[string]*session), limit: limit}
}

// reserve claims size bytes of the budget
func (t *regionTable) reserve(size uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limit > 0 && (size > t.limit || t.used > t.limit-size) {
		return fmt.Errorf("%w: %d bytes requested, %d of %d in use", errBudget, size, t.used, t.limit)
	}
	t.used += size
	return nil
}

func (t *regionTable) unreserve(size uint64) {
	t.mu.Lock()
	t.used -= size
	t.mu.Unlock()
}

// add records r under the session id, creating the session on first use.
// The bytes must already be reserved.
func (t *regionTable) add(id string, r *region) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		s = &session{id: id, created: time.Now()}
		t.sessions[id] = s
	}
	s.regions = append(s.regions, r)
	s.bytes += uint64(len(r.buf))
}

// remove detaches the session and returns its regions
func (t *regionTable) remove(id string) (*session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return nil, false
	}
	delete(t.sessions, id)
	t.used -= s.bytes
	return s, true
}

func (t *regionTable) ids() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (t *regionTable) snapshot() (infos []SessionInfo, regions int, used uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	infos = make([]SessionInfo, 0, len(t.sessions))
	for _, s := range t.sessions {
		infos = append(infos, SessionInfo{ID: s.id, Created: s.created, Regions: len(s.regions), Bytes: s.bytes})
		regions += len(s.regions)
	}
	return infos, regions, t.used
}

// mapFile maps the file at path privately
func mapFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	return rdma.MapFile(int(f.Fd()), st.Size())
}
