package memserver

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/yuuki/famgraph/internal/famrpc"
	"github.com/yuuki/famgraph/internal/rdma"
	"github.com/yuuki/famgraph/proto/memory_server"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceOptions configures a Service
type ServiceOptions struct {
	DataDir        string
	MaxRegionBytes uint64 // 0 means unbounded
	Hugepages      bool
	// Registry receives the service metrics; nil uses a private registry
	Registry *prometheus.Registry
}

// Service implements the famgraph.MemoryServer gRPC service. Regions are
// registered on the data plane listener and owned by the session that
// created them.
type Service struct {
	memory_server.UnimplementedMemoryServerServer
	listener rdma.Listener
	dataDir  string
	opts     ServiceOptions
	table    *regionTable
	metrics  *serverMetrics
}

var _ memory_server.MemoryServerServer = (*Service)(nil)

// NewService creates a memory service registering regions on listener
func NewService(listener rdma.Listener, opts ServiceOptions) (*Service, error) {
	dir, err := filepath.Abs(opts.DataDir)
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	return &Service{
		listener: listener,
		dataDir:  dir,
		opts:     opts,
		table:    newRegionTable(opts.MaxRegionBytes),
		metrics:  newServerMetrics(opts.Registry),
	}, nil
}

// Ping answers once the server is serving
func (s *Service) Ping(ctx context.Context, _ *memory_server.PingRequest) (*memory_server.PingResponse, error) {
	return &memory_server.PingResponse{}, nil
}

// AllocateRegion maps zeroed, writable memory for the calling session
func (s *Service) AllocateRegion(ctx context.Context, req *memory_server.AllocateRegionRequest) (*memory_server.Region, error) {
	id, err := famrpc.SessionFromContext(ctx)
	if err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	size := req.GetSize()
	if size == 0 {
		return nil, status.Error(codes.InvalidArgument, "region size must be positive")
	}
	if err := s.table.reserve(size); err != nil {
		return nil, status.Error(codes.ResourceExhausted, err.Error())
	}

	buf, err := rdma.AllocateRegion(size, s.opts.Hugepages)
	if err != nil {
		s.table.unreserve(size)
		log.Error().Err(err).Uint64("size", size).Msg("Failed to allocate region")
		return nil, status.Error(codes.ResourceExhausted, err.Error())
	}
	r, err := s.register(id, KindAnonymous, "", buf, rdma.AccessLocalWrite|rdma.AccessRemoteRead|rdma.AccessRemoteWrite)
	if err != nil {
		s.table.unreserve(size)
		return nil, err
	}

	log.Info().
		Str("session", id).
		Uint64("size", size).
		Uint32("rkey", r.mr.RKey()).
		Msg("Allocated region")

	return famrpc.RegionToProto(r.remote()), nil
}

// MapRemoteFile maps a file below the data directory for the calling session
func (s *Service) MapRemoteFile(ctx context.Context, req *memory_server.MapRemoteFileRequest) (*memory_server.Region, error) {
	id, err := famrpc.SessionFromContext(ctx)
	if err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	path, err := s.resolve(req.GetPath())
	if err != nil {
		return nil, err
	}

	buf, err := mapFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, status.Errorf(codes.NotFound, "file %s not found", req.GetPath())
	case errors.Is(err, rdma.ErrEmptyRegion):
		return nil, status.Errorf(codes.InvalidArgument, "file %s is empty", req.GetPath())
	case err != nil:
		log.Error().Err(err).Str("path", path).Msg("Failed to map file")
		return nil, status.Error(codes.Internal, err.Error())
	}

	size := uint64(len(buf))
	if err := s.table.reserve(size); err != nil {
		_ = rdma.FreeRegion(buf)
		return nil, status.Error(codes.ResourceExhausted, err.Error())
	}
	r, err := s.register(id, KindFile, path, buf, rdma.AccessRemoteRead)
	if err != nil {
		s.table.unreserve(size)
		return nil, err
	}

	log.Info().
		Str("session", id).
		Str("path", path).
		Uint64("size", size).
		Uint32("rkey", r.mr.RKey()).
		Msg("Mapped file")

	return famrpc.RegionToProto(r.remote()), nil
}

// EndSession releases every region of the calling session
func (s *Service) EndSession(ctx context.Context, _ *memory_server.EndSessionRequest) (*memory_server.EndSessionResponse, error) {
	id, err := famrpc.SessionFromContext(ctx)
	if err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	sess, err := s.release(id)
	if err != nil {
		return nil, err
	}
	return &memory_server.EndSessionResponse{Regions: uint32(len(sess.regions)), Bytes: sess.bytes}, nil
}

// Sessions returns a snapshot of the live sessions
func (s *Service) Sessions() []SessionInfo {
	infos, _, _ := s.table.snapshot()
	return infos
}

// Close releases every session
func (s *Service) Close() error {
	var errs []error
	for _, id := range s.table.ids() {
		if _, err := s.release(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) register(id, kind, path string, buf []byte, access rdma.AccessFlags) (*region, error) {
	mr, err := s.listener.RegisterMemory(buf, access)
	if err != nil {
		_ = rdma.FreeRegion(buf)
		log.Error().Err(err).Str("kind", kind).Msg("Failed to register region")
		return nil, status.Error(codes.Internal, err.Error())
	}
	r := &region{kind: kind, path: path, buf: buf, mr: mr}
	s.table.add(id, r)
	s.observe()
	return r, nil
}

func (s *Service) release(id string) (*session, error) {
	sess, ok := s.table.remove(id)
	if !ok {
		return nil, status.Errorf(codes.FailedPrecondition, "unknown session %s", id)
	}
	var errs []error
	for _, r := range sess.regions {
		if err := r.release(); err != nil {
			errs = append(errs, err)
		}
	}
	s.observe()

	log.Info().
		Str("session", id).
		Int("regions", len(sess.regions)).
		Uint64("bytes", sess.bytes).
		Msg("Session ended")

	if err := errors.Join(errs...); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return sess, nil
}

// resolve maps a client path onto the data directory. Paths that leave it,
// directly or through a symlink, are rejected.
func (s *Service) resolve(name string) (string, error) {
	if name == "" {
		return "", status.Error(codes.InvalidArgument, "path must not be empty")
	}
	rel := filepath.Clean(name)
	if filepath.IsAbs(rel) {
		r, err := filepath.Rel(s.dataDir, rel)
		if err != nil {
			return "", status.Errorf(codes.InvalidArgument, "path %s escapes the data directory", name)
		}
		rel = r
	}
	if !filepath.IsLocal(rel) {
		return "", status.Errorf(codes.InvalidArgument, "path %s escapes the data directory", name)
	}

	path := filepath.Join(s.dataDir, rel)
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", status.Errorf(codes.NotFound, "file %s not found", name)
		}
		return "", status.Error(codes.Internal, err.Error())
	}
	if resolved != s.dataDir && !strings.HasPrefix(resolved, s.dataDir+string(filepath.Separator)) {
		return "", status.Errorf(codes.InvalidArgument, "path %s escapes the data directory", name)
	}
	return resolved, nil
}

func (s *Service) observe() {
	_, regions, used := s.table.snapshot()
	s.metrics.regions.Set(float64(regions))
	s.metrics.bytes.Set(float64(used))
}
