// Package session opens a graph for the famgraph CLI, either from local
// files or from a memory server, and tears every resource down again
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/yuuki/famgraph/internal/codec"
	"github.com/yuuki/famgraph/internal/config"
	"github.com/yuuki/famgraph/internal/famgraph"
	"github.com/yuuki/famgraph/internal/fgidx"
	"github.com/yuuki/famgraph/internal/memclient"
	"github.com/yuuki/famgraph/internal/rdma"
	"google.golang.org/grpc"
)

// Options describes where the graph lives and how to reach it
type Options struct {
	Stem       string
	RemoteStem string // stem of the adjacency file on the server, Stem when empty
	Compressed bool
	Mode       string

	ServerAddr     string
	DataAddr       string
	Provider       string
	RPCTimeout     time.Duration
	ConnectTimeout time.Duration
	DialOptions    []grpc.DialOption

	Channels         int
	MaxOutstandingWR int
	WindowBytes      uint64
	Hugepages        bool
	SpinYield        int

	BatchObserver      famgraph.BatchObserver
	CompletionObserver rdma.CompletionObserver
	OnFatal            rdma.FatalHandler
}

// OptionsFromConfig maps the CLI configuration onto Options
func OptionsFromConfig(cfg *config.FamgraphConfig) Options {
	return Options{
		Stem:             cfg.Graph,
		Compressed:       cfg.Compress,
		Mode:             cfg.Mode,
		ServerAddr:       cfg.ServerAddr,
		DataAddr:         cfg.DataAddr,
		Provider:         cfg.Provider,
		RPCTimeout:       cfg.RPCTimeout,
		ConnectTimeout:   cfg.ConnectTimeout,
		Channels:         cfg.Channels,
		MaxOutstandingWR: cfg.MaxOutstandingWR,
		WindowBytes:      cfg.WindowBytes,
		Hugepages:        cfg.Hugepages,
		SpinYield:        cfg.SpinYield,
	}
}

// Session holds an open graph and everything backing it
type Session struct {
	graph   famgraph.Graph
	manager *rdma.Manager
	client  *memclient.Client
	closed  bool
	mutex   sync.Mutex
}

// Open opens the graph described by opts
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Stem == "" {
		return nil, errors.New("graph path stem is required")
	}
	var decoder codec.Decoder = codec.Nop{}
	if opts.Compressed {
		decoder = codec.Delta{}
	}

	switch opts.Mode {
	case config.ModeLocal:
		g, err := famgraph.LoadLocalGraph(opts.Stem, decoder, max(opts.Channels, 1))
		if err != nil {
			return nil, fmt.Errorf("failed to load local graph: %w", err)
		}
		log.Info().Str("graph", opts.Stem).Uint64("vertices", g.NumVertices()).Msg("Opened local graph")
		return &Session{graph: g}, nil
	case config.ModeRemote, "":
		return openRemote(ctx, opts, decoder)
	default:
		return nil, fmt.Errorf("unknown mode %q", opts.Mode)
	}
}

func openRemote(ctx context.Context, opts Options, decoder codec.Decoder) (_ *Session, err error) {
	s := &Session{}
	defer func() {
		if err != nil {
			s.teardown(ctx)
		}
	}()

	s.client = memclient.New(opts.ServerAddr,
		memclient.WithTimeout(orDefault(opts.RPCTimeout, memclient.DefaultTimeout)),
		memclient.WithDialOptions(opts.DialOptions...),
	)
	if err := s.client.Connect(ctx); err != nil {
		return nil, err
	}
	if err := s.client.Ping(ctx); err != nil {
		return nil, err
	}

	remoteStem := opts.RemoteStem
	if remoteStem == "" {
		remoteStem = opts.Stem
	}
	indexPath, _ := fgidx.Paths(opts.Stem, opts.Compressed)
	_, adjPath := fgidx.Paths(remoteStem, opts.Compressed)

	region, err := s.client.MapRemoteFile(ctx, adjPath)
	if err != nil {
		return nil, err
	}
	idx, err := fgidx.LoadDenseIndex(indexPath, region.Words())
	if err != nil {
		return nil, err
	}

	provider, err := rdma.Lookup(opts.Provider)
	if err != nil {
		return nil, err
	}
	s.manager, err = rdma.NewManager(provider, rdma.Options{
		Channels:         opts.Channels,
		MaxOutstandingWR: opts.MaxOutstandingWR,
		StageTimeout:     opts.ConnectTimeout,
		OnFatal:          opts.OnFatal,
		Observer:         opts.CompletionObserver,
	})
	if err != nil {
		return nil, err
	}

	host, port, err := splitHostPort(opts.DataAddr)
	if err != nil {
		return nil, err
	}
	if err := s.manager.Connect(ctx, host, port); err != nil {
		return nil, err
	}

	channels := s.manager.Options().Channels
	lanes := make([]famgraph.Lane, channels)
	for i := range lanes {
		ch, err := s.manager.Channel(i)
		if err != nil {
			return nil, err
		}
		window, err := s.manager.RegisterRegion(i, opts.WindowBytes, opts.Hugepages, true)
		if err != nil {
			return nil, err
		}
		slot, err := s.manager.RegisterRegion(i, rdma.WordSize, false, true)
		if err != nil {
			return nil, err
		}
		lanes[i] = famgraph.Lane{Channel: ch, Window: window, DegreeSlot: slot}
	}

	s.graph, err = famgraph.NewRemoteGraph(idx, region, lanes, famgraph.RemoteOptions{
		Decoder:   decoder,
		SpinYield: opts.SpinYield,
		Observer:  opts.BatchObserver,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("graph", opts.Stem).
		Str("server", opts.ServerAddr).
		Uint64("vertices", idx.NumVertices()).
		Uint64("edge_words", idx.EdgeCount()).
		Int("channels", channels).
		Msg("Opened remote graph")

	return s, nil
}

// Graph returns the opened graph
func (s *Session) Graph() famgraph.Graph { return s.graph }

// Close disconnects from the memory server and ends the server side
// session. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.teardown(ctx)
}

func (s *Session) teardown(ctx context.Context) error {
	var errs []error
	if s.manager != nil {
		if err := s.manager.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.client != nil {
		if err := s.client.EndSession(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := s.client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid data address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid data port %q: %w", portStr, err)
	}
	return host, port, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
