// Package memserver is the memory side of famgraph. It serves graph files
// and scratch regions over RDMA and hands their keys out through a gRPC
// control plane.
package memserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/yuuki/famgraph/internal/config"
	"github.com/yuuki/famgraph/internal/rdma"
	"github.com/yuuki/famgraph/proto/memory_server"
	"go.uber.org/ratelimit"
	"google.golang.org/grpc"
)

// Server owns the data plane listener, the gRPC server and the admin
// endpoint
type Server struct {
	ctx      context.Context
	cancel   context.CancelFunc
	config   *config.MemserverConfig
	listener rdma.Listener
	service  *Service
	registry *prometheus.Registry
	server   *grpc.Server
	admin    *http.Server
	wg       sync.WaitGroup
}

// New creates a memory server from cfg. The data plane starts listening
// immediately; nothing is served until Start.
func New(cfg *config.MemserverConfig) (*Server, error) {
	provider, err := rdma.Lookup(cfg.Provider)
	if err != nil {
		return nil, err
	}

	listener, err := provider.Listen(cfg.DataAddr, rdma.ListenOptions{MaxConnections: cfg.MaxConnections})
	if err != nil {
		return nil, fmt.Errorf("failed to start data plane listener: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service, err := NewService(listener, ServiceOptions{
		DataDir:        cfg.DataDir,
		MaxRegionBytes: cfg.MaxRegionBytes,
		Hugepages:      cfg.Hugepages,
		Registry:       registry,
	})
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to create memory service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		ctx:      ctx,
		cancel:   cancel,
		config:   cfg,
		listener: listener,
		service:  service,
		registry: registry,
	}, nil
}

// Service returns the control plane implementation
func (s *Server) Service() *Service { return s.service }

// DataAddr returns the bound data plane address
func (s *Server) DataAddr() string { return s.listener.Addr() }

// Start serves the data plane, the control plane on lis and, when
// configured, the admin endpoint. A nil lis listens on cfg.ListenAddr.
func (s *Server) Start(lis net.Listener) error {
	if lis == nil {
		var err error
		lis, err = net.Listen("tcp", s.config.ListenAddr)
		if err != nil {
			return fmt.Errorf("failed to listen: %w", err)
		}
	}

	var limiter ratelimit.Limiter
	if s.config.RPCRateLimit > 0 {
		limiter = ratelimit.New(s.config.RPCRateLimit)
	}
	s.server = grpc.NewServer(grpc.UnaryInterceptor(s.service.unaryInterceptor(limiter)))
	memory_server.RegisterMemoryServerServer(s.server, s.service)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.listener.Serve(s.ctx); err != nil {
			log.Error().Err(err).Msg("Data plane listener error")
		}
	}()

	log.Info().
		Str("addr", lis.Addr().String()).
		Str("data_addr", s.listener.Addr()).
		Str("data_dir", s.service.dataDir).
		Msg("Starting gRPC server")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server error")
		}
	}()

	if s.config.AdminAddr != "" {
		s.admin = &http.Server{
			Addr:         s.config.AdminAddr,
			Handler:      adminRouter(s.service, s.registry),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			log.Info().Str("addr", s.config.AdminAddr).Msg("Starting admin server")
			if err := s.admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Admin server error")
			}
		}()
	}

	return nil
}

// Stop drains the control plane, then releases every session and the data
// plane listener
func (s *Server) Stop() {
	if s.server != nil {
		s.server.GracefulStop()
	}
	if s.admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.admin.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to shut down admin server")
		}
		cancel()
	}

	s.cancel()
	s.wg.Wait()

	if err := s.service.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to release sessions")
	}
	if err := s.listener.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close data plane listener")
	}

	log.Info().Msg("Memory server stopped")
}

// Run runs the server until signaled to stop
func (s *Server) Run() error {
	if err := s.Start(nil); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	s.Stop()

	return nil
}
