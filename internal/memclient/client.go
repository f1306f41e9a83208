// Package memclient is the compute side of the memory server control plane
package memclient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/yuuki/famgraph/internal/famrpc"
	"github.com/yuuki/famgraph/internal/rdma"
	"github.com/yuuki/famgraph/proto/memory_server"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
)

// DefaultTimeout bounds every call when no timeout is configured
const DefaultTimeout = 5 * time.Second

// Client is a client for the memory server. Every call carries the session
// id the client was created with.
type Client struct {
	addr     string
	session  string
	timeout  time.Duration
	dialOpts []grpc.DialOption
	conn     *grpc.ClientConn
	client   memory_server.MemoryServerClient
	mutex    sync.Mutex
}

// Option customizes a Client
type Option func(*Client)

// WithTimeout sets the per call timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithDialOptions appends gRPC dial options
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) { c.dialOpts = append(c.dialOpts, opts...) }
}

// WithSession overrides the generated session id
func WithSession(id string) Option {
	return func(c *Client) { c.session = id }
}

// New creates a client for the server at addr. A bare host:port is
// resolved through DNS; addresses with a scheme are used as given.
func New(addr string, opts ...Option) *Client {
	c := &Client{
		addr:    addr,
		session: uuid.NewString(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the session id sent with every call
func (c *Client) Session() string { return c.session }

// Connect connects to the server and waits until the channel is ready
func (c *Client) Connect(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.conn != nil {
		return nil
	}

	target := c.addr
	if !strings.Contains(target, "://") {
		target = "dns:///" + target
	}
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, c.dialOpts...)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return fmt.Errorf("failed to create client for memory server at %s: %w", c.addr, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			break
		}
		if !conn.WaitForStateChange(ctx, state) {
			conn.Close()
			return fmt.Errorf("connection to memory server at %s failed to become ready within %s", c.addr, c.timeout)
		}
	}

	c.conn = conn
	c.client = memory_server.NewMemoryServerClient(conn)
	log.Info().Str("addr", c.addr).Str("session", c.session).Msg("Connected to memory server")

	return nil
}

// Close closes the connection to the server. It does not end the session.
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			return err
		}
		c.conn = nil
		c.client = nil
	}

	return nil
}

func (c *Client) call(ctx context.Context) (memory_server.MemoryServerClient, context.Context, context.CancelFunc, error) {
	c.mutex.Lock()
	client := c.client
	c.mutex.Unlock()
	if client == nil {
		return nil, nil, nil, fmt.Errorf("not connected to memory server")
	}
	ctx, cancel := context.WithTimeout(famrpc.WithSession(ctx, c.session), c.timeout)
	return client, ctx, cancel, nil
}

// Ping checks the server is serving
func (c *Client) Ping(ctx context.Context) error {
	client, ctx, cancel, err := c.call(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if _, err := client.Ping(ctx, &memory_server.PingRequest{}); err != nil {
		return fmt.Errorf("failed to ping memory server: %w", err)
	}
	return nil
}

// AllocateRegion asks the server for size bytes of zeroed remote memory
func (c *Client) AllocateRegion(ctx context.Context, size uint64) (rdma.RemoteRegion, error) {
	client, ctx, cancel, err := c.call(ctx)
	if err != nil {
		return rdma.RemoteRegion{}, err
	}
	defer cancel()

	resp, err := client.AllocateRegion(ctx, &memory_server.AllocateRegionRequest{Size: size})
	if err != nil {
		return rdma.RemoteRegion{}, fmt.Errorf("failed to allocate %d byte region: %w", size, err)
	}
	return decode(resp)
}

// MapRemoteFile asks the server to map path, relative to its data
// directory
func (c *Client) MapRemoteFile(ctx context.Context, path string) (rdma.RemoteRegion, error) {
	client, ctx, cancel, err := c.call(ctx)
	if err != nil {
		return rdma.RemoteRegion{}, err
	}
	defer cancel()

	resp, err := client.MapRemoteFile(ctx, &memory_server.MapRemoteFileRequest{Path: path})
	if err != nil {
		return rdma.RemoteRegion{}, fmt.Errorf("failed to map remote file %s: %w", path, err)
	}
	region, err := decode(resp)
	if err != nil {
		return rdma.RemoteRegion{}, err
	}

	log.Info().
		Str("path", path).
		Uint64("addr", region.Addr).
		Uint64("length", region.Length).
		Uint32("rkey", region.RKey).
		Msg("Mapped remote file")

	return region, nil
}

// EndSession releases every region the server holds for this client
func (c *Client) EndSession(ctx context.Context) error {
	client, ctx, cancel, err := c.call(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	resp, err := client.EndSession(ctx, &memory_server.EndSessionRequest{})
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", c.session, err)
	}

	log.Info().
		Str("session", c.session).
		Uint32("regions", resp.GetRegions()).
		Uint64("bytes", resp.GetBytes()).
		Msg("Ended memory server session")

	return nil
}

func decode(resp *memory_server.Region) (rdma.RemoteRegion, error) {
	region, err := famrpc.RegionFromProto(resp)
	if err != nil {
		return rdma.RemoteRegion{}, fmt.Errorf("server returned a bad region: %w", err)
	}
	return region, nil
}
