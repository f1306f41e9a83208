package rdma

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Connection defaults
const (
	DefaultPort             = 35287                  // Memory server data plane port
	DefaultChannels         = 4                      // Parallel queue pairs per peer
	DefaultMaxOutstandingWR = 64                     // Send queue depth
	DefaultRecvDepth        = 10                     // Receive queue depth, control traffic only
	CMStageTimeout          = 500 * time.Millisecond // Timeout of each connection manager stage
	SideSendSlots           = 1                      // Send queue entries reserved for ReadUsing

	responderResources = 1
	initiatorDepth     = 1
	retryCount         = 7
	rnrRetryCount      = 7
)

var (
	// ErrUnexpectedEvent is returned when the connection manager deviates
	// from the expected event sequence
	ErrUnexpectedEvent = errors.New("rdma: unexpected connection manager event")
	// ErrCMTimeout is returned when a connection stage did not finish in time
	ErrCMTimeout = errors.New("rdma: connection manager stage timed out")
	// ErrAlreadyConnected is returned by a second Connect
	ErrAlreadyConnected = errors.New("rdma: manager already connected")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("rdma: manager closed")
)

// Options configures a Manager
type Options struct {
	Channels         int
	MaxOutstandingWR int
	RecvDepth        int
	CQBatch          int
	StageTimeout     time.Duration
	OnFatal          FatalHandler
	Observer         CompletionObserver
}

// DefaultOptions returns the options used when a field is left zero
func DefaultOptions() Options {
	return Options{
		Channels:         DefaultChannels,
		MaxOutstandingWR: DefaultMaxOutstandingWR,
		RecvDepth:        DefaultRecvDepth,
		CQBatch:          DefaultCQBatch,
		StageTimeout:     CMStageTimeout,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Channels <= 0 {
		o.Channels = d.Channels
	}
	if o.MaxOutstandingWR <= 0 {
		o.MaxOutstandingWR = d.MaxOutstandingWR
	}
	if o.RecvDepth <= 0 {
		o.RecvDepth = d.RecvDepth
	}
	if o.CQBatch <= 0 {
		o.CQBatch = d.CQBatch
	}
	if o.StageTimeout <= 0 {
		o.StageTimeout = d.StageTimeout
	}
	return o
}

// Manager owns one event channel, the channels connected to one peer and
// every region registered on them
type Manager struct {
	provider Provider
	opts     Options
	events   EventChannel

	channels atomic.Pointer[[]*Channel]
	poller   *CompletionPoller

	regions   []*LocalRegion
	regionsMu sync.Mutex

	connectMu sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewManager creates the event channel and starts the completion poller
func NewManager(provider Provider, opts Options) (*Manager, error) {
	opts = opts.withDefaults()

	events, err := provider.CreateEventChannel()
	if err != nil {
		return nil, fmt.Errorf("failed to create event channel: %w", err)
	}

	m := &Manager{
		provider: provider,
		opts:     opts,
		events:   events,
	}
	m.poller = NewCompletionPoller(&m.channels, opts.CQBatch, opts.OnFatal, opts.Observer)
	m.poller.Start()

	log.Debug().
		Str("provider", provider.Name()).
		Int("channels", opts.Channels).
		Int("max_outstanding_wr", opts.MaxOutstandingWR).
		Msg("RDMA manager created")

	return m, nil
}

// Options returns the effective options
func (m *Manager) Options() Options { return m.opts }

// Connect establishes every channel to host:port, one at a time. On failure
// the channels created so far are torn down.
func (m *Manager) Connect(ctx context.Context, host string, port int) error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	if m.closed.Load() {
		return ErrClosed
	}
	if m.channels.Load() != nil {
		return ErrAlreadyConnected
	}

	chans := make([]*Channel, 0, m.opts.Channels)
	for i := range m.opts.Channels {
		if err := ctx.Err(); err != nil {
			m.abandon(chans)
			return err
		}
		ch, err := m.connectOne(i, host, port)
		if err != nil {
			m.abandon(chans)
			return fmt.Errorf("failed to connect channel %d to %s:%d: %w", i, host, port, err)
		}
		chans = append(chans, ch)
	}
	m.channels.Store(&chans)

	log.Info().
		Str("host", host).
		Int("port", port).
		Int("channels", len(chans)).
		Msg("Connected to memory server")
	return nil
}

func (m *Manager) connectOne(index int, host string, port int) (*Channel, error) {
	id, err := m.events.CreateID()
	if err != nil {
		return nil, fmt.Errorf("failed to create connection id: %w", err)
	}

	fail := func(err error) (*Channel, error) {
		if derr := id.Destroy(); derr != nil {
			log.Warn().Err(derr).Int("channel", index).Msg("Failed to destroy connection id")
		}
		return nil, err
	}

	if err := id.ResolveAddr(host, port, m.opts.StageTimeout); err != nil {
		return fail(fmt.Errorf("failed to resolve address: %w", err))
	}
	if err := m.expectEvent(EventAddrResolved); err != nil {
		return fail(err)
	}

	qpAttr := QPAttr{
		MaxSendWR:  m.opts.MaxOutstandingWR + SideSendSlots,
		MaxRecvWR:  m.opts.RecvDepth,
		MaxSendSGE: 1,
		MaxRecvSGE: 1,
	}
	if err := id.CreateQP(qpAttr); err != nil {
		return fail(fmt.Errorf("failed to create queue pair: %w", err))
	}

	if err := id.ResolveRoute(m.opts.StageTimeout); err != nil {
		return fail(fmt.Errorf("failed to resolve route: %w", err))
	}
	if err := m.expectEvent(EventRouteResolved); err != nil {
		return fail(err)
	}

	param := ConnParam{
		ResponderResources: responderResources,
		InitiatorDepth:     initiatorDepth,
		RetryCount:         retryCount,
		RNRRetryCount:      rnrRetryCount,
	}
	if err := id.Connect(param); err != nil {
		return fail(fmt.Errorf("failed to connect: %w", err))
	}
	if err := m.expectEvent(EventEstablished); err != nil {
		return fail(err)
	}

	log.Debug().Int("channel", index).Msg("Channel established")
	return newChannel(index, id, m.opts.MaxOutstandingWR), nil
}

func (m *Manager) expectEvent(want CMEventType) error {
	ev, err := m.events.GetEvent(m.opts.StageTimeout)
	if errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: waiting for %s after %s", ErrCMTimeout, want, m.opts.StageTimeout)
	}
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}
	if ev.Type != want {
		return fmt.Errorf("%w: got %s (status %d), want %s", ErrUnexpectedEvent, ev.Type, ev.Status, want)
	}
	return nil
}

func (m *Manager) abandon(chans []*Channel) {
	for _, ch := range chans {
		if err := ch.conn.Disconnect(); err != nil {
			log.Warn().Err(err).Int("channel", ch.Index).Msg("Failed to disconnect channel")
		}
		if err := ch.conn.Destroy(); err != nil {
			log.Warn().Err(err).Int("channel", ch.Index).Msg("Failed to destroy channel")
		}
	}
}

// Channels returns the connected channels, or nil before Connect
func (m *Manager) Channels() []*Channel {
	if chans := m.channels.Load(); chans != nil {
		return *chans
	}
	return nil
}

// Channel returns channel i
func (m *Manager) Channel(i int) (*Channel, error) {
	chans := m.Channels()
	if i < 0 || i >= len(chans) {
		return nil, fmt.Errorf("rdma: channel %d out of range (%d connected)", i, len(chans))
	}
	return chans[i], nil
}

// RegisterRegion allocates size bytes and registers them on channel's
// protection domain for local write and remote read, plus remote write when
// writable is set.
func (m *Manager) RegisterRegion(channel int, size uint64, hugepages, writable bool) (*LocalRegion, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	ch, err := m.Channel(channel)
	if err != nil {
		return nil, err
	}

	buf, err := AllocateRegion(size, hugepages)
	if err != nil {
		return nil, err
	}

	access := AccessLocalWrite | AccessRemoteRead
	if writable {
		access |= AccessRemoteWrite
	}
	mr, err := ch.conn.RegisterMemory(buf, access)
	if err != nil {
		_ = FreeRegion(buf)
		return nil, fmt.Errorf("failed to register %d bytes on channel %d: %w", size, channel, err)
	}

	region := &LocalRegion{
		Channel:   channel,
		Buf:       buf,
		Writable:  writable,
		HugePages: hugepages,
		mr:        mr,
	}

	m.regionsMu.Lock()
	m.regions = append(m.regions, region)
	m.regionsMu.Unlock()

	log.Debug().
		Int("channel", channel).
		Uint64("size", size).
		Uint32("lkey", mr.LKey()).
		Msg("Registered local region")
	return region, nil
}

// Close stops the poller, then disconnects every channel and releases every
// region. Later calls return the first result.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		m.poller.Stop()

		var errs []error
		chans := m.Channels()
		for _, ch := range chans {
			if err := ch.conn.Disconnect(); err != nil {
				errs = append(errs, fmt.Errorf("failed to disconnect channel %d: %w", ch.Index, err))
			}
		}

		m.regionsMu.Lock()
		for _, r := range m.regions {
			if err := r.release(); err != nil {
				errs = append(errs, err)
			}
		}
		m.regions = nil
		m.regionsMu.Unlock()

		for _, ch := range chans {
			if err := ch.conn.Destroy(); err != nil {
				errs = append(errs, fmt.Errorf("failed to destroy channel %d: %w", ch.Index, err))
			}
		}
		if err := m.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event channel: %w", err))
		}

		m.closeErr = errors.Join(errs...)
		log.Debug().Int("channels", len(chans)).Msg("RDMA manager closed")
	})
	return m.closeErr
}
