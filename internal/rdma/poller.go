package rdma

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// DefaultCQBatch is the number of completions drained per poll call
const DefaultCQBatch = 16

// FatalHandler is called by the poller for every transport fault. The
// default handler terminates the process.
type FatalHandler func(ch *Channel, err error)

// CompletionObserver receives the number of completions drained per poll
type CompletionObserver interface {
	ObserveCompletions(channel int, n int)
}

// LogFatal is the default FatalHandler
func LogFatal(ch *Channel, err error) {
	log.Fatal().Err(err).Int("channel", ch.Index).Msg("RDMA transport fault")
}

// CompletionPoller drains the completion queues of every connected channel
// from one goroutine. It never blocks; when nothing completed it yields.
type CompletionPoller struct {
	channels *atomic.Pointer[[]*Channel]
	batch    int
	onFatal  FatalHandler
	observer CompletionObserver

	running bool
	done    chan struct{}
	wg      sync.WaitGroup
	mutex   sync.Mutex
}

// NewCompletionPoller creates a poller over the channel list published in
// channels
func NewCompletionPoller(channels *atomic.Pointer[[]*Channel], batch int, onFatal FatalHandler, observer CompletionObserver) *CompletionPoller {
	if batch <= 0 {
		batch = DefaultCQBatch
	}
	if onFatal == nil {
		onFatal = LogFatal
	}
	return &CompletionPoller{
		channels: channels,
		batch:    batch,
		onFatal:  onFatal,
		observer: observer,
	}
}

// Start launches the polling goroutine
func (p *CompletionPoller) Start() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.done = make(chan struct{})

	p.wg.Add(1)
	go p.run(p.done)
	log.Debug().Int("batch", p.batch).Msg("Completion poller started")
}

// Stop signals the polling goroutine and waits for it to exit
func (p *CompletionPoller) Stop() {
	p.mutex.Lock()
	if !p.running {
		p.mutex.Unlock()
		return
	}
	p.running = false
	close(p.done)
	p.mutex.Unlock()

	p.wg.Wait()
	log.Debug().Msg("Completion poller stopped")
}

func (p *CompletionPoller) run(done <-chan struct{}) {
	defer p.wg.Done()

	wcs := make([]WorkCompletion, p.batch)
	for {
		select {
		case <-done:
			return
		default:
		}

		idle := true
		if chans := p.channels.Load(); chans != nil {
			for _, ch := range *chans {
				if p.drain(ch, wcs) {
					idle = false
				}
			}
		}
		if idle {
			runtime.Gosched()
		}
	}
}

// drain polls one channel once and reports whether anything completed
func (p *CompletionPoller) drain(ch *Channel, wcs []WorkCompletion) bool {
	if ch.Err() != nil {
		return false
	}

	n, err := ch.conn.PollCQ(wcs)
	if err != nil {
		ch.fail(err)
		p.onFatal(ch, err)
		return false
	}
	if n == 0 {
		return false
	}
	if p.observer != nil {
		p.observer.ObserveCompletions(ch.Index, n)
	}

	for _, wc := range wcs[:n] {
		if wc.Status != WCSuccess {
			cerr := &CompletionError{Channel: ch.Index, WC: wc}
			ch.fail(cerr)
			p.onFatal(ch, cerr)
			break
		}
	}
	return true
}
