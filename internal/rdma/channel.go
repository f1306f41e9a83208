package rdma

import (
	"fmt"
	"sync/atomic"
)

// CompletionError is raised by the poller for a non-success completion
type CompletionError struct {
	Channel int
	WC      WorkCompletion
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("rdma: channel %d: work request %d completed with %s", e.Channel, e.WC.WRID, e.WC.Status)
}

type channelFault struct {
	err error
}

// Channel is one reliable connection to the remote peer together with its
// work request pool. Read and Write share that pool and must be driven by one
// goroutine at a time; ReadUsing brings its own pool and may run alongside.
type Channel struct {
	Index int
	conn  ConnID
	pool  *WRPool
	fault atomic.Pointer[channelFault]
}

func newChannel(index int, conn ConnID, poolSize int) *Channel {
	return &Channel{
		Index: index,
		conn:  conn,
		pool:  NewWRPool(poolSize),
	}
}

// Conn returns the underlying connection id
func (c *Channel) Conn() ConnID { return c.conn }

// MaxOutstanding returns the number of requests one post may carry
func (c *Channel) MaxOutstanding() int { return c.pool.Cap() }

// Read posts a chained RDMA READ of segs into local
func (c *Channel) Read(local *LocalRegion, rkey uint32, segs []Segment) error {
	if err := c.Err(); err != nil {
		return err
	}
	return c.pool.Post(c.conn, local, rkey, segs)
}

// ReadUsing is Read through a caller owned pool. The queue pair reserves
// SideSendSlots entries for such reads.
func (c *Channel) ReadUsing(pool *WRPool, local *LocalRegion, rkey uint32, segs []Segment) error {
	if err := c.Err(); err != nil {
		return err
	}
	return pool.Post(c.conn, local, rkey, segs)
}

// Write posts a chained RDMA WRITE of segs from local
func (c *Channel) Write(local *LocalRegion, rkey uint32, segs []Segment) error {
	if err := c.Err(); err != nil {
		return err
	}
	return c.pool.PostWrite(c.conn, local, rkey, segs)
}

// Err returns the first transport fault seen on the channel, if any
func (c *Channel) Err() error {
	if f := c.fault.Load(); f != nil {
		return f.err
	}
	return nil
}

func (c *Channel) fail(err error) {
	c.fault.CompareAndSwap(nil, &channelFault{err: err})
}
