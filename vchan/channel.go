// Package vchan implements a bounded, in-memory, process-wide message
// channel that task bodies send to and receive from via scheduler
// Checkpoints rather than a native Go channel op, since a task body may
// never block the single OS-level goroutine the run loop depends on.
//
// Registration is process-wide and keyed by id, implemented with sync.Map
// since channels (unlike tasks) may be created and looked up from outside
// the scheduler's single-threaded run loop.
package vchan

import (
	"errors"
	"sync"

	"github.com/rs/xid"

	"github.com/VennDev/VOsaka/vosaka"
)

// ErrClosed is returned by Receive when the channel is closed and empty.
var ErrClosed = errors.New("vchan: channel closed")

var registry sync.Map // xid.ID -> *Channel

// Channel is a bounded FIFO of arbitrary values, identified by an xid so
// the same channel can be looked up by id from any task.
type Channel struct {
	ID xid.ID

	mu     sync.Mutex
	buf    []any
	cap    int
	closed bool
}

// New creates and registers a Channel with the given capacity. A capacity
// of 0 or less means unbounded.
func New(capacity int) *Channel {
	c := &Channel{ID: xid.New(), cap: capacity}
	registry.Store(c.ID, c)
	return c
}

// Lookup finds a previously created Channel by id.
func Lookup(id xid.ID) (*Channel, bool) {
	v, ok := registry.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Channel), true
}

// Close marks the channel closed; further Send calls fail, and pending
// Receive calls drain whatever remains before reporting closed.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	registry.Delete(c.ID)
}

func (c *Channel) full() bool {
	return c.cap > 0 && len(c.buf) >= c.cap
}

// Send is a Runnable: spawned or awaited like any other task body, it
// Checkpoints until there is room in the channel, then appends v.
func (c *Channel) Send(v any) vosaka.Runnable {
	return vosaka.RunnableFunc(func(y *vosaka.Yielder) (any, error) {
		for {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return nil, ErrClosed
			}
			if !c.full() {
				c.buf = append(c.buf, v)
				c.mu.Unlock()
				return nil, nil
			}
			c.mu.Unlock()
			if err := y.Checkpoint(); err != nil {
				return nil, err
			}
		}
	})
}

// Receive is a Runnable: it Checkpoints until a value is available (or
// the channel is closed and drained), returning the value or ErrClosed
// to signal "closed and empty".
func (c *Channel) Receive() vosaka.Runnable {
	return vosaka.RunnableFunc(func(y *vosaka.Yielder) (any, error) {
		for {
			c.mu.Lock()
			if len(c.buf) > 0 {
				v := c.buf[0]
				c.buf = c.buf[1:]
				c.mu.Unlock()
				return v, nil
			}
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return nil, ErrClosed
			}
			if err := y.Checkpoint(); err != nil {
				return nil, err
			}
		}
	})
}

// Len reports how many values are currently buffered.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}
