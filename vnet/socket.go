// Package vnet implements a TCP/UDP client wrapper that reconnects on
// failure by sleeping and retrying rather than blocking, since a task
// body may never perform a real blocking syscall on the scheduler's
// single goroutine without starving every other task.
package vnet

import (
	"errors"
	"net"
	"time"

	"github.com/rs/xid"

	"github.com/VennDev/VOsaka/vosaka"
)

// ErrNotConnected is returned by Send/Receive when called before Connect
// has succeeded.
var ErrNotConnected = errors.New("vnet: not connected")

// Socket is a reconnecting TCP/UDP client. All of its methods are
// Runnables meant to be spawned or awaited from inside a scheduler.
type Socket struct {
	ID      xid.ID
	network string // "tcp" or "udp"
	addr    string
	dialer  net.Dialer

	conn net.Conn
}

// New builds a Socket targeting addr over network ("tcp" or "udp").
// Connect must be awaited before Send/Receive will succeed.
func New(network, addr string) *Socket {
	return &Socket{ID: xid.New(), network: network, addr: addr}
}

// Connect is a Runnable that dials the socket up to maxAttempts times,
// sleeping retryDelaySeconds between attempts; the delay is fixed and does
// not grow between attempts.
func (s *Socket) Connect(maxAttempts int, retryDelaySeconds float64) vosaka.Runnable {
	return vosaka.RunnableFunc(func(y *vosaka.Yielder) (any, error) {
		var lastErr error
		for attempt := 0; attempt < maxAttempts || maxAttempts <= 0; attempt++ {
			ctx := y.Context()
			conn, err := s.dialer.DialContext(ctx, s.network, s.addr)
			if err == nil {
				s.conn = conn
				return nil, nil
			}
			lastErr = err
			if maxAttempts > 0 && attempt == maxAttempts-1 {
				break
			}
			if err := y.Sleep(retryDelaySeconds); err != nil {
				return nil, err
			}
		}
		return nil, lastErr
	})
}

// Send is a Runnable writing b to the connection. On a connection-level
// error it clears the cached connection so a subsequent Connect is
// required, rather than silently retrying mid-write.
func (s *Socket) Send(b []byte) vosaka.Runnable {
	return vosaka.RunnableFunc(func(y *vosaka.Yielder) (any, error) {
		if s.conn == nil {
			return nil, ErrNotConnected
		}
		n, err := s.conn.Write(b)
		if err != nil {
			s.conn = nil
			return nil, err
		}
		return n, nil
	})
}

// Receive is a Runnable that reads up to len(buf) bytes, using a short
// deadline and a Checkpoint loop so a read with nothing available yet
// yields back to the scheduler instead of blocking it.
func (s *Socket) Receive(buf []byte) vosaka.Runnable {
	return vosaka.RunnableFunc(func(y *vosaka.Yielder) (any, error) {
		if s.conn == nil {
			return nil, ErrNotConnected
		}
		for {
			_ = s.conn.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
			n, err := s.conn.Read(buf)
			if n > 0 {
				return n, nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if err := y.Checkpoint(); err != nil {
					return nil, err
				}
				continue
			}
			if err != nil {
				s.conn = nil
				return nil, err
			}
		}
	})
}

// Close closes the underlying connection, if any.
func (s *Socket) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
