// ABOUTME: Plumbing shared by server and client sessions
// ABOUTME: Close-once connections, bounded worker joins and defaults
package relay

import (
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultPort is the well-known relay port
	DefaultPort = 8080

	// DefaultConnectTimeout bounds the client dial
	DefaultConnectTimeout = 5 * time.Second

	// DefaultJoinTimeout bounds how long Stop waits for a worker to exit
	DefaultJoinTimeout = 500 * time.Millisecond

	// acceptRetryDelay keeps a failing listener from spinning
	acceptRetryDelay = 50 * time.Millisecond
)

// onceConn closes the underlying connection exactly once. Both the stopping
// goroutine and the worker close it; only the first call reaches the socket.
type onceConn struct {
	net.Conn
	once sync.Once
	err  error
}

func newOnceConn(c net.Conn) *onceConn {
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return &onceConn{Conn: c}
}

func (c *onceConn) Close() error {
	c.once.Do(func() {
		c.err = c.Conn.Close()
	})
	return c.err
}

// connSlot publishes the active connection to the stopping goroutine
type connSlot struct {
	p atomic.Pointer[onceConn]
}

func (s *connSlot) set(c *onceConn) { s.p.Store(c) }

func (s *connSlot) clear(c *onceConn) { s.p.CompareAndSwap(c, nil) }

func (s *connSlot) get() *onceConn { return s.p.Load() }

// closeActive closes whatever connection is currently published
func (s *connSlot) closeActive() {
	if c := s.p.Load(); c != nil {
		_ = c.Close()
	}
}

// remote returns the published connection's peer, or ""
func (s *connSlot) remote() string {
	if c := s.p.Load(); c != nil {
		if ra := c.RemoteAddr(); ra != nil {
			return ra.String()
		}
	}
	return ""
}

// waitDone waits for a worker to exit. A timeout is only a warning: the
// worker's blocking calls have already been forced to fail.
func waitDone(done <-chan struct{}, timeout time.Duration, who string) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		log.Printf("Warning: %s worker still running after %v", who, timeout)
		return false
	}
}
