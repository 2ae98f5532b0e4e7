//go:build unix

// ABOUTME: Reuse-address TCP listener for unix platforms
// ABOUTME: Lets a restarted server rebind while old connections sit in TIME_WAIT
package relay

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

func listen(addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}
	return lc.Listen(context.Background(), "tcp", addr)
}
