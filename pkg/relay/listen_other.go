//go:build !unix

// ABOUTME: TCP listener for non-unix platforms
// ABOUTME: SO_REUSEADDR on Windows allows port stealing, so it is left unset
package relay

import "net"

func listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
