// ABOUTME: In-memory capture, output and polling helpers for relay tests
// ABOUTME: Frames are deterministic so the receiving side can be checked byte for byte
package relay

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/harperreed/audiorelay/pkg/audio"
	"github.com/harperreed/audiorelay/pkg/audio/capture"
)

// fakeCapture produces numbered frames every interval
type fakeCapture struct {
	mu        sync.Mutex
	openErr   error
	failAfter int
	interval  time.Duration
	opens     int
	closes    int
	reads     int
	format    audio.Format
	done      chan struct{}
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{interval: 2 * time.Millisecond}
}

func (f *fakeCapture) Open(format audio.Format) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.openErr != nil {
		return f.openErr
	}
	f.format = format
	f.reads = 0
	f.done = make(chan struct{})
	return nil
}

func (f *fakeCapture) Read(frame []byte) (int, error) {
	f.mu.Lock()
	done := f.done
	k := f.reads
	f.reads++
	failAfter := f.failAfter
	interval := f.interval
	f.mu.Unlock()

	if done == nil {
		return 0, capture.ErrNotOpen
	}

	select {
	case <-done:
		return 0, capture.ErrClosed
	case <-time.After(interval):
	}

	if failAfter > 0 && k >= failAfter {
		return 0, errors.New("device lost")
	}
	fillFrame(frame, k)
	return len(frame), nil
}

func (f *fakeCapture) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	if f.done != nil {
		close(f.done)
		f.done = nil
	}
	return nil
}

func (f *fakeCapture) counts() (opens, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.closes
}

func fillFrame(frame []byte, k int) {
	for j := range frame {
		frame[j] = byte((k*7 + j) % 251)
	}
}

// expectedStream returns the first n frames the fake capture produces
func expectedStream(n int) []byte {
	size := audio.FrameSize(audio.RelayFormat)
	out := make([]byte, 0, n*size)
	frame := make([]byte, size)
	for k := 0; k < n; k++ {
		fillFrame(frame, k)
		out = append(out, frame...)
	}
	return out
}

// fakeOutput records everything written to it
type fakeOutput struct {
	mu       sync.Mutex
	openErr  error
	writeErr error
	opens    int
	closes   int
	format   audio.Format
	buf      bytes.Buffer
}

func (o *fakeOutput) Open(format audio.Format) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.openErr != nil {
		return o.openErr
	}
	o.format = format
	return nil
}

func (o *fakeOutput) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.writeErr != nil {
		return 0, o.writeErr
	}
	return o.buf.Write(p)
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closes++
	return nil
}

func (o *fakeOutput) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Len()
}

func (o *fakeOutput) Bytes() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]byte(nil), o.buf.Bytes()...)
}

func (o *fakeOutput) closeCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closes
}

// waitFor polls cond until it holds or the timeout expires
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (o *fakeOutput) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

// hangingDial blocks until the dial context ends, like a SYN nobody answers
func hangingDial(started chan<- struct{}) func(ctx context.Context, network, address string) (net.Conn, error) {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		if started != nil {
			close(started)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
}
