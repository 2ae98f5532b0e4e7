// ABOUTME: Capture source interface definition
// ABOUTME: Common interface for backends producing raw PCM frames
package capture

import (
	"errors"

	"github.com/harperreed/audiorelay/pkg/audio"
)

var (
	// ErrClosed is returned by Read once the source has been closed
	ErrClosed = errors.New("capture source closed")

	// ErrNotOpen is returned by Read before Open succeeded
	ErrNotOpen = errors.New("capture source not open")
)

// Source produces a continuous sequence of raw PCM frames
type Source interface {
	// Open acquires the capture resource for the given format and starts capturing
	Open(format audio.Format) error

	// Read fills frame with the next captured bytes and returns how many were written.
	// It blocks until data is available or the source is closed.
	Read(frame []byte) (int, error)

	// Close releases the capture resource. It may be called concurrently with a
	// blocked Read, which then returns ErrClosed. Calling it twice is safe.
	Close() error
}
