// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for playback backends consuming raw PCM bytes
package output

import (
	"errors"
	"fmt"

	"github.com/harperreed/audiorelay/pkg/audio"
)

// ErrNotOpen is returned by Write before Open succeeded or after Close
var ErrNotOpen = errors.New("output not initialized")

// Output represents an audio output device
type Output interface {
	// Open initializes the output device for the format
	Open(format audio.Format) error

	// Write queues raw PCM bytes for playback (blocks while the device is behind)
	Write(p []byte) (int, error)

	// Close releases output resources
	Close() error
}

// New returns the named backend ("malgo" or "oto")
func New(backend string) (Output, error) {
	switch backend {
	case "", "malgo":
		return NewMalgo(), nil
	case "oto":
		return NewOto(), nil
	default:
		return nil, fmt.Errorf("unknown output backend: %q (supported: malgo, oto)", backend)
	}
}
