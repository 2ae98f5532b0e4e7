// ABOUTME: Test tone generator capture source
// ABOUTME: Generates a 440Hz sine wave paced in real time
package capture

import (
	"math"
	"sync"

	"github.com/harperreed/audiorelay/pkg/audio"
)

// Tone generates a sine wave, useful when no capture device is available
type Tone struct {
	frequency   float64
	sampleIndex uint64
	format      audio.Format
	pacer       *pacer

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	open      bool
}

// NewTone creates a tone generator at the given frequency (0 = 440Hz)
func NewTone(frequency float64) *Tone {
	if frequency <= 0 {
		frequency = 440.0 // A4 note
	}
	return &Tone{frequency: frequency}
}

// Open starts the generator
func (s *Tone) Open(format audio.Format) error {
	if err := format.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.format = format
	s.pacer = newPacer(format)
	s.done = make(chan struct{})
	s.closeOnce = sync.Once{}
	s.sampleIndex = 0
	s.open = true
	return nil
}

// Read fills frame with whole samples of the tone
func (s *Tone) Read(frame []byte) (int, error) {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return 0, ErrNotOpen
	}
	done := s.done
	format := s.format
	p := s.pacer
	s.mu.Unlock()

	select {
	case <-done:
		return 0, ErrClosed
	default:
	}

	bps := format.BytesPerSample()
	n := len(frame) - len(frame)%bps

	for off := 0; off < n; off += bps {
		t := float64(s.sampleIndex) / float64(format.SampleRate)
		// 50% volume to avoid clipping
		v := int16(math.Sin(2*math.Pi*s.frequency*t) * audio.Max16Bit * 0.5)
		for ch := 0; ch < format.Channels; ch++ {
			audio.PutSample16(frame[off+ch*2:], v)
		}
		s.sampleIndex++
	}

	if !p.wait(n, done) {
		return 0, ErrClosed
	}
	return n, nil
}

// Close stops the generator and unblocks a pending Read
func (s *Tone) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		s.closeOnce.Do(func() { close(s.done) })
	}
	s.open = false
	return nil
}
