// ABOUTME: Malgo-based capture source
// ABOUTME: Captures microphone or system output (loopback) through miniaudio
package capture

import (
	"fmt"
	"log"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/harperreed/audiorelay/pkg/audio"
)

// chunkQueueDepth bounds how many device periods are held while nobody reads.
// The oldest period is evicted when the queue is full.
const chunkQueueDepth = 64

// Malgo captures PCM from a miniaudio device
type Malgo struct {
	loopback bool

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	chunks   chan []byte
	pending  []byte
	done     chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
}

// NewMalgo creates a capture source. With loopback set it records the
// system output mix instead of the default input device.
func NewMalgo(loopback bool) *Malgo {
	return &Malgo{loopback: loopback}
}

// Open initializes and starts the capture device
func (m *Malgo) Open(format audio.Format) error {
	if err := format.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return fmt.Errorf("capture device already open")
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Printf("[capture] malgo: %s", message)
	})
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	deviceType := malgo.Capture
	if m.loopback {
		deviceType = malgo.Loopback
	}

	cfg := malgo.DefaultDeviceConfig(deviceType)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(format.Channels)
	cfg.SampleRate = uint32(format.SampleRate)
	cfg.PeriodSizeInFrames = uint32(audio.FrameSize(format) / format.BytesPerSample())

	chunks := make(chan []byte, chunkQueueDepth)
	done := make(chan struct{})

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			if len(pInput) == 0 {
				return
			}
			// miniaudio reuses pInput after the callback returns
			chunk := make([]byte, len(pInput))
			copy(chunk, pInput)
			offerChunk(chunks, done, chunk)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	m.malgoCtx = ctx
	m.device = device
	m.chunks = chunks
	m.done = done
	m.pending = nil
	m.closeOnce = sync.Once{}

	log.Printf("Capture initialized: %s (loopback=%v)", format, m.loopback)
	return nil
}

// Read fills frame completely from captured periods
func (m *Malgo) Read(frame []byte) (int, error) {
	m.mu.Lock()
	chunks, done := m.chunks, m.done
	m.mu.Unlock()

	if chunks == nil {
		return 0, ErrNotOpen
	}

	filled := 0
	for filled < len(frame) {
		if len(m.pending) == 0 {
			select {
			case chunk := <-chunks:
				m.pending = chunk
			case <-done:
				return 0, ErrClosed
			}
		}
		n := copy(frame[filled:], m.pending)
		m.pending = m.pending[n:]
		filled += n
	}
	return filled, nil
}

// Close stops the device and unblocks a pending Read
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done != nil {
		m.closeOnce.Do(func() { close(m.done) })
	}

	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			log.Printf("Warning: capture device stop error: %v", err)
		}
		m.device.Uninit()
		m.device = nil
	}

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			log.Printf("Warning: malgo context uninit error: %v", err)
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}

	m.chunks = nil
	return nil
}

// offerChunk queues chunk without blocking the device callback, evicting the
// oldest queued period when the queue is full
func offerChunk(chunks chan []byte, done <-chan struct{}, chunk []byte) {
	for {
		select {
		case <-done:
			return
		case chunks <- chunk:
			return
		default:
		}
		select {
		case <-chunks:
		default:
		}
	}
}
