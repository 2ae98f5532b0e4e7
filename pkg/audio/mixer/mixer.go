// ABOUTME: Output mute control for the source device
// ABOUTME: Mixer interface plus an in-memory implementation
package mixer

import "sync"

// Mixer reads and sets the mute state of the local output channel
type Mixer interface {
	IsMuted() (bool, error)
	SetMuted(muted bool) error
}

// Memory keeps the mute state in process. Used when no system mixer is
// reachable and in tests.
type Memory struct {
	muted bool
	sets  int
	mu    sync.Mutex
}

// NewMemory creates an in-memory mixer with the given initial state
func NewMemory(muted bool) *Memory {
	return &Memory{muted: muted}
}

func (m *Memory) IsMuted() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted, nil
}

func (m *Memory) SetMuted(muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
	m.sets++
	return nil
}

// Sets returns how many times SetMuted was called
func (m *Memory) Sets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}
