// ABOUTME: Byte ring buffer between the network reader and the device callback
// ABOUTME: Writers block while full, the callback never blocks
package output

import "sync"

// RingBuffer provides a thread-safe circular buffer for PCM bytes
type RingBuffer struct {
	buffer   []byte
	readPos  int
	writePos int
	size     int
	count    int
	closed   bool
	mu       sync.Mutex
	drained  *sync.Cond
}

// NewRingBuffer creates a ring buffer with given capacity (in bytes)
func NewRingBuffer(capacity int) *RingBuffer {
	rb := &RingBuffer{
		buffer: make([]byte, capacity),
		size:   capacity,
	}
	rb.drained = sync.NewCond(&rb.mu)
	return rb
}

// Write copies all of p into the buffer, waiting for space as needed.
// It returns early with the bytes written so far once the buffer is closed.
func (rb *RingBuffer) Write(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for written < len(p) {
		for rb.count == rb.size && !rb.closed {
			rb.drained.Wait()
		}
		if rb.closed {
			return written
		}
		for written < len(p) && rb.count < rb.size {
			rb.buffer[rb.writePos] = p[written]
			rb.writePos = (rb.writePos + 1) % rb.size
			rb.count++
			written++
		}
	}
	return written
}

// Read drains up to len(p) bytes and zero-fills the rest on underrun
func (rb *RingBuffer) Read(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for read < len(p) && rb.count > 0 {
		p[read] = rb.buffer[rb.readPos]
		rb.readPos = (rb.readPos + 1) % rb.size
		rb.count--
		read++
	}

	for i := read; i < len(p); i++ {
		p[i] = 0
	}

	if read > 0 {
		rb.drained.Broadcast()
	}
	return read
}

// Available returns the number of bytes available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Close wakes blocked writers; further writes are discarded
func (rb *RingBuffer) Close() {
	rb.mu.Lock()
	rb.closed = true
	rb.mu.Unlock()
	rb.drained.Broadcast()
}
