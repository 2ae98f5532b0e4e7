// ABOUTME: Audio type definitions
// ABOUTME: Defines the fixed relay format and frame sizing shared by both ends
package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// FramePeriod is the amount of audio held by one frame
	FramePeriod = 40 * time.Millisecond

	// 16-bit sample range
	Max16Bit = 32767
	Min16Bit = -32768
)

// Format describes audio stream format
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// RelayFormat is the only format carried on the wire. Both ends hard-code it,
// nothing on the connection describes it.
var RelayFormat = Format{
	Codec:      "pcm",
	SampleRate: 44100,
	Channels:   1,
	BitDepth:   16,
}

// String returns a short human-readable description
func (f Format) String() string {
	return fmt.Sprintf("%s %dHz %dch %dbit", f.Codec, f.SampleRate, f.Channels, f.BitDepth)
}

// Validate checks that the format can be relayed as raw PCM
func (f Format) Validate() error {
	if f.Codec != "pcm" {
		return fmt.Errorf("unsupported codec: %q", f.Codec)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", f.Channels)
	}
	if f.BitDepth != 16 {
		return fmt.Errorf("unsupported bit depth: %d (supported: 16)", f.BitDepth)
	}
	return nil
}

// BytesPerSample returns the size of one sample frame across all channels
func (f Format) BytesPerSample() int {
	return f.Channels * f.BitDepth / 8
}

// BytesPerSecond returns the byte rate of the stream
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.BytesPerSample()
}

// Duration returns the playback time represented by n bytes
func (f Format) Duration(n int64) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// FrameSize returns the minimum buffer size in bytes for one read of the
// format. Server and client derive it independently from the same format.
func FrameSize(f Format) int {
	samples := f.SampleRate * int(FramePeriod/time.Millisecond) / 1000
	if samples < 1 {
		samples = 1
	}
	return samples * f.BytesPerSample()
}

// PutSample16 writes a 16-bit sample in little-endian order
func PutSample16(b []byte, sample int16) {
	binary.LittleEndian.PutUint16(b, uint16(sample))
}

// Sample16 reads a little-endian 16-bit sample
func Sample16(b []byte) int16 {
	return int16(binary.LittleEndian.Uint16(b))
}

// ClampInt16 saturates v to the 16-bit range
func ClampInt16(v int32) int16 {
	if v > Max16Bit {
		return Max16Bit
	}
	if v < Min16Bit {
		return Min16Bit
	}
	return int16(v)
}
