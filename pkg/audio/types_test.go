// ABOUTME: Tests for audio types
// ABOUTME: Tests frame sizing, format validation and sample helpers
package audio

import (
	"testing"
	"time"
)

func TestRelayFormat(t *testing.T) {
	if RelayFormat.SampleRate != 44100 {
		t.Errorf("expected sample rate 44100, got %d", RelayFormat.SampleRate)
	}
	if RelayFormat.Channels != 1 {
		t.Errorf("expected mono, got %d channels", RelayFormat.Channels)
	}
	if RelayFormat.BitDepth != 16 {
		t.Errorf("expected 16-bit, got %d", RelayFormat.BitDepth)
	}
	if err := RelayFormat.Validate(); err != nil {
		t.Errorf("relay format should validate: %v", err)
	}
}

func TestFrameSize(t *testing.T) {
	tests := []struct {
		name     string
		format   Format
		expected int
	}{
		{"relay", RelayFormat, 3528},
		{"stereo 48k", Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16}, 7680},
		{"tiny rate", Format{Codec: "pcm", SampleRate: 10, Channels: 1, BitDepth: 16}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FrameSize(tt.format)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestFrameSizeIsWholeSamples(t *testing.T) {
	if FrameSize(RelayFormat)%RelayFormat.BytesPerSample() != 0 {
		t.Error("frame size must be a multiple of the sample size")
	}
}

func TestFormatValidate(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		wantErr bool
	}{
		{"valid", RelayFormat, false},
		{"opus", Format{Codec: "opus", SampleRate: 48000, Channels: 2, BitDepth: 16}, true},
		{"24bit", Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 24}, true},
		{"zero rate", Format{Codec: "pcm", Channels: 1, BitDepth: 16}, true},
		{"zero channels", Format{Codec: "pcm", SampleRate: 44100, BitDepth: 16}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.format.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDuration(t *testing.T) {
	d := RelayFormat.Duration(int64(RelayFormat.BytesPerSecond()))
	if d != time.Second {
		t.Errorf("expected 1s, got %v", d)
	}

	d = RelayFormat.Duration(int64(FrameSize(RelayFormat)))
	if d != FramePeriod {
		t.Errorf("expected %v, got %v", FramePeriod, d)
	}
}

func TestSample16RoundTrip(t *testing.T) {
	buf := make([]byte, 2)
	for _, v := range []int16{0, 1, -1, Max16Bit, Min16Bit, 12345} {
		PutSample16(buf, v)
		if got := Sample16(buf); got != v {
			t.Errorf("expected %d, got %d", v, got)
		}
	}

	PutSample16(buf, 0x1234)
	if buf[0] != 0x34 || buf[1] != 0x12 {
		t.Errorf("expected little-endian bytes, got %x", buf)
	}
}

func TestClampInt16(t *testing.T) {
	tests := []struct {
		input    int32
		expected int16
	}{
		{0, 0},
		{40000, Max16Bit},
		{-40000, Min16Bit},
		{-5, -5},
	}

	for _, tt := range tests {
		if got := ClampInt16(tt.input); got != tt.expected {
			t.Errorf("ClampInt16(%d): expected %d, got %d", tt.input, tt.expected, got)
		}
	}
}
