// ABOUTME: Audio fundamentals package providing the relay format
// ABOUTME: Defines Format, RelayFormat, FrameSize and sample helpers
// Package audio provides the audio types shared by the relay server and client.
//
// The relay carries a single fixed format, RelayFormat: 16-bit little-endian
// PCM, mono, 44100 Hz. There is no header on the wire, so both ends must agree
// on this value and on FrameSize, the size of one capture read.
//
// Example:
//
//	frame := make([]byte, audio.FrameSize(audio.RelayFormat))
//	n, err := src.Read(frame)
package audio
