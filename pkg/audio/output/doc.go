// ABOUTME: Audio output package for playing relayed audio
// ABOUTME: Provides Output interface with malgo and oto implementations
// Package output provides audio playback for the relay client.
//
// Both backends accept raw 16-bit little-endian PCM exactly as it arrives
// from the socket.
//
// Example:
//
//	out := output.NewMalgo()
//	err := out.Open(audio.RelayFormat)
//	_, err = out.Write(chunk)
package output
