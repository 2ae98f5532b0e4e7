// ABOUTME: Capture package producing raw PCM frames for the relay server
// ABOUTME: Provides Source interface with malgo, tone and file implementations
// Package capture provides audio sources for the relay server.
//
// A Source is opened with the relay format and read one frame at a time.
// Close must unblock a pending Read so a stopping server never waits on audio
// hardware.
//
// Example:
//
//	src := capture.NewMalgo(true) // loopback: record what the speakers play
//	if err := src.Open(audio.RelayFormat); err != nil {
//	    return err
//	}
//	defer src.Close()
package capture
