// ABOUTME: Error taxonomy for relay sessions
// ABOUTME: Sentinel errors callers match with errors.Is
package relay

import "errors"

var (
	// ErrAlreadyRunning is returned by Start/Connect while a session of that role is active
	ErrAlreadyRunning = errors.New("session already running")

	// ErrBind means the server listener could not be bound
	ErrBind = errors.New("failed to bind listener")

	// ErrConnectTimeout means the client gave up dialing after the connect timeout
	ErrConnectTimeout = errors.New("connection timed out")

	// ErrConnectFailure covers every other connect-phase failure
	ErrConnectFailure = errors.New("connection failed")

	// ErrTransport is a mid-stream socket failure
	ErrTransport = errors.New("transport error")

	// ErrCaptureUnavailable means the capture source could not be opened
	ErrCaptureUnavailable = errors.New("capture unavailable")

	// ErrCapture is a capture failure while streaming; fatal to the server session
	ErrCapture = errors.New("capture error")

	// ErrPlaybackUnavailable means the playback sink could not be opened
	ErrPlaybackUnavailable = errors.New("playback unavailable")

	// ErrPlayback is a playback failure while streaming; fatal to the client session
	ErrPlayback = errors.New("playback error")
)
