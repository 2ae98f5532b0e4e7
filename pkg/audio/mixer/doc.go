// Package mixer mutes the source device's own output while it relays audio,
// so the captured stream is not also played through the local speaker.
//
// NewSystem picks the platform mixer: the default render endpoint on Windows
// (go-wca) and the default PulseAudio/PipeWire sink elsewhere (pactl). When
// neither is reachable it falls back to Memory, which changes nothing outside
// the process.
package mixer
