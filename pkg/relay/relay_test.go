// ABOUTME: End-to-end tests wiring a relay server to a relay client
// ABOUTME: Verifies byte-exact delivery and disconnect reporting
package relay

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/harperreed/audiorelay/pkg/audio"
	"github.com/harperreed/audiorelay/pkg/audio/mixer"
)

func TestRelayDeliversFramesInOrder(t *testing.T) {
	const frames = 20

	s := newTestServer(t, newFakeCapture(), mixer.NewMemory(false))
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	out := &fakeOutput{}
	c := newTestClient(t, out)
	rec := newRecorder()
	if err := c.Connect(s.Addr().String(), rec.handlers()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	want := expectedStream(frames)
	waitFor(t, 5*time.Second, "relayed audio", func() bool { return out.Len() >= len(want) })

	got := out.Bytes()[:len(want)]
	if !bytes.Equal(got, want) {
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("stream differs at byte %d (frame %d)", i, i/audio.FrameSize(audio.RelayFormat))
			}
		}
	}
	if out.format != audio.RelayFormat {
		t.Errorf("expected output opened with %v, got %v", audio.RelayFormat, out.format)
	}

	if rec.connected.Load() != 1 {
		t.Errorf("expected one connect callback, got %d", rec.connected.Load())
	}
	if got := c.Stats().BytesReceived; got < int64(len(want)) {
		t.Errorf("expected at least %d bytes received, got %d", len(want), got)
	}
}

func TestRelayServerStopEndsClient(t *testing.T) {
	s := newTestServer(t, newFakeCapture(), nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	out := &fakeOutput{}
	c := newTestClient(t, out)
	rec := newRecorder()
	if err := c.Connect(s.Addr().String(), rec.handlers()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, 2*time.Second, "first frame", func() bool { return out.Len() > 0 })

	s.Stop()

	if err := rec.wait(t); err != nil {
		t.Errorf("expected clean end of stream, got %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if rec.disconnected.Load() != 1 {
		t.Errorf("expected exactly one disconnect, got %d", rec.disconnected.Load())
	}
	if rec.errors.Load() != 0 {
		t.Errorf("connect error reported after a successful connect")
	}
	if out.closeCount() != 1 {
		t.Errorf("expected output closed once, got %d", out.closeCount())
	}
	waitFor(t, time.Second, "client idle", func() bool { return !c.Running() })
}

func TestRelayPlaybackFailure(t *testing.T) {
	s := newTestServer(t, newFakeCapture(), nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	out := &fakeOutput{writeErr: errors.New("device unplugged")}
	c := newTestClient(t, out)
	rec := newRecorder()
	if err := c.Connect(s.Addr().String(), rec.handlers()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	err := rec.wait(t)
	if !errors.Is(err, ErrPlayback) {
		t.Errorf("expected ErrPlayback, got %v", err)
	}

	// The server keeps serving after its client goes away
	waitFor(t, 2*time.Second, "server ready for next client", func() bool { return s.Stats().ActiveClient == "" })
	if !s.Running() {
		t.Error("server stopped after client playback failure")
	}
}
