// ABOUTME: Tests for the relay server
// ABOUTME: Covers start/stop lifecycle, mute side effect, accept loop and capture failures
package relay

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/harperreed/audiorelay/pkg/audio"
	"github.com/harperreed/audiorelay/pkg/audio/mixer"
)

func newTestServer(t *testing.T, src *fakeCapture, m mixer.Mixer) *Server {
	t.Helper()
	s, err := NewServer(ServerConfig{
		ListenAddr: "127.0.0.1:0",
		Capture:    src,
		Mixer:      m,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func TestNewServerDefaults(t *testing.T) {
	s, err := NewServer(ServerConfig{Capture: newFakeCapture()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.config.ListenAddr != ":8080" {
		t.Errorf("expected default listen addr :8080, got %s", s.config.ListenAddr)
	}
	if s.config.JoinTimeout != DefaultJoinTimeout {
		t.Errorf("expected join timeout %v, got %v", DefaultJoinTimeout, s.config.JoinTimeout)
	}
	if s.config.Mixer == nil {
		t.Error("expected default mixer")
	}
	if s.Running() {
		t.Error("new server should be idle")
	}
	if s.Addr() != nil {
		t.Error("idle server should have no address")
	}
}

func TestNewServerRequiresCapture(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Fatal("expected error without capture source")
	}
}

func TestServerStartTwice(t *testing.T) {
	src := newFakeCapture()
	s := newTestServer(t, src, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	addr := s.Addr().String()

	if err := s.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if got := s.Addr().String(); got != addr {
		t.Errorf("address changed from %s to %s", addr, got)
	}
	if opens, _ := src.counts(); opens != 1 {
		t.Errorf("expected capture opened once, got %d", opens)
	}
	if src.format != audio.RelayFormat {
		t.Errorf("expected capture format %v, got %v", audio.RelayFormat, src.format)
	}
}

func TestServerStopReleasesPort(t *testing.T) {
	src := newFakeCapture()
	s := newTestServer(t, src, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	addr := s.Addr().String()

	s.Stop()
	if s.Running() {
		t.Error("server still running after Stop")
	}
	if _, closes := src.counts(); closes != 1 {
		t.Errorf("expected capture closed once, got %d", closes)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("port not released after Stop: %v", err)
	}
	ln.Close()
}

func TestServerStopIdle(t *testing.T) {
	s := newTestServer(t, newFakeCapture(), nil)

	// Stop before Start is a no-op
	s.Stop()
	s.Stop()

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Worker is parked in Accept; Stop must unblock it inside the join window
	start := time.Now()
	s.Stop()
	if elapsed := time.Since(start); elapsed > DefaultJoinTimeout {
		t.Errorf("Stop took %v with an idle accept", elapsed)
	}

	s.Stop()
}

func TestServerRestart(t *testing.T) {
	src := newFakeCapture()
	s := newTestServer(t, src, nil)

	for i := 0; i < 3; i++ {
		if err := s.Start(); err != nil {
			t.Fatalf("Start #%d failed: %v", i, err)
		}
		s.Stop()
	}

	opens, closes := src.counts()
	if opens != 3 || closes != 3 {
		t.Errorf("expected 3 opens and 3 closes, got %d and %d", opens, closes)
	}
}

func TestServerMuteSideEffect(t *testing.T) {
	tests := []struct {
		name      string
		initially bool
		wantSets  int
	}{
		{"unmuted output is muted then restored", false, 2},
		{"muted output is left alone", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mixer.NewMemory(tt.initially)
			s := newTestServer(t, newFakeCapture(), m)

			if err := s.Start(); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			if muted, _ := m.IsMuted(); !muted {
				t.Error("output should be muted while streaming")
			}

			s.Stop()
			s.Stop()

			if muted, _ := m.IsMuted(); muted != tt.initially {
				t.Errorf("expected mute state %v after Stop, got %v", tt.initially, muted)
			}
			if m.Sets() != tt.wantSets {
				t.Errorf("expected %d mute changes, got %d", tt.wantSets, m.Sets())
			}
		})
	}
}

func TestServerBindFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer busy.Close()

	src := newFakeCapture()
	m := mixer.NewMemory(false)
	s, err := NewServer(ServerConfig{
		ListenAddr: busy.Addr().String(),
		Capture:    src,
		Mixer:      m,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	if err := s.Start(); !errors.Is(err, ErrBind) {
		t.Fatalf("expected ErrBind, got %v", err)
	}
	if s.Running() {
		t.Error("server should be idle after bind failure")
	}
	if opens, _ := src.counts(); opens != 0 {
		t.Error("capture opened despite bind failure")
	}
	if m.Sets() != 0 {
		t.Error("mixer touched despite bind failure")
	}
}

func TestServerCaptureUnavailable(t *testing.T) {
	src := newFakeCapture()
	src.openErr = errors.New("no microphone")
	m := mixer.NewMemory(false)
	s := newTestServer(t, src, m)

	err := s.Start()
	if !errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("expected ErrCaptureUnavailable, got %v", err)
	}
	if s.Running() {
		t.Error("server should be idle after capture failure")
	}
	if m.Sets() != 0 {
		t.Error("mixer touched despite capture failure")
	}

	// Listener must have been released; a retry gets the same error, not ErrBind
	if err := s.Start(); !errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("expected ErrCaptureUnavailable on retry, got %v", err)
	}
}

func TestServerStreamsToClient(t *testing.T) {
	s := newTestServer(t, newFakeCapture(), nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	want := expectedStream(3)
	got := make([]byte, len(want))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != string(want) {
		t.Error("received bytes differ from captured frames")
	}

	stats := s.Stats()
	if stats.ClientsServed != 1 {
		t.Errorf("expected 1 client served, got %d", stats.ClientsServed)
	}
	if stats.FramesSent < 3 {
		t.Errorf("expected at least 3 frames sent, got %d", stats.FramesSent)
	}
	if stats.ActiveClient == "" {
		t.Error("expected an active client")
	}
}

func TestServerStopDisconnectsClient(t *testing.T) {
	s := newTestServer(t, newFakeCapture(), nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, audio.FrameSize(audio.RelayFormat))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	start := time.Now()
	s.Stop()
	if elapsed := time.Since(start); elapsed > DefaultJoinTimeout {
		t.Errorf("Stop took %v with a connected client", elapsed)
	}

	// Drain whatever was in flight; the stream must then end
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.Copy(io.Discard, conn); err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			t.Fatal("stream did not end after Stop")
		}
	}
}

func TestServerAcceptsNextClient(t *testing.T) {
	s := newTestServer(t, newFakeCapture(), nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	addr := s.Addr().String()
	frame := make([]byte, audio.FrameSize(audio.RelayFormat))

	for i := 0; i < 2; i++ {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("dial #%d failed: %v", i, err)
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, err := io.ReadFull(conn, frame); err != nil {
			t.Fatalf("client #%d got no audio: %v", i, err)
		}
		conn.Close()
	}

	if got := s.Stats().ClientsServed; got != 2 {
		t.Errorf("expected 2 clients served, got %d", got)
	}
	if !s.Running() {
		t.Error("client disconnects must not stop the server")
	}
}

func TestServerCaptureFailure(t *testing.T) {
	src := newFakeCapture()
	src.failAfter = 3
	m := mixer.NewMemory(false)

	errCh := make(chan error, 1)
	s, err := NewServer(ServerConfig{
		ListenAddr: "127.0.0.1:0",
		Capture:    src,
		Mixer:      m,
		OnError:    func(err error) { errCh <- err },
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(s.Stop)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrCapture) {
			t.Errorf("expected ErrCapture, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnError not called after capture failure")
	}

	waitFor(t, time.Second, "session teardown", func() bool { return !s.Running() })
	if muted, _ := m.IsMuted(); muted {
		t.Error("mute not restored after capture failure")
	}

	src.mu.Lock()
	src.failAfter = 0
	src.mu.Unlock()
	if err := s.Start(); err != nil {
		t.Fatalf("restart after capture failure: %v", err)
	}
}
