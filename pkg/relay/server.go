// ABOUTME: Relay server streaming captured PCM to one client at a time
// ABOUTME: Owns the listener, the capture session and the output mute side effect
package relay

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/audiorelay/pkg/audio"
	"github.com/harperreed/audiorelay/pkg/audio/capture"
	"github.com/harperreed/audiorelay/pkg/audio/mixer"
)

// ServerConfig configures a relay server
type ServerConfig struct {
	// ListenAddr is the TCP address to bind (default: ":8080")
	ListenAddr string

	// Capture is the audio source to stream (required)
	Capture capture.Source

	// Mixer controls the local output mute (default: in-memory, no effect)
	Mixer mixer.Mixer

	// JoinTimeout bounds how long Stop waits for the worker (default: 500ms)
	JoinTimeout time.Duration

	// OnError is called when the session ends on its own because of a fatal error
	OnError func(error)

	// Debug enables debug logging
	Debug bool
}

// ServerStats is a snapshot of the current or last server session
type ServerStats struct {
	SessionID     string
	Running       bool
	Addr          string
	ActiveClient  string
	ClientsServed int64
	FramesSent    int64
	BytesSent     int64
}

// Server accepts one client at a time and streams captured frames to it
type Server struct {
	config ServerConfig

	mu      sync.Mutex
	session *serverSession
	last    *serverSession
}

// serverSession is one start-to-stop run. Fields written by Stop and read by
// the worker are atomics; nothing else is shared.
type serverSession struct {
	id        string
	running   atomic.Bool
	listener  net.Listener
	conn      connSlot
	capture   capture.Source
	mixer     mixer.Mixer
	wasMuted  bool
	mutedByUs bool
	done      chan struct{}
	closeOnce sync.Once

	clientsServed atomic.Int64
	framesSent    atomic.Int64
	bytesSent     atomic.Int64
}

// NewServer creates a new relay server
func NewServer(config ServerConfig) (*Server, error) {
	if config.ListenAddr == "" {
		config.ListenAddr = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.Capture == nil {
		return nil, fmt.Errorf("capture source is required")
	}
	if config.Mixer == nil {
		config.Mixer = mixer.NewMemory(false)
	}
	if config.JoinTimeout <= 0 {
		config.JoinTimeout = DefaultJoinTimeout
	}

	return &Server{config: config}, nil
}

// Start binds the listener, opens capture, mutes local output and starts the
// serve loop. It returns as soon as the loop is running.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return ErrAlreadyRunning
	}

	ln, err := listen(s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBind, err)
	}

	if err := s.config.Capture.Open(audio.RelayFormat); err != nil {
		ln.Close()
		return fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}

	sess := &serverSession{
		id:       uuid.New().String(),
		listener: ln,
		capture:  s.config.Capture,
		mixer:    s.config.Mixer,
		done:     make(chan struct{}),
	}
	sess.running.Store(true)
	sess.muteOutput()

	s.session = sess
	s.last = sess

	log.Printf("[server] session %s listening on %s (%s, frame %d bytes)",
		sess.id, ln.Addr(), audio.RelayFormat, audio.FrameSize(audio.RelayFormat))

	go s.serve(sess)
	return nil
}

// Stop ends the session: flag, sockets, capture, mute, then a bounded wait.
// Calling it while idle does nothing.
func (s *Server) Stop() {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()

	if sess == nil {
		return
	}

	log.Printf("[server] stopping session %s", sess.id)
	sess.teardown()
	waitDone(sess.done, s.config.JoinTimeout, "server")
	log.Printf("[server] session %s stopped", sess.id)
}

// Running reports whether a session is active
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

// Addr returns the bound listener address, or nil while idle
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	return s.session.listener.Addr()
}

// Stats returns counters of the current session, or of the last one while idle
func (s *Server) Stats() ServerStats {
	s.mu.Lock()
	sess, running := s.last, s.session != nil
	s.mu.Unlock()

	if sess == nil {
		return ServerStats{}
	}
	return ServerStats{
		SessionID:     sess.id,
		Running:       running,
		Addr:          sess.listener.Addr().String(),
		ActiveClient:  sess.conn.remote(),
		ClientsServed: sess.clientsServed.Load(),
		FramesSent:    sess.framesSent.Load(),
		BytesSent:     sess.bytesSent.Load(),
	}
}

// serve accepts clients one after another until the session stops
func (s *Server) serve(sess *serverSession) {
	defer close(sess.done)

	frame := make([]byte, audio.FrameSize(audio.RelayFormat))

	for sess.running.Load() {
		raw, err := sess.listener.Accept()
		if err != nil {
			if !sess.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("[server] accept error: %v", err)
			time.Sleep(acceptRetryDelay)
			continue
		}

		if err := s.pump(sess, newOnceConn(raw), frame); err != nil {
			log.Printf("[server] session %s failed: %v", sess.id, err)
			s.fail(sess, err)
			return
		}
	}
}

// pump streams frames to one client. A client going away is not an error;
// only a capture failure is returned.
func (s *Server) pump(sess *serverSession, conn *onceConn, frame []byte) error {
	remote := conn.RemoteAddr().String()

	sess.conn.set(conn)
	defer func() {
		sess.conn.clear(conn)
		conn.Close()
		log.Printf("[server] client disconnected: %s", remote)
	}()

	// Stop may have run between Accept and publishing the connection
	if !sess.running.Load() {
		return nil
	}

	sess.clientsServed.Add(1)
	log.Printf("[server] client connected: %s", remote)

	for sess.running.Load() {
		n, err := sess.capture.Read(frame)
		if err != nil {
			if !sess.running.Load() {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrCapture, err)
		}
		if n <= 0 {
			log.Printf("[server] capture returned %d bytes, dropping client %s", n, remote)
			return nil
		}

		if _, err := conn.Write(frame[:n]); err != nil {
			if sess.running.Load() {
				log.Printf("[server] write to %s failed: %v", remote, err)
			}
			return nil
		}

		sess.framesSent.Add(1)
		sess.bytesSent.Add(int64(n))
		if s.config.Debug && sess.framesSent.Load()%250 == 0 {
			log.Printf("[DEBUG] session %s: %d frames, %d bytes to %s",
				sess.id, sess.framesSent.Load(), sess.bytesSent.Load(), remote)
		}
	}
	return nil
}

// fail tears down a session that ended on its own and frees the role
func (s *Server) fail(sess *serverSession, err error) {
	sess.teardown()

	s.mu.Lock()
	if s.session == sess {
		s.session = nil
	}
	s.mu.Unlock()

	if s.config.OnError != nil {
		s.config.OnError(err)
	}
}

// teardown runs the ordered release exactly once
func (sess *serverSession) teardown() {
	sess.closeOnce.Do(func() {
		sess.running.Store(false)

		// Forces a blocked Accept/Write to fail
		if err := sess.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("[server] listener close error: %v", err)
		}
		sess.conn.closeActive()

		if err := sess.capture.Close(); err != nil {
			log.Printf("[server] capture close error: %v", err)
		}

		sess.restoreMute()
	})
}

// muteOutput records the current mute state and mutes local output
func (sess *serverSession) muteOutput() {
	muted, err := sess.mixer.IsMuted()
	if err != nil {
		log.Printf("[server] cannot read mute state, leaving output alone: %v", err)
		return
	}
	sess.wasMuted = muted
	if muted {
		return
	}
	if err := sess.mixer.SetMuted(true); err != nil {
		log.Printf("[server] cannot mute output: %v", err)
		return
	}
	sess.mutedByUs = true
}

// restoreMute puts back the state recorded by muteOutput
func (sess *serverSession) restoreMute() {
	if !sess.mutedByUs {
		return
	}
	if err := sess.mixer.SetMuted(sess.wasMuted); err != nil {
		log.Printf("[server] cannot restore mute state: %v", err)
	}
}
