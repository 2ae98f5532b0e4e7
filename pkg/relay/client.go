// ABOUTME: Relay client playing a server's PCM stream
// ABOUTME: Separates connect failures from disconnects after playback started
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/audiorelay/pkg/audio"
	"github.com/harperreed/audiorelay/pkg/audio/output"
)

// ClientConfig configures a relay client
type ClientConfig struct {
	// Port used when the address has none (default: 8080)
	Port int

	// ConnectTimeout bounds the dial (default: 5s)
	ConnectTimeout time.Duration

	// Output plays the received audio (required)
	Output output.Output

	// JoinTimeout bounds how long Stop waits for the worker (default: 500ms)
	JoinTimeout time.Duration
}

// Handlers receive the outcome of one Connect call. Exactly one of OnError or
// OnDisconnected fires, once; OnDisconnected only after OnConnected.
type Handlers struct {
	// OnConnected is called once the TCP connection is established
	OnConnected func()

	// OnError is called when the connection could not be established
	OnError func(error)

	// OnDisconnected is called when playback ends. err is nil for end of
	// stream or Stop, otherwise it wraps ErrTransport, ErrPlayback or
	// ErrPlaybackUnavailable.
	OnDisconnected func(err error)
}

// ClientStats is a snapshot of the current or last client session
type ClientStats struct {
	SessionID     string
	Address       string
	Running       bool
	Connected     bool
	BytesReceived int64
}

// Client connects to a relay server and plays what it sends
type Client struct {
	config ClientConfig
	dial   func(ctx context.Context, network, address string) (net.Conn, error)

	mu      sync.Mutex
	session *clientSession
	last    *clientSession
}

type clientSession struct {
	id        string
	address   string
	handlers  Handlers
	running   atomic.Bool
	connected atomic.Bool
	inHandler atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	conn      connSlot
	done      chan struct{}
	stopOnce  sync.Once

	bytesReceived atomic.Int64
}

// NewClient creates a new relay client
func NewClient(config ClientConfig) (*Client, error) {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.JoinTimeout <= 0 {
		config.JoinTimeout = DefaultJoinTimeout
	}
	if config.Output == nil {
		return nil, fmt.Errorf("audio output is required")
	}

	var d net.Dialer
	return &Client{config: config, dial: d.DialContext}, nil
}

// Connect starts connecting to address in the background. Only an invalid
// address or an active session are reported here; everything else goes to h.
func (c *Client) Connect(address string, h Handlers) error {
	target, err := JoinDefaultPort(address, c.config.Port)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &clientSession{
		id:       uuid.New().String(),
		address:  target,
		handlers: h,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	sess.running.Store(true)

	c.session = sess
	c.last = sess

	log.Printf("[client] session %s connecting to %s", sess.id, target)
	go c.run(sess)
	return nil
}

// Stop ends the session: flag, cancel the dial, close the socket, then a
// bounded wait. Calling it while idle does nothing. The role stays taken
// until the worker has released the output, so Connect keeps returning
// ErrAlreadyRunning until then.
func (c *Client) Stop() {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	if sess == nil {
		return
	}

	log.Printf("[client] stopping session %s", sess.id)
	sess.stop()

	// A handler calling Stop runs on the worker itself
	if !sess.inHandler.Load() {
		waitDone(sess.done, c.config.JoinTimeout, "client")
	}
}

// Running reports whether a session is connecting or playing
func (c *Client) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Stats returns counters of the current session, or of the last one while idle
func (c *Client) Stats() ClientStats {
	c.mu.Lock()
	sess, running := c.last, c.session != nil
	c.mu.Unlock()

	if sess == nil {
		return ClientStats{}
	}
	return ClientStats{
		SessionID:     sess.id,
		Address:       sess.address,
		Running:       running,
		Connected:     sess.connected.Load(),
		BytesReceived: sess.bytesReceived.Load(),
	}
}

// run is the session worker: dial, play, tear down, report
func (c *Client) run(sess *clientSession) {
	defer close(sess.done)

	dialCtx, cancelDial := context.WithTimeout(sess.ctx, c.config.ConnectTimeout)
	raw, err := c.dial(dialCtx, "tcp", sess.address)
	cancelDial()
	if err != nil {
		err = classifyDialError(err)
		log.Printf("[client] session %s: %v", sess.id, err)
		c.finish(sess)
		sess.callError(err)
		return
	}

	conn := newOnceConn(raw)
	sess.conn.set(conn)

	// Stop may have run while the dial was completing
	if !sess.running.Load() {
		conn.Close()
		c.finish(sess)
		sess.callError(fmt.Errorf("%w: %w", ErrConnectFailure, context.Canceled))
		return
	}

	sess.connected.Store(true)
	log.Printf("[client] session %s connected to %s", sess.id, sess.address)
	sess.callConnected()

	err = c.play(sess, conn)

	conn.Close()
	sess.conn.clear(conn)
	sess.connected.Store(false)
	c.finish(sess)

	if err != nil {
		log.Printf("[client] session %s ended: %v", sess.id, err)
	} else {
		log.Printf("[client] session %s ended", sess.id)
	}
	sess.callDisconnected(err)
}

// play copies the socket into the output until end of stream, error or Stop.
// The output is closed before returning.
func (c *Client) play(sess *clientSession, conn net.Conn) error {
	out := c.config.Output
	if err := out.Open(audio.RelayFormat); err != nil {
		return fmt.Errorf("%w: %w", ErrPlaybackUnavailable, err)
	}
	defer func() {
		if err := out.Close(); err != nil {
			log.Printf("[client] output close error: %v", err)
		}
	}()

	buf := make([]byte, audio.FrameSize(audio.RelayFormat))

	for sess.running.Load() {
		n, err := conn.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				if !sess.running.Load() {
					return nil
				}
				return fmt.Errorf("%w: %w", ErrPlayback, werr)
			}
			sess.bytesReceived.Add(int64(n))
		}
		if err != nil {
			if errors.Is(err, io.EOF) || !sess.running.Load() {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}
	}
	return nil
}

// finish marks the session over and frees the role so a handler can
// reconnect. Only the worker calls it, after it is done with the output.
func (c *Client) finish(sess *clientSession) {
	sess.running.Store(false)
	sess.cancel()

	c.mu.Lock()
	if c.session == sess {
		c.session = nil
	}
	c.mu.Unlock()
}

// stop forces the worker's blocking calls to fail
func (sess *clientSession) stop() {
	sess.stopOnce.Do(func() {
		sess.running.Store(false)
		sess.cancel()
		sess.conn.closeActive()
	})
}

func (sess *clientSession) callConnected() {
	if sess.handlers.OnConnected == nil {
		return
	}
	sess.inHandler.Store(true)
	defer sess.inHandler.Store(false)
	sess.handlers.OnConnected()
}

func (sess *clientSession) callError(err error) {
	if sess.handlers.OnError == nil {
		return
	}
	sess.inHandler.Store(true)
	defer sess.inHandler.Store(false)
	sess.handlers.OnError(err)
}

func (sess *clientSession) callDisconnected(err error) {
	if sess.handlers.OnDisconnected == nil {
		return
	}
	sess.inHandler.Store(true)
	defer sess.inHandler.Store(false)
	sess.handlers.OnDisconnected(err)
}

// classifyDialError maps a dial failure onto the connect error taxonomy
func classifyDialError(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %w", ErrConnectTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrConnectFailure, err)
}

// JoinDefaultPort returns address as host:port, adding port when the address
// has none. Bare IPv6 literals are accepted with or without brackets.
func JoinDefaultPort(address string, port int) (string, error) {
	s := strings.TrimSpace(address)
	if s == "" {
		return "", fmt.Errorf("empty server address")
	}

	if host, p, err := net.SplitHostPort(s); err == nil {
		if _, err := strconv.Atoi(p); err != nil {
			return "", fmt.Errorf("bad port in address %q", address)
		}
		if host == "" {
			return "", fmt.Errorf("missing host in address %q", address)
		}
		return s, nil
	}

	host := strings.Trim(s, "[]")
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}
