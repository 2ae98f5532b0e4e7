// ABOUTME: Application control surface over the relay roles
// ABOUTME: Starts and stops the server and client and keeps the endpoint history
package app

import (
	"errors"
	"log"
	"strings"

	"github.com/harperreed/audiorelay/internal/history"
	"github.com/harperreed/audiorelay/pkg/audio/capture"
	"github.com/harperreed/audiorelay/pkg/audio/mixer"
	"github.com/harperreed/audiorelay/pkg/audio/output"
	"github.com/harperreed/audiorelay/pkg/relay"
)

var (
	// ErrNoServer is returned by server operations when no capture source was configured
	ErrNoServer = errors.New("server role not configured")

	// ErrNoClient is returned by client operations when no output was configured
	ErrNoClient = errors.New("client role not configured")
)

// Config holds controller configuration. A role is enabled by giving it its
// audio device: Capture for the server, Output for the client.
type Config struct {
	// Server
	ListenAddr    string
	Capture       capture.Source
	Mixer         mixer.Mixer
	OnServerError func(error)
	Debug         bool

	// Client
	Port   int
	Output output.Output

	// History of endpoints the client connected to (default: in memory)
	History *history.History
}

// Controller owns at most one server and one client
type Controller struct {
	server  *relay.Server
	client  *relay.Client
	history *history.History
}

// New creates a controller for the configured roles
func New(config Config) (*Controller, error) {
	c := &Controller{history: config.History}

	if c.history == nil {
		h, err := history.Open("")
		if err != nil {
			return nil, err
		}
		c.history = h
	}

	if config.Capture != nil {
		srv, err := relay.NewServer(relay.ServerConfig{
			ListenAddr: config.ListenAddr,
			Capture:    config.Capture,
			Mixer:      config.Mixer,
			OnError:    config.OnServerError,
			Debug:      config.Debug,
		})
		if err != nil {
			return nil, err
		}
		c.server = srv
	}

	if config.Output != nil {
		cl, err := relay.NewClient(relay.ClientConfig{
			Port:   config.Port,
			Output: config.Output,
		})
		if err != nil {
			return nil, err
		}
		c.client = cl
	}

	return c, nil
}

// StartServer starts streaming capture to the next client that connects
func (c *Controller) StartServer() error {
	if c.server == nil {
		return ErrNoServer
	}
	return c.server.Start()
}

// StopServer stops the server; a no-op while idle
func (c *Controller) StopServer() {
	if c.server != nil {
		c.server.Stop()
	}
}

// Server returns the relay server, or nil when the role is not configured
func (c *Controller) Server() *relay.Server {
	return c.server
}

// ConnectClient connects to address and plays its stream. The endpoint is
// remembered once the connection is established.
func (c *Controller) ConnectClient(address string, h relay.Handlers) error {
	if c.client == nil {
		return ErrNoClient
	}

	endpoint := strings.TrimSpace(address)
	onConnected := h.OnConnected
	h.OnConnected = func() {
		if err := c.history.RecordUsed(endpoint); err != nil {
			log.Printf("[app] failed to save endpoint history: %v", err)
		}
		if onConnected != nil {
			onConnected()
		}
	}

	return c.client.Connect(endpoint, h)
}

// StopClient disconnects the client; a no-op while idle
func (c *Controller) StopClient() {
	if c.client != nil {
		c.client.Stop()
	}
}

// Client returns the relay client, or nil when the role is not configured
func (c *Controller) Client() *relay.Client {
	return c.client
}

// RecentEndpoints lists remembered endpoints, sorted
func (c *Controller) RecentEndpoints() []string {
	return c.history.ListRecent()
}

// LastEndpoint returns the endpoint most recently connected to, or ""
func (c *Controller) LastEndpoint() string {
	return c.history.MostRecent()
}

// Shutdown stops both roles
func (c *Controller) Shutdown() {
	c.StopClient()
	c.StopServer()
}
