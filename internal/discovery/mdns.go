// ABOUTME: mDNS service discovery for relay servers
// ABOUTME: Servers advertise _audiorelay._tcp, clients browse for them
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	// ServiceType is the DNS-SD service relay servers register under
	ServiceType = "_audiorelay._tcp"

	// FormatRecord describes the stream a server sends
	FormatRecord = "format=pcm16le/44100/1"

	defaultBrowseInterval = 3 * time.Second
)

// Config holds discovery configuration
type Config struct {
	ServiceName string

	// Port is the relay listening port (advertise only)
	Port int

	// BrowseInterval is how long each browse query runs (default: 3s)
	BrowseInterval time.Duration
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo

	mu   sync.Mutex
	seen map[string]bool
}

// ServerInfo describes a discovered server
type ServerInfo struct {
	Name string
	Host string
	Port int
}

// Address returns the host:port to hand to the relay client
func (s *ServerInfo) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.BrowseInterval <= 0 {
		config.BrowseInterval = defaultBrowseInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
		seen:    make(map[string]bool),
	}
}

// Advertise announces the relay server until Stop is called
func (m *Manager) Advertise() error {
	if m.config.Port <= 0 {
		return fmt.Errorf("invalid port for advertisement: %d", m.config.Port)
	}

	ips, err := LocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{FormatRecord},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("[discovery] advertising %q on port %d (%s)", m.config.ServiceName, m.config.Port, ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for relay servers until Stop is called
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

// browseLoop runs back-to-back queries and reports each server once
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		var wg sync.WaitGroup
		wg.Add(1)

		go func() {
			defer wg.Done()
			for entry := range entries {
				server, ok := serverFromEntry(entry)
				if !ok || !m.markSeen(server) {
					continue
				}

				log.Printf("[discovery] found %s at %s", server.Name, server.Address())

				select {
				case m.servers <- server:
				case <-m.ctx.Done():
				}
			}
		}()

		params := &mdns.QueryParam{
			Service:     ServiceType,
			Domain:      "local",
			Timeout:     m.config.BrowseInterval,
			Entries:     entries,
			DisableIPv6: true,
		}

		if err := mdns.Query(params); err != nil {
			log.Printf("[discovery] query failed: %v", err)
			select {
			case <-m.ctx.Done():
			case <-time.After(m.config.BrowseInterval):
			}
		}
		close(entries)
		wg.Wait()
	}
}

func (m *Manager) markSeen(s *ServerInfo) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := s.Address()
	if m.seen[key] {
		return false
	}
	m.seen[key] = true
	return true
}

// Servers returns the channel of discovered servers
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// serverFromEntry converts a browse answer, skipping ones without an IPv4
// address or that announce a different stream format
func serverFromEntry(entry *mdns.ServiceEntry) (*ServerInfo, bool) {
	if entry == nil || entry.AddrV4 == nil || entry.Port <= 0 {
		return nil, false
	}

	for _, field := range entry.InfoFields {
		if strings.HasPrefix(field, "format=") && field != FormatRecord {
			return nil, false
		}
	}

	name := strings.TrimSuffix(entry.Name, ".")
	name = strings.TrimSuffix(name, ".local")
	name = strings.TrimSuffix(name, "."+ServiceType)

	return &ServerInfo{
		Name: name,
		Host: entry.AddrV4.String(),
		Port: entry.Port,
	}, true
}

// ReachableAddrs lists addresses a client on the LAN can type in for a
// listener. A wildcard listener expands to one entry per LocalIPs address.
func ReachableAddrs(addr net.Addr) []string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return []string{addr.String()}
	}
	if tcp.IP != nil && !tcp.IP.IsUnspecified() {
		return []string{tcp.String()}
	}

	ips, err := LocalIPs()
	if err != nil {
		return []string{tcp.String()}
	}
	port := strconv.Itoa(tcp.Port)
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.JoinHostPort(ip.String(), port))
	}
	return out
}

// LocalIPs returns the IPv4 addresses of up, multicast-capable interfaces
func LocalIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() {
				continue
			}
			if v4 := ipnet.IP.To4(); v4 != nil {
				ips = append(ips, v4)
			}
		}
	}

	if len(ips) == 0 {
		return nil, fmt.Errorf("no multicast-capable IPv4 interface")
	}
	return ips, nil
}
