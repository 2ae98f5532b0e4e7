// ABOUTME: Bubbletea model for the relay status screen
// ABOUTME: Defines display state, key handling and status updates
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/audiorelay/internal/version"
)

// Role selects which keys and fields the screen shows
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// Session states shown on screen
const (
	StateIdle       = "idle"
	StateListening  = "listening"
	StateConnecting = "connecting"
	StateStreaming  = "streaming"
)

// Action is a user request the binary carries out
type Action int

const (
	// ActionReconnect asks the client to connect again
	ActionReconnect Action = iota
	// ActionToggle asks the server to start when idle or stop when running
	ActionToggle
)

// Model represents the TUI state
type Model struct {
	role     Role
	name     string
	controls *Controls

	state   string
	addr    string
	peer    string
	bytes   int64
	frames  int64
	clients int64
	recent  []string
	lastErr string

	width    int
	height   int
	quitting bool
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	activeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	listStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	title := fmt.Sprintf("%s %s", version.String(), m.role)
	if m.name != "" {
		title += " - " + m.name
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	m.field(&b, "State: ", m.renderState())
	if m.addr != "" {
		m.field(&b, "Address: ", valueStyle.Render(m.addr))
	}
	peer := m.peer
	if peer == "" {
		peer = "-"
	}
	m.field(&b, "Peer: ", valueStyle.Render(peer))

	if m.role == RoleServer {
		m.field(&b, "Relayed: ", valueStyle.Render(fmt.Sprintf("%s in %d frames, %d clients served",
			formatBytes(m.bytes), m.frames, m.clients)))
	} else {
		m.field(&b, "Received: ", valueStyle.Render(formatBytes(m.bytes)))
	}

	if m.lastErr != "" {
		m.field(&b, "Error: ", errorStyle.Render(m.lastErr))
	}

	if m.role == RoleClient {
		b.WriteString("\n")
		b.WriteString(listStyle.Render(fmt.Sprintf("Recent servers (%d)", len(m.recent))))
		b.WriteString("\n")
		if len(m.recent) == 0 {
			b.WriteString(valueStyle.Render("  none yet"))
			b.WriteString("\n")
		}
		for _, e := range m.recent {
			b.WriteString(valueStyle.Render("  • " + e))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.help()))

	return b.String()
}

func (m Model) field(b *strings.Builder, label, value string) {
	b.WriteString(headerStyle.Render(label))
	b.WriteString(value)
	b.WriteString("\n")
}

func (m Model) renderState() string {
	if m.state == StateStreaming {
		return activeStyle.Render(m.state)
	}
	return valueStyle.Render(m.state)
}

func (m Model) help() string {
	switch m.role {
	case RoleServer:
		return "s: start/stop  q: quit"
	case RoleClient:
		return "r: reconnect  q: quit"
	}
	return "q: quit"
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.controls.signalQuit()
		return m, tea.Quit
	case "r":
		if m.role == RoleClient {
			m.controls.send(ActionReconnect)
		}
	case "s":
		if m.role == RoleServer {
			m.controls.send(ActionToggle)
		}
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Addr != "" {
		m.addr = msg.Addr
	}
	if msg.Peer != nil {
		m.peer = *msg.Peer
	}
	if msg.Bytes != 0 {
		m.bytes = msg.Bytes
		m.frames = msg.Frames
		m.clients = msg.Clients
	}
	if msg.Recent != nil {
		m.recent = append([]string(nil), msg.Recent...)
	}
	if msg.Err != nil {
		m.lastErr = *msg.Err
	}
}

// StatusMsg updates TUI state. Zero fields leave the current value alone;
// pointer fields can be set to "" to clear.
type StatusMsg struct {
	State   string
	Addr    string
	Peer    *string
	Bytes   int64
	Frames  int64
	Clients int64
	Recent  []string
	Err     *string
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
