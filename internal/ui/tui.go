// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and carries key actions to the binary
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Controls holds channels for user actions
type Controls struct {
	Actions chan Action
	Quit    chan struct{}
}

// NewControls creates a new controls handler
func NewControls() *Controls {
	return &Controls{
		Actions: make(chan Action, 10),
		Quit:    make(chan struct{}, 1),
	}
}

func (c *Controls) send(a Action) {
	if c == nil {
		return
	}
	select {
	case c.Actions <- a:
	default:
	}
}

func (c *Controls) signalQuit() {
	if c == nil {
		return
	}
	select {
	case c.Quit <- struct{}{}:
	default:
	}
}

// NewModel creates a new TUI model
func NewModel(role Role, name string, controls *Controls) Model {
	return Model{
		role:     role,
		name:     name,
		controls: controls,
		state:    StateIdle,
	}
}

// Run creates the TUI program; the caller starts it
func Run(role Role, name string, controls *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(role, name, controls), tea.WithAltScreen())
	return p, nil
}

// StringPtr returns a pointer to s, for StatusMsg fields that can be cleared
func StringPtr(s string) *string {
	return &s
}
