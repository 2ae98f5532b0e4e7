//go:build !windows

// ABOUTME: PulseAudio/PipeWire mixer using pactl
// ABOUTME: Mutes the default sink while the relay server runs
package mixer

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"
)

const pactlTimeout = 2 * time.Second

// Pactl controls the default sink through the pactl command
type Pactl struct {
	path string
	sink string
}

// NewPactl returns a pactl mixer, or an error when pactl is not installed
func NewPactl() (*Pactl, error) {
	path, err := exec.LookPath("pactl")
	if err != nil {
		return nil, fmt.Errorf("pactl not found: %w", err)
	}
	return &Pactl{path: path, sink: "@DEFAULT_SINK@"}, nil
}

func (p *Pactl) IsMuted() (bool, error) {
	out, err := p.run("get-sink-mute", p.sink)
	if err != nil {
		return false, err
	}
	return parseMute(out)
}

func (p *Pactl) SetMuted(muted bool) error {
	v := "0"
	if muted {
		v = "1"
	}
	_, err := p.run("set-sink-mute", p.sink, v)
	return err
}

func (p *Pactl) run(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pactlTimeout)
	defer cancel()

	out, err := p.command(ctx, args...).Output()
	if err != nil {
		return "", fmt.Errorf("pactl %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// command builds a pactl invocation with untranslated output
func (p *Pactl) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, p.path, args...)
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	return cmd
}

// parseMute reads "Mute: yes" / "Mute: no"
func parseMute(out string) (bool, error) {
	s := strings.TrimSpace(out)
	s = strings.TrimPrefix(s, "Mute:")
	switch strings.TrimSpace(s) {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	}
	return false, fmt.Errorf("unexpected pactl output: %q", out)
}

// NewSystem returns the best available mixer for this host
func NewSystem() Mixer {
	p, err := NewPactl()
	if err != nil {
		log.Printf("[mixer] %v, mute state will not be changed", err)
		return NewMemory(false)
	}
	return p
}
