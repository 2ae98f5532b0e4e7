// ABOUTME: Persisted list of recently used server endpoints
// ABOUTME: Bounded to five entries, most recent kept, listed sorted
package history

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// MaxEntries is how many endpoints are remembered
const MaxEntries = 5

// History remembers the last endpoints a client connected to
type History struct {
	path string

	mu      sync.Mutex
	entries []string // least recent first
}

type document struct {
	Recent []string `yaml:"recent"`
}

// DefaultPath returns the history file under the user config directory
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot locate user config directory: %w", err)
	}
	return filepath.Join(dir, "audiorelay", "recent.yaml"), nil
}

// Open loads the history stored at path. A missing file is an empty history.
// An empty path keeps the history in memory only.
func Open(path string) (*History, error) {
	h := &History{path: path}
	if path == "" {
		return h, nil
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return h, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot open history file %q: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var doc document
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("cannot load history file %q: %w", path, err)
	}

	for _, e := range doc.Recent {
		h.add(e)
	}
	return h, nil
}

// Path returns the backing file, or "" for an in-memory history
func (h *History) Path() string {
	return h.path
}

// RecordUsed moves endpoint to the most recent position and saves the file.
// Blank endpoints are ignored.
func (h *History) RecordUsed(endpoint string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.add(endpoint) {
		return nil
	}
	return h.save()
}

// ListRecent returns the remembered endpoints in sorted order
func (h *History) ListRecent() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := append([]string(nil), h.entries...)
	sort.Strings(out)
	return out
}

// MostRecent returns the last endpoint recorded, or ""
func (h *History) MostRecent() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) == 0 {
		return ""
	}
	return h.entries[len(h.entries)-1]
}

// add inserts endpoint as most recent, evicting the oldest past MaxEntries
func (h *History) add(endpoint string) bool {
	e := strings.TrimSpace(endpoint)
	if e == "" {
		return false
	}

	for i, existing := range h.entries {
		if existing == e {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			break
		}
	}
	h.entries = append(h.entries, e)
	if len(h.entries) > MaxEntries {
		h.entries = h.entries[len(h.entries)-MaxEntries:]
	}
	return true
}

// save writes to a temp file in the same directory and renames it over the
// old one, so a crash never leaves a truncated history
func (h *History) save() error {
	if h.path == "" {
		return nil
	}

	dir := filepath.Dir(h.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("cannot create history directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".recent-*")
	if err != nil {
		return fmt.Errorf("cannot create history file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	enc := yaml.NewEncoder(tmp)
	enc.SetIndent(2)
	if err := enc.Encode(document{Recent: h.entries}); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cannot write history file: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cannot write history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cannot write history file: %w", err)
	}

	if err := os.Rename(tmp.Name(), h.path); err != nil {
		return fmt.Errorf("cannot replace history file %q: %w", h.path, err)
	}
	return nil
}
