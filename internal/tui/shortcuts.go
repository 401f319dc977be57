package tui

import (
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Shortcuts is a registry of global key combinations. Handlers run on the
// UI loop when the App sees a matching key.
type Shortcuts struct {
	mu       sync.Mutex
	bindings map[string]shortcut
}

type shortcut struct {
	combo string
	fn    func()
}

// NewShortcuts creates an empty registry.
func NewShortcuts() *Shortcuts {
	return &Shortcuts{bindings: make(map[string]shortcut)}
}

// Combo formats key with modifiers the way bubbletea names keys, e.g.
// "ctrl+k".
func Combo(key string, modifiers []string) string {
	parts := make([]string, 0, len(modifiers)+1)
	for _, m := range modifiers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			parts = append(parts, m)
		}
	}
	return strings.Join(append(parts, strings.ToLower(key)), "+")
}

// Subscribe binds key pressed with modifiers to fn, replacing an earlier
// binding of key.
func (s *Shortcuts) Subscribe(key string, modifiers []string, fn func()) {
	s.mu.Lock()
	s.bindings[key] = shortcut{combo: Combo(key, modifiers), fn: fn}
	s.mu.Unlock()
}

// Unsubscribe removes the binding of key.
func (s *Shortcuts) Unsubscribe(key string) {
	s.mu.Lock()
	delete(s.bindings, key)
	s.mu.Unlock()
}

// Len returns the number of bindings.
func (s *Shortcuts) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bindings)
}

// Handle runs the handler bound to msg. It reports whether one ran.
func (s *Shortcuts) Handle(msg tea.KeyMsg) bool {
	pressed := msg.String()
	s.mu.Lock()
	var fn func()
	for _, b := range s.bindings {
		if b.combo == pressed {
			fn = b.fn
			break
		}
	}
	s.mu.Unlock()

	if fn == nil {
		return false
	}
	fn()
	return true
}
