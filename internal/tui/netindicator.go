// Package tui is the terminal user interface: the root App model, the
// auto-growing composer input and the screens behind each route.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// NetState is what the status bar shows about connectivity.
type NetState int

const (
	NetOffline NetState = iota
	NetOnline           // Reachable, push channel not connected
	NetSyncing          // Push channel connecting
	NetLive             // Reachable and push channel connected
)

// NetIndicator shows reachability and the push channel state. It bounces
// while the push channel connects.
type NetIndicator struct {
	offline   bool
	realtime  string
	position  int // Current position of the "ball" (0-width)
	direction int // 1 = right, -1 = left
	width     int // Width of the indicator bar
}

// NetIndicatorTickMsg is sent to animate the indicator.
type NetIndicatorTickMsg time.Time

// NewNetIndicator creates an indicator that starts offline, matching the
// network default before the first reachability check.
func NewNetIndicator() NetIndicator {
	return NetIndicator{
		offline:   true,
		direction: 1,
		width:     8,
	}
}

// SetOffline records reachability.
func (n *NetIndicator) SetOffline(offline bool) {
	n.offline = offline
}

// SetRealtime records the push channel state name.
func (n *NetIndicator) SetRealtime(state string) {
	n.realtime = state
}

// State returns the combined state.
func (n NetIndicator) State() NetState {
	switch {
	case n.offline:
		return NetOffline
	case n.realtime == "connected":
		return NetLive
	case n.realtime == "connecting":
		return NetSyncing
	default:
		return NetOnline
	}
}

// Update handles tick messages for animation.
func (n NetIndicator) Update(msg tea.Msg) (NetIndicator, tea.Cmd) {
	switch msg.(type) {
	case NetIndicatorTickMsg:
		if n.State() == NetSyncing {
			n.position += n.direction
			if n.position >= n.width-1 {
				n.position = n.width - 1
				n.direction = -1
			} else if n.position <= 0 {
				n.position = 0
				n.direction = 1
			}
		}
		return n, n.tick()
	}
	return n, nil
}

func (n NetIndicator) tick() tea.Cmd {
	return tea.Tick(time.Millisecond*120, func(t time.Time) tea.Msg {
		return NetIndicatorTickMsg(t)
	})
}

// Init starts the indicator animation.
func (n NetIndicator) Init() tea.Cmd {
	return n.tick()
}

// View renders the indicator.
func (n NetIndicator) View() string {
	const (
		barEmpty  = "░"
		barFilled = "█"
		barLeft   = "▐"
		barRight  = "▌"
	)

	switch n.State() {
	case NetOffline:
		return lipgloss.NewStyle().Foreground(colorError).Bold(true).Render("○ OFFLINE")
	case NetOnline:
		return lipgloss.NewStyle().Foreground(colorWarning).Render("◐ ONLINE")
	case NetLive:
		return lipgloss.NewStyle().Foreground(colorSuccess).Bold(true).Render("● LIVE")
	}

	bar := barLeft
	for i := 0; i < n.width; i++ {
		if i >= n.position-1 && i <= n.position+1 {
			bar += barFilled
		} else {
			bar += barEmpty
		}
	}
	bar += barRight
	return lipgloss.NewStyle().Foreground(colorAccent).Render("◌ SYNC " + bar)
}

// ViewCompact renders a single glyph for small screens.
func (n NetIndicator) ViewCompact() string {
	switch n.State() {
	case NetOffline:
		return lipgloss.NewStyle().Foreground(colorError).Render("○")
	case NetOnline:
		return lipgloss.NewStyle().Foreground(colorWarning).Render("◐")
	case NetLive:
		return lipgloss.NewStyle().Foreground(colorSuccess).Render("●")
	}
	frames := []string{"◜", "◝", "◞", "◟"}
	return lipgloss.NewStyle().Foreground(colorAccent).Render(frames[n.position%len(frames)])
}
