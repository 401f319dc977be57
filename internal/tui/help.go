package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type helpItem struct {
	key  string
	desc string
}

func helpItems(modifier string) []helpItem {
	mod := strings.ToUpper(modifier[:1]) + modifier[1:] + "+"
	return []helpItem{
		{"Ctrl+C", "Quit"},
		{mod + "K", "Search"},
		{"Tab", "Switch chat list / composer"},
		{"↑ / ↓", "Select chat / scroll"},
		{"Enter", "Open chat / send message"},
		{"Alt+Enter", "New line in message"},
		{"PgUp / PgDn", "Scroll messages"},
		{"Alt+N", "New chat"},
		{"Ctrl+G", "New group"},
		{"Ctrl+O", "Settings"},
		{"Alt+P", "Participants"},
		{"Alt+I", "Details of the chat partner"},
		{"Ctrl+R", "Request money"},
		{"Alt+S", "Split bill"},
		{"Esc", "Back / Close"},
		{"?", "Toggle help"},
	}
}

// RenderHelp renders the help overlay centered in width x height.
func RenderHelp(modifier string, width, height int) string {
	if modifier == "" {
		modifier = "ctrl"
	}
	items := helpItems(modifier)

	var lines []string
	lines = append(lines, titleStyle.Render("⌨ Keyboard Shortcuts"))
	lines = append(lines, "")

	maxKeyLen := 0
	for _, item := range items {
		if w := lipgloss.Width(item.key); w > maxKeyLen {
			maxKeyLen = w
		}
	}

	for _, item := range items {
		key := helpKeyStyle.Render(padRight(item.key, maxKeyLen))
		desc := helpDescStyle.Render(item.desc)
		lines = append(lines, key+"  "+desc)
	}

	box := helpStyle.Render(strings.Join(lines, "\n"))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}

func padRight(s string, length int) string {
	w := lipgloss.Width(s)
	if w >= length {
		return s
	}
	return s + strings.Repeat(" ", length-w)
}
