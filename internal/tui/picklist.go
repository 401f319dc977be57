package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type pickItem struct {
	id       string
	title    string
	subtitle string
	checked  bool
}

// pickList is a cursor over items, optionally filtered by a query field.
type pickList struct {
	items    []pickItem
	cursor   int
	multi    bool
	filter   textinput.Model
	filtered bool
}

func newPickList(items []pickItem) pickList {
	return pickList{items: items}
}

// newFilteredPickList adds a focused query field above the items. The owner
// rebuilds items when the query changes.
func newFilteredPickList(placeholder string) pickList {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 100
	ti.Prompt = inputPromptStyle.Render("› ")
	ti.Focus()
	return pickList{filter: ti, filtered: true}
}

var pickKeys = struct {
	Up     key.Binding
	Down   key.Binding
	Toggle key.Binding
}{
	Up:     key.NewBinding(key.WithKeys("up")),
	Down:   key.NewBinding(key.WithKeys("down")),
	Toggle: key.NewBinding(key.WithKeys("tab")),
}

func (p pickList) Query() string {
	if !p.filtered {
		return ""
	}
	return strings.TrimSpace(p.filter.Value())
}

func (p *pickList) SetItems(items []pickItem) {
	checked := map[string]bool{}
	for _, it := range p.items {
		if it.checked {
			checked[it.id] = true
		}
	}
	for i := range items {
		if checked[items[i].id] {
			items[i].checked = true
		}
	}
	p.items = items
	if p.cursor >= len(items) {
		p.cursor = len(items) - 1
	}
	if p.cursor < 0 {
		p.cursor = 0
	}
}

func (p pickList) Selected() (pickItem, bool) {
	if p.cursor < 0 || p.cursor >= len(p.items) {
		return pickItem{}, false
	}
	return p.items[p.cursor], true
}

func (p pickList) Checked() []pickItem {
	var out []pickItem
	for _, it := range p.items {
		if it.checked {
			out = append(out, it)
		}
	}
	return out
}

// Update moves the cursor, toggles items in multi mode and edits the query.
// queryChanged reports whether the owner should rebuild the items.
func (p pickList) Update(msg tea.Msg) (pl pickList, queryChanged bool, cmd tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, pickKeys.Up):
			if p.cursor > 0 {
				p.cursor--
			}
			return p, false, nil
		case key.Matches(keyMsg, pickKeys.Down):
			if p.cursor < len(p.items)-1 {
				p.cursor++
			}
			return p, false, nil
		case p.multi && key.Matches(keyMsg, pickKeys.Toggle):
			if p.cursor < len(p.items) {
				p.items[p.cursor].checked = !p.items[p.cursor].checked
			}
			return p, false, nil
		}
	}
	if !p.filtered {
		return p, false, nil
	}
	before := p.filter.Value()
	p.filter, cmd = p.filter.Update(msg)
	return p, p.filter.Value() != before, cmd
}

func (p pickList) View(width, height int) string {
	var lines []string
	if p.filtered {
		p.filter.Width = width - 4
		lines = append(lines, p.filter.View(), "")
		height -= 2
	}
	if len(p.items) == 0 {
		lines = append(lines, dimmedStyle.Render("Nothing to show"))
		return strings.Join(lines, "\n")
	}

	// Keep the cursor in view.
	start := 0
	if height > 0 && p.cursor >= height {
		start = p.cursor - height + 1
	}
	for i := start; i < len(p.items); i++ {
		if height > 0 && i-start >= height {
			break
		}
		it := p.items[i]
		label := it.title
		if p.multi {
			mark := "[ ] "
			if it.checked {
				mark = "[x] "
			}
			label = mark + label
		}
		if it.subtitle != "" {
			label += "  " + it.subtitle
		}
		label = truncateWithEllipsis(label, width-2)
		style := sidebarItemStyle
		if i == p.cursor {
			style = sidebarItemSelectedStyle
		}
		lines = append(lines, style.Width(width).Render(label))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
