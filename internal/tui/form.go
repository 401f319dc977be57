package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type formField struct {
	label string
	input textinput.Model
}

// form is a column of labelled single-line fields. Enter is left to the
// owner.
type form struct {
	fields []formField
	focus  int
}

type fieldSpec struct {
	label       string
	placeholder string
	value       string
	secret      bool
	charLimit   int
}

func newForm(specs ...fieldSpec) form {
	f := form{}
	for _, s := range specs {
		ti := textinput.New()
		ti.Placeholder = s.placeholder
		ti.CharLimit = 200
		if s.charLimit > 0 {
			ti.CharLimit = s.charLimit
		}
		ti.Prompt = inputPromptStyle.Render("› ")
		if s.secret {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '•'
		}
		ti.SetValue(s.value)
		ti.CursorEnd()
		f.fields = append(f.fields, formField{label: s.label, input: ti})
	}
	if len(f.fields) > 0 {
		f.fields[0].input.Focus()
	}
	return f
}

var formKeys = struct {
	Next key.Binding
	Prev key.Binding
}{
	Next: key.NewBinding(key.WithKeys("tab", "down")),
	Prev: key.NewBinding(key.WithKeys("shift+tab", "up")),
}

func (f form) Value(i int) string {
	if i < 0 || i >= len(f.fields) {
		return ""
	}
	return strings.TrimSpace(f.fields[i].input.Value())
}

// RawValue returns a field without trimming, for secrets.
func (f form) RawValue(i int) string {
	if i < 0 || i >= len(f.fields) {
		return ""
	}
	return f.fields[i].input.Value()
}

func (f form) Focused() int {
	return f.focus
}

func (f *form) setFocus(i int) tea.Cmd {
	if len(f.fields) == 0 {
		return nil
	}
	f.fields[f.focus].input.Blur()
	f.focus = (i + len(f.fields)) % len(f.fields)
	return f.fields[f.focus].input.Focus()
}

func (f form) Update(msg tea.Msg) (form, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, formKeys.Next):
			return f, f.setFocus(f.focus + 1)
		case key.Matches(keyMsg, formKeys.Prev):
			return f, f.setFocus(f.focus - 1)
		}
	}
	if len(f.fields) == 0 {
		return f, nil
	}
	var cmd tea.Cmd
	f.fields[f.focus].input, cmd = f.fields[f.focus].input.Update(msg)
	return f, cmd
}

func (f form) View(width int) string {
	var lines []string
	for i, field := range f.fields {
		label := labelStyle.Render(field.label)
		if i == f.focus {
			label = panelTitleStyle.Render(field.label)
		}
		field.input.Width = width - 4
		lines = append(lines, label, field.input.View(), "")
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
