package tui

import (
	"math"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/xonecas/tally/internal/constants"
)

// NumberOfLines is the row count needed to show content of scrollHeight
// units with lineHeight units per row. paddingTopAndBottom is not content.
// A positive maxLines caps the result; the result is never below one.
func NumberOfLines(lineHeight, paddingTopAndBottom, scrollHeight, maxLines int) int {
	if lineHeight <= 0 {
		lineHeight = constants.FallbackLineHeight
	}
	n := int(math.Ceil(float64(scrollHeight-paddingTopAndBottom) / float64(lineHeight)))
	if maxLines > 0 && n > maxLines {
		n = maxLines
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Metrics are the measurements of a rendered input.
type Metrics struct {
	LineHeight          int
	PaddingTopAndBottom int
	// ScrollHeight is the full content height including padding, never less
	// than the displayed rows.
	ScrollHeight int
}

// Measurer measures value rendered width columns wide in rows visible rows.
type Measurer interface {
	Measure(value string, width, rows int) Metrics
}

// TerminalMeasurer measures in terminal rows: one row per line.
type TerminalMeasurer struct {
	Padding int
}

// Measure implements Measurer.
func (t TerminalMeasurer) Measure(value string, width, rows int) Metrics {
	content := wrappedRows(value, width)
	if rows > content {
		content = rows
	}
	return Metrics{
		LineHeight:          1,
		PaddingTopAndBottom: t.Padding,
		ScrollHeight:        content + t.Padding,
	}
}

// wrappedRows counts the rows value occupies in a textarea width columns
// wide. Lines break at spaces the way the textarea soft wraps them; a word
// wider than the row is split. The cursor cell after the last word counts.
func wrappedRows(value string, width int) int {
	lines := strings.Split(value, "\n")
	if width <= 0 {
		return len(lines)
	}
	rows := 0
	for _, line := range lines {
		rows += softWrappedRows([]rune(line), width)
	}
	return rows
}

func softWrappedRows(runes []rune, width int) int {
	rows := 1
	rowWidth, wordWidth, spaces := 0, 0, 0
	lastWidth := 0

	for _, r := range runes {
		if unicode.IsSpace(r) {
			spaces++
		} else {
			wordWidth += runewidth.RuneWidth(r)
			lastWidth = runewidth.RuneWidth(r)
		}

		if spaces > 0 {
			if rowWidth+wordWidth+spaces > width {
				rows++
				rowWidth = 0
			}
			rowWidth += wordWidth + spaces
			wordWidth, spaces = 0, 0
			continue
		}
		if wordWidth+lastWidth > width {
			if rowWidth > 0 {
				rows++
			}
			rowWidth = wordWidth
			wordWidth = 0
		}
	}

	if rowWidth+wordWidth+spaces >= width {
		rows++
	}
	return rows
}

// ClearRequest asks the input with the matching id to clear itself.
type ClearRequest struct {
	id int
}

// InputClearedMsg reports that an input finished clearing.
type InputClearedMsg struct {
	id int
}

var lastInputID atomic.Int64

// AutoGrowOptions configure an AutoGrowInput.
type AutoGrowOptions struct {
	// MaxLines caps the visible rows. Zero or negative means unbounded.
	MaxLines     int
	DefaultValue string
	Placeholder  string
	Width        int
	// OnClear runs once every time a clear completes.
	OnClear  func()
	Measurer Measurer
}

// AutoGrowInput is a multi-line text field whose visible height follows its
// content.
type AutoGrowInput struct {
	id       int
	textarea textarea.Model
	measurer Measurer
	maxLines int

	numberOfLines int
	defaultValue  string
	shouldClear   bool
	onClear       func()
}

// NewAutoGrowInput creates a focused input.
func NewAutoGrowInput(opts AutoGrowOptions) AutoGrowInput {
	if opts.MaxLines == 0 {
		opts.MaxLines = constants.UnlimitedLines
	}
	if opts.Measurer == nil {
		opts.Measurer = TerminalMeasurer{Padding: composerStyle.GetVerticalPadding()}
	}

	ta := textarea.New()
	ta.Prompt = ""
	ta.ShowLineNumbers = false
	ta.Placeholder = opts.Placeholder
	ta.CharLimit = 0
	// Rows are capped by resize; MaxHeight would cap the content instead.
	ta.MaxHeight = 0
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	ta.FocusedStyle.CursorLine = ta.FocusedStyle.Base
	if opts.Width > 0 {
		ta.SetWidth(opts.Width)
	}
	ta.Focus()

	a := AutoGrowInput{
		id:            int(lastInputID.Add(1)),
		textarea:      ta,
		measurer:      opts.Measurer,
		maxLines:      opts.MaxLines,
		numberOfLines: 1,
		onClear:       opts.OnClear,
	}
	a.SetDefaultValue(opts.DefaultValue)
	return a
}

// Init starts the cursor blink.
func (a AutoGrowInput) Init() tea.Cmd {
	return textarea.Blink
}

// NumberOfLines returns the current visible row count.
func (a AutoGrowInput) NumberOfLines() int {
	return a.numberOfLines
}

// MaxLines returns the row cap, or a non-positive value when unbounded.
func (a AutoGrowInput) MaxLines() int {
	return a.maxLines
}

// Value returns the content.
func (a AutoGrowInput) Value() string {
	return a.textarea.Value()
}

// DefaultValue returns the last value given to SetDefaultValue.
func (a AutoGrowInput) DefaultValue() string {
	return a.defaultValue
}

// Textarea exposes the underlying widget for settings not covered here.
func (a *AutoGrowInput) Textarea() *textarea.Model {
	return &a.textarea
}

// SetDefaultValue replaces the content with value and recomputes the rows.
func (a *AutoGrowInput) SetDefaultValue(value string) {
	a.defaultValue = value
	a.textarea.SetValue(value)
	a.resize()
}

// SetValue replaces the content.
func (a *AutoGrowInput) SetValue(value string) {
	a.textarea.SetValue(value)
	a.resize()
}

// SetWidth sets the wrap width and recomputes the rows.
func (a *AutoGrowInput) SetWidth(width int) {
	a.textarea.SetWidth(width)
	a.resize()
}

// Focus focuses the input.
func (a *AutoGrowInput) Focus() tea.Cmd {
	return a.textarea.Focus()
}

// Blur removes focus.
func (a *AutoGrowInput) Blur() {
	a.textarea.Blur()
}

// Focused reports whether the input has focus.
func (a AutoGrowInput) Focused() bool {
	return a.textarea.Focused()
}

// SetShouldClear sets the clear flag. Only a false to true change clears;
// holding it true does nothing. The returned command carries the request.
func (a *AutoGrowInput) SetShouldClear(shouldClear bool) tea.Cmd {
	rising := shouldClear && !a.shouldClear
	a.shouldClear = shouldClear
	if !rising {
		return nil
	}
	id := a.id
	return func() tea.Msg { return ClearRequest{id: id} }
}

// ShouldClear returns the clear flag.
func (a AutoGrowInput) ShouldClear() bool {
	return a.shouldClear
}

// IsCleared reports whether msg acknowledges a clear of this input.
func (a AutoGrowInput) IsCleared(msg tea.Msg) bool {
	cleared, ok := msg.(InputClearedMsg)
	return ok && cleared.id == a.id
}

func (a *AutoGrowInput) clear() tea.Cmd {
	a.textarea.Reset()
	a.textarea.SetHeight(1)
	a.numberOfLines = 1
	if a.onClear != nil {
		a.onClear()
	}
	id := a.id
	return func() tea.Msg { return InputClearedMsg{id: id} }
}

// resize shrinks to one row before measuring so deleted content is not
// counted from the previous height.
func (a *AutoGrowInput) resize() {
	a.textarea.SetHeight(1)
	m := a.measurer.Measure(a.textarea.Value(), a.textarea.Width(), a.textarea.Height())
	a.numberOfLines = NumberOfLines(m.LineHeight, m.PaddingTopAndBottom, m.ScrollHeight, a.maxLines)
	a.textarea.SetHeight(a.numberOfLines)
}

// Update handles key input and clear requests.
func (a AutoGrowInput) Update(msg tea.Msg) (AutoGrowInput, tea.Cmd) {
	if req, ok := msg.(ClearRequest); ok {
		if req.id != a.id {
			return a, nil
		}
		return a, a.clear()
	}

	before := a.textarea.Value()
	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	if a.textarea.Value() != before {
		a.resize()
	}
	return a, cmd
}

// View renders the input.
func (a AutoGrowInput) View() string {
	return a.textarea.View()
}
