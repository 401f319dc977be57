package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
	"github.com/xonecas/tally/internal/constants"
	"github.com/xonecas/tally/internal/core"
	"github.com/xonecas/tally/internal/nav"
	"github.com/xonecas/tally/internal/store"
)

const sidebarWidth = 32

type homeFocus int

const (
	focusComposer homeFocus = iota
	focusSidebar
)

var homeKeys = struct {
	Switch   key.Binding
	Up       key.Binding
	Down     key.Binding
	Open     key.Binding
	Send     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
}{
	Switch:   key.NewBinding(key.WithKeys("tab")),
	Up:       key.NewBinding(key.WithKeys("up", "k")),
	Down:     key.NewBinding(key.WithKeys("down", "j")),
	Open:     key.NewBinding(key.WithKeys("enter")),
	Send:     key.NewBinding(key.WithKeys("enter")),
	PageUp:   key.NewBinding(key.WithKeys("pgup")),
	PageDown: key.NewBinding(key.WithKeys("pgdown")),
}

// homeScreen is the chat list beside the open report and its composer.
type homeScreen struct {
	env *screenEnv

	reports  []*store.Report
	details  map[string]store.PersonalDetails
	selected int
	mode     string

	reportID string
	history  []store.ReportAction
	viewport viewport.Model
	composer AutoGrowInput
	focus    homeFocus

	width  int
	height int
	now    func() time.Time
}

func newHomeScreen(env *screenEnv, reportID string) *homeScreen {
	h := &homeScreen{
		env:      env,
		viewport: viewport.New(40, 10),
		now:      time.Now,
	}
	h.composer = NewAutoGrowInput(AutoGrowOptions{
		MaxLines:    env.composerMaxLines,
		Placeholder: "Write something...",
		Width:       40,
	})
	h.reload()
	h.openReport(reportID)
	return h
}

// ReportID returns the open report.
func (h *homeScreen) ReportID() string {
	return h.reportID
}

// Composer returns the composer input.
func (h *homeScreen) Composer() AutoGrowInput {
	return h.composer
}

func (h *homeScreen) Init() tea.Cmd {
	return tea.Batch(h.composer.Init(), h.fetchHistory())
}

func (h *homeScreen) TakesText() bool {
	return h.focus == focusComposer
}

func (h *homeScreen) loadPriorityMode() {
	mode := constants.DefaultPriorityMode
	if ok, err := h.env.store.Get(store.KeyNVPPriorityMode, &mode); err != nil || !ok {
		mode = constants.DefaultPriorityMode
	}
	h.mode = mode
}

// visibleReports applies the priority mode. Focus mode keeps unread and
// pinned chats plus the open one.
func visibleReports(reports []*store.Report, mode, openID string) []*store.Report {
	if mode != constants.PriorityModeGSD {
		return reports
	}
	out := make([]*store.Report, 0, len(reports))
	for _, r := range reports {
		if r.UnreadActionCount > 0 || r.IsPinned || r.ReportID == openID {
			out = append(out, r)
		}
	}
	return out
}

// reload reads the chat list and the open report's history from the store.
func (h *homeScreen) reload() {
	h.loadPriorityMode()
	h.details = h.env.personalDetails()

	all, err := h.env.store.ListReports()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list reports")
		all = nil
	}
	h.reports = visibleReports(all, h.mode, h.reportID)
	h.syncSelection()
	h.loadHistory()
}

func (h *homeScreen) syncSelection() {
	for i, r := range h.reports {
		if r.ReportID == h.reportID {
			h.selected = i
			return
		}
	}
	if h.selected >= len(h.reports) {
		h.selected = len(h.reports) - 1
	}
	if h.selected < 0 {
		h.selected = 0
	}
}

func (h *homeScreen) loadHistory() {
	if h.reportID == "" {
		h.history = nil
		h.refreshViewport()
		return
	}
	actions, err := h.env.store.GetReportActions(h.reportID)
	if err != nil {
		h.history = nil
	} else {
		h.history = actions.Sorted()
	}
	if len(h.history) > constants.MaxReportActionsShown {
		h.history = h.history[len(h.history)-constants.MaxReportActionsShown:]
	}
	h.refreshViewport()
}

// openReport switches the open report, keeping the composer text of the
// previous one as its draft.
func (h *homeScreen) openReport(reportID string) {
	if reportID == h.reportID && h.history != nil {
		return
	}
	if h.reportID != "" && h.reportID != reportID {
		if err := h.env.actions.SaveDraft(h.reportID, h.composer.Value()); err != nil {
			log.Warn().Err(err).Str("report_id", h.reportID).Msg("Failed to save draft")
		}
	}
	h.reportID = reportID
	if reportID != "" {
		if err := h.env.actions.SetCurrentlyViewedReport(reportID); err != nil {
			log.Warn().Err(err).Str("report_id", reportID).Msg("Failed to mark report viewed")
		}
	}

	var draft string
	if reportID != "" {
		if _, err := h.env.store.Get(store.DraftKey(reportID), &draft); err != nil {
			draft = ""
		}
	}
	h.composer.SetDefaultValue(draft)
	h.reload()
	h.viewport.GotoBottom()
}

func (h *homeScreen) fetchHistory() tea.Cmd {
	if h.reportID == "" {
		return nil
	}
	reportID := h.reportID
	env := h.env
	return runAction("load history", func() (string, error) {
		ctx, cancel := context.WithTimeout(env.ctx, constants.APIRequestTimeout)
		defer cancel()
		return "", env.actions.FetchActions(ctx, reportID)
	})
}

func (h *homeScreen) send() tea.Cmd {
	text := strings.TrimSpace(h.composer.Value())
	if text == "" || h.reportID == "" {
		return nil
	}
	reportID := h.reportID
	env := h.env
	clearCmd := h.composer.SetShouldClear(true)
	post := runAction("send comment", func() (string, error) {
		return "", env.actions.AddComment(env.ctx, reportID, text)
	})
	return tea.Batch(clearCmd, post)
}

func (h *homeScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case storeChangedMsg:
		if msg.key == store.KeyCurrentlyViewedReportID || strings.HasPrefix(msg.key, store.KeyDraftPrefix) {
			return h, nil
		}
		atBottom := h.viewport.AtBottom()
		h.reload()
		if atBottom {
			h.viewport.GotoBottom()
		}
		return h, nil

	case ClearRequest:
		var cmd tea.Cmd
		h.composer, cmd = h.composer.Update(msg)
		return h, cmd

	case InputClearedMsg:
		if h.composer.IsCleared(msg) {
			h.composer.SetShouldClear(false)
		}
		return h, nil

	case tea.KeyMsg:
		return h.handleKey(msg)
	}

	var cmd tea.Cmd
	h.composer, cmd = h.composer.Update(msg)
	return h, cmd
}

func (h *homeScreen) handleKey(msg tea.KeyMsg) (screen, tea.Cmd) {
	switch {
	case key.Matches(msg, homeKeys.Switch):
		if h.focus == focusComposer {
			h.focus = focusSidebar
			h.composer.Blur()
			return h, nil
		}
		h.focus = focusComposer
		return h, h.composer.Focus()
	case key.Matches(msg, homeKeys.PageUp):
		h.viewport.HalfViewUp()
		return h, nil
	case key.Matches(msg, homeKeys.PageDown):
		h.viewport.HalfViewDown()
		return h, nil
	}

	if h.focus == focusSidebar {
		switch {
		case key.Matches(msg, homeKeys.Up):
			if h.selected > 0 {
				h.selected--
			}
		case key.Matches(msg, homeKeys.Down):
			if h.selected < len(h.reports)-1 {
				h.selected++
			}
		case key.Matches(msg, homeKeys.Open):
			if h.selected < len(h.reports) {
				h.focus = focusComposer
				return h, tea.Batch(h.composer.Focus(), navigateTo(nav.ReportRoute(h.reports[h.selected].ReportID)))
			}
		}
		return h, nil
	}

	if key.Matches(msg, homeKeys.Send) {
		return h, h.send()
	}

	before := h.composer.Value()
	var cmd tea.Cmd
	h.composer, cmd = h.composer.Update(msg)
	if h.composer.Value() != before && h.reportID != "" {
		if err := h.env.actions.SaveDraft(h.reportID, h.composer.Value()); err != nil {
			log.Warn().Err(err).Msg("Failed to save draft")
		}
	}
	return h, cmd
}

func (h *homeScreen) layout(width, height int) (sidebar, report int) {
	if h.env.smallScreen {
		return width, width
	}
	sidebar = sidebarWidth
	if width < sidebar*2 {
		sidebar = width / 3
	}
	return sidebar, width - sidebar
}

func (h *homeScreen) View(width, height int) string {
	h.width, h.height = width, height
	sideW, reportW := h.layout(width, height)

	if h.env.smallScreen {
		if h.focus == focusSidebar {
			return h.renderSidebar(sideW, height)
		}
		return h.renderReport(reportW, height)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, h.renderSidebar(sideW, height), h.renderReport(reportW, height))
}

func (h *homeScreen) renderSidebar(width, height int) string {
	inner := width - 2
	title := "CHATS"
	if h.mode == constants.PriorityModeGSD {
		title = "#FOCUS"
	}
	lines := []string{renderSectionTitle(title, inner)}

	if len(h.reports) == 0 {
		lines = append(lines, dimmedStyle.Render("No chats yet. Alt+N starts one."))
	}
	for i, r := range h.reports {
		name := h.env.reportTitle(r, h.details)
		badge := ""
		if r.UnreadActionCount > 0 {
			badge = fmt.Sprintf(" (%d)", r.UnreadActionCount)
		}
		if r.IsPinned {
			name = "📌 " + name
		}
		label := truncateWithEllipsis(name, inner-2-lipgloss.Width(badge)) + badge

		style := sidebarItemStyle
		switch {
		case i == h.selected && h.focus == focusSidebar:
			style = sidebarItemSelectedStyle
		case r.UnreadActionCount > 0:
			style = sidebarItemUnreadStyle
		}
		if r.ReportID == h.reportID && i != h.selected {
			label = "› " + truncateToWidth(label, inner-4)
		}
		lines = append(lines, style.Width(inner).Render(label))
	}

	return sidebarStyle.Width(inner).Height(height - 2).Render(strings.Join(lines, "\n"))
}

func (h *homeScreen) renderReport(width, height int) string {
	inner := width - 2
	if h.reportID == "" {
		empty := lipgloss.Place(inner, height-2, lipgloss.Center, lipgloss.Center,
			dimmedStyle.Render("Pick a chat or press Alt+N to start one."))
		return reportStyle.Width(inner).Height(height - 2).Render(empty)
	}

	title := h.reportID
	if r, err := h.env.store.GetReport(h.reportID); err == nil {
		title = h.env.reportTitle(r, h.details)
	}
	header := renderSectionTitleWithSuffix(truncateWithEllipsis(title, inner-12), h.scrollSuffix(), inner)

	h.composer.SetWidth(inner - 4)
	composerBox := composerStyle
	if !h.composer.Focused() {
		composerBox = composerBlurredStyle
	}
	composer := composerBox.Width(inner - 2).Render(h.composer.View())

	vpHeight := height - 2 - lipgloss.Height(header) - lipgloss.Height(composer)
	if vpHeight < 1 {
		vpHeight = 1
	}
	if h.viewport.Width != inner || h.viewport.Height != vpHeight {
		h.viewport.Width = inner
		h.viewport.Height = vpHeight
		h.refreshViewport()
	}

	body := lipgloss.JoinVertical(lipgloss.Left, header, h.viewport.View(), composer)
	return reportStyle.Width(inner).Height(height - 2).Render(body)
}

func (h *homeScreen) scrollSuffix() string {
	if h.viewport.TotalLineCount() <= h.viewport.Height {
		return ""
	}
	return dimmedStyle.Render(fmt.Sprintf(" %3.0f%%", h.viewport.ScrollPercent()*100))
}

func (h *homeScreen) refreshViewport() {
	width := h.viewport.Width
	if width <= 0 {
		width = 40
	}
	atBottom := h.viewport.AtBottom()
	h.viewport.SetContent(renderHistory(h.history, h.env.sessionEmail(), h.details, width, h.now()))
	if atBottom {
		h.viewport.GotoBottom()
	}
}

// renderHistory renders report actions oldest first.
func renderHistory(actions []store.ReportAction, me string, details map[string]store.PersonalDetails, width int, now time.Time) string {
	if len(actions) == 0 {
		return dimmedStyle.Render("No messages yet.")
	}
	var b strings.Builder
	for i, a := range actions {
		if i > 0 {
			b.WriteString("\n")
		}
		name := a.ActorEmail
		if d, ok := details[a.ActorEmail]; ok {
			name = d.Name()
		}
		actorStyle := actorOthersStyle
		if a.ActorEmail == me {
			actorStyle = actorMineStyle
		}
		head := actorStyle.Render(name) + " " + dimmedStyle.Render(formatActionTimestamp(a.Created, now))
		if a.IsOptimistic {
			head += " " + pendingStyle.Render("sending…")
		}
		b.WriteString(head + "\n")

		bodyStyle := lipgloss.NewStyle()
		if a.ActionName != "" && a.ActionName != core.ActionAddComment {
			bodyStyle = systemMessageStyle
		}
		for _, line := range wrapText(a.Message, width-2) {
			b.WriteString("  " + bodyStyle.Render(line) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// wrapText wraps text to maxWidth display columns, preserving words. Words
// longer than maxWidth are hard wrapped.
func wrapText(text string, maxWidth int) []string {
	if maxWidth <= 0 {
		maxWidth = 80
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}

		currentLine := ""
		for _, word := range words {
			wordWidth := lipgloss.Width(word)

			if wordWidth > maxWidth {
				if currentLine != "" {
					lines = append(lines, currentLine)
					currentLine = ""
				}
				for word != "" {
					chunk := truncateToWidth(word, maxWidth)
					if chunk == "" {
						// A single rune wider than maxWidth.
						r := []rune(word)
						chunk = string(r[0])
					}
					lines = append(lines, chunk)
					word = word[len(chunk):]
				}
				continue
			}

			if currentLine == "" {
				currentLine = word
			} else if lipgloss.Width(currentLine)+1+wordWidth <= maxWidth {
				currentLine += " " + word
			} else {
				lines = append(lines, currentLine)
				currentLine = word
			}
		}
		if currentLine != "" {
			lines = append(lines, currentLine)
		}
	}
	return lines
}
