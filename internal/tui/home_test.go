package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/xonecas/tally/internal/constants"
	"github.com/xonecas/tally/internal/nav"
	"github.com/xonecas/tally/internal/store"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func TestVisibleReports(t *testing.T) {
	reports := []*store.Report{
		{ReportID: "read"},
		{ReportID: "unread", UnreadActionCount: 2},
		{ReportID: "pinned", IsPinned: true},
		{ReportID: "open"},
	}

	if got := visibleReports(reports, constants.DefaultPriorityMode, "open"); len(got) != 4 {
		t.Errorf("default mode shows %d chats, want 4", len(got))
	}

	got := visibleReports(reports, constants.PriorityModeGSD, "open")
	var ids []string
	for _, r := range got {
		ids = append(ids, r.ReportID)
	}
	if strings.Join(ids, ",") != "unread,pinned,open" {
		t.Errorf("focus mode shows %v", ids)
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{"fits", "hello world", 20, []string{"hello world"}},
		{"wraps words", "hello big world", 9, []string{"hello big", "world"}},
		{"hard wraps long word", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"keeps blank lines", "a\n\nb", 10, []string{"a", "", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapText(tt.text, tt.width)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("wrapText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
			}
		})
	}
}

func TestRenderHistory(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	actions := []store.ReportAction{
		{ActorEmail: "alice@example.com", Message: "lunch?", Created: now.Add(-time.Minute)},
		{ActorEmail: testEmail, Message: "on my way", Created: now, IsOptimistic: true},
	}
	details := map[string]store.PersonalDetails{"alice@example.com": {DisplayName: "Alice"}}

	out := renderHistory(actions, testEmail, details, 40, now)
	for _, want := range []string{"Alice", "lunch?", "on my way", "sending…", testEmail} {
		if !strings.Contains(out, want) {
			t.Errorf("history missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "lunch?") > strings.Index(out, "on my way") {
		t.Error("history must be oldest first")
	}

	if !strings.Contains(renderHistory(nil, testEmail, nil, 40, now), "No messages yet") {
		t.Error("expected empty history placeholder")
	}
}

func TestHomeOpensReportWithDraft(t *testing.T) {
	env, actions := newTestEnv(t)
	mustSet(t, env.store, store.DraftKey("2"), "half written")

	h := newHomeScreen(env, "1")
	if h.ReportID() != "1" || len(h.history) != 2 {
		t.Fatalf("report = %s, history = %d", h.ReportID(), len(h.history))
	}

	h.composer.SetValue("unsent")
	h.openReport("2")

	if actions.drafts["1"] != "unsent" {
		t.Errorf("draft for 1 = %q, want saved composer text", actions.drafts["1"])
	}
	if h.composer.Value() != "half written" {
		t.Errorf("composer = %q, want draft of 2", h.composer.Value())
	}
	if last := actions.viewed[len(actions.viewed)-1]; last != "2" {
		t.Errorf("last viewed = %s, want 2", last)
	}
}

// runCmd executes cmd and flattens batches.
func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, runCmd(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func TestHomeSendClearsComposer(t *testing.T) {
	env, actions := newTestEnv(t)
	h := newHomeScreen(env, "1")

	var s screen = h
	s = typeText(s, "hi there")
	if h.composer.Value() != "hi there" {
		t.Fatalf("composer = %q", h.composer.Value())
	}
	if actions.drafts["1"] != "hi there" {
		t.Errorf("draft = %q, want saved while typing", actions.drafts["1"])
	}

	_, cmd := s.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !h.composer.ShouldClear() {
		t.Error("expected clear flag set on send")
	}

	var clearReq tea.Msg
	for _, msg := range runCmd(cmd) {
		if _, ok := msg.(ClearRequest); ok {
			clearReq = msg
		}
	}
	if actions.commentCount() != 1 || actions.comments[0] != "1:hi there" {
		t.Errorf("comments = %v", actions.comments)
	}
	if clearReq == nil {
		t.Fatal("expected a clear request")
	}

	_, cmd = s.Update(clearReq)
	if h.composer.Value() != "" || h.composer.NumberOfLines() != 1 {
		t.Errorf("composer not cleared: %q, %d lines", h.composer.Value(), h.composer.NumberOfLines())
	}
	s.Update(cmd())
	if h.composer.ShouldClear() {
		t.Error("expected clear flag reset after clearing")
	}
}

func TestHomeIgnoresBlankSend(t *testing.T) {
	env, actions := newTestEnv(t)
	var s screen = newHomeScreen(env, "1")
	s = typeText(s, "   ")
	_, cmd := s.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil || actions.commentCount() != 0 {
		t.Error("blank messages must not be sent")
	}
}

func TestHomeSidebarOpensReport(t *testing.T) {
	env, _ := newTestEnv(t)
	h := newHomeScreen(env, "1")
	var s screen = h

	s, _ = s.Update(tea.KeyMsg{Type: tea.KeyTab})
	if s.TakesText() {
		t.Fatal("sidebar focus must not take text")
	}
	s, _ = s.Update(tea.KeyMsg{Type: tea.KeyDown})
	_, cmd := s.Update(tea.KeyMsg{Type: tea.KeyEnter})

	var path string
	for _, msg := range runCmd(cmd) {
		if nm, ok := msg.(navigateMsg); ok {
			path = nm.path
		}
	}
	if path != nav.ReportRoute("2") {
		t.Errorf("navigate to %q, want report 2", path)
	}
}

func TestHomeFocusModeHidesReadChats(t *testing.T) {
	env, _ := newTestEnv(t)
	mustSet(t, env.store, store.ReportKey("3"), store.Report{ReportID: "3", ReportName: "Old news"})
	mustSet(t, env.store, store.KeyNVPPriorityMode, constants.PriorityModeGSD)

	h := newHomeScreen(env, "1")
	view := h.View(TestTerminalWidth, TestTerminalHeight)
	if strings.Contains(view, "Old news") {
		t.Error("read chat shown in focus mode")
	}
	if !strings.Contains(view, "Trip to Lisbon") || !strings.Contains(view, "#FOCUS") {
		t.Errorf("unread chat missing in focus mode:\n%s", view)
	}
}
