package tui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/xonecas/tally/internal/constants"
	"github.com/xonecas/tally/internal/nav"
	"github.com/xonecas/tally/internal/store"
)

var errNoneChosen = errors.New("pick at least one person")

// peopleItems lists everyone in personal details except the user, sorted by
// name, keeping those matching query.
func peopleItems(details map[string]store.PersonalDetails, me, query string) []pickItem {
	query = strings.ToLower(query)
	var items []pickItem
	for login, d := range details {
		if login == me {
			continue
		}
		name := d.Name()
		if query != "" && !strings.Contains(strings.ToLower(name), query) && !strings.Contains(strings.ToLower(login), query) {
			continue
		}
		sub := ""
		if name != login {
			sub = login
		}
		items = append(items, pickItem{id: login, title: name, subtitle: sub})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].title != items[j].title {
			return strings.ToLower(items[i].title) < strings.ToLower(items[j].title)
		}
		return items[i].id < items[j].id
	})
	return items
}

// peopleScreen starts a chat with one person, or with several in group
// mode.
type peopleScreen struct {
	env   *screenEnv
	group bool
	list  pickList
	busy  bool
	err   error
}

func newPeopleScreen(env *screenEnv, group bool) *peopleScreen {
	s := &peopleScreen{env: env, group: group, list: newFilteredPickList("Name or email")}
	s.list.multi = group
	s.rebuild()
	return s
}

func (s *peopleScreen) rebuild() {
	items := peopleItems(s.env.personalDetails(), s.env.sessionEmail(), s.list.Query())
	if q := s.list.Query(); q != "" && strings.Contains(q, "@") {
		known := false
		for _, it := range items {
			if strings.EqualFold(it.id, q) {
				known = true
				break
			}
		}
		if !known {
			items = append([]pickItem{{id: q, title: q, subtitle: "new contact"}}, items...)
		}
	}
	s.list.SetItems(items)
}

func (s *peopleScreen) Init() tea.Cmd { return nil }

func (s *peopleScreen) TakesText() bool { return true }

func (s *peopleScreen) logins() []string {
	if !s.group {
		if it, ok := s.list.Selected(); ok {
			return []string{it.id}
		}
		return nil
	}
	var out []string
	for _, it := range s.list.Checked() {
		out = append(out, it.id)
	}
	return out
}

func (s *peopleScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case storeChangedMsg:
		if msg.key == store.KeyPersonalDetails {
			s.rebuild()
		}
		return s, nil
	case actionResultMsg:
		s.busy = false
		s.err = msg.err
		if msg.err == nil && msg.next != "" {
			return s, navigateTo(msg.next)
		}
		return s, nil
	case tea.KeyMsg:
		if key.Matches(msg, submitKey) {
			if s.busy {
				return s, nil
			}
			logins := s.logins()
			if len(logins) == 0 {
				s.err = errNoneChosen
				return s, nil
			}
			s.busy = true
			s.err = nil
			env := s.env
			return s, runAction("start chat", func() (string, error) {
				ctx, cancel := context.WithTimeout(env.ctx, constants.APIRequestTimeout)
				defer cancel()
				reportID, err := env.actions.FetchOrCreateChatReport(ctx, logins)
				if err != nil {
					return "", err
				}
				return nav.ReportRoute(reportID), nil
			})
		}
	}

	var changed bool
	var cmd tea.Cmd
	s.list, changed, cmd = s.list.Update(msg)
	if changed {
		s.rebuild()
	}
	return s, cmd
}

func (s *peopleScreen) View(width, height int) string {
	title, help := "NEW CHAT", "enter start chat · esc close"
	if s.group {
		title, help = "NEW GROUP", "tab select · enter start group · esc close"
	}
	lines := []string{renderSectionTitle(title, width)}
	if s.group {
		lines = append(lines, dimmedStyle.Render(fmt.Sprintf("%d selected", len(s.list.Checked()))))
	}
	footer := []string{}
	switch {
	case s.busy:
		footer = append(footer, pendingStyle.Render("Opening chat…"))
	case s.err != nil:
		footer = append(footer, errorStyle.Render(s.err.Error()))
	}
	footer = append(footer, hintStyle.Render(help))

	listHeight := height - len(lines) - len(footer) - 1
	lines = append(lines, s.list.View(width, listHeight), "")
	lines = append(lines, footer...)
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// participantsScreen lists a report's participants.
type participantsScreen struct {
	env      *screenEnv
	reportID string
	list     pickList
}

func newParticipantsScreen(env *screenEnv, reportID string) *participantsScreen {
	s := &participantsScreen{env: env, reportID: reportID, list: newPickList(nil)}
	s.rebuild()
	return s
}

func (s *participantsScreen) rebuild() {
	details := s.env.personalDetails()
	var items []pickItem
	for _, login := range s.env.otherParticipants(s.reportID) {
		name := s.env.displayName(details, login)
		sub := ""
		if name != login {
			sub = login
		}
		items = append(items, pickItem{id: login, title: name, subtitle: sub})
	}
	s.list.SetItems(items)
}

func (s *participantsScreen) Init() tea.Cmd { return nil }

func (s *participantsScreen) TakesText() bool { return false }

func (s *participantsScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case storeChangedMsg:
		s.rebuild()
		return s, nil
	case tea.KeyMsg:
		if key.Matches(msg, submitKey) {
			if it, ok := s.list.Selected(); ok {
				return s, navigateTo(nav.ParticipantRoute(s.reportID, it.id))
			}
			return s, nil
		}
	}
	s.list, _, _ = s.list.Update(msg)
	return s, nil
}

func (s *participantsScreen) View(width, height int) string {
	lines := []string{renderSectionTitle("PARTICIPANTS", width), ""}
	lines = append(lines, s.list.View(width, height-4), "", hintStyle.Render("enter details · esc close"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// detailsScreen shows one person's details.
type detailsScreen struct {
	env   *screenEnv
	login string
	now   func() time.Time
	err   error
}

func newDetailsScreen(env *screenEnv, login string) *detailsScreen {
	return &detailsScreen{env: env, login: login, now: time.Now}
}

func (s *detailsScreen) Init() tea.Cmd { return nil }

func (s *detailsScreen) TakesText() bool { return false }

func (s *detailsScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case actionResultMsg:
		s.err = msg.err
		if msg.err == nil && msg.next != "" {
			return s, navigateTo(msg.next)
		}
	case tea.KeyMsg:
		if key.Matches(msg, submitKey) && s.login != "" {
			env, login := s.env, s.login
			return s, runAction("start chat", func() (string, error) {
				ctx, cancel := context.WithTimeout(env.ctx, constants.APIRequestTimeout)
				defer cancel()
				reportID, err := env.actions.FetchOrCreateChatReport(ctx, []string{login})
				if err != nil {
					return "", err
				}
				return nav.ReportRoute(reportID), nil
			})
		}
	}
	return s, nil
}

// localTime formats now in the zone, or "" when the zone is unknown.
func localTime(zone string, now time.Time) string {
	if zone == "" {
		return ""
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return ""
	}
	t := now.In(loc)
	return t.Format("15:04 MST")
}

func (s *detailsScreen) View(width, height int) string {
	if s.login == "" {
		return dimmedStyle.Render("Nobody to show.")
	}
	d, ok := s.env.personalDetails()[s.login]
	if !ok {
		d = store.PersonalDetails{Login: s.login}
	}
	row := func(label, value string) string {
		return labelStyle.Width(12).Render(label) + valueStyle.Render(truncateWithEllipsis(value, width-13))
	}

	lines := []string{renderSectionTitle("DETAILS", width), ""}
	lines = append(lines, titleStyle.Render(truncateWithEllipsis(d.Name(), width)), "")
	lines = append(lines, row("Login", s.login))
	if t := localTime(d.Timezone.Selected, s.now()); t != "" {
		lines = append(lines, row("Local time", t))
	}
	lines = append(lines, "")
	if s.err != nil {
		lines = append(lines, errorStyle.Render(s.err.Error()))
	}
	lines = append(lines, hintStyle.Render("enter message · esc close"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
