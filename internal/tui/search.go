package tui

import (
	"context"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/xonecas/tally/internal/constants"
	"github.com/xonecas/tally/internal/nav"
)

// searchCandidate is a chat or a person that a query can match.
type searchCandidate struct {
	id    string
	title string
	sub   string
	// login is set for people without a chat.
	login string
}

// matchScore ranks title against query, lower is better. Substring matches
// rank by position; other titles rank by edit distance to their closest word
// if it is within a third of the query length.
func matchScore(query, title string) (int, bool) {
	query = strings.ToLower(strings.TrimSpace(query))
	title = strings.ToLower(title)
	if query == "" {
		return 0, true
	}
	if i := strings.Index(title, query); i >= 0 {
		return i, true
	}

	threshold := len([]rune(query)) / 3
	if threshold < 1 {
		threshold = 1
	}
	best := -1
	for _, word := range strings.FieldsFunc(title, func(r rune) bool {
		return r == ' ' || r == ',' || r == '@' || r == '.'
	}) {
		d := levenshtein.ComputeDistance(query, word)
		if best < 0 || d < best {
			best = d
		}
	}
	if best < 0 || best > threshold {
		return 0, false
	}
	// Fuzzy matches rank after every substring match.
	return 1000 + best, true
}

// rankCandidates keeps candidates matching query, best first, at most limit.
func rankCandidates(query string, candidates []searchCandidate, limit int) []searchCandidate {
	type scored struct {
		c     searchCandidate
		score int
	}
	var hits []scored
	for _, c := range candidates {
		score, ok := matchScore(query, c.title)
		if !ok && c.sub != "" {
			score, ok = matchScore(query, c.sub)
		}
		if ok {
			hits = append(hits, scored{c: c, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score < hits[j].score
		}
		return strings.ToLower(hits[i].c.title) < strings.ToLower(hits[j].c.title)
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]searchCandidate, len(hits))
	for i, h := range hits {
		out[i] = h.c
	}
	return out
}

// searchScreen finds chats and people.
type searchScreen struct {
	env        *screenEnv
	list       pickList
	candidates []searchCandidate
	err        error
}

func newSearchScreen(env *screenEnv) *searchScreen {
	s := &searchScreen{env: env, list: newFilteredPickList("Search chats and people")}
	s.loadCandidates()
	s.rebuild()
	return s
}

func (s *searchScreen) loadCandidates() {
	details := s.env.personalDetails()
	me := s.env.sessionEmail()
	s.candidates = s.candidates[:0]

	withChat := map[string]bool{}
	reports, err := s.env.store.ListReports()
	if err == nil {
		for _, r := range reports {
			s.candidates = append(s.candidates, searchCandidate{
				id:    r.ReportID,
				title: s.env.reportTitle(r, details),
				sub:   r.LastMessageText,
			})
			if others := s.env.otherParticipants(r.ReportID); len(others) == 1 {
				withChat[others[0]] = true
			}
		}
	}
	for login, d := range details {
		if login == me || withChat[login] {
			continue
		}
		s.candidates = append(s.candidates, searchCandidate{id: login, title: d.Name(), sub: login, login: login})
	}
}

func (s *searchScreen) rebuild() {
	hits := rankCandidates(s.list.Query(), s.candidates, constants.SearchMaxResults)
	items := make([]pickItem, len(hits))
	for i, h := range hits {
		sub := truncateToWidth(h.sub, 40)
		if h.login != "" {
			sub = h.login
		}
		items[i] = pickItem{id: h.id, title: h.title, subtitle: sub}
	}
	s.list.SetItems(items)
}

func (s *searchScreen) Init() tea.Cmd { return nil }

func (s *searchScreen) TakesText() bool { return true }

func (s *searchScreen) candidate(id string) (searchCandidate, bool) {
	for _, c := range s.candidates {
		if c.id == id {
			return c, true
		}
	}
	return searchCandidate{}, false
}

func (s *searchScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case storeChangedMsg:
		s.loadCandidates()
		s.rebuild()
		return s, nil
	case actionResultMsg:
		s.err = msg.err
		if msg.err == nil && msg.next != "" {
			return s, navigateTo(msg.next)
		}
		return s, nil
	case tea.KeyMsg:
		if key.Matches(msg, submitKey) {
			return s, s.open()
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

func (s *searchScreen) open() tea.Cmd {
	it, ok := s.list.Selected()
	if !ok {
		return nil
	}
	c, ok := s.candidate(it.id)
	if !ok {
		return nil
	}
	if c.login == "" {
		return navigateTo(nav.ReportRoute(c.id))
	}
	env, login := s.env, c.login
	return runAction("start chat", func() (string, error) {
		ctx, cancel := context.WithTimeout(env.ctx, constants.APIRequestTimeout)
		defer cancel()
		reportID, err := env.actions.FetchOrCreateChatReport(ctx, []string{login})
		if err != nil {
			return "", err
		}
		return nav.ReportRoute(reportID), nil
	})
}

func (s *searchScreen) View(width, height int) string {
	lines := []string{renderSectionTitle("SEARCH", width)}
	footer := []string{}
	if s.err != nil {
		footer = append(footer, errorStyle.Render(s.err.Error()))
	}
	footer = append(footer, hintStyle.Render("enter open · esc close"))
	lines = append(lines, s.list.View(width, height-len(footer)-2), "")
	lines = append(lines, footer...)
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
