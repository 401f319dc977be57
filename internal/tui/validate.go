package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/xonecas/tally/internal/constants"
	"github.com/xonecas/tally/internal/nav"
)

// validateScreen exchanges a login link for a session, then returns home.
type validateScreen struct {
	env       *screenEnv
	accountID string
	code      string
	spinner   spinner.Model
	done      bool
	err       error
}

func newValidateScreen(env *screenEnv, accountID, code string) *validateScreen {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = pendingStyle
	return &validateScreen{env: env, accountID: accountID, code: code, spinner: sp}
}

func (s *validateScreen) Init() tea.Cmd {
	env, accountID, code := s.env, s.accountID, s.code
	validate := runAction("validate login", func() (string, error) {
		ctx, cancel := context.WithTimeout(env.ctx, constants.APIRequestTimeout)
		defer cancel()
		if _, err := env.actions.ValidateLogin(ctx, accountID, code); err != nil {
			return "", err
		}
		return nav.PathHome, nil
	})
	return tea.Batch(s.spinner.Tick, validate)
}

func (s *validateScreen) TakesText() bool { return false }

func (s *validateScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case actionResultMsg:
		s.done = true
		s.err = msg.err
		if msg.err == nil {
			return s, navigateTo(msg.next)
		}
		return s, nil
	case spinner.TickMsg:
		if s.done {
			return s, nil
		}
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(msg)
		return s, cmd
	}
	return s, nil
}

func (s *validateScreen) View(width, height int) string {
	var body string
	switch {
	case s.err != nil:
		body = lipgloss.JoinVertical(lipgloss.Center,
			errorStyle.Render("This link could not be validated."),
			dimmedStyle.Render(s.err.Error()),
			"",
			hintStyle.Render("esc continue"))
	case s.done:
		body = successStyle.Render("Signed in.")
	default:
		body = s.spinner.View() + " Validating your login link…"
	}
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, body)
}
