package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/xonecas/tally/internal/constants"
	"github.com/xonecas/tally/internal/core"
	"github.com/xonecas/tally/internal/nav"
	"github.com/xonecas/tally/internal/store"
)

var submitKey = key.NewBinding(key.WithKeys("enter"))

var errPasswordMismatch = errors.New("new passwords do not match")

func newSettingsScreen(env *screenEnv, route nav.Route) screen {
	switch route.Sub {
	case nav.SubSettingsProfile:
		return newProfileScreen(env)
	case nav.SubSettingsPreferences:
		return newPreferencesScreen(env)
	case nav.SubSettingsPassword:
		return newPasswordScreen(env)
	case nav.SubSettingsPayments:
		return newPaymentsScreen(env)
	}
	return newSettingsRootScreen(env)
}

type settingsRootScreen struct {
	env  *screenEnv
	list pickList
}

func newSettingsRootScreen(env *screenEnv) *settingsRootScreen {
	return &settingsRootScreen{env: env, list: newPickList([]pickItem{
		{id: nav.PathSettingsProfile, title: "Profile", subtitle: "name"},
		{id: nav.PathSettingsPreferences, title: "Preferences", subtitle: "priority mode, timezone"},
		{id: nav.PathSettingsPassword, title: "Change password"},
		{id: nav.PathSettingsPayments, title: "Payments", subtitle: "PayPal.me"},
	})}
}

func (s *settingsRootScreen) Init() tea.Cmd { return nil }

func (s *settingsRootScreen) TakesText() bool { return false }

func (s *settingsRootScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && key.Matches(k, submitKey) {
		if it, ok := s.list.Selected(); ok {
			return s, navigateTo(it.id)
		}
		return s, nil
	}
	s.list, _, _ = s.list.Update(msg)
	return s, nil
}

func (s *settingsRootScreen) View(width, height int) string {
	email := s.env.sessionEmail()
	head := []string{renderSectionTitle("SETTINGS", width)}
	if email != "" {
		head = append(head, labelStyle.Render("Signed in as ")+valueStyle.Render(email))
	}
	head = append(head, "")
	body := s.list.View(width, height-len(head))
	return lipgloss.JoinVertical(lipgloss.Left, append(head, body)...)
}

// formScreen is a settings page backed by a form and one submit action.
type formScreen struct {
	env    *screenEnv
	title  string
	hint   string
	form   form
	submit func(f form) tea.Cmd

	busy   bool
	status string
	err    error
}

func (s *formScreen) Init() tea.Cmd { return nil }

func (s *formScreen) TakesText() bool { return true }

func (s *formScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case actionResultMsg:
		s.busy = false
		if msg.err != nil {
			s.err = msg.err
			s.status = ""
			return s, nil
		}
		s.err = nil
		s.status = "Saved."
		return s, goBack
	case tea.KeyMsg:
		if key.Matches(msg, submitKey) {
			if s.busy {
				return s, nil
			}
			s.busy = true
			s.err = nil
			s.status = "Saving…"
			return s, s.submit(s.form)
		}
	}
	var cmd tea.Cmd
	s.form, cmd = s.form.Update(msg)
	return s, cmd
}

func (s *formScreen) View(width, height int) string {
	lines := []string{renderSectionTitle(s.title, width), ""}
	if s.hint != "" {
		lines = append(lines, dimmedStyle.Render(s.hint), "")
	}
	lines = append(lines, s.form.View(width))
	switch {
	case s.err != nil:
		lines = append(lines, errorStyle.Render(s.err.Error()))
	case s.status != "":
		lines = append(lines, successStyle.Render(s.status))
	}
	lines = append(lines, hintStyle.Render("enter save · tab next field · esc back"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (e *screenEnv) myDetails() store.PersonalDetails {
	var mine store.PersonalDetails
	if ok, err := e.store.Get(store.KeyMyPersonalDetails, &mine); err == nil && ok {
		return mine
	}
	if d, ok := e.personalDetails()[e.sessionEmail()]; ok {
		return d
	}
	return mine
}

func newProfileScreen(env *screenEnv) *formScreen {
	mine := env.myDetails()
	return &formScreen{
		env:   env,
		title: "PROFILE",
		form: newForm(
			fieldSpec{label: "First name", placeholder: "Jane", value: mine.FirstName, charLimit: 50},
			fieldSpec{label: "Last name", placeholder: "Doe", value: mine.LastName, charLimit: 50},
		),
		submit: func(f form) tea.Cmd {
			first, last := f.Value(0), f.Value(1)
			return runAction("update profile", func() (string, error) {
				ctx, cancel := context.WithTimeout(env.ctx, constants.APIRequestTimeout)
				defer cancel()
				return "", env.actions.SetPersonalDetails(ctx, map[string]any{
					"firstName":   first,
					"lastName":    last,
					"displayName": strings.TrimSpace(first + " " + last),
				})
			})
		},
	}
}

func newPasswordScreen(env *screenEnv) *formScreen {
	return &formScreen{
		env:   env,
		title: "CHANGE PASSWORD",
		hint:  fmt.Sprintf("New passwords must be at least %d characters.", constants.MinPasswordLength),
		form: newForm(
			fieldSpec{label: "Current password", secret: true},
			fieldSpec{label: "New password", secret: true},
			fieldSpec{label: "Confirm new password", secret: true},
		),
		submit: func(f form) tea.Cmd {
			current, next, confirm := f.RawValue(0), f.RawValue(1), f.RawValue(2)
			return runAction("change password", func() (string, error) {
				if next != confirm {
					return "", errPasswordMismatch
				}
				ctx, cancel := context.WithTimeout(env.ctx, constants.APIRequestTimeout)
				defer cancel()
				return "", env.actions.ChangePassword(ctx, current, next)
			})
		},
	}
}

func newPaymentsScreen(env *screenEnv) *formScreen {
	var current string
	if _, err := env.store.Get(store.KeyNVPPaypalMeAddress, &current); err != nil {
		current = ""
	}
	return &formScreen{
		env:   env,
		title: "PAYMENTS",
		hint:  "Friends can pay you back through paypal.me/<username>.",
		form: newForm(
			fieldSpec{label: "PayPal.me username", placeholder: "username", value: current, charLimit: 64},
		),
		submit: func(f form) tea.Cmd {
			username := strings.TrimPrefix(f.Value(0), "paypal.me/")
			return runAction("save paypal.me", func() (string, error) {
				ctx, cancel := context.WithTimeout(env.ctx, constants.APIRequestTimeout)
				defer cancel()
				return "", env.actions.SetNameValuePair(ctx, constants.NVPPaypalMeAddress, store.KeyNVPPaypalMeAddress, username)
			})
		},
	}
}

// preferencesScreen toggles preferences in place; each change is saved
// immediately.
type preferencesScreen struct {
	env  *screenEnv
	list pickList
	err  error
}

const (
	prefPriorityMode = "priorityMode"
	prefTimezone     = "timezone"
)

func newPreferencesScreen(env *screenEnv) *preferencesScreen {
	s := &preferencesScreen{env: env}
	s.list = newPickList(nil)
	s.rebuild()
	return s
}

func (s *preferencesScreen) priorityMode() string {
	mode := constants.DefaultPriorityMode
	if ok, err := s.env.store.Get(store.KeyNVPPriorityMode, &mode); err != nil || !ok {
		return constants.DefaultPriorityMode
	}
	return mode
}

func (s *preferencesScreen) rebuild() {
	mode := "Most recent"
	if s.priorityMode() == constants.PriorityModeGSD {
		mode = "#focus (unread and pinned only)"
	}
	tz := s.env.myDetails().Timezone
	zone := "automatic"
	if !tz.Automatic {
		zone = tz.Selected
		if zone == "" {
			zone = "not set"
		}
	}
	s.list.SetItems([]pickItem{
		{id: prefPriorityMode, title: "Priority mode", subtitle: mode},
		{id: prefTimezone, title: "Timezone", subtitle: zone},
	})
}

func (s *preferencesScreen) Init() tea.Cmd { return nil }

func (s *preferencesScreen) TakesText() bool { return false }

func (s *preferencesScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case storeChangedMsg:
		s.rebuild()
		return s, nil
	case actionResultMsg:
		s.err = msg.err
		s.rebuild()
		return s, nil
	case tea.KeyMsg:
		if key.Matches(msg, submitKey) {
			it, ok := s.list.Selected()
			if !ok {
				return s, nil
			}
			return s, s.toggle(it.id)
		}
	}
	s.list, _, _ = s.list.Update(msg)
	return s, nil
}

func (s *preferencesScreen) toggle(id string) tea.Cmd {
	env := s.env
	switch id {
	case prefPriorityMode:
		next := constants.PriorityModeGSD
		if s.priorityMode() == constants.PriorityModeGSD {
			next = constants.DefaultPriorityMode
		}
		return runAction("set priority mode", func() (string, error) {
			ctx, cancel := context.WithTimeout(env.ctx, constants.APIRequestTimeout)
			defer cancel()
			return "", env.actions.SetNameValuePair(ctx, constants.NVPPriorityMode, store.KeyNVPPriorityMode, next)
		})
	case prefTimezone:
		tz := env.myDetails().Timezone
		tz.Automatic = !tz.Automatic
		if tz.Automatic || tz.Selected == "" {
			tz.Selected = core.LocalTimezone()
		}
		return runAction("set timezone", func() (string, error) {
			ctx, cancel := context.WithTimeout(env.ctx, constants.APIRequestTimeout)
			defer cancel()
			return "", env.actions.SetPersonalDetails(ctx, map[string]any{"timezone": tz})
		})
	}
	return nil
}

func (s *preferencesScreen) View(width, height int) string {
	lines := []string{renderSectionTitle("PREFERENCES", width), ""}
	lines = append(lines, s.list.View(width, height-6), "")
	if s.err != nil {
		lines = append(lines, errorStyle.Render(s.err.Error()))
	}
	lines = append(lines, hintStyle.Render("enter toggle · esc back"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
