package tui

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/xonecas/tally/internal/api"
	"github.com/xonecas/tally/internal/nav"
	"github.com/xonecas/tally/internal/store"
)

// Actions are the data operations started from the screens.
type Actions interface {
	AddComment(ctx context.Context, reportID, text string) error
	SaveDraft(reportID, text string) error
	SetCurrentlyViewedReport(reportID string) error
	FetchActions(ctx context.Context, reportID string) error
	FetchOrCreateChatReport(ctx context.Context, logins []string) (string, error)
	CreateIOUTransaction(ctx context.Context, req api.IOURequest) (string, error)
	CreateIOUSplit(ctx context.Context, split api.IOUSplit) (string, error)
	SetNameValuePair(ctx context.Context, name, key, value string) error
	SetPersonalDetails(ctx context.Context, details map[string]any) error
	ChangePassword(ctx context.Context, oldPassword, password string) error
	SetModalVisibility(visible bool) error
	ValidateLogin(ctx context.Context, accountID, validateCode string) (*store.Session, error)
}

// screen is the model behind one route. Screens are values; Update returns
// the replacement.
type screen interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (screen, tea.Cmd)
	View(width, height int) string
	// TakesText reports whether printable keys go to a focused text field.
	TakesText() bool
}

// screenEnv is what every screen shares.
type screenEnv struct {
	ctx     context.Context
	store   *store.Store
	actions Actions

	composerMaxLines int
	smallScreen      bool
}

func (e *screenEnv) sessionEmail() string {
	sess, err := e.store.GetSession()
	if err != nil {
		return ""
	}
	return sess.Email
}

func (e *screenEnv) personalDetails() map[string]store.PersonalDetails {
	details, err := e.store.GetPersonalDetails()
	if err != nil {
		log.Debug().Err(err).Msg("No personal details")
		return map[string]store.PersonalDetails{}
	}
	return details
}

// displayName is the best label for login.
func (e *screenEnv) displayName(details map[string]store.PersonalDetails, login string) string {
	if d, ok := details[login]; ok {
		return d.Name()
	}
	return login
}

// reportTitle names a report after its other participants when it has no
// name of its own.
func (e *screenEnv) reportTitle(r *store.Report, details map[string]store.PersonalDetails) string {
	if r.ReportName != "" {
		return r.ReportName
	}
	me := e.sessionEmail()
	var names []string
	for _, p := range r.Participants {
		if p == me {
			continue
		}
		names = append(names, e.displayName(details, p))
	}
	if len(names) == 0 {
		return r.ReportID
	}
	return strings.Join(names, ", ")
}

// otherParticipants lists the participants of a report except the user.
func (e *screenEnv) otherParticipants(reportID string) []string {
	r, err := e.store.GetReport(reportID)
	if err != nil {
		return nil
	}
	me := e.sessionEmail()
	var out []string
	for _, p := range r.Participants {
		if p != me {
			out = append(out, p)
		}
	}
	return out
}

// navigateMsg asks the App to show path.
type navigateMsg struct {
	path string
}

// backMsg asks the App to pop one screen.
type backMsg struct{}

func navigateTo(path string) tea.Cmd {
	return func() tea.Msg { return navigateMsg{path: path} }
}

func goBack() tea.Msg {
	return backMsg{}
}

// storeChangedMsg tells screens that key changed in the store.
type storeChangedMsg struct {
	key string
}

// actionResultMsg carries the result of a background action started by a
// screen.
type actionResultMsg struct {
	action string
	err    error
	// next is shown on success when set.
	next string
	// origin is the screen that started the action.
	origin string
}

// runAction runs fn off the UI loop and reports its result.
func runAction(action string, fn func() (next string, err error)) tea.Cmd {
	return func() tea.Msg {
		next, err := fn()
		return actionResultMsg{action: action, err: err, next: next}
	}
}

// newScreen builds the screen for a non-home route.
func newScreen(env *screenEnv, route nav.Route) screen {
	switch route.Screen {
	case nav.ScreenSettings:
		return newSettingsScreen(env, route)
	case nav.ScreenNewChat:
		return newPeopleScreen(env, false)
	case nav.ScreenNewGroup:
		return newPeopleScreen(env, true)
	case nav.ScreenSearch:
		return newSearchScreen(env)
	case nav.ScreenDetails:
		return newDetailsScreen(env, route.Param("login"))
	case nav.ScreenParticipants:
		if route.Sub == nav.SubParticipantsDetails {
			return newDetailsScreen(env, route.Param("login"))
		}
		return newParticipantsScreen(env, route.Param("reportID"))
	case nav.ScreenIOURequest:
		return newIOUScreen(env, route.Param("reportID"), false)
	case nav.ScreenIOUBill:
		return newIOUScreen(env, route.Param("reportID"), true)
	case nav.ScreenValidateLogin:
		return newValidateScreen(env, route.Param("accountID"), route.Param("validateCode"))
	}
	return newDetailsScreen(env, "")
}
