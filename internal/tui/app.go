package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
	"github.com/xonecas/tally/internal/constants"
	"github.com/xonecas/tally/internal/core"
	"github.com/xonecas/tally/internal/nav"
	"github.com/xonecas/tally/internal/shell"
	"github.com/xonecas/tally/internal/store"
)

const originHome = "home"

// NavQueue hands paths from shortcut handlers and other goroutines to the
// UI loop.
type NavQueue chan string

// NewNavQueue creates a queue holding up to 16 pending paths.
func NewNavQueue() NavQueue {
	return make(NavQueue, 16)
}

// Navigate queues path. It drops the path when the queue is full.
func (q NavQueue) Navigate(path string) {
	select {
	case q <- path:
	default:
		log.Warn().Str("path", path).Msg("Navigation queue full, dropping")
	}
}

// Config wires the App to the rest of the client.
type Config struct {
	Context   context.Context
	Shell     *shell.Shell
	Store     *store.Store
	Actions   Actions
	Events    <-chan core.Event
	Shortcuts *Shortcuts
	NavQueue  NavQueue

	ComposerMaxLines int
	ShortcutModifier string
	SmallScreenWidth int
	// InitialPath is opened once the app is ready, e.g. a login link.
	InitialPath string
}

// App is the root model: the authenticated shell around the navigator.
type App struct {
	cfg   Config
	env   *screenEnv
	shell *shell.Shell

	reports chan *string
	connID  int

	navigator *nav.Navigator
	home      *homeScreen
	modal     screen
	modalPath string

	net      NetIndicator
	showHelp bool
	status   string
	title    string

	width  int
	height int
}

// EventMsg wraps a core event for the TUI.
type EventMsg struct {
	Event core.Event
}

type initialReportMsg struct {
	reportID *string
}

type navQueueMsg struct {
	path string
}

// NewApp creates the App and starts listening for the initial report.
func NewApp(cfg Config) App {
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.ShortcutModifier == "" {
		cfg.ShortcutModifier = "ctrl"
	}
	if cfg.SmallScreenWidth <= 0 {
		cfg.SmallScreenWidth = constants.SmallScreenWidth
	}
	if cfg.ComposerMaxLines == 0 {
		cfg.ComposerMaxLines = constants.ComposerMaxLines
	}

	m := App{
		cfg:   cfg,
		shell: cfg.Shell,
		env: &screenEnv{
			ctx:              cfg.Context,
			store:            cfg.Store,
			actions:          cfg.Actions,
			composerMaxLines: cfg.ComposerMaxLines,
		},
		reports: make(chan *string, 16),
		net:     NewNetIndicator(),
		title:   constants.AppName,
	}
	m.net.SetOffline(cfg.Store.GetNetwork().IsOffline)

	reports := m.reports
	m.connID = shell.ConnectInitialReport(cfg.Store, func(id *string) {
		select {
		case reports <- id:
		default:
		}
	})
	return m
}

// Ready reports whether the navigator is shown.
func (m App) Ready() bool {
	return m.navigator != nil
}

// Navigator returns the navigator, nil while pending.
func (m App) Navigator() *nav.Navigator {
	return m.navigator
}

// Title returns the window title last set.
func (m App) Title() string {
	return m.title
}

func (m App) Init() tea.Cmd {
	sh := m.shell
	ctx := m.cfg.Context
	return tea.Batch(
		func() tea.Msg {
			sh.Mount(ctx)
			return nil
		},
		m.waitForInitialReport(),
		m.listenForEvents(),
		m.listenForNavigation(),
		m.net.Init(),
		tea.SetWindowTitle(m.title),
	)
}

func (m App) waitForInitialReport() tea.Cmd {
	reports := m.reports
	return func() tea.Msg {
		return initialReportMsg{reportID: <-reports}
	}
}

func (m App) listenForEvents() tea.Cmd {
	ch := m.cfg.Events
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return EventMsg{Event: event}
	}
}

func (m App) listenForNavigation() tea.Cmd {
	q := m.cfg.NavQueue
	if q == nil {
		return nil
	}
	return func() tea.Msg {
		return navQueueMsg{path: <-q}
	}
}

// becomeReady builds the navigator around the initial report.
func (m *App) becomeReady(reportID string) tea.Cmd {
	m.cfg.Store.Disconnect(m.connID)

	actions := m.cfg.Actions
	st := m.cfg.Store
	m.navigator = nav.New(nav.Config{
		InitialReportID: reportID,
		OnModalVisibility: func(visible bool) {
			if err := actions.SetModalVisibility(visible); err != nil {
				log.Warn().Err(err).Msg("Failed to record modal visibility")
			}
		},
		OnURLChange: func(path string) {
			if err := st.Set(store.KeyCurrentURL, path); err != nil {
				log.Warn().Err(err).Msg("Failed to record current URL")
			}
		},
	})
	m.home = newHomeScreen(m.env, reportID)
	log.Info().Str("report_id", reportID).Msg("App ready")

	cmds := []tea.Cmd{m.home.Init()}
	if m.cfg.InitialPath != "" {
		cmds = append(cmds, m.navigate(m.cfg.InitialPath))
	}
	return tea.Batch(cmds...)
}

// navigate shows path and rebuilds the active screen.
func (m *App) navigate(path string) tea.Cmd {
	if m.navigator == nil {
		return nil
	}
	if path == nav.PathHome {
		m.navigator.DismissAll()
		return m.sync()
	}
	if err := m.navigator.Navigate(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Navigation failed")
		m.status = err.Error()
		return nil
	}
	return m.sync()
}

// sync matches the active screen to the navigator's current route.
func (m *App) sync() tea.Cmd {
	route := m.navigator.Current()
	if route.Screen == nav.ScreenHome {
		m.modal = nil
		m.modalPath = ""
		reportID := route.Param("reportID")
		if reportID == m.home.ReportID() {
			return nil
		}
		m.home.openReport(reportID)
		return tagResults(m.home.fetchHistory(), originHome)
	}
	if m.modal != nil && route.Path == m.modalPath {
		return nil
	}
	m.modal = newScreen(m.env, route)
	m.modalPath = route.Path
	m.showHelp = false
	return tagResults(m.modal.Init(), m.modalPath)
}

// tagResults marks the action results of cmd with the screen that started
// them.
func tagResults(cmd tea.Cmd, origin string) tea.Cmd {
	if cmd == nil {
		return nil
	}
	return func() tea.Msg {
		switch msg := cmd().(type) {
		case actionResultMsg:
			msg.origin = origin
			return msg
		case tea.BatchMsg:
			for i, c := range msg {
				msg[i] = tagResults(c, origin)
			}
			return msg
		default:
			return msg
		}
	}
}

// updateHome forwards msg to the home screen.
func (m *App) updateHome(msg tea.Msg) tea.Cmd {
	_, cmd := m.home.Update(msg)
	return tagResults(cmd, originHome)
}

// updateModal forwards msg to the open modal screen.
func (m *App) updateModal(msg tea.Msg) tea.Cmd {
	if m.modal == nil {
		return nil
	}
	var cmd tea.Cmd
	m.modal, cmd = m.modal.Update(msg)
	return tagResults(cmd, m.modalPath)
}

func (m App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case nil:
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		small := msg.Width < m.cfg.SmallScreenWidth
		m.shell.SetSmallScreen(small)
		m.env.smallScreen = small
		return m, nil

	case initialReportMsg:
		if m.Ready() {
			return m, nil
		}
		if !m.shell.Receive(msg.reportID) {
			return m, m.waitForInitialReport()
		}
		id, _ := m.shell.InitialReportID()
		return m, m.becomeReady(id)

	case EventMsg:
		cmd := m.handleEvent(msg.Event)
		return m, tea.Batch(cmd, m.listenForEvents())

	case navQueueMsg:
		return m, tea.Batch(m.navigate(msg.path), m.listenForNavigation())

	case NetIndicatorTickMsg:
		var cmd tea.Cmd
		m.net, cmd = m.net.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if !m.Ready() {
		return m, nil
	}

	switch msg := msg.(type) {
	case navigateMsg:
		return m, m.navigate(msg.path)

	case backMsg:
		if m.navigator.Back() {
			return m, m.sync()
		}
		return m, nil

	case actionResultMsg:
		if msg.origin == originHome {
			if msg.err != nil {
				m.status = fmt.Sprintf("%s: %v", msg.action, msg.err)
			}
			return m, m.updateHome(msg)
		}
		if m.modal != nil && msg.origin == m.modalPath {
			return m, m.updateModal(msg)
		}
		return m, nil

	case ClearRequest, InputClearedMsg:
		return m, m.updateHome(msg)
	}

	return m, tea.Batch(m.updateHome(msg), m.updateModal(msg))
}

func (m *App) handleEvent(event core.Event) tea.Cmd {
	switch event.Type {
	case core.EventUnreadChanged:
		if data, ok := event.Data.(core.UnreadData); ok {
			m.title = core.UnreadTitle(data.Count)
			return tea.SetWindowTitle(m.title)
		}

	case core.EventNetworkChanged:
		if data, ok := event.Data.(core.NetworkData); ok {
			m.net.SetOffline(data.IsOffline)
		}

	case core.EventRealtimeState:
		if data, ok := event.Data.(core.RealtimeStateData); ok {
			m.net.SetRealtime(data.State)
		}

	case core.EventActionFailed:
		if data, ok := event.Data.(core.ErrorData); ok {
			m.status = fmt.Sprintf("%s failed: %s", data.Action, data.Error)
		}

	case core.EventKeyChanged:
		if !m.Ready() {
			return nil
		}
		if event.Key == store.KeyCurrentlyViewedReportID && m.home.ReportID() == "" {
			if data, ok := event.Data.(core.KeyChangedData); ok && data.Value != nil {
				var id string
				if err := json.Unmarshal(data.Value, &id); err == nil && id != "" {
					return m.navigate(nav.ReportRoute(id))
				}
			}
		}
		changed := storeChangedMsg{key: event.Key}
		return tea.Batch(m.updateHome(changed), m.updateModal(changed))
	}
	return nil
}

// appKeys are global. They stay clear of the composer's textarea keys.
var appKeys = struct {
	Quit         key.Binding
	Help         key.Binding
	Back         key.Binding
	NewChat      key.Binding
	NewGroup     key.Binding
	Settings     key.Binding
	Participants key.Binding
	Details      key.Binding
	Request      key.Binding
	Split        key.Binding
}{
	Quit:         key.NewBinding(key.WithKeys("ctrl+c")),
	Help:         key.NewBinding(key.WithKeys("?")),
	Back:         key.NewBinding(key.WithKeys("esc")),
	NewChat:      key.NewBinding(key.WithKeys("alt+n")),
	NewGroup:     key.NewBinding(key.WithKeys("ctrl+g")),
	Settings:     key.NewBinding(key.WithKeys("ctrl+o")),
	Participants: key.NewBinding(key.WithKeys("alt+p")),
	Details:      key.NewBinding(key.WithKeys("alt+i")),
	Request:      key.NewBinding(key.WithKeys("ctrl+r")),
	Split:        key.NewBinding(key.WithKeys("alt+s")),
}

var errNoReport = errors.New("open a chat first")

func (m App) activeScreen() screen {
	if m.modal != nil {
		return m.modal
	}
	return m.home
}

func (m App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, appKeys.Quit) {
		m.shell.Unmount()
		return m, tea.Quit
	}
	if !m.Ready() {
		return m, nil
	}

	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.cfg.Shortcuts != nil && m.cfg.Shortcuts.Handle(msg) {
		return m, nil
	}

	reportID := m.home.ReportID()
	withReport := func(route func(string) string) (tea.Model, tea.Cmd) {
		if reportID == "" {
			m.status = errNoReport.Error()
			return m, nil
		}
		return m, m.navigate(route(reportID))
	}

	switch {
	case key.Matches(msg, appKeys.NewChat):
		return m, m.navigate(nav.PathNewChat)
	case key.Matches(msg, appKeys.NewGroup):
		return m, m.navigate(nav.PathNewGroup)
	case key.Matches(msg, appKeys.Settings):
		return m, m.navigate(nav.PathSettings)
	case key.Matches(msg, appKeys.Participants):
		return withReport(nav.ParticipantsRoute)
	case key.Matches(msg, appKeys.Details):
		others := m.env.otherParticipants(reportID)
		if len(others) != 1 {
			return withReport(nav.ParticipantsRoute)
		}
		return m, m.navigate(nav.DetailsRoute(others[0]))
	case key.Matches(msg, appKeys.Request):
		return withReport(nav.IOURequestRoute)
	case key.Matches(msg, appKeys.Split):
		return withReport(nav.IOUBillRoute)
	case key.Matches(msg, appKeys.Back):
		if m.navigator.Back() {
			return m, m.sync()
		}
		m.status = ""
		return m, nil
	case key.Matches(msg, appKeys.Help) && !m.activeScreen().TakesText():
		m.showHelp = true
		return m, nil
	}

	if m.modal != nil {
		return m, m.updateModal(msg)
	}
	return m, m.updateHome(msg)
}

func (m App) View() string {
	if !m.Ready() {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.showHelp {
		return RenderHelp(m.cfg.ShortcutModifier, m.width, m.height)
	}

	bodyHeight := m.height - 1
	var body string
	if m.modal != nil {
		cardWidth := nav.ModalCardWidth(m.env.smallScreen, m.width)
		innerWidth := cardWidth - modalStyle.GetHorizontalFrameSize()
		innerHeight := bodyHeight - modalStyle.GetVerticalFrameSize()
		card := modalStyle.Width(innerWidth + modalStyle.GetHorizontalPadding()).
			Render(m.modal.View(innerWidth, innerHeight))
		body = lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center, card)
	} else {
		body = m.home.View(m.width, bodyHeight)
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, m.renderStatusBar())
}

func (m App) renderStatusBar() string {
	indicator := m.net.View()
	if m.env.smallScreen {
		indicator = m.net.ViewCompact()
	}
	hint := "? help"
	if m.modal != nil {
		hint = "esc close"
		if len(m.navigator.ModalStack(m.navigator.Current().Screen)) > 1 {
			hint = "esc back"
		}
	}
	left := indicator + "  " + statusBarStyle.Render(m.title)
	right := statusBarStyle.Render(hint)

	middle := ""
	if m.status != "" {
		room := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 4
		middle = warningStyle.Render(truncateWithEllipsis(m.status, room))
	}
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(middle) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}
	return left + "  " + middle + padRight("", gap) + "  " + right
}
