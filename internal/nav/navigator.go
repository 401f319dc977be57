package nav

import (
	"github.com/xonecas/tally/internal/constants"
)

// Options are static presentation settings of a root screen.
type Options struct {
	HeaderShown bool
	Title       string
	IsModal     bool
}

// ListenerFunc handles a screen event.
type ListenerFunc func(n *Navigator)

// Listeners are screen event handlers. Focus runs whenever the screen becomes
// the top of the root stack; BeforeRemove runs right before it is popped.
type Listeners struct {
	Focus        ListenerFunc
	BeforeRemove ListenerFunc
}

// ModalScreen describes one modal root screen and the screens of its stack.
type ModalScreen struct {
	Name       ScreenName
	Options    Options
	SubScreens []string
	Listeners  *Listeners
}

var modalScreenOptions = Options{HeaderShown: false, IsModal: true}

var modalScreenListeners = &Listeners{
	Focus:        func(n *Navigator) { n.setModalVisibility(true) },
	BeforeRemove: func(n *Navigator) { n.setModalVisibility(false) },
}

// HomeOptions are the options of the home screen.
var HomeOptions = Options{HeaderShown: false, Title: constants.AppName}

// ModalScreens lists every modal root screen. Participants registers no
// listeners, so it leaves modal visibility untouched.
var ModalScreens = []ModalScreen{
	{Name: ScreenSettings, Options: modalScreenOptions, Listeners: modalScreenListeners,
		SubScreens: []string{SubSettingsRoot, SubSettingsProfile, SubSettingsPreferences, SubSettingsPassword, SubSettingsPayments}},
	{Name: ScreenNewChat, Options: modalScreenOptions, Listeners: modalScreenListeners,
		SubScreens: []string{SubNewChatRoot}},
	{Name: ScreenNewGroup, Options: modalScreenOptions, Listeners: modalScreenListeners,
		SubScreens: []string{SubNewGroupRoot}},
	{Name: ScreenSearch, Options: modalScreenOptions, Listeners: modalScreenListeners,
		SubScreens: []string{SubSearchRoot}},
	{Name: ScreenDetails, Options: modalScreenOptions, Listeners: modalScreenListeners,
		SubScreens: []string{SubDetailsRoot}},
	{Name: ScreenParticipants, Options: modalScreenOptions,
		SubScreens: []string{SubParticipantsRoot, SubParticipantsDetails}},
	{Name: ScreenIOURequest, Options: modalScreenOptions, Listeners: modalScreenListeners,
		SubScreens: []string{SubIOURequestRoot}},
	{Name: ScreenIOUBill, Options: modalScreenOptions, Listeners: modalScreenListeners,
		SubScreens: []string{SubIOUBillRoot}},
}

// Modal returns the descriptor of a modal screen.
func Modal(name ScreenName) (ModalScreen, bool) {
	for _, m := range ModalScreens {
		if m.Name == name {
			return m, true
		}
	}
	return ModalScreen{}, false
}

// ModalCardWidth is the width of a modal card in a terminal of width
// columns. Small screens give the modal the full width.
func ModalCardWidth(isSmallScreenWidth bool, width int) int {
	const card = 64
	if isSmallScreenWidth || width <= card {
		return width
	}
	return card
}

// entry is one screen of the root stack. Modal entries own a sub stack.
type entry struct {
	screen ScreenName
	modal  *ModalScreen
	stack  []Route
}

func (e *entry) top() Route {
	return e.stack[len(e.stack)-1]
}

// Config wires a Navigator to the rest of the app.
type Config struct {
	// InitialReportID is the report shown by the home screen.
	InitialReportID string
	// OnModalVisibility records whether a modal is shown.
	OnModalVisibility func(visible bool)
	// OnURLChange receives the current path after every navigation.
	OnURLChange func(path string)
}

// Navigator owns the root stack. It is not safe for concurrent use; the UI
// loop drives it.
type Navigator struct {
	cfg  Config
	root []*entry
}

// New creates a navigator showing the home screen with the initial report.
func New(cfg Config) *Navigator {
	params := map[string]string{}
	path := PathHome
	if cfg.InitialReportID != "" {
		params["reportID"] = cfg.InitialReportID
		path = ReportRoute(cfg.InitialReportID)
	}
	home := &entry{
		screen: ScreenHome,
		stack:  []Route{{Screen: ScreenHome, Sub: SubReport, Params: params, Path: path}},
	}
	return &Navigator{cfg: cfg, root: []*entry{home}}
}

func (n *Navigator) setModalVisibility(visible bool) {
	if n.cfg.OnModalVisibility != nil {
		n.cfg.OnModalVisibility(visible)
	}
}

func (n *Navigator) changed() {
	if n.cfg.OnURLChange != nil {
		n.cfg.OnURLChange(n.URL())
	}
}

func (n *Navigator) topEntry() *entry {
	return n.root[len(n.root)-1]
}

// Current returns the route shown on screen.
func (n *Navigator) Current() Route {
	return n.topEntry().top()
}

// Home returns the route of the home screen.
func (n *Navigator) Home() Route {
	return n.root[0].top()
}

// URL returns the path of the current route.
func (n *Navigator) URL() string {
	return n.Current().Path
}

// Depth returns the number of root stack entries.
func (n *Navigator) Depth() int {
	return len(n.root)
}

// IsModalOpen reports whether a modal is on top.
func (n *Navigator) IsModalOpen() bool {
	return n.topEntry().modal != nil
}

// ModalStack returns the routes stacked inside the named open modal, or nil.
func (n *Navigator) ModalStack(name ScreenName) []Route {
	for i := len(n.root) - 1; i >= 0; i-- {
		if e := n.root[i]; e.screen == name {
			return append([]Route(nil), e.stack...)
		}
	}
	return nil
}

// Navigate shows the screen for path. Home routes dismiss every modal and
// switch the report. A route inside the open top modal is pushed onto that
// modal's stack; other modal routes open a new modal above the current one.
func (n *Navigator) Navigate(path string) error {
	route, err := Parse(path)
	if err != nil {
		return err
	}

	switch route.Screen {
	case ScreenHome:
		n.popTo(1)
		home := n.root[0]
		if route.Param("reportID") == "" {
			route.Params = home.top().Params
			route.Path = home.top().Path
		}
		home.stack = []Route{route}
	case ScreenValidateLogin:
		n.root = append(n.root, &entry{screen: route.Screen, stack: []Route{route}})
	default:
		top := n.topEntry()
		if top.screen == route.Screen {
			if top.top().Path != route.Path {
				top.stack = append(top.stack, route)
			}
			break
		}
		desc, ok := Modal(route.Screen)
		if !ok {
			return ErrUnknownRoute
		}
		e := &entry{screen: route.Screen, modal: &desc, stack: []Route{route}}
		n.root = append(n.root, e)
		n.focus(e)
	}

	n.changed()
	return nil
}

func (n *Navigator) focus(e *entry) {
	if e.modal != nil && e.modal.Listeners != nil && e.modal.Listeners.Focus != nil {
		e.modal.Listeners.Focus(n)
	}
}

func (n *Navigator) remove(e *entry) {
	if e.modal != nil && e.modal.Listeners != nil && e.modal.Listeners.BeforeRemove != nil {
		e.modal.Listeners.BeforeRemove(n)
	}
}

// popTo pops root entries until depth remain. The home screen is never popped.
func (n *Navigator) popTo(depth int) {
	if depth < 1 {
		depth = 1
	}
	for len(n.root) > depth {
		top := n.topEntry()
		n.remove(top)
		n.root = n.root[:len(n.root)-1]
	}
}

// Dismiss closes the top root screen. It reports false on the home screen.
func (n *Navigator) Dismiss() bool {
	if len(n.root) == 1 {
		return false
	}
	n.popTo(len(n.root) - 1)
	n.focus(n.topEntry())
	n.changed()
	return true
}

// DismissAll returns to the home screen.
func (n *Navigator) DismissAll() {
	if len(n.root) == 1 {
		return
	}
	n.popTo(1)
	n.changed()
}

// Back pops one screen inside the top modal, or dismisses it from its root
// screen. It reports false when there is nothing to go back to.
func (n *Navigator) Back() bool {
	top := n.topEntry()
	if top.modal != nil && len(top.stack) > 1 {
		top.stack = top.stack[:len(top.stack)-1]
		n.changed()
		return true
	}
	return n.Dismiss()
}
