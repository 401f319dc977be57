// Package shell is the lifecycle of the authenticated app: it starts the
// background services when the UI mounts, stops the scoped ones when it
// unmounts, and holds rendering until the initial report is known.
package shell

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xonecas/tally/internal/constants"
	"github.com/xonecas/tally/internal/core"
	"github.com/xonecas/tally/internal/nav"
	"github.com/xonecas/tally/internal/realtime"
	"github.com/xonecas/tally/internal/store"
)

// State is the render state of the shell.
type State int

const (
	// StatePending renders nothing until the initial report ID arrives.
	StatePending State = iota
	// StateReady renders the navigator. It never reverts.
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "pending"
}

// SearchShortcutKey opens Search together with the configured modifier.
const SearchShortcutKey = "k"

// Actions are the data fetches started on mount.
type Actions interface {
	GetNameValuePair(ctx context.Context, name, key, defaultValue string) error
	FetchPersonalDetails(ctx context.Context) error
	GetUserDetails(ctx context.Context) error
	GetBetas(ctx context.Context) error
	FetchAllReports(ctx context.Context, shouldRecordHomePageTiming, shouldDelayActions bool) error
	FetchCountryCodeByRequestIP(ctx context.Context) error
	SubscribeToReportCommentEvents(ctx context.Context, rt core.Realtime) error
}

// Network is the reachability listener.
type Network interface {
	Listen(ctx context.Context)
	Stop()
	OnReconnect(fn func()) func()
}

// Realtime is the push channel.
type Realtime interface {
	core.Realtime
	Init(ctx context.Context, opts realtime.Options) <-chan error
}

// ConnectionManager keeps the push channel connected.
type ConnectionManager interface {
	Init(ctx context.Context)
}

// UnreadListener follows unread counts.
type UnreadListener interface {
	ListenForReportChanges()
}

// Shortcuts is the keyboard shortcut registry.
type Shortcuts interface {
	Subscribe(key string, modifiers []string, fn func())
	Unsubscribe(key string)
}

// Timing records startup durations.
type Timing interface {
	Start(name string)
	End(name string) (time.Duration, bool)
}

// Deps are the services the shell drives.
type Deps struct {
	Actions           Actions
	Network           Network
	Realtime          Realtime
	ConnectionManager ConnectionManager
	Unread            UnreadListener
	Shortcuts         Shortcuts
	Timing            Timing

	// Navigate shows a path. It is called from the shortcut handler.
	Navigate func(path string)
	// IsOffline reports the current network state.
	IsOffline func() bool

	RealtimeOptions  realtime.Options
	RefreshInterval  time.Duration
	ShortcutModifier string
}

// resource is something acquired on mount and released on unmount.
type resource struct {
	name    string
	release func()
}

// Shell is the authenticated app lifecycle.
type Shell struct {
	wg   sync.WaitGroup // Tracks startup fetches
	deps Deps

	mu              sync.Mutex
	state           State
	initialReportID string
	smallScreen     bool
	mounted         bool

	// scoped are released on unmount. singletons are started once and
	// live for the process.
	scoped     []resource
	singletons []string
}

// New creates a pending shell and starts the startup timers.
func New(deps Deps) *Shell {
	if deps.RefreshInterval <= 0 {
		deps.RefreshInterval = constants.PersonalDetailsRefreshInterval
	}
	if deps.ShortcutModifier == "" {
		deps.ShortcutModifier = "ctrl"
	}
	if deps.Timing != nil {
		deps.Timing.Start(constants.TimingHomepageInitialRender)
		deps.Timing.Start(constants.TimingHomepageReportsLoaded)
	}
	return &Shell{deps: deps}
}

// State returns the render state.
func (s *Shell) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// InitialReportID returns the frozen initial report ID. It reports false
// while pending.
func (s *Shell) InitialReportID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialReportID, s.state == StateReady
}

// Receive offers a new initial report ID. A nil ID means still unknown; ""
// means there are no reports. The first non-nil ID makes the shell ready and
// is kept for good. It reports whether a re-render is needed.
func (s *Shell) Receive(initialReportID *string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateReady || initialReportID == nil {
		return false
	}
	s.initialReportID = *initialReportID
	s.state = StateReady
	log.Info().Str("report_id", s.initialReportID).Msg("Initial report resolved")
	return true
}

// SetSmallScreen updates the layout signal. It reports whether it changed,
// in which case the shell re-renders even when ready.
func (s *Shell) SetSmallScreen(small bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.smallScreen != small
	s.smallScreen = small
	return changed
}

// IsSmallScreen returns the layout signal.
func (s *Shell) IsSmallScreen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.smallScreen
}

// Mounted reports whether Mount ran without a matching Unmount.
func (s *Shell) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

func (s *Shell) acquire(name string, release func()) {
	s.scoped = append(s.scoped, resource{name: name, release: release})
}

func (s *Shell) singleton(name string) {
	s.singletons = append(s.singletons, name)
}

// ScopedResources lists what Unmount will release.
func (s *Shell) ScopedResources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.scoped))
	for _, r := range s.scoped {
		names = append(names, r.name)
	}
	return names
}

// Singletons lists the services started that are never released.
func (s *Shell) Singletons() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.singletons...)
}

// Wait blocks until the startup fetches return.
func (s *Shell) Wait() {
	s.wg.Wait()
}

func (s *Shell) goFetch(name string, fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(); err != nil {
			log.Warn().Err(err).Str("fetch", name).Msg("Startup fetch failed")
		}
	}()
}

// Mount starts every background service. ctx bounds the fetches and
// listeners; unmounting does not cancel fetches already in flight.
func (s *Shell) Mount(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mounted {
		return
	}
	s.mounted = true
	d := s.deps

	if d.Network != nil {
		removeReconnect := d.Network.OnReconnect(func() {
			s.goFetch("reports on reconnect", func() error {
				return d.Actions.FetchAllReports(ctx, false, true)
			})
		})
		d.Network.Listen(ctx)
		s.acquire("network reconnect listener", func() {
			removeReconnect()
			d.Network.Stop()
		})
	}

	if d.ConnectionManager != nil {
		d.ConnectionManager.Init(ctx)
		s.singleton("realtime connection manager")
	}

	if d.Realtime != nil {
		ready := d.Realtime.Init(ctx, d.RealtimeOptions)
		s.singleton("realtime channel")
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			select {
			case err := <-ready:
				if err != nil {
					log.Error().Err(err).Msg("Realtime init failed")
					return
				}
			case <-ctx.Done():
				return
			}
			if err := d.Actions.SubscribeToReportCommentEvents(ctx, d.Realtime); err != nil {
				log.Error().Err(err).Msg("Report event subscription failed")
			}
		}()
	}

	s.goFetch("priority mode", func() error {
		return d.Actions.GetNameValuePair(ctx, constants.NVPPriorityMode, store.KeyNVPPriorityMode, constants.DefaultPriorityMode)
	})
	s.startDetailFetches(ctx)
	s.goFetch("reports", func() error { return d.Actions.FetchAllReports(ctx, true, true) })
	s.goFetch("country code", func() error { return d.Actions.FetchCountryCodeByRequestIP(ctx) })

	if d.Unread != nil {
		d.Unread.ListenForReportChanges()
		s.singleton("unread indicator")
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go s.refreshLoop(ctx, stop, done)
	s.acquire("refresh interval", func() {
		close(stop)
		<-done
	})

	if d.Timing != nil {
		d.Timing.End(constants.TimingHomepageInitialRender)
	}

	if d.Shortcuts != nil {
		d.Shortcuts.Subscribe(SearchShortcutKey, []string{d.ShortcutModifier}, func() {
			if d.Navigate != nil {
				d.Navigate(nav.PathSearch)
			}
		})
		s.acquire("search shortcut", func() { d.Shortcuts.Unsubscribe(SearchShortcutKey) })
	}

	log.Info().Int("scoped", len(s.scoped)).Int("singletons", len(s.singletons)).Msg("Shell mounted")
}

// startDetailFetches fetches personal details, user details and betas.
func (s *Shell) startDetailFetches(ctx context.Context) {
	d := s.deps
	s.goFetch("personal details", func() error { return d.Actions.FetchPersonalDetails(ctx) })
	s.goFetch("user details", func() error { return d.Actions.GetUserDetails(ctx) })
	s.goFetch("betas", func() error { return d.Actions.GetBetas(ctx) })
}

// refreshLoop closes done on exit. A tick that races stop is dropped.
func (s *Shell) refreshLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.deps.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			s.refresh(ctx)
		}
	}
}

// refresh re-fetches the details that have no push event. It is skipped
// while offline.
func (s *Shell) refresh(ctx context.Context) bool {
	if s.deps.IsOffline != nil && s.deps.IsOffline() {
		log.Debug().Msg("Offline, skipping refresh")
		return false
	}
	s.startDetailFetches(ctx)
	return true
}

// Unmount releases the scoped resources in reverse order. Singletons keep
// running.
func (s *Shell) Unmount() {
	s.mu.Lock()
	scoped := s.scoped
	s.scoped = nil
	s.mounted = false
	s.mu.Unlock()

	for i := len(scoped) - 1; i >= 0; i-- {
		scoped[i].release()
	}
	log.Info().Int("released", len(scoped)).Msg("Shell unmounted")
}

// ConnectInitialReport delivers the currently viewed report ID from st to
// deliver, nil while unset. The returned ID releases the subscription
// through Store.Disconnect.
func ConnectInitialReport(st *store.Store, deliver func(reportID *string)) int {
	return st.Connect(store.KeyCurrentlyViewedReportID, func(_ string, value json.RawMessage) {
		if value == nil {
			deliver(nil)
			return
		}
		var id string
		if err := json.Unmarshal(value, &id); err != nil {
			log.Warn().Err(err).Msg("Malformed currently viewed report ID")
			return
		}
		deliver(&id)
	})
}
