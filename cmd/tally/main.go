package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xonecas/tally/internal/api"
	"github.com/xonecas/tally/internal/config"
	"github.com/xonecas/tally/internal/constants"
	"github.com/xonecas/tally/internal/core"
	"github.com/xonecas/tally/internal/nav"
	"github.com/xonecas/tally/internal/notification"
	"github.com/xonecas/tally/internal/realtime"
	"github.com/xonecas/tally/internal/shell"
	"github.com/xonecas/tally/internal/store"
	"github.com/xonecas/tally/internal/tui"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		configPath  = flag.String("config", "config.toml", "Path to config file")
		debug       = flag.Bool("debug", false, "Enable debug logging")
		validate    = flag.String("validate", "", "Validate a login link, as accountID:code")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", constants.AppName, Version)
		os.Exit(0)
	}

	var initialPath string
	if *validate != "" {
		accountID, code, ok := strings.Cut(*validate, ":")
		if !ok || accountID == "" || code == "" {
			fmt.Fprintln(os.Stderr, "-validate expects accountID:code")
			os.Exit(2)
		}
		initialPath = nav.ValidateLoginRoute(accountID, code)
	}

	if err := initLogging(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	log.Info().Str("version", Version).Msg("Starting Tally")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log.Debug().Interface("config", cfg).Msg("Configuration loaded")

	creds, err := config.LoadCredentials()
	if err != nil {
		if !errors.Is(err, config.ErrNotAuthenticated) {
			log.Fatal().Err(err).Msg("Failed to load credentials")
		}
		if initialPath == "" {
			fmt.Fprintln(os.Stderr, "Not signed in. Open your login link with -validate accountID:code or set TALLY_AUTH_TOKEN.")
			os.Exit(1)
		}
	}

	s, err := store.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer s.Close()

	client := api.NewClient(cfg.API.URLRoot, cfg.API.RateLimit, cfg.API.RateBurst)
	if creds.AuthToken != "" {
		client.SetAuthToken(creds.AuthToken)
		if err := s.Set(store.KeySession, store.Session{
			Email:     creds.Email,
			AccountID: creds.AccountID,
			AuthToken: creds.AuthToken,
		}); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed session")
		}
	}
	persistSession(s)

	bus := core.NewEventBus(1000)
	defer bus.Close()

	timing := core.NewTiming()
	actions := core.NewActions(client, s, bus, timing)
	actions.SetNotifier(notification.NewDesktop(cfg.UI.Notifications))

	network := core.NewNetworkConnection(client, s, bus, cfg.ReachabilityInterval())
	unread := core.NewUnreadIndicator(s, bus, nil)

	rt := realtime.New()
	rt.OnStateChange(func(state realtime.State, err error) {
		data := core.RealtimeStateData{State: state.String()}
		if err != nil {
			data.Error = err.Error()
		}
		bus.Publish(core.Event{Type: core.EventRealtimeState, Data: data})
	})
	manager := realtime.NewConnectionManager(rt)
	manager.OnReconnect(func() { log.Info().Msg("Realtime reconnected") })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	timezoneID := actions.ListenForTimezoneChanges(ctx, core.LocalTimezone)
	defer s.Disconnect(timezoneID)

	forwarded := core.ForwardKeys(s, bus,
		store.CollectionReport,
		store.CollectionReportActions,
		store.KeyPersonalDetails,
		store.KeyMyPersonalDetails,
		store.KeyNVPPriorityMode,
		store.KeyNVPPaypalMeAddress,
		store.KeyCurrentlyViewedReportID,
	)
	defer func() {
		for _, id := range forwarded {
			s.Disconnect(id)
		}
	}()

	shortcuts := tui.NewShortcuts()
	queue := tui.NewNavQueue()

	sh := shell.New(shell.Deps{
		Actions:           actions,
		Network:           network,
		Realtime:          rt,
		ConnectionManager: manager,
		Unread:            unread,
		Shortcuts:         shortcuts,
		Timing:            timing,
		Navigate:          queue.Navigate,
		IsOffline:         func() bool { return s.GetNetwork().IsOffline },
		RealtimeOptions: realtime.Options{
			AppKey:       cfg.Realtime.AppKey,
			Cluster:      cfg.Realtime.Cluster,
			Host:         cfg.Realtime.Host,
			AuthEndpoint: cfg.AuthEndpoint(),
			AuthParams: func() url.Values {
				return url.Values{"authToken": {client.AuthToken()}}
			},
		},
		RefreshInterval:  cfg.RefreshInterval(),
		ShortcutModifier: cfg.UI.ShortcutModifier,
	})

	eventCh := bus.Subscribe()

	app := tui.NewApp(tui.Config{
		Context:          ctx,
		Shell:            sh,
		Store:            s,
		Actions:          actions,
		Events:           eventCh,
		Shortcuts:        shortcuts,
		NavQueue:         queue,
		ComposerMaxLines: cfg.UI.ComposerMaxLines,
		ShortcutModifier: cfg.UI.ShortcutModifier,
		SmallScreenWidth: cfg.UI.SmallScreenWidth,
		InitialPath:      initialPath,
	})
	program := tea.NewProgram(app, tea.WithAltScreen())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Received shutdown signal")
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		log.Fatal().Err(err).Msg("TUI error")
	}

	sh.Unmount()
	cancel()
	rt.Disconnect()
	unread.Stop()
	actions.Wait()
	sh.Wait()

	log.Info().Msg("Tally shutdown complete")
}

func initLogging(debug bool) error {
	dataDir, err := config.EnsureDataDir()
	if err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}

	// Truncated on startup.
	logPath := filepath.Join(dataDir, "tally.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Log to file only (TUI owns stdout/stderr)
	log.Logger = zerolog.New(logFile).With().Timestamp().Logger()

	return nil
}

// persistSession writes the session to the credentials file whenever a
// login link is validated.
func persistSession(s *store.Store) {
	path, err := config.CredentialsPath()
	if err != nil {
		log.Warn().Err(err).Msg("No credentials path, sessions will not be saved")
		return
	}
	s.Connect(store.KeySession, func(_ string, value json.RawMessage) {
		if value == nil {
			return
		}
		var sess store.Session
		if err := json.Unmarshal(value, &sess); err != nil || sess.AuthToken == "" {
			return
		}
		creds := &config.Credentials{Email: sess.Email, AccountID: sess.AccountID, AuthToken: sess.AuthToken}
		if err := config.SaveCredentials(path, creds); err != nil {
			log.Warn().Err(err).Msg("Failed to save credentials")
		}
	})
}
