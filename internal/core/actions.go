package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xonecas/tally/internal/api"
	"github.com/xonecas/tally/internal/constants"
	"github.com/xonecas/tally/internal/realtime"
	"github.com/xonecas/tally/internal/store"
)

// API is the subset of the server API used by Actions.
type API interface {
	SetAuthToken(token string)
	PersonalDetailsList(ctx context.Context) (map[string]api.PersonalDetail, error)
	Account(ctx context.Context) (*api.Account, error)
	Betas(ctx context.Context) ([]string, error)
	ChatList(ctx context.Context) ([]string, error)
	Reports(ctx context.Context, reportIDs []string) ([]api.Report, error)
	ReportHistory(ctx context.Context, reportID string) ([]api.ReportAction, error)
	NameValuePair(ctx context.Context, name string) (json.RawMessage, bool, error)
	SetNameValuePair(ctx context.Context, name, value string) error
	RequestCountryCode(ctx context.Context) (int, error)
	AddComment(ctx context.Context, reportID, text, clientID string) error
	CreateChatReport(ctx context.Context, emails []string) (string, error)
	CreateIOUTransaction(ctx context.Context, req api.IOURequest) (string, error)
	CreateIOUSplit(ctx context.Context, split api.IOUSplit) (string, error)
	ValidateEmail(ctx context.Context, accountID, validateCode string) (*api.Validation, error)
	UpdatePersonalDetails(ctx context.Context, details map[string]any) error
	ChangePassword(ctx context.Context, oldPassword, password string) error
}

// Realtime is the push channel used for report events.
type Realtime interface {
	Subscribe(ctx context.Context, channel, event string, handler realtime.Handler) error
}

// Notifier shows a desktop notification.
type Notifier interface {
	Notify(title, body string) error
}

// Actions fetch server data into the store and push local changes back.
// Every method is safe to call from any goroutine.
type Actions struct {
	wg sync.WaitGroup // Tracks delayed background fetches

	api    API
	store  *store.Store
	bus    *EventBus
	timing *Timing

	mu       sync.RWMutex
	notifier Notifier

	// actionsDelay postpones report history fetches when requested.
	actionsDelay time.Duration
	now          func() time.Time
}

// NewActions creates the action set. bus and timing may be nil.
func NewActions(client API, s *store.Store, bus *EventBus, timing *Timing) *Actions {
	if timing == nil {
		timing = NewTiming()
	}
	return &Actions{
		api:          client,
		store:        s,
		bus:          bus,
		timing:       timing,
		actionsDelay: time.Second,
		now:          time.Now,
	}
}

// SetNotifier sets the notifier used for comments on reports the user is
// not viewing.
func (a *Actions) SetNotifier(n Notifier) {
	a.mu.Lock()
	a.notifier = n
	a.mu.Unlock()
}

// Timing returns the timer set shared with the shell.
func (a *Actions) Timing() *Timing {
	return a.timing
}

// Wait blocks until delayed background fetches finish.
func (a *Actions) Wait() {
	a.wg.Wait()
}

func (a *Actions) publish(e Event) {
	if a.bus != nil {
		a.bus.Publish(e)
	}
}

// fail logs err and reports it on the bus. It returns err unchanged.
func (a *Actions) fail(action string, err error) error {
	log.Error().Err(err).Str("action", action).Msg("Action failed")
	a.publish(Event{Type: EventActionFailed, Data: ErrorData{Action: action, Error: err.Error()}})
	return err
}

func (a *Actions) sessionEmail() string {
	sess, err := a.store.GetSession()
	if err != nil {
		return ""
	}
	return sess.Email
}

// FetchPersonalDetails loads every visible personal detail and the user's own.
func (a *Actions) FetchPersonalDetails(ctx context.Context) error {
	list, err := a.api.PersonalDetailsList(ctx)
	if err != nil {
		return a.fail("fetch personal details", fmt.Errorf("personal details: %w", err))
	}

	details := make(map[string]store.PersonalDetails, len(list))
	for login, d := range list {
		details[login] = store.PersonalDetails{
			Login:       login,
			DisplayName: d.DisplayName,
			FirstName:   d.FirstName,
			LastName:    d.LastName,
			Avatar:      d.Avatar,
			Timezone:    store.Timezone{Automatic: d.Timezone.Automatic, Selected: d.Timezone.Selected},
		}
	}
	if err := a.store.Merge(store.KeyPersonalDetails, details); err != nil {
		return a.fail("fetch personal details", err)
	}

	email := a.sessionEmail()
	if mine, ok := details[email]; ok {
		if err := a.store.Set(store.KeyMyPersonalDetails, mine); err != nil {
			return a.fail("fetch personal details", err)
		}
	}
	return nil
}

// GetUserDetails loads account details into the user key.
func (a *Actions) GetUserDetails(ctx context.Context) error {
	acc, err := a.api.Account(ctx)
	if err != nil {
		return a.fail("get user details", fmt.Errorf("account: %w", err))
	}
	user := store.User{
		Email:                acc.Email,
		Validated:            acc.Validated,
		ExpensifyNewsletters: acc.ExpensifyNewsletters,
	}
	if err := a.store.Set(store.KeyUser, user); err != nil {
		return a.fail("get user details", err)
	}
	return nil
}

// GetBetas loads the account's beta flags.
func (a *Actions) GetBetas(ctx context.Context) error {
	betas, err := a.api.Betas(ctx)
	if err != nil {
		return a.fail("get betas", fmt.Errorf("betas: %w", err))
	}
	if betas == nil {
		betas = []string{}
	}
	if err := a.store.Set(store.KeyBetas, betas); err != nil {
		return a.fail("get betas", err)
	}
	return nil
}

// FetchCountryCodeByRequestIP stores the country code the server derives
// from the request IP.
func (a *Actions) FetchCountryCodeByRequestIP(ctx context.Context) error {
	code, err := a.api.RequestCountryCode(ctx)
	if err != nil {
		return a.fail("fetch country code", fmt.Errorf("country code: %w", err))
	}
	if err := a.store.Set(store.KeyCountryCode, code); err != nil {
		return a.fail("fetch country code", err)
	}
	return nil
}

// GetNameValuePair stores the server preference name under key, or
// defaultValue when the server has none.
func (a *Actions) GetNameValuePair(ctx context.Context, name, key, defaultValue string) error {
	raw, ok, err := a.api.NameValuePair(ctx, name)
	if err != nil {
		return a.fail("get nvp", fmt.Errorf("nvp %s: %w", name, err))
	}

	var value any = defaultValue
	if ok {
		value = raw
	}
	if err := a.store.Set(key, value); err != nil {
		return a.fail("get nvp", err)
	}
	return nil
}

// SetNameValuePair saves a preference on the server and under key.
func (a *Actions) SetNameValuePair(ctx context.Context, name, key, value string) error {
	if err := a.store.Set(key, value); err != nil {
		return a.fail("set nvp", err)
	}
	if err := a.api.SetNameValuePair(ctx, name, value); err != nil {
		return a.fail("set nvp", fmt.Errorf("set nvp %s: %w", name, err))
	}
	return nil
}

// SetModalVisibility records whether a modal screen is shown.
func (a *Actions) SetModalVisibility(visible bool) error {
	return a.store.Merge(store.KeyModal, store.Modal{IsVisible: visible})
}

// SetPersonalDetails saves changed fields of the user's personal details.
func (a *Actions) SetPersonalDetails(ctx context.Context, details map[string]any) error {
	if err := a.store.Merge(store.KeyMyPersonalDetails, details); err != nil {
		return a.fail("set personal details", err)
	}

	if email := a.sessionEmail(); email != "" {
		var mine store.PersonalDetails
		if ok, err := a.store.Get(store.KeyMyPersonalDetails, &mine); err == nil && ok {
			mine.Login = email
			if err := a.store.Merge(store.KeyPersonalDetails, map[string]store.PersonalDetails{email: mine}); err != nil {
				return a.fail("set personal details", err)
			}
		}
	}

	if err := a.api.UpdatePersonalDetails(ctx, details); err != nil {
		return a.fail("set personal details", fmt.Errorf("update personal details: %w", err))
	}
	return nil
}

// ChangePassword replaces the account password. The new password must be
// at least eight characters and differ from the old one.
func (a *Actions) ChangePassword(ctx context.Context, oldPassword, password string) error {
	switch {
	case oldPassword == "":
		return fmt.Errorf("change password: current password is required")
	case len(password) < constants.MinPasswordLength:
		return fmt.Errorf("change password: new password must be at least %d characters", constants.MinPasswordLength)
	case password == oldPassword:
		return fmt.Errorf("change password: new password must differ from the current one")
	}
	if err := a.api.ChangePassword(ctx, oldPassword, password); err != nil {
		return a.fail("change password", fmt.Errorf("change password: %w", err))
	}
	return nil
}

// ValidateLogin exchanges a login link code for a session.
func (a *Actions) ValidateLogin(ctx context.Context, accountID, validateCode string) (*store.Session, error) {
	accountID = strings.TrimSpace(accountID)
	validateCode = strings.TrimSpace(validateCode)
	if accountID == "" || validateCode == "" {
		return nil, fmt.Errorf("validate login: account ID and code are required")
	}

	v, err := a.api.ValidateEmail(ctx, accountID, validateCode)
	if err != nil {
		return nil, a.fail("validate login", fmt.Errorf("validate email: %w", err))
	}

	sess := store.Session{Email: v.Email, AccountID: v.AccountID, AuthToken: v.AuthToken}
	if err := a.store.Set(store.KeySession, sess); err != nil {
		return nil, a.fail("validate login", err)
	}
	a.api.SetAuthToken(v.AuthToken)
	return &sess, nil
}
