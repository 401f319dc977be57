package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/xonecas/tally/internal/api"
	"github.com/xonecas/tally/internal/realtime"
	"github.com/xonecas/tally/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedSession(t *testing.T, s *store.Store, email string, accountID int64) {
	t.Helper()
	if err := s.Set(store.KeySession, store.Session{Email: email, AccountID: accountID, AuthToken: "tok"}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

var errFake = errors.New("fake failure")

// fakeAPI returns canned data and records the calls it receives.
type fakeAPI struct {
	mu sync.Mutex

	token       string
	personal    map[string]api.PersonalDetail
	account     *api.Account
	betas       []string
	chatList    []string
	reports     map[string]api.Report
	history     map[string][]api.ReportAction
	nvps        map[string]json.RawMessage
	countryCode int
	createdID   string
	validation  *api.Validation
	fail        bool

	comments       []string
	clientIDs      []string
	chatEmails     []string
	setNVPs        map[string]string
	detailsUpdates []map[string]any
	historyCalls   []string
	iouRequests    []api.IOURequest
	iouSplits      []api.IOUSplit
	passwords      []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		reports: map[string]api.Report{},
		history: map[string][]api.ReportAction{},
		nvps:    map[string]json.RawMessage{},
		setNVPs: map[string]string{},
	}
}

func (f *fakeAPI) err() error {
	if f.fail {
		return errFake
	}
	return nil
}

func (f *fakeAPI) SetAuthToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

func (f *fakeAPI) PersonalDetailsList(ctx context.Context) (map[string]api.PersonalDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.personal, f.err()
}

func (f *fakeAPI) Account(ctx context.Context) (*api.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.account, nil
}

func (f *fakeAPI) Betas(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.betas, f.err()
}

func (f *fakeAPI) ChatList(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatList, f.err()
}

func (f *fakeAPI) Reports(ctx context.Context, ids []string) ([]api.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return nil, err
	}
	var out []api.Report
	for _, id := range ids {
		if r, ok := f.reports[id]; ok {
			r.ReportID = id
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAPI) ReportHistory(ctx context.Context, reportID string) ([]api.ReportAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls = append(f.historyCalls, reportID)
	return f.history[reportID], f.err()
}

func (f *fakeAPI) NameValuePair(ctx context.Context, name string) (json.RawMessage, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.nvps[name]
	return v, ok, f.err()
}

func (f *fakeAPI) SetNameValuePair(ctx context.Context, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setNVPs[name] = value
	return f.err()
}

func (f *fakeAPI) RequestCountryCode(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countryCode, f.err()
}

func (f *fakeAPI) AddComment(ctx context.Context, reportID, text, clientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, text)
	f.clientIDs = append(f.clientIDs, clientID)
	return f.err()
}

func (f *fakeAPI) CreateChatReport(ctx context.Context, emails []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatEmails = emails
	return f.createdID, f.err()
}

func (f *fakeAPI) CreateIOUTransaction(ctx context.Context, req api.IOURequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.iouRequests = append(f.iouRequests, req)
	return f.createdID, f.err()
}

func (f *fakeAPI) CreateIOUSplit(ctx context.Context, split api.IOUSplit) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.iouSplits = append(f.iouSplits, split)
	return f.createdID, f.err()
}

func (f *fakeAPI) ValidateEmail(ctx context.Context, accountID, code string) (*api.Validation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.validation, nil
}

func (f *fakeAPI) UpdatePersonalDetails(ctx context.Context, details map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailsUpdates = append(f.detailsUpdates, details)
	return f.err()
}

func (f *fakeAPI) ChangePassword(ctx context.Context, oldPassword, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passwords = append(f.passwords, password)
	return f.err()
}

func (f *fakeAPI) updates() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.detailsUpdates...)
}

// fakeRealtime records bindings so tests can push events by hand.
type fakeRealtime struct {
	mu       sync.Mutex
	handlers map[string]realtime.Handler
}

func (f *fakeRealtime) Subscribe(ctx context.Context, channel, event string, h realtime.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = map[string]realtime.Handler{}
	}
	f.handlers[channel+"/"+event] = h
	return nil
}

func (f *fakeRealtime) push(channel, event, data string) bool {
	f.mu.Lock()
	h, ok := f.handlers[channel+"/"+event]
	f.mu.Unlock()
	if ok {
		h(json.RawMessage(data))
	}
	return ok
}

type notification struct {
	title, body string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (f *fakeNotifier) Notify(title, body string) error {
	f.mu.Lock()
	f.sent = append(f.sent, notification{title, body})
	f.mu.Unlock()
	return nil
}
