package tui

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xonecas/tally/internal/api"
	"github.com/xonecas/tally/internal/core"
	"github.com/xonecas/tally/internal/store"
)

// Test constants for consistent terminal dimensions
const (
	TestTerminalWidth  = 120
	TestTerminalHeight = 40
)

const testEmail = "me@example.com"

// fakeActions records the calls made by screens and the shell.
type fakeActions struct {
	mu sync.Mutex

	comments      []string
	drafts        map[string]string
	viewed        []string
	chats         [][]string
	requests      []api.IOURequest
	splits        []api.IOUSplit
	nvps          map[string]string
	details       []map[string]any
	passwords     [][2]string
	modal         []bool
	validated     []string
	fetchedAllFor int

	chatReportID string
	err          error
}

func newFakeActions() *fakeActions {
	return &fakeActions{
		drafts:       map[string]string{},
		nvps:         map[string]string{},
		chatReportID: "99",
	}
}

func (f *fakeActions) AddComment(_ context.Context, reportID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, reportID+":"+text)
	return f.err
}

func (f *fakeActions) SaveDraft(reportID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts[reportID] = text
	return nil
}

func (f *fakeActions) SetCurrentlyViewedReport(reportID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewed = append(f.viewed, reportID)
	return nil
}

func (f *fakeActions) FetchActions(context.Context, string) error { return nil }

func (f *fakeActions) FetchOrCreateChatReport(_ context.Context, logins []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, logins)
	return f.chatReportID, f.err
}

func (f *fakeActions) CreateIOUTransaction(_ context.Context, req api.IOURequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return "iou-1", f.err
}

func (f *fakeActions) CreateIOUSplit(_ context.Context, split api.IOUSplit) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.splits = append(f.splits, split)
	return "iou-2", f.err
}

func (f *fakeActions) SetNameValuePair(_ context.Context, name, _, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nvps[name] = value
	return f.err
}

func (f *fakeActions) SetPersonalDetails(_ context.Context, details map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details = append(f.details, details)
	return f.err
}

func (f *fakeActions) ChangePassword(_ context.Context, oldPassword, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passwords = append(f.passwords, [2]string{oldPassword, password})
	return f.err
}

func (f *fakeActions) SetModalVisibility(visible bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modal = append(f.modal, visible)
	return nil
}

func (f *fakeActions) ValidateLogin(_ context.Context, accountID, code string) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validated = append(f.validated, accountID+"/"+code)
	if f.err != nil {
		return nil, f.err
	}
	return &store.Session{Email: testEmail}, nil
}

// Startup fetches driven by the shell.

func (f *fakeActions) GetNameValuePair(context.Context, string, string, string) error { return nil }
func (f *fakeActions) FetchPersonalDetails(context.Context) error                    { return nil }
func (f *fakeActions) GetUserDetails(context.Context) error                          { return nil }
func (f *fakeActions) GetBetas(context.Context) error                                { return nil }
func (f *fakeActions) FetchCountryCodeByRequestIP(context.Context) error             { return nil }

func (f *fakeActions) FetchAllReports(context.Context, bool, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchedAllFor++
	return nil
}

func (f *fakeActions) SubscribeToReportCommentEvents(context.Context, core.Realtime) error {
	return nil
}

func (f *fakeActions) commentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.comments)
}

func (f *fakeActions) modalCalls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.modal...)
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustSet(t *testing.T, s *store.Store, key string, value any) {
	t.Helper()
	if err := s.Set(key, value); err != nil {
		t.Fatalf("set %s: %v", key, err)
	}
}

// seedChats stores a session, three people and two chats: a direct chat
// with alice (report 1) and a group chat (report 2).
func seedChats(t *testing.T, s *store.Store) {
	t.Helper()
	mustSet(t, s, store.KeySession, store.Session{Email: testEmail, AccountID: 7, AuthToken: "tok"})
	mustSet(t, s, store.KeyPersonalDetails, map[string]store.PersonalDetails{
		testEmail:           {Login: testEmail, FirstName: "Me"},
		"alice@example.com": {Login: "alice@example.com", DisplayName: "Alice Liddell", Timezone: store.Timezone{Selected: "UTC"}},
		"bob@example.com":   {Login: "bob@example.com", FirstName: "Bob", LastName: "Builder"},
		"carol@example.com": {Login: "carol@example.com"},
	})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mustSet(t, s, store.ReportKey("1"), store.Report{
		ReportID:             "1",
		Participants:         []string{testEmail, "alice@example.com"},
		LastMessageTimestamp: now,
		LastMessageText:      "see you at lunch",
		MaxSequenceNumber:    2,
	})
	mustSet(t, s, store.ReportKey("2"), store.Report{
		ReportID:             "2",
		ReportName:           "Trip to Lisbon",
		Participants:         []string{testEmail, "alice@example.com", "bob@example.com"},
		LastMessageTimestamp: now.Add(-time.Hour),
		UnreadActionCount:    3,
	})
	mustSet(t, s, store.ReportActionsKey("1"), store.ReportActions{
		"1": {SequenceNumber: 1, ActorEmail: "alice@example.com", ActionName: core.ActionAddComment, Message: "lunch?", Created: now.Add(-time.Minute)},
		"2": {SequenceNumber: 2, ActorEmail: testEmail, ActionName: core.ActionAddComment, Message: "see you at lunch", Created: now},
	})
}

func newTestEnv(t *testing.T) (*screenEnv, *fakeActions) {
	t.Helper()
	s := setupTestStore(t)
	seedChats(t, s)
	actions := newFakeActions()
	return &screenEnv{
		ctx:              context.Background(),
		store:            s,
		actions:          actions,
		composerMaxLines: 8,
	}, actions
}
