package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func setupStoreTest(t *testing.T) (*Store, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	return s, func() { s.Close() }
}

func TestOpenMemory(t *testing.T) {
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer s.Close()

	if _, err := s.db.Exec("SELECT 1 FROM kv LIMIT 1"); err != nil {
		t.Errorf("kv table not created: %v", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set(KeyCountryCode, 1); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	var code int
	ok, err := s.Get(KeyCountryCode, &code)
	if err != nil || !ok || code != 1 {
		t.Errorf("expected country code 1, got %d ok=%v err=%v", code, ok, err)
	}
}

func TestSetGetRemove(t *testing.T) {
	s, cleanup := setupStoreTest(t)
	defer cleanup()

	var n Network
	ok, err := s.Get(KeyNetwork, &n)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if ok {
		t.Error("expected missing key")
	}

	if err := s.Set(KeyNetwork, Network{IsOffline: false}); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if s.GetNetwork().IsOffline {
		t.Error("expected online after Set")
	}

	if err := s.Remove(KeyNetwork); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if !s.GetNetwork().IsOffline {
		t.Error("expected offline default after Remove")
	}
}

func TestMerge(t *testing.T) {
	s, cleanup := setupStoreTest(t)
	defer cleanup()

	if err := s.Merge(KeyUser, map[string]any{"email": "a@example.test"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Merge(KeyUser, map[string]any{"validated": true}); err != nil {
		t.Fatal(err)
	}

	var u User
	if _, err := s.Get(KeyUser, &u); err != nil {
		t.Fatal(err)
	}
	if u.Email != "a@example.test" || !u.Validated {
		t.Errorf("merge lost fields: %+v", u)
	}

	if err := s.Merge(KeyUser, map[string]any{"email": nil}); err != nil {
		t.Fatal(err)
	}
	u = User{}
	if _, err := s.Get(KeyUser, &u); err != nil {
		t.Fatal(err)
	}
	if u.Email != "" {
		t.Errorf("expected null to delete email, got %q", u.Email)
	}
}

func TestConcurrentMergesKeepEveryField(t *testing.T) {
	s, cleanup := setupStoreTest(t)
	defer cleanup()

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Merge(ReportKey("1"), map[string]any{fmt.Sprintf("field%d", i): i}); err != nil {
				t.Errorf("merge %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	var got map[string]int
	if _, err := s.Get(ReportKey("1"), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != writers {
		t.Errorf("merged %d fields, want %d", len(got), writers)
	}
}

func TestConnectDeliversCurrentValueAndChanges(t *testing.T) {
	s, cleanup := setupStoreTest(t)
	defer cleanup()

	if err := s.Set(KeyCurrentlyViewedReportID, "123"); err != nil {
		t.Fatal(err)
	}

	var got []string
	id := s.Connect(KeyCurrentlyViewedReportID, func(key string, value json.RawMessage) {
		var v string
		_ = json.Unmarshal(value, &v)
		got = append(got, v)
	})

	if len(got) != 1 || got[0] != "123" {
		t.Fatalf("expected initial delivery of 123, got %v", got)
	}

	_ = s.Set(KeyCurrentlyViewedReportID, "456")
	_ = s.Set(KeyBetas, []string{"all"})

	if len(got) != 2 || got[1] != "456" {
		t.Fatalf("expected change delivery, got %v", got)
	}

	s.Disconnect(id)
	_ = s.Set(KeyCurrentlyViewedReportID, "789")
	if len(got) != 2 {
		t.Errorf("expected no delivery after Disconnect, got %v", got)
	}
}

func TestConnectCollection(t *testing.T) {
	s, cleanup := setupStoreTest(t)
	defer cleanup()

	_ = s.Set(ReportKey("1"), Report{ReportID: "1"})
	_ = s.Set(ReportKey("2"), Report{ReportID: "2"})
	_ = s.Set(ReportActionsKey("1"), ReportActions{})

	var keys []string
	s.Connect(CollectionReport, func(key string, value json.RawMessage) {
		keys = append(keys, key)
	})

	if len(keys) != 2 || keys[0] != "report_1" || keys[1] != "report_2" {
		t.Fatalf("expected both reports in order, got %v", keys)
	}

	_ = s.Set(ReportKey("3"), Report{ReportID: "3"})
	_ = s.Set(ReportActionsKey("3"), ReportActions{})
	if len(keys) != 3 || keys[2] != "report_3" {
		t.Errorf("expected report_3 delivered, got %v", keys)
	}
}

func TestCallbackMayWriteStore(t *testing.T) {
	s, cleanup := setupStoreTest(t)
	defer cleanup()

	s.Connect(KeyMyPersonalDetails, func(key string, value json.RawMessage) {
		_ = s.Set(KeyCountryCode, 44)
	})
	if err := s.Set(KeyMyPersonalDetails, PersonalDetails{Login: "me"}); err != nil {
		t.Fatal(err)
	}

	var code int
	if ok, _ := s.Get(KeyCountryCode, &code); !ok || code != 44 {
		t.Errorf("expected nested write to land, got %d", code)
	}
}

func TestRemoveNotifiesNil(t *testing.T) {
	s, cleanup := setupStoreTest(t)
	defer cleanup()

	_ = s.Set(KeyModal, Modal{IsVisible: true})
	var last json.RawMessage = json.RawMessage("unset")
	s.Connect(KeyModal, func(key string, value json.RawMessage) {
		last = value
	})
	_ = s.Remove(KeyModal)
	if last != nil {
		t.Errorf("expected nil value on remove, got %s", last)
	}
}

func TestListReportsOrdering(t *testing.T) {
	s, cleanup := setupStoreTest(t)
	defer cleanup()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = s.Set(ReportKey("old"), Report{ReportID: "old", LastMessageTimestamp: base})
	_ = s.Set(ReportKey("new"), Report{ReportID: "new", LastMessageTimestamp: base.Add(time.Hour)})
	_ = s.Set(ReportKey("pin"), Report{ReportID: "pin", IsPinned: true, LastMessageTimestamp: base.Add(-time.Hour)})

	reports, err := s.ListReports()
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, r := range reports {
		ids = append(ids, r.ReportID)
	}
	want := []string{"pin", "new", "old"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
}

func TestReportActionsSorted(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ra := ReportActions{
		"2":   {SequenceNumber: 2, Message: "second", Created: base.Add(time.Minute)},
		"1":   {SequenceNumber: 1, Message: "first", Created: base},
		"opt": {ClientID: "opt", Message: "pending", IsOptimistic: true, Created: base.Add(-time.Hour)},
	}
	sorted := ra.Sorted()
	if sorted[0].Message != "first" || sorted[1].Message != "second" || sorted[2].Message != "pending" {
		t.Errorf("unexpected order: %+v", sorted)
	}
}

func TestPersonalDetailsName(t *testing.T) {
	tests := []struct {
		pd   PersonalDetails
		want string
	}{
		{PersonalDetails{Login: "a@b", DisplayName: "Ann"}, "Ann"},
		{PersonalDetails{Login: "a@b", FirstName: "Ann", LastName: "Lee"}, "Ann Lee"},
		{PersonalDetails{Login: "a@b"}, "a@b"},
	}
	for _, tt := range tests {
		if got := tt.pd.Name(); got != tt.want {
			t.Errorf("Name() = %q, want %q", got, tt.want)
		}
	}
}

func TestClear(t *testing.T) {
	s, cleanup := setupStoreTest(t)
	defer cleanup()

	_ = s.Set(KeyBetas, []string{"x"})
	_ = s.Set(ReportKey("1"), Report{ReportID: "1"})

	removed := 0
	s.Connect("", func(key string, value json.RawMessage) {
		if value == nil {
			removed++
		}
	})
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removal notifications, got %d", removed)
	}
	all, _ := s.Collection("")
	if len(all) != 0 {
		t.Errorf("expected empty store, got %d keys", len(all))
	}
}
