package core

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xonecas/tally/internal/constants"
	"github.com/xonecas/tally/internal/store"
)

// UnreadIndicator totals unread actions across every report and reports
// the total whenever it changes.
type UnreadIndicator struct {
	store    *store.Store
	bus      *EventBus
	onChange func(count int)

	mu      sync.Mutex
	id      int
	counts  map[string]int
	total   int
	started bool
}

// NewUnreadIndicator creates an indicator. onChange and bus may be nil.
func NewUnreadIndicator(s *store.Store, bus *EventBus, onChange func(count int)) *UnreadIndicator {
	return &UnreadIndicator{
		store:    s,
		bus:      bus,
		onChange: onChange,
		counts:   make(map[string]int),
		total:    -1,
	}
}

// ListenForReportChanges starts following the report collection.
func (u *UnreadIndicator) ListenForReportChanges() {
	u.mu.Lock()
	if u.started {
		u.mu.Unlock()
		return
	}
	u.started = true
	u.mu.Unlock()

	id := u.store.Connect(store.CollectionReport, u.handle)

	u.mu.Lock()
	u.id = id
	u.mu.Unlock()
}

// Stop releases the collection subscription.
func (u *UnreadIndicator) Stop() {
	u.mu.Lock()
	id := u.id
	u.id = 0
	u.started = false
	u.mu.Unlock()
	if id != 0 {
		u.store.Disconnect(id)
	}
}

// Count returns the current total.
func (u *UnreadIndicator) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.total < 0 {
		return 0
	}
	return u.total
}

func (u *UnreadIndicator) handle(key string, value json.RawMessage) {
	reportID := store.ReportIDFromKey(key)

	u.mu.Lock()
	if value == nil {
		delete(u.counts, reportID)
	} else {
		var r store.Report
		if err := json.Unmarshal(value, &r); err != nil {
			u.mu.Unlock()
			return
		}
		u.counts[reportID] = r.UnreadActionCount
	}
	total := 0
	for _, c := range u.counts {
		total += c
	}
	changed := total != u.total
	u.total = total
	u.mu.Unlock()

	if !changed {
		return
	}
	if u.bus != nil {
		u.bus.Publish(Event{Type: EventUnreadChanged, Data: UnreadData{Count: total}})
	}
	if u.onChange != nil {
		u.onChange(total)
	}
}

// UnreadTitle formats the window title for count unread actions.
func UnreadTitle(count int) string {
	if count <= 0 {
		return constants.AppName
	}
	return fmt.Sprintf("(%d) %s", count, constants.AppName)
}
