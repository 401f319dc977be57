// Package core holds the client's data actions and the background listeners
// that keep the local store in sync with the server.
package core

import (
	"encoding/json"
	"time"

	"github.com/xonecas/tally/internal/store"
)

// EventType identifies the type of event.
type EventType string

const (
	EventKeyChanged     EventType = "key_changed"
	EventReportComment  EventType = "report_comment"
	EventNetworkChanged EventType = "network_changed"
	EventRealtimeState  EventType = "realtime_state"
	EventUnreadChanged  EventType = "unread_changed"
	EventActionFailed   EventType = "action_failed"
)

// Event represents something that changed in the client state.
type Event struct {
	Type      EventType
	Key       string
	ReportID  string
	Data      interface{}
	Timestamp time.Time
}

// KeyChangedData carries the new value of a store key. Value is nil when
// the key was removed.
type KeyChangedData struct {
	Value json.RawMessage
}

// ReportCommentData contains data for report comment events.
type ReportCommentData struct {
	Action store.ReportAction
}

// NetworkData contains data for network events.
type NetworkData struct {
	IsOffline bool
}

// RealtimeStateData contains data for realtime state events.
type RealtimeStateData struct {
	State string
	Error string
}

// UnreadData contains data for unread count events.
type UnreadData struct {
	Count int
}

// ErrorData contains data for failed action events.
type ErrorData struct {
	Action string
	Error  string
}
