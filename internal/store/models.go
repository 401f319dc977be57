package store

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Keys for shared client state.
const (
	KeySession                 = "session"
	KeyNetwork                 = "network"
	KeyCurrentlyViewedReportID = "currentlyViewedReportID"
	KeyPersonalDetails         = "personalDetails"
	KeyMyPersonalDetails       = "myPersonalDetails"
	KeyUser                    = "user"
	KeyBetas                   = "betas"
	KeyCountryCode             = "countryCode"
	KeyNVPPriorityMode         = "nvp_priorityMode"
	KeyNVPPaypalMeAddress      = "nvp_paypalMeAddress"
	KeyModal                   = "modal"
	KeyCurrentURL              = "currentURL"
	KeyDraftPrefix             = "draft_"

	// Collections
	CollectionReport        = "report_"
	CollectionReportActions = "reportActions_"
)

// ReportKey returns the collection key for a report.
func ReportKey(reportID string) string {
	return CollectionReport + reportID
}

// ReportActionsKey returns the collection key for a report's actions.
func ReportActionsKey(reportID string) string {
	return CollectionReportActions + reportID
}

// DraftKey returns the key holding the unsent composer text for a report.
func DraftKey(reportID string) string {
	return KeyDraftPrefix + reportID
}

// ReportIDFromKey extracts the report ID from a report or report actions key.
func ReportIDFromKey(key string) string {
	switch {
	case strings.HasPrefix(key, CollectionReportActions):
		return strings.TrimPrefix(key, CollectionReportActions)
	case strings.HasPrefix(key, CollectionReport):
		return strings.TrimPrefix(key, CollectionReport)
	}
	return ""
}

// Session identifies the authenticated account.
type Session struct {
	Email     string `json:"email"`
	AccountID int64  `json:"accountID"`
	AuthToken string `json:"authToken"`
}

// Network holds reachability state.
type Network struct {
	IsOffline bool `json:"isOffline"`
}

// Modal holds modal visibility.
type Modal struct {
	IsVisible bool `json:"isVisible"`
}

// Timezone is a user's timezone preference.
type Timezone struct {
	Automatic bool   `json:"automatic"`
	Selected  string `json:"selected"`
}

// PersonalDetails describes one login.
type PersonalDetails struct {
	Login       string   `json:"login"`
	DisplayName string   `json:"displayName"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	Avatar      string   `json:"avatar"`
	Timezone    Timezone `json:"timezone"`
}

// Name returns the best display label for the login.
func (p PersonalDetails) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	full := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if full != "" {
		return full
	}
	return p.Login
}

// User holds account level details.
type User struct {
	Email                string `json:"email"`
	Validated            bool   `json:"validated"`
	ExpensifyNewsletters bool   `json:"expensifyNewsletters"`
}

// Report is a chat report.
type Report struct {
	ReportID             string    `json:"reportID"`
	ReportName           string    `json:"reportName"`
	Participants         []string  `json:"participants"`
	UnreadActionCount    int       `json:"unreadActionCount"`
	MaxSequenceNumber    int       `json:"maxSequenceNumber"`
	LastReadSequence     int       `json:"lastReadSequenceNumber"`
	LastMessageTimestamp time.Time `json:"lastMessageTimestamp"`
	LastMessageText      string    `json:"lastMessageText"`
	IsPinned             bool      `json:"isPinned"`
	HasOutstandingIOU    bool      `json:"hasOutstandingIOU"`
}

// ReportAction is one chat message or system action in a report.
type ReportAction struct {
	SequenceNumber int       `json:"sequenceNumber"`
	ClientID       string    `json:"clientID"`
	ActorEmail     string    `json:"actorEmail"`
	ActionName     string    `json:"actionName"`
	Message        string    `json:"message"`
	Created        time.Time `json:"created"`
	IsOptimistic   bool      `json:"isOptimistic"`
}

// ReportActions maps sequence numbers to actions.
type ReportActions map[string]ReportAction

// Sorted returns actions ordered by sequence number, optimistic actions last.
func (ra ReportActions) Sorted() []ReportAction {
	out := make([]ReportAction, 0, len(ra))
	for _, a := range ra {
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsOptimistic != out[j].IsOptimistic {
			return !out[i].IsOptimistic
		}
		if out[i].SequenceNumber != out[j].SequenceNumber {
			return out[i].SequenceNumber < out[j].SequenceNumber
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

// SequenceKey formats a sequence number as a ReportActions map key.
func SequenceKey(n int) string {
	return strconv.Itoa(n)
}

// GetReport loads one report.
func (s *Store) GetReport(reportID string) (*Report, error) {
	var r Report
	ok, err := s.Get(ReportKey(reportID), &r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("report %s: %w", reportID, ErrNotFound)
	}
	return &r, nil
}

// ListReports returns every stored report, most recent activity first.
func (s *Store) ListReports() ([]*Report, error) {
	members, err := s.Collection(CollectionReport)
	if err != nil {
		return nil, err
	}

	reports := make([]*Report, 0, len(members))
	for key := range members {
		r, err := s.GetReport(ReportIDFromKey(key))
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	SortReports(reports)
	return reports, nil
}

// SortReports orders pinned reports first, then by last activity.
func SortReports(reports []*Report) {
	sort.SliceStable(reports, func(i, j int) bool {
		if reports[i].IsPinned != reports[j].IsPinned {
			return reports[i].IsPinned
		}
		if !reports[i].LastMessageTimestamp.Equal(reports[j].LastMessageTimestamp) {
			return reports[i].LastMessageTimestamp.After(reports[j].LastMessageTimestamp)
		}
		return reports[i].ReportID < reports[j].ReportID
	})
}

// GetReportActions loads a report's actions. A missing key yields an empty map.
func (s *Store) GetReportActions(reportID string) (ReportActions, error) {
	actions := ReportActions{}
	if _, err := s.Get(ReportActionsKey(reportID), &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// GetNetwork returns network state. The client is offline until proven otherwise.
func (s *Store) GetNetwork() Network {
	n := Network{IsOffline: true}
	_, _ = s.Get(KeyNetwork, &n)
	return n
}

// GetSession returns the stored session.
func (s *Store) GetSession() (*Session, error) {
	var sess Session
	ok, err := s.Get(KeySession, &sess)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	return &sess, nil
}

// GetPersonalDetails returns the personal details map keyed by login.
func (s *Store) GetPersonalDetails() (map[string]PersonalDetails, error) {
	details := map[string]PersonalDetails{}
	if _, err := s.Get(KeyPersonalDetails, &details); err != nil {
		return nil, err
	}
	return details, nil
}
