package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xonecas/tally/internal/api"
	"github.com/xonecas/tally/internal/constants"
	"github.com/xonecas/tally/internal/store"
)

// ActionAddComment is the action name of a chat comment.
const ActionAddComment = "ADDCOMMENT"

// Layouts the server uses for report timestamps.
var reportTimeLayouts = []string{
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

func parseReportTime(s string) time.Time {
	for _, layout := range reportTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

// optimisticKey is the ReportActions key of a comment still in flight.
func optimisticKey(clientID string) string {
	return "optimistic_" + clientID
}

func convertReport(r api.Report) *store.Report {
	unread := r.MaxSequenceNumber - r.LastReadSequenceNumber
	if unread < 0 {
		unread = 0
	}
	return &store.Report{
		ReportID:             r.ReportID,
		ReportName:           r.ReportName,
		Participants:         r.Participants,
		UnreadActionCount:    unread,
		MaxSequenceNumber:    r.MaxSequenceNumber,
		LastReadSequence:     r.LastReadSequenceNumber,
		LastMessageTimestamp: parseReportTime(r.LastActionCreated),
		LastMessageText:      r.LastMessageText,
		IsPinned:             r.IsPinned,
		HasOutstandingIOU:    r.HasOutstandingIOU,
	}
}

func convertAction(a api.ReportAction) store.ReportAction {
	return store.ReportAction{
		SequenceNumber: a.SequenceNumber,
		ClientID:       a.ClientID,
		ActorEmail:     a.ActorEmail,
		ActionName:     a.ActionName,
		Message:        a.Message,
		Created:        a.Created(),
	}
}

// fetchReports loads report summaries into the report collection.
func (a *Actions) fetchReports(ctx context.Context, ids []string) ([]*store.Report, error) {
	summaries, err := a.api.Reports(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reports: %w", err)
	}

	reports := make([]*store.Report, 0, len(summaries))
	for _, s := range summaries {
		r := convertReport(s)
		if err := a.store.Set(store.ReportKey(r.ReportID), r); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// FetchAllReports loads every chat report. When no report is being viewed
// yet, the most recently active one becomes the initial report, or "" when
// there are none. History fetches run after a short delay when
// shouldDelayActions is set so the sidebar renders first.
func (a *Actions) FetchAllReports(ctx context.Context, shouldRecordHomePageTiming, shouldDelayActions bool) error {
	ids, err := a.api.ChatList(ctx)
	if err != nil {
		return a.fail("fetch reports", fmt.Errorf("chat list: %w", err))
	}

	reports, err := a.fetchReports(ctx, ids)
	if err != nil {
		return a.fail("fetch reports", err)
	}

	if err := a.setInitialReport(reports); err != nil {
		return a.fail("fetch reports", err)
	}

	if shouldRecordHomePageTiming {
		a.timing.End(constants.TimingHomepageReportsLoaded)
	}

	fetchHistory := func() {
		for _, r := range reports {
			if err := a.FetchActions(ctx, r.ReportID); err != nil {
				log.Warn().Err(err).Str("report_id", r.ReportID).Msg("Failed to fetch report history")
			}
		}
	}

	if !shouldDelayActions {
		fetchHistory()
		return nil
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		select {
		case <-time.After(a.actionsDelay):
		case <-ctx.Done():
			return
		}
		fetchHistory()
	}()
	return nil
}

func (a *Actions) setInitialReport(reports []*store.Report) error {
	var current string
	resolved, err := a.store.Get(store.KeyCurrentlyViewedReportID, &current)
	if err != nil {
		return err
	}
	if resolved && current != "" {
		return nil
	}

	initial := ""
	var latest time.Time
	for _, r := range reports {
		if initial == "" || r.LastMessageTimestamp.After(latest) {
			initial = r.ReportID
			latest = r.LastMessageTimestamp
		}
	}
	if resolved && initial == "" {
		return nil
	}
	return a.store.Set(store.KeyCurrentlyViewedReportID, initial)
}

// FetchActions loads a report's history. Optimistic comments are kept.
func (a *Actions) FetchActions(ctx context.Context, reportID string) error {
	history, err := a.api.ReportHistory(ctx, reportID)
	if err != nil {
		return fmt.Errorf("report history %s: %w", reportID, err)
	}
	if len(history) == 0 {
		return nil
	}

	patch := make(map[string]any, len(history))
	maxSeq := 0
	for _, h := range history {
		action := convertAction(h)
		patch[store.SequenceKey(action.SequenceNumber)] = action
		if action.ClientID != "" {
			patch[optimisticKey(action.ClientID)] = nil
		}
		if action.SequenceNumber > maxSeq {
			maxSeq = action.SequenceNumber
		}
	}
	if err := a.store.Merge(store.ReportActionsKey(reportID), patch); err != nil {
		return err
	}

	report, err := a.store.GetReport(reportID)
	if err != nil {
		return nil
	}
	if maxSeq > report.MaxSequenceNumber {
		return a.store.Merge(store.ReportKey(reportID), map[string]any{"maxSequenceNumber": maxSeq})
	}
	return nil
}

// SetCurrentlyViewedReport marks reportID as viewed and read.
func (a *Actions) SetCurrentlyViewedReport(reportID string) error {
	if err := a.store.Set(store.KeyCurrentlyViewedReportID, reportID); err != nil {
		return err
	}
	report, err := a.store.GetReport(reportID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return a.store.Merge(store.ReportKey(reportID), map[string]any{
		"unreadActionCount":      0,
		"lastReadSequenceNumber": report.MaxSequenceNumber,
	})
}

// AddComment shows text in the report immediately and posts it. The
// optimistic entry is replaced when the server echoes the comment back.
func (a *Actions) AddComment(ctx context.Context, reportID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	maxSeq := 0
	if report, err := a.store.GetReport(reportID); err == nil {
		maxSeq = report.MaxSequenceNumber
	}

	action := store.ReportAction{
		SequenceNumber: maxSeq + 1,
		ClientID:       uuid.NewString(),
		ActorEmail:     a.sessionEmail(),
		ActionName:     ActionAddComment,
		Message:        text,
		Created:        a.now().UTC(),
		IsOptimistic:   true,
	}

	if err := a.store.Merge(store.ReportActionsKey(reportID), map[string]store.ReportAction{
		optimisticKey(action.ClientID): action,
	}); err != nil {
		return a.fail("add comment", err)
	}
	if err := a.store.Merge(store.ReportKey(reportID), map[string]any{
		"reportID":             reportID,
		"lastMessageText":      text,
		"lastMessageTimestamp": action.Created,
	}); err != nil {
		return a.fail("add comment", err)
	}
	if err := a.store.Remove(store.DraftKey(reportID)); err != nil {
		log.Warn().Err(err).Str("report_id", reportID).Msg("Failed to clear draft")
	}

	if err := a.api.AddComment(ctx, reportID, text, action.ClientID); err != nil {
		return a.fail("add comment", fmt.Errorf("add comment to %s: %w", reportID, err))
	}
	return nil
}

// SaveDraft stores unsent composer text for a report.
func (a *Actions) SaveDraft(reportID, text string) error {
	if text == "" {
		return a.store.Remove(store.DraftKey(reportID))
	}
	return a.store.Set(store.DraftKey(reportID), text)
}

// FetchOrCreateChatReport opens the chat between the user and logins.
func (a *Actions) FetchOrCreateChatReport(ctx context.Context, logins []string) (string, error) {
	emails := make([]string, 0, len(logins)+1)
	seen := map[string]bool{}
	if me := a.sessionEmail(); me != "" {
		emails = append(emails, me)
		seen[me] = true
	}
	for _, l := range logins {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		emails = append(emails, l)
	}
	if len(seen) < 2 {
		return "", fmt.Errorf("create chat: at least one other participant is required")
	}

	reportID, err := a.api.CreateChatReport(ctx, emails)
	if err != nil {
		return "", a.fail("create chat", fmt.Errorf("create chat report: %w", err))
	}
	if _, err := a.fetchReports(ctx, []string{reportID}); err != nil {
		return "", a.fail("create chat", err)
	}
	if err := a.FetchActions(ctx, reportID); err != nil {
		log.Warn().Err(err).Str("report_id", reportID).Msg("Failed to fetch report history")
	}
	return reportID, nil
}

// CreateIOUTransaction requests money from one person and loads the IOU report.
func (a *Actions) CreateIOUTransaction(ctx context.Context, req api.IOURequest) (string, error) {
	if req.Amount <= 0 {
		return "", fmt.Errorf("iou request: amount must be positive")
	}
	reportID, err := a.api.CreateIOUTransaction(ctx, req)
	if err != nil {
		return "", a.fail("request money", fmt.Errorf("create iou: %w", err))
	}
	if _, err := a.fetchReports(ctx, []string{reportID}); err != nil {
		return "", a.fail("request money", err)
	}
	return reportID, nil
}

// CreateIOUSplit splits a bill and loads the resulting report.
func (a *Actions) CreateIOUSplit(ctx context.Context, split api.IOUSplit) (string, error) {
	if split.Amount <= 0 || len(split.Splits) == 0 {
		return "", fmt.Errorf("split bill: amount and participants are required")
	}
	reportID, err := a.api.CreateIOUSplit(ctx, split)
	if err != nil {
		return "", a.fail("split bill", fmt.Errorf("create iou split: %w", err))
	}
	if _, err := a.fetchReports(ctx, []string{reportID}); err != nil {
		return "", a.fail("split bill", err)
	}
	return reportID, nil
}

type reportCommentPush struct {
	ReportID     json.Number      `json:"reportID"`
	ReportAction api.ReportAction `json:"reportAction"`
}

type togglePinnedPush struct {
	ReportID json.Number `json:"reportID"`
	IsPinned bool        `json:"isPinned"`
}

// SubscribeToReportCommentEvents binds report push events on the user's
// private channel.
func (a *Actions) SubscribeToReportCommentEvents(ctx context.Context, rt Realtime) error {
	sess, err := a.store.GetSession()
	if err != nil {
		return fmt.Errorf("subscribe to report events: %w", err)
	}
	channel := constants.PrivateUserChannelPrefix + strconv.FormatInt(sess.AccountID, 10)

	if err := rt.Subscribe(ctx, channel, constants.PushEventReportComment, a.handleReportComment); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	if err := rt.Subscribe(ctx, channel, constants.PushEventReportTogglePinned, a.handleTogglePinned); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	log.Info().Str("channel", channel).Msg("Subscribed to report events")
	return nil
}

func (a *Actions) handleReportComment(data json.RawMessage) {
	var push reportCommentPush
	if err := json.Unmarshal(data, &push); err != nil {
		log.Warn().Err(err).Msg("Malformed report comment event")
		return
	}
	if err := a.UpdateReportWithNewAction(push.ReportID.String(), convertAction(push.ReportAction)); err != nil {
		log.Error().Err(err).Str("report_id", push.ReportID.String()).Msg("Failed to apply report comment")
	}
}

func (a *Actions) handleTogglePinned(data json.RawMessage) {
	var push togglePinnedPush
	if err := json.Unmarshal(data, &push); err != nil {
		log.Warn().Err(err).Msg("Malformed toggle pinned event")
		return
	}
	if err := a.store.Merge(store.ReportKey(push.ReportID.String()), map[string]any{"isPinned": push.IsPinned}); err != nil {
		log.Error().Err(err).Msg("Failed to apply toggle pinned")
	}
}

// UpdateReportWithNewAction applies a pushed action to its report. A matching
// optimistic comment is dropped. Comments from others on a report the user
// is not viewing bump the unread count and raise a notification.
func (a *Actions) UpdateReportWithNewAction(reportID string, action store.ReportAction) error {
	if reportID == "" {
		return fmt.Errorf("update report: missing report ID")
	}
	if action.Created.IsZero() {
		action.Created = a.now().UTC()
	}
	action.IsOptimistic = false

	patch := map[string]any{store.SequenceKey(action.SequenceNumber): action}
	if action.ClientID != "" {
		patch[optimisticKey(action.ClientID)] = nil
	}
	if err := a.store.Merge(store.ReportActionsKey(reportID), patch); err != nil {
		return err
	}

	report, err := a.store.GetReport(reportID)
	if errors.Is(err, store.ErrNotFound) {
		report = &store.Report{ReportID: reportID}
	} else if err != nil {
		return err
	}

	var viewing string
	_, _ = a.store.Get(store.KeyCurrentlyViewedReportID, &viewing)
	fromMe := action.ActorEmail != "" && action.ActorEmail == a.sessionEmail()
	isViewing := viewing == reportID

	maxSeq := report.MaxSequenceNumber
	if action.SequenceNumber > maxSeq {
		maxSeq = action.SequenceNumber
	}
	update := map[string]any{
		"reportID":             reportID,
		"maxSequenceNumber":    maxSeq,
		"lastMessageText":      action.Message,
		"lastMessageTimestamp": action.Created,
	}
	if fromMe || isViewing {
		update["lastReadSequenceNumber"] = maxSeq
		update["unreadActionCount"] = 0
	} else {
		unread := maxSeq - report.LastReadSequence
		if unread < 0 {
			unread = 0
		}
		update["unreadActionCount"] = unread
	}
	if err := a.store.Merge(store.ReportKey(reportID), update); err != nil {
		return err
	}

	a.publish(Event{
		Type:     EventReportComment,
		ReportID: reportID,
		Data:     ReportCommentData{Action: action},
	})

	if fromMe || isViewing || action.ActionName != ActionAddComment {
		return nil
	}

	a.mu.RLock()
	n := a.notifier
	a.mu.RUnlock()
	if n == nil {
		return nil
	}

	title := action.ActorEmail
	if details, err := a.store.GetPersonalDetails(); err == nil {
		if d, ok := details[action.ActorEmail]; ok {
			title = d.Name()
		}
	}
	if err := n.Notify(title, action.Message); err != nil {
		log.Warn().Err(err).Msg("Failed to show notification")
	}
	return nil
}
