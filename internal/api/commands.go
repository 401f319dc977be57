package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Timezone as sent by the server.
type Timezone struct {
	Automatic bool   `json:"automatic"`
	Selected  string `json:"selected"`
}

// PersonalDetail is one entry of personalDetailsList.
type PersonalDetail struct {
	DisplayName string   `json:"displayName"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	Avatar      string   `json:"avatar"`
	Timezone    Timezone `json:"timezone"`
}

// Account holds account level details.
type Account struct {
	Email                string `json:"email"`
	Validated            bool   `json:"validated"`
	ExpensifyNewsletters bool   `json:"expensifyNewsletters"`
}

// Report is a report summary from reportStuff.
type Report struct {
	ReportID               string   `json:"reportID"`
	ReportName             string   `json:"reportName"`
	Participants           []string `json:"participants"`
	MaxSequenceNumber      int      `json:"reportActionCount"`
	LastReadSequenceNumber int      `json:"lastReadSequenceNumber"`
	LastActionCreated      string   `json:"lastActionCreated"`
	LastMessageText        string   `json:"lastMessageText"`
	IsPinned               bool     `json:"isPinned"`
	HasOutstandingIOU      bool     `json:"hasOutstandingIOU"`
}

// ReportAction is one entry of a report's history.
type ReportAction struct {
	SequenceNumber int    `json:"sequenceNumber"`
	ClientID       string `json:"clientID"`
	ActorEmail     string `json:"actorEmail"`
	ActionName     string `json:"actionName"`
	Message        string `json:"message"`
	Timestamp      int64  `json:"timestamp"`
}

// Created returns the action timestamp.
func (a ReportAction) Created() time.Time {
	if a.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(a.Timestamp, 0).UTC()
}

// IOURequest asks one person for money.
type IOURequest struct {
	Comment     string
	Amount      int64
	Currency    string
	DebtorEmail string
}

// IOUSplit splits a bill between participants.
type IOUSplit struct {
	Comment  string
	Amount   int64
	Currency string
	Splits   []Split
}

// Split is one participant's share of a bill.
type Split struct {
	Email  string `json:"email"`
	Amount int64  `json:"amount"`
}

// Validation is the result of validating a login link.
type Validation struct {
	AuthToken string `json:"authToken"`
	Email     string `json:"email"`
	AccountID int64  `json:"accountID"`
}

// Get runs the generic Get command for returnValueList.
func (c *Client) Get(ctx context.Context, returnValueList string, params map[string]string) (*Response, error) {
	v := toValues(params)
	v.Set("returnValueList", returnValueList)
	return c.Command(ctx, "Get", v)
}

// PersonalDetailsList fetches every personal detail the account can see.
func (c *Client) PersonalDetailsList(ctx context.Context) (map[string]PersonalDetail, error) {
	resp, err := c.Get(ctx, "personalDetailsList", nil)
	if err != nil {
		return nil, err
	}
	details := map[string]PersonalDetail{}
	if _, err := resp.Decode("personalDetailsList", &details); err != nil {
		return nil, err
	}
	return details, nil
}

// Account fetches account details.
func (c *Client) Account(ctx context.Context) (*Account, error) {
	resp, err := c.Get(ctx, "account", nil)
	if err != nil {
		return nil, err
	}
	var acc Account
	if _, err := resp.Decode("account", &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// Betas fetches the feature flags enabled for the account.
func (c *Client) Betas(ctx context.Context) ([]string, error) {
	resp, err := c.Command(ctx, "User_GetBetas", nil)
	if err != nil {
		return nil, err
	}
	var betas []string
	if _, err := resp.Decode("betas", &betas); err != nil {
		return nil, err
	}
	return betas, nil
}

// ChatList fetches the IDs of every chat report.
func (c *Client) ChatList(ctx context.Context) ([]string, error) {
	resp, err := c.Get(ctx, "chatList", nil)
	if err != nil {
		return nil, err
	}
	var list string
	if _, err := resp.Decode("chatList", &list); err != nil {
		return nil, err
	}
	return splitList(list), nil
}

// Reports fetches report summaries by ID.
func (c *Client) Reports(ctx context.Context, reportIDs []string) ([]Report, error) {
	if len(reportIDs) == 0 {
		return nil, nil
	}
	resp, err := c.Get(ctx, "reportStuff", map[string]string{
		"reportIDList":           strings.Join(reportIDs, ","),
		"shouldLoadOptionalKeys": "true",
	})
	if err != nil {
		return nil, err
	}
	byID := map[string]Report{}
	if _, err := resp.Decode("reports", &byID); err != nil {
		return nil, err
	}

	reports := make([]Report, 0, len(byID))
	for _, id := range reportIDs {
		r, ok := byID[id]
		if !ok {
			continue
		}
		if r.ReportID == "" {
			r.ReportID = id
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// ReportHistory fetches every action of a report.
func (c *Client) ReportHistory(ctx context.Context, reportID string) ([]ReportAction, error) {
	resp, err := c.Command(ctx, "Report_GetHistory", toValues(map[string]string{"reportID": reportID}))
	if err != nil {
		return nil, err
	}
	var history []ReportAction
	if _, err := resp.Decode("history", &history); err != nil {
		return nil, err
	}
	return history, nil
}

// NameValuePair fetches a stored preference. It reports false if unset.
func (c *Client) NameValuePair(ctx context.Context, name string) (json.RawMessage, bool, error) {
	resp, err := c.Get(ctx, "nameValuePairs", map[string]string{"name": name})
	if err != nil {
		return nil, false, err
	}
	pairs := map[string]json.RawMessage{}
	if _, err := resp.Decode("nameValuePairs", &pairs); err != nil {
		return nil, false, err
	}
	v, ok := pairs[name]
	if !ok || string(v) == "null" {
		return nil, false, nil
	}
	return v, true, nil
}

// SetNameValuePair stores a preference.
func (c *Client) SetNameValuePair(ctx context.Context, name, value string) error {
	_, err := c.Command(ctx, "SetNameValuePair", toValues(map[string]string{
		"name":  name,
		"value": value,
	}))
	return err
}

// RequestCountryCode looks up the country of the requesting IP.
func (c *Client) RequestCountryCode(ctx context.Context) (int, error) {
	resp, err := c.Command(ctx, "GetRequestCountryCode", nil)
	if err != nil {
		return 0, err
	}
	var code int
	if _, err := resp.Decode("countryCode", &code); err != nil {
		return 0, err
	}
	return code, nil
}

// AddComment posts a chat comment.
func (c *Client) AddComment(ctx context.Context, reportID, text, clientID string) error {
	_, err := c.Command(ctx, "Report_AddComment", toValues(map[string]string{
		"reportID":       reportID,
		"reportComment":  text,
		"clientActionID": clientID,
	}))
	return err
}

// CreateChatReport finds or creates a chat with the given logins.
func (c *Client) CreateChatReport(ctx context.Context, emails []string) (string, error) {
	resp, err := c.Command(ctx, "CreateChatReport", toValues(map[string]string{
		"emailList": strings.Join(emails, ","),
	}))
	if err != nil {
		return "", err
	}
	return decodeReportID(resp)
}

// CreateIOUTransaction requests money from one person.
func (c *Client) CreateIOUTransaction(ctx context.Context, req IOURequest) (string, error) {
	resp, err := c.Command(ctx, "CreateIOUTransaction", toValues(map[string]string{
		"comment":     req.Comment,
		"amount":      strconv.FormatInt(req.Amount, 10),
		"currency":    req.Currency,
		"debtorEmail": req.DebtorEmail,
	}))
	if err != nil {
		return "", err
	}
	return decodeReportID(resp)
}

// CreateIOUSplit splits a bill.
func (c *Client) CreateIOUSplit(ctx context.Context, split IOUSplit) (string, error) {
	splits, err := json.Marshal(split.Splits)
	if err != nil {
		return "", fmt.Errorf("marshal splits: %w", err)
	}
	resp, err := c.Command(ctx, "CreateIOUSplit", toValues(map[string]string{
		"comment":  split.Comment,
		"amount":   strconv.FormatInt(split.Amount, 10),
		"currency": split.Currency,
		"splits":   string(splits),
	}))
	if err != nil {
		return "", err
	}
	return decodeReportID(resp)
}

// ValidateEmail validates a login link and returns a fresh session.
func (c *Client) ValidateEmail(ctx context.Context, accountID, validateCode string) (*Validation, error) {
	resp, err := c.Command(ctx, "ValidateEmail", toValues(map[string]string{
		"accountID":    accountID,
		"validateCode": validateCode,
	}))
	if err != nil {
		return nil, err
	}
	var v Validation
	if _, err := resp.Decode("authToken", &v.AuthToken); err != nil {
		return nil, err
	}
	if _, err := resp.Decode("email", &v.Email); err != nil {
		return nil, err
	}
	if _, err := resp.Decode("accountID", &v.AccountID); err != nil {
		return nil, err
	}
	return &v, nil
}

// UpdatePersonalDetails saves changed personal detail fields.
func (c *Client) UpdatePersonalDetails(ctx context.Context, details map[string]any) error {
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	_, err = c.Command(ctx, "PersonalDetails_Update", toValues(map[string]string{
		"details": string(data),
	}))
	return err
}

// ChangePassword replaces the account password.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, password string) error {
	_, err := c.Command(ctx, "ChangePassword", toValues(map[string]string{
		"oldPassword": oldPassword,
		"password":    password,
	}))
	return err
}

func decodeReportID(resp *Response) (string, error) {
	var id json.Number
	ok, err := resp.Decode("reportID", &id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("response missing reportID")
	}
	return id.String(), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func toValues(params map[string]string) url.Values {
	v := url.Values{}
	for k, val := range params {
		v.Set(k, val)
	}
	return v
}
