// Package nav implements the screen stacks of the authenticated app: a root
// stack holding the home screen and modal screens, where every modal owns
// its own stack of sub-screens.
package nav

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnknownRoute is returned for paths no screen handles.
var ErrUnknownRoute = errors.New("nav: unknown route")

// ScreenName names a root stack screen.
type ScreenName string

const (
	ScreenHome          ScreenName = "Home"
	ScreenValidateLogin ScreenName = "ValidateLogin"
	ScreenSettings      ScreenName = "Settings"
	ScreenNewChat       ScreenName = "NewChat"
	ScreenNewGroup      ScreenName = "NewGroup"
	ScreenSearch        ScreenName = "Search"
	ScreenDetails       ScreenName = "Details"
	ScreenParticipants  ScreenName = "Participants"
	ScreenIOURequest    ScreenName = "IOU_Request"
	ScreenIOUBill       ScreenName = "IOU_Bill"
)

// Screens nested inside root screens.
const (
	SubReport              = "Report"
	SubValidateLogin       = "ValidateLogin"
	SubSettingsRoot        = "Settings_Root"
	SubSettingsProfile     = "Settings_Profile"
	SubSettingsPreferences = "Settings_Preferences"
	SubSettingsPassword    = "Settings_Password"
	SubSettingsPayments    = "Settings_Payments"
	SubNewChatRoot         = "NewChat_Root"
	SubNewGroupRoot        = "NewGroup_Root"
	SubSearchRoot          = "Search_Root"
	SubDetailsRoot         = "Details_Root"
	SubParticipantsRoot    = "ReportParticipants_Root"
	SubParticipantsDetails = "ReportParticipants_Details"
	SubIOURequestRoot      = "IOU_Request_Root"
	SubIOUBillRoot         = "IOU_Bill_Root"
)

// Paths.
const (
	PathHome                = ""
	PathSettings            = "settings"
	PathSettingsProfile     = "settings/profile"
	PathSettingsPreferences = "settings/preferences"
	PathSettingsPassword    = "settings/password"
	PathSettingsPayments    = "settings/payments"
	PathNewChat             = "new/chat"
	PathNewGroup            = "new/group"
	PathSearch              = "search"
)

// Route is a parsed path: the root screen, the screen inside it and the
// path parameters.
type Route struct {
	Screen ScreenName
	Sub    string
	Params map[string]string
	Path   string
}

// Param returns a path parameter or "".
func (r Route) Param(name string) string {
	return r.Params[name]
}

type pattern struct {
	segments []string
	screen   ScreenName
	sub      string
}

func p(path string, screen ScreenName, sub string) pattern {
	var segs []string
	if path != "" {
		segs = strings.Split(path, "/")
	}
	return pattern{segments: segs, screen: screen, sub: sub}
}

var patterns = []pattern{
	p("", ScreenHome, SubReport),
	p("r", ScreenHome, SubReport),
	p("r/:reportID", ScreenHome, SubReport),
	p("r/:reportID/participants", ScreenParticipants, SubParticipantsRoot),
	p("r/:reportID/participants/:login", ScreenParticipants, SubParticipantsDetails),
	p("v/:accountID/:validateCode", ScreenValidateLogin, SubValidateLogin),
	p(PathSettings, ScreenSettings, SubSettingsRoot),
	p(PathSettingsProfile, ScreenSettings, SubSettingsProfile),
	p(PathSettingsPreferences, ScreenSettings, SubSettingsPreferences),
	p(PathSettingsPassword, ScreenSettings, SubSettingsPassword),
	p(PathSettingsPayments, ScreenSettings, SubSettingsPayments),
	p(PathNewChat, ScreenNewChat, SubNewChatRoot),
	p(PathNewGroup, ScreenNewGroup, SubNewGroupRoot),
	p(PathSearch, ScreenSearch, SubSearchRoot),
	p("details/:login", ScreenDetails, SubDetailsRoot),
	p("iou/request/:reportID", ScreenIOURequest, SubIOURequestRoot),
	p("iou/split/:reportID", ScreenIOUBill, SubIOUBillRoot),
}

func (pt pattern) match(parts []string) (map[string]string, bool) {
	if len(parts) != len(pt.segments) {
		return nil, false
	}
	params := map[string]string{}
	for i, seg := range pt.segments {
		if strings.HasPrefix(seg, ":") {
			v, err := url.PathUnescape(parts[i])
			if err != nil || v == "" {
				return nil, false
			}
			params[seg[1:]] = v
			continue
		}
		if seg != parts[i] {
			return nil, false
		}
	}
	return params, true
}

// Normalize trims whitespace, a leading "#" and surrounding slashes.
func Normalize(path string) string {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "#")
	return strings.Trim(path, "/")
}

// Parse resolves path to a route.
func Parse(path string) (Route, error) {
	path = Normalize(path)
	var parts []string
	if path != "" {
		parts = strings.Split(path, "/")
	}
	for _, pt := range patterns {
		if params, ok := pt.match(parts); ok {
			return Route{Screen: pt.screen, Sub: pt.sub, Params: params, Path: path}, nil
		}
	}
	return Route{}, fmt.Errorf("%w: %q", ErrUnknownRoute, path)
}

// ReportRoute is the path of a report.
func ReportRoute(reportID string) string {
	return "r/" + url.PathEscape(reportID)
}

// ParticipantsRoute is the path of a report's participant list.
func ParticipantsRoute(reportID string) string {
	return ReportRoute(reportID) + "/participants"
}

// ParticipantRoute is the path of one participant of a report.
func ParticipantRoute(reportID, login string) string {
	return ParticipantsRoute(reportID) + "/" + url.PathEscape(login)
}

// DetailsRoute is the path of a user's details.
func DetailsRoute(login string) string {
	return "details/" + url.PathEscape(login)
}

// IOURequestRoute is the path of the money request flow.
func IOURequestRoute(reportID string) string {
	return "iou/request/" + url.PathEscape(reportID)
}

// IOUBillRoute is the path of the bill split flow.
func IOUBillRoute(reportID string) string {
	return "iou/split/" + url.PathEscape(reportID)
}

// ValidateLoginRoute is the path of a login validation link.
func ValidateLoginRoute(accountID, code string) string {
	return "v/" + url.PathEscape(accountID) + "/" + url.PathEscape(code)
}
