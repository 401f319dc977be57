package constants

import "time"

// AppName is shown in window titles and desktop notifications.
const AppName = "Tally"

// PersonalDetailsRefreshInterval controls how often personal details, user
// details and betas are re-fetched. There is no push event for personal
// details yet.
const PersonalDetailsRefreshInterval = 30 * time.Minute

// ReachabilityCheckInterval is how often the network listener probes the API.
const ReachabilityCheckInterval = 15 * time.Second

// ReachabilityTimeout caps a single reachability probe.
const ReachabilityTimeout = 5 * time.Second

// APIRequestTimeout caps a single API command.
const APIRequestTimeout = 30 * time.Second

// FallbackLineHeight is used when the input measurer reports no line height.
const FallbackLineHeight = 20

// UnlimitedLines disables the AutoGrowInput line clamp.
const UnlimitedLines = -1

// ComposerMaxLines is the composer clamp on the report screen.
const ComposerMaxLines = 8

// SmallScreenWidth is the terminal width under which the layout collapses
// the sidebar.
const SmallScreenWidth = 100

// DefaultPriorityMode is used when the priorityMode NVP is unset.
const DefaultPriorityMode = "default"

// PriorityModeGSD shows only unread and pinned chats in the sidebar.
const PriorityModeGSD = "gsd"

// NVPPriorityMode is the server-side name of the priority mode preference.
const NVPPriorityMode = "priorityMode"

// Timing event names.
const (
	TimingHomepageInitialRender = "homepage_initial_render"
	TimingHomepageReportsLoaded = "homepage_reports_loaded"
	TimingSwitchReport          = "switch_report"
)

// Push event names on the private user channel.
const (
	PushEventReportComment      = "reportComment"
	PushEventReportTogglePinned = "reportTogglePinned"
)

// PrivateUserChannelPrefix prefixes the per-account realtime channel name.
const PrivateUserChannelPrefix = "private-user-accountID-"

// MinEventBusBufferSize is the minimum buffer per subscriber channel.
const MinEventBusBufferSize = 256

// NetworkEventTimeout is how long a network state change waits for a full
// subscriber buffer before it is dropped.
const NetworkEventTimeout = time.Second

// RealtimePingTimeout is how long the realtime client waits for server
// activity before sending a ping.
const RealtimePingTimeout = 120 * time.Second

// RealtimeMaxReconnectInterval caps the reconnect backoff.
const RealtimeMaxReconnectInterval = 30 * time.Second

// SearchMaxResults limits rows shown in the Search modal.
const SearchMaxResults = 20

// MaxReportActionsShown limits chat history rendered in the report view.
const MaxReportActionsShown = 200

// MinPasswordLength is the shortest accepted new password.
const MinPasswordLength = 8

// DefaultCurrency is used for money requests and bill splits.
const DefaultCurrency = "USD"

// NVPPaypalMeAddress is the name value pair holding the PayPal.me username.
const NVPPaypalMeAddress = "paypalMeAddress"
