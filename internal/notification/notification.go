// Package notification provides cross-platform desktop notifications.
package notification

import (
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/xonecas/tally/internal/constants"
)

// maxBodyLength truncates long comments in the notification body.
const maxBodyLength = 200

type notifyFunc func(title, message string, icon any) error

var (
	mu     sync.RWMutex
	notify notifyFunc = beeep.Notify
)

// SetNotifier replaces the platform notifier. Tests use it to avoid
// sending real notifications.
func SetNotifier(fn func(title, message string, icon any) error) {
	mu.Lock()
	notify = fn
	mu.Unlock()
}

// ResetNotifier restores the platform notifier.
func ResetNotifier() {
	mu.Lock()
	notify = beeep.Notify
	mu.Unlock()
}

// Send sends a desktop notification with the given title and message.
func Send(title, message string) error {
	mu.RLock()
	fn := notify
	mu.RUnlock()

	log.Debug().Str("title", title).Msg("Sending notification")
	// Empty icon lets beeep pick the platform default.
	err := fn(title, message, "")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to send notification")
	}
	return err
}

// Desktop sends report comment notifications, at most a burst at a time.
type Desktop struct {
	enabled bool
	limiter *rate.Limiter
}

// NewDesktop creates a notifier. A disabled notifier drops everything.
func NewDesktop(enabled bool) *Desktop {
	return &Desktop{
		enabled: enabled,
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 3),
	}
}

// Notify shows a comment from sender. Notifications over the rate limit
// are dropped.
func (d *Desktop) Notify(sender, body string) error {
	if !d.enabled {
		return nil
	}
	if !d.limiter.Allow() {
		log.Debug().Str("sender", sender).Msg("Notification rate limited")
		return nil
	}
	return ReportComment(sender, body)
}

// ReportComment sends a notification for a new chat comment.
func ReportComment(sender, body string) error {
	title := constants.AppName
	if sender != "" {
		title = sender + " - " + constants.AppName
	}
	return Send(title, truncate(strings.TrimSpace(body), maxBodyLength))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
