package core

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xonecas/tally/internal/constants"
	"github.com/xonecas/tally/internal/store"
)

// LocalTimezone guesses the IANA name of the local timezone.
func LocalTimezone() string {
	if tz := os.Getenv("TZ"); tz != "" {
		return strings.TrimPrefix(tz, ":")
	}
	if target, err := os.Readlink("/etc/localtime"); err == nil {
		if i := strings.Index(target, "zoneinfo/"); i >= 0 {
			return target[i+len("zoneinfo/"):]
		}
		return filepath.Base(target)
	}
	return time.Local.String()
}

// ListenForTimezoneChanges keeps the user's selected timezone in step with
// the local one while their timezone is set to automatic. The returned ID
// releases the subscription through Store.Disconnect.
func (a *Actions) ListenForTimezoneChanges(ctx context.Context, local func() string) int {
	if local == nil {
		local = LocalTimezone
	}
	return a.store.Connect(store.KeyMyPersonalDetails, func(_ string, value json.RawMessage) {
		if value == nil {
			return
		}
		var mine store.PersonalDetails
		if err := json.Unmarshal(value, &mine); err != nil {
			return
		}

		current := local()
		tz := mine.Timezone
		if !tz.Automatic || tz.Selected == current {
			return
		}
		tz.Selected = current
		log.Info().Str("timezone", current).Msg("Updating automatic timezone")

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			reqCtx, cancel := context.WithTimeout(ctx, constants.APIRequestTimeout)
			defer cancel()
			_ = a.SetPersonalDetails(reqCtx, map[string]any{"timezone": tz})
		}()
	})
}
