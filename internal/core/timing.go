package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Timing measures named intervals and logs their duration.
type Timing struct {
	mu     sync.Mutex
	starts map[string]time.Time
	now    func() time.Time
}

// NewTiming creates an empty timer set.
func NewTiming() *Timing {
	return &Timing{starts: make(map[string]time.Time), now: time.Now}
}

// Start records the start of name, restarting it if already running.
func (t *Timing) Start(name string) {
	t.mu.Lock()
	t.starts[name] = t.now()
	t.mu.Unlock()
}

// End stops name and returns its duration. It reports false if name was
// never started or already ended.
func (t *Timing) End(name string) (time.Duration, bool) {
	t.mu.Lock()
	start, ok := t.starts[name]
	delete(t.starts, name)
	t.mu.Unlock()
	if !ok {
		return 0, false
	}

	d := t.now().Sub(start)
	log.Info().Str("timing", name).Dur("duration", d).Msg("Timing")
	return d, true
}
