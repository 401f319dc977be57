package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/xonecas/tally/internal/constants"
)

// ConnectionManager reconnects the client whenever the connection drops
// for a reason that allows reconnecting.
type ConnectionManager struct {
	client *Client

	mu           sync.Mutex
	started      bool
	reconnecting bool
	ctx          context.Context

	// maxInterval caps the exponential backoff.
	maxInterval time.Duration
	onReconnect func()
}

// NewConnectionManager creates a manager for client.
func NewConnectionManager(client *Client) *ConnectionManager {
	return &ConnectionManager{
		client:      client,
		maxInterval: constants.RealtimeMaxReconnectInterval,
	}
}

// OnReconnect registers fn to run after every successful reconnect.
func (m *ConnectionManager) OnReconnect(fn func()) {
	m.mu.Lock()
	m.onReconnect = fn
	m.mu.Unlock()
}

// Init starts watching the client. It lives for the lifetime of ctx.
func (m *ConnectionManager) Init(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.ctx = ctx
	m.mu.Unlock()

	m.client.OnStateChange(func(state State, err error) {
		if state != StateDisconnected || err == nil {
			return
		}
		var perm *PermanentError
		if errors.As(err, &perm) {
			log.Error().Err(err).Msg("Realtime closed permanently, not reconnecting")
			return
		}
		m.reconnect()
	})
}

func (m *ConnectionManager) reconnect() {
	m.mu.Lock()
	if m.reconnecting || m.ctx == nil || m.ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	m.reconnecting = true
	ctx := m.ctx
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			m.reconnecting = false
			m.mu.Unlock()
		}()

		eb := backoff.NewExponentialBackOff()
		eb.MaxInterval = m.maxInterval

		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			return struct{}{}, m.client.Connect(ctx)
		},
			backoff.WithBackOff(eb),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(func(err error, next time.Duration) {
				log.Warn().Err(err).Dur("next", next).Msg("Realtime reconnect failed")
			}),
		)
		if err != nil {
			log.Error().Err(err).Msg("Realtime reconnect abandoned")
			return
		}

		m.mu.Lock()
		fn := m.onReconnect
		m.mu.Unlock()
		if fn != nil {
			fn()
		}
	}()
}
