package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xonecas/tally/internal/constants"
	"github.com/xonecas/tally/internal/store"
)

// Pinger probes server reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NetworkConnection polls reachability, mirrors it into the network key and
// runs reconnect callbacks whenever the client comes back online.
type NetworkConnection struct {
	pinger   Pinger
	store    *store.Store
	bus      *EventBus
	interval time.Duration

	mu        sync.Mutex
	callbacks map[int]func()
	nextID    int
	cancel    context.CancelFunc
	done      chan struct{}
	known     bool
	offline   bool
}

// NewNetworkConnection creates a stopped listener. bus may be nil.
func NewNetworkConnection(p Pinger, s *store.Store, bus *EventBus, interval time.Duration) *NetworkConnection {
	if interval <= 0 {
		interval = constants.ReachabilityCheckInterval
	}
	return &NetworkConnection{
		pinger:    p,
		store:     s,
		bus:       bus,
		interval:  interval,
		callbacks: make(map[int]func()),
	}
}

// OnReconnect registers fn and returns a function that removes it.
func (n *NetworkConnection) OnReconnect(fn func()) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.callbacks[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.callbacks, id)
		n.mu.Unlock()
	}
}

// Listen starts polling. It checks immediately, then every interval.
// Calling Listen while listening is a no-op.
func (n *NetworkConnection) Listen(ctx context.Context) {
	n.mu.Lock()
	if n.cancel != nil {
		n.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	done := make(chan struct{})
	n.done = done
	n.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(n.interval)
		defer ticker.Stop()

		n.Check(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n.Check(ctx)
			}
		}
	}()
}

// Stop ends polling and waits for the poll loop to exit.
func (n *NetworkConnection) Stop() {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel, n.done = nil, nil
	n.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Listening reports whether the poll loop is running.
func (n *NetworkConnection) Listening() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cancel != nil
}

// Check probes once and applies the result.
func (n *NetworkConnection) Check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, constants.ReachabilityTimeout)
	err := n.pinger.Ping(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return
	}
	n.SetOffline(err != nil)
}

// SetOffline records reachability. Going from offline to online runs every
// reconnect callback.
func (n *NetworkConnection) SetOffline(offline bool) {
	n.mu.Lock()
	changed := !n.known || n.offline != offline
	reconnected := n.known && n.offline && !offline
	n.known = true
	n.offline = offline
	var cbs []func()
	if reconnected {
		cbs = make([]func(), 0, len(n.callbacks))
		for id := 1; id <= n.nextID; id++ {
			if fn, ok := n.callbacks[id]; ok {
				cbs = append(cbs, fn)
			}
		}
	}
	n.mu.Unlock()

	if !changed {
		return
	}

	if err := n.store.Set(store.KeyNetwork, store.Network{IsOffline: offline}); err != nil {
		log.Error().Err(err).Msg("Failed to store network state")
	}
	if n.bus != nil {
		// The offline banner depends on every transition arriving.
		if !n.bus.PublishBlocking(Event{Type: EventNetworkChanged, Data: NetworkData{IsOffline: offline}}, constants.NetworkEventTimeout) {
			log.Warn().Bool("offline", offline).Msg("Network event not delivered to every subscriber")
		}
	}
	log.Info().Bool("offline", offline).Msg("Network state changed")

	for _, fn := range cbs {
		fn()
	}
}
