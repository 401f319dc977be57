package core

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/xonecas/tally/internal/constants"
	"github.com/xonecas/tally/internal/store"
)

// EventBus distributes events to subscribers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan Event
	bufferSize  int
}

// NewEventBus creates a new event bus.
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize < constants.MinEventBusBufferSize {
		bufferSize = constants.MinEventBusBufferSize
	}
	return &EventBus{
		bufferSize: bufferSize,
	}
}

// Subscribe returns a channel that receives events.
// The caller is responsible for reading from the channel to avoid blocking.
func (b *EventBus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel.
func (b *EventBus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub == ch {
			close(sub)
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribers.
// Non-blocking: drops events if a subscriber's buffer is full.
func (b *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop event if buffer is full (non-blocking)
		}
	}
}

// PublishBlocking waits up to timeout for every subscriber to accept the
// event. It reports whether all subscribers received it.
func (b *EventBus) PublishBlocking(event Event, timeout time.Duration) bool {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	delivered := true
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		case <-timer.C:
			delivered = false
		}
		if !delivered {
			break
		}
	}
	return delivered
}

// Close closes all subscriber channels.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}

// ForwardKeys publishes an EventKeyChanged for every change to keys.
// Collection keys forward every member. The returned IDs release the
// subscriptions through Store.Disconnect.
func ForwardKeys(s *store.Store, bus *EventBus, keys ...string) []int {
	ids := make([]int, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, s.Connect(key, func(changed string, value json.RawMessage) {
			bus.Publish(Event{
				Type:     EventKeyChanged,
				Key:      changed,
				ReportID: store.ReportIDFromKey(changed),
				Data:     KeyChangedData{Value: value},
			})
		}))
	}
	return ids
}
