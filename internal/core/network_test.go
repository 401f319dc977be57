package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakePinger struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (p *fakePinger) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

func (p *fakePinger) set(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func TestNetworkDefaultsOffline(t *testing.T) {
	s := openTestStore(t)
	if !s.GetNetwork().IsOffline {
		t.Error("expected offline before first check")
	}
}

func TestNetworkReconnectCallbacks(t *testing.T) {
	s := openTestStore(t)
	p := &fakePinger{err: errors.New("unreachable")}
	n := NewNetworkConnection(p, s, nil, time.Hour)

	var reconnects atomic.Int32
	remove := n.OnReconnect(func() { reconnects.Add(1) })

	ctx := context.Background()
	n.Check(ctx)
	if !s.GetNetwork().IsOffline {
		t.Error("expected offline after failed ping")
	}

	p.set(nil)
	n.Check(ctx)
	if s.GetNetwork().IsOffline {
		t.Error("expected online after successful ping")
	}
	if reconnects.Load() != 1 {
		t.Errorf("expected 1 reconnect callback, got %d", reconnects.Load())
	}

	// Staying online does not fire again.
	n.Check(ctx)
	if reconnects.Load() != 1 {
		t.Errorf("expected no extra callback, got %d", reconnects.Load())
	}

	remove()
	n.SetOffline(true)
	n.SetOffline(false)
	if reconnects.Load() != 1 {
		t.Errorf("expected removed callback to stay silent, got %d", reconnects.Load())
	}
}

func TestNetworkFirstOnlineIsNotAReconnect(t *testing.T) {
	s := openTestStore(t)
	n := NewNetworkConnection(&fakePinger{}, s, nil, time.Hour)

	fired := false
	n.OnReconnect(func() { fired = true })
	n.Check(context.Background())

	if fired {
		t.Error("expected first check not to count as reconnect")
	}
	if s.GetNetwork().IsOffline {
		t.Error("expected online")
	}
}

func TestNetworkListenStop(t *testing.T) {
	s := openTestStore(t)
	p := &fakePinger{}
	bus := NewEventBus(10)
	ch := bus.Subscribe()
	n := NewNetworkConnection(p, s, bus, 10*time.Millisecond)

	n.Listen(context.Background())
	n.Listen(context.Background())
	if !n.Listening() {
		t.Fatal("expected listening")
	}

	select {
	case e := <-ch:
		if e.Type != EventNetworkChanged {
			t.Errorf("expected network event, got %s", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for first check")
	}

	n.Stop()
	if n.Listening() {
		t.Error("expected stopped")
	}

	p.mu.Lock()
	calls := p.calls
	p.mu.Unlock()
	time.Sleep(40 * time.Millisecond)
	p.mu.Lock()
	after := p.calls
	p.mu.Unlock()
	if after != calls {
		t.Errorf("expected no pings after Stop, got %d more", after-calls)
	}

	// Stop is idempotent.
	n.Stop()
}

func TestNetworkChangeWaitsForFullSubscriber(t *testing.T) {
	s := openTestStore(t)
	bus := NewEventBus(0)
	ch := bus.Subscribe()
	for len(ch) < cap(ch) {
		bus.Publish(Event{Type: EventUnreadChanged})
	}
	n := NewNetworkConnection(&fakePinger{}, s, bus, time.Hour)

	done := make(chan struct{})
	go func() {
		n.SetOffline(true)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("expected SetOffline to wait for buffer space")
	default:
	}

	<-ch
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for SetOffline")
	}

	var last Event
	for len(ch) > 0 {
		last = <-ch
	}
	if last.Type != EventNetworkChanged {
		t.Errorf("expected network event last, got %s", last.Type)
	}
}
