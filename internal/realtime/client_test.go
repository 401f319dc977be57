package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakePusher is a minimal protocol server. It confirms subscriptions and,
// when afterSubscribe is set, pushes that frame right after confirming.
type fakePusher struct {
	t      *testing.T
	server *httptest.Server

	mu             sync.Mutex
	connections    int
	authForms      []url.Values
	afterSubscribe *Message
	sendPing       bool
	closeWith      int // close code sent right after the handshake on the first connection

	subscribed chan subscribeData
	pongs      chan struct{}
}

func newFakePusher(t *testing.T) *fakePusher {
	t.Helper()
	f := &fakePusher{
		t:          t,
		subscribed: make(chan subscribeData, 10),
		pongs:      make(chan struct{}, 10),
	}
	upgrader := websocket.Upgrader{}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth" {
			r.ParseForm()
			f.mu.Lock()
			f.authForms = append(f.authForms, r.PostForm)
			f.mu.Unlock()
			w.Write([]byte(`{"auth":"key:signature"}`))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		f.mu.Lock()
		f.connections++
		n := f.connections
		closeWith := f.closeWith
		sendPing := f.sendPing
		f.mu.Unlock()

		conn.WriteJSON(Message{
			Event: eventConnectionEstablished,
			Data:  quoted(`{"socket_id":"123.456","activity_timeout":120}`),
		})

		if n == 1 && closeWith != 0 {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(closeWith, "bye"))
			return
		}
		if sendPing {
			conn.WriteJSON(Message{Event: eventPing, Data: json.RawMessage(`{}`)})
		}

		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Event {
			case eventSubscribe:
				var sd subscribeData
				json.Unmarshal(msg.Data, &sd)
				f.subscribed <- sd
				conn.WriteJSON(Message{Event: eventSubscriptionSucceeded, Channel: sd.Channel, Data: quoted(`{}`)})
				f.mu.Lock()
				next := f.afterSubscribe
				f.mu.Unlock()
				if next != nil {
					conn.WriteJSON(next)
				}
			case eventPong:
				f.pongs <- struct{}{}
			}
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakePusher) options() Options {
	return Options{
		AppKey:       "app-key",
		Cluster:      "mt1",
		Host:         "ws" + strings.TrimPrefix(f.server.URL, "http"),
		AuthEndpoint: f.server.URL + "/auth",
		AuthParams: func() url.Values {
			return url.Values{"authToken": {"tok"}}
		},
	}
}

func (f *fakePusher) connectionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connections
}

func quoted(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func waitInit(t *testing.T, ch <-chan error) {
	t.Helper()
	select {
	case err := <-ch:
		if err != nil {
			t.Fatalf("Init() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Init")
	}
}

func TestSocketURL(t *testing.T) {
	got := Options{AppKey: "abc", Cluster: "eu"}.socketURL()
	if !strings.HasPrefix(got, "wss://ws-eu.pusher.com:443/app/abc?") {
		t.Errorf("unexpected url %s", got)
	}
	if !strings.Contains(got, "protocol=7") {
		t.Errorf("missing protocol version in %s", got)
	}
}

func TestPayloadUnwrapsString(t *testing.T) {
	m := Message{Data: quoted(`{"reportID":1}`)}
	if string(m.Payload()) != `{"reportID":1}` {
		t.Errorf("unexpected payload %s", m.Payload())
	}
	m = Message{Data: json.RawMessage(`{"a":1}`)}
	if string(m.Payload()) != `{"a":1}` {
		t.Errorf("unexpected object payload %s", m.Payload())
	}
}

func TestInitAndPrivateSubscribe(t *testing.T) {
	f := newFakePusher(t)
	f.afterSubscribe = &Message{
		Event:   "reportComment",
		Channel: "private-user-accountID-1",
		Data:    quoted(`{"reportID":7}`),
	}

	c := New()
	defer c.Disconnect()
	waitInit(t, c.Init(context.Background(), f.options()))

	if c.State() != StateConnected {
		t.Fatalf("expected connected, got %s", c.State())
	}
	if c.SocketID() != "123.456" {
		t.Errorf("expected socket id 123.456, got %s", c.SocketID())
	}

	got := make(chan json.RawMessage, 1)
	err := c.Subscribe(context.Background(), "private-user-accountID-1", "reportComment", func(data json.RawMessage) {
		got <- data
	})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	select {
	case sd := <-f.subscribed:
		if sd.Auth != "key:signature" {
			t.Errorf("expected auth signature, got %q", sd.Auth)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for subscribe frame")
	}

	select {
	case data := <-got:
		if string(data) != `{"reportID":7}` {
			t.Errorf("unexpected event data %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	f.mu.Lock()
	form := f.authForms[0]
	f.mu.Unlock()
	if form.Get("socket_id") != "123.456" || form.Get("channel_name") != "private-user-accountID-1" || form.Get("authToken") != "tok" {
		t.Errorf("unexpected auth form %v", form)
	}

	deadline := time.Now().Add(time.Second)
	for !c.IsSubscribed("private-user-accountID-1") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !c.IsSubscribed("private-user-accountID-1") {
		t.Error("expected subscription to be confirmed")
	}
}

func TestSubscribeBeforeConnectIsDeferred(t *testing.T) {
	f := newFakePusher(t)
	c := New()
	defer c.Disconnect()

	if err := c.Subscribe(context.Background(), "public", "evt", func(json.RawMessage) {}); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	waitInit(t, c.Init(context.Background(), f.options()))

	select {
	case sd := <-f.subscribed:
		if sd.Channel != "public" || sd.Auth != "" {
			t.Errorf("unexpected subscribe %+v", sd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected deferred subscription on connect")
	}
}

func TestPingAnsweredWithPong(t *testing.T) {
	f := newFakePusher(t)
	f.sendPing = true

	c := New()
	defer c.Disconnect()
	waitInit(t, c.Init(context.Background(), f.options()))

	select {
	case <-f.pongs:
	case <-time.After(2 * time.Second):
		t.Fatal("expected pong")
	}
}

func TestInitFailsWithoutServer(t *testing.T) {
	c := New()
	opts := Options{AppKey: "k", Host: "ws://127.0.0.1:1"}
	select {
	case err := <-c.Init(context.Background(), opts):
		if err == nil {
			t.Fatal("expected dial error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}
	if c.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %s", c.State())
	}
}

func TestConnectionManagerReconnects(t *testing.T) {
	f := newFakePusher(t)
	f.closeWith = 4200

	c := New()
	defer c.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewConnectionManager(c)
	m.maxInterval = 50 * time.Millisecond
	reconnected := make(chan struct{}, 1)
	m.OnReconnect(func() { reconnected <- struct{}{} })
	m.Init(ctx)

	waitInit(t, c.Init(ctx, f.options()))

	select {
	case <-reconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("expected reconnect")
	}
	if f.connectionCount() < 2 {
		t.Errorf("expected at least 2 connections, got %d", f.connectionCount())
	}
}

func TestConnectionManagerStopsOnPermanentClose(t *testing.T) {
	f := newFakePusher(t)
	f.closeWith = 4001

	c := New()
	defer c.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewConnectionManager(c)
	m.maxInterval = 10 * time.Millisecond
	m.Init(ctx)

	waitInit(t, c.Init(ctx, f.options()))
	time.Sleep(700 * time.Millisecond)

	if n := f.connectionCount(); n != 1 {
		t.Errorf("expected no reconnect after 4001, got %d connections", n)
	}
}

func TestShouldReconnect(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{1006, true},
		{4001, false},
		{4099, false},
		{4100, true},
		{4201, true},
	}
	for _, tt := range tests {
		if got := shouldReconnect(tt.code); got != tt.want {
			t.Errorf("shouldReconnect(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
