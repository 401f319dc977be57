package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/xonecas/tally/internal/constants"
)

// ErrNotConnected is returned when a frame cannot be sent.
var ErrNotConnected = errors.New("realtime: not connected")

// State is the connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

// Options configure the connection.
type Options struct {
	AppKey       string
	Cluster      string
	AuthEndpoint string
	// Host overrides the websocket base URL, e.g. "ws://127.0.0.1:8080".
	Host string
	// AuthParams are added to every private channel authorization request.
	AuthParams func() url.Values
	HTTPClient *http.Client
}

func (o Options) socketURL() string {
	base := o.Host
	if base == "" {
		base = "wss://ws-" + o.Cluster + ".pusher.com:443"
	} else if !strings.Contains(base, "://") {
		base = "wss://" + base
	}
	q := url.Values{}
	q.Set("protocol", strconv.Itoa(protocolVersion))
	q.Set("client", "tally-go")
	q.Set("version", "1.0")
	return strings.TrimRight(base, "/") + "/app/" + url.PathEscape(o.AppKey) + "?" + q.Encode()
}

// Handler receives the payload of a channel event.
type Handler func(data json.RawMessage)

type channel struct {
	name       string
	handlers   map[string][]Handler
	subscribed bool
}

// Client is a Pusher protocol client.
type Client struct {
	mu             sync.Mutex
	opts           Options
	conn           *websocket.Conn
	socketID       string
	state          State
	channels       map[string]*channel
	stateListeners []func(State, error)
	closing        bool

	writeMu sync.Mutex
	dialer  *websocket.Dialer
}

// New creates a disconnected client.
func New() *Client {
	return &Client{
		channels: make(map[string]*channel),
		dialer:   websocket.DefaultDialer,
	}
}

// Init connects with opts. The returned channel yields nil once the server
// confirms the connection, or the connection error.
func (c *Client) Init(ctx context.Context, opts Options) <-chan error {
	c.mu.Lock()
	c.opts = opts
	c.mu.Unlock()

	result := make(chan error, 1)
	go func() {
		result <- c.Connect(ctx)
		close(result)
	}()
	return result
}

// Connect dials the server and blocks until the connection is established.
// Previously subscribed channels are subscribed again.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	opts := c.opts
	c.closing = false
	c.mu.Unlock()

	if opts.AppKey == "" {
		return errors.New("realtime: missing app key")
	}

	c.setState(StateConnecting, nil)

	conn, _, err := c.dialer.DialContext(ctx, opts.socketURL(), nil)
	if err != nil {
		c.setState(StateDisconnected, err)
		return fmt.Errorf("dial: %w", err)
	}

	established, err := readEstablished(ctx, conn)
	if err != nil {
		conn.Close()
		c.setState(StateDisconnected, err)
		return err
	}

	// The state flips under the same lock as the channel snapshot so a
	// concurrent Subscribe either lands in the snapshot or sends itself.
	c.mu.Lock()
	c.conn = conn
	c.socketID = established.SocketID
	c.state = StateConnected
	names := make([]string, 0, len(c.channels))
	for name, ch := range c.channels {
		ch.subscribed = false
		names = append(names, name)
	}
	listeners := append([]func(State, error){}, c.stateListeners...)
	c.mu.Unlock()

	log.Info().Str("socket_id", established.SocketID).Msg("Realtime connected")
	for _, fn := range listeners {
		fn(StateConnected, nil)
	}

	go c.readLoop(conn, established.ActivityTimeout)

	for _, name := range names {
		if err := c.sendSubscribe(ctx, name); err != nil {
			log.Warn().Err(err).Str("channel", name).Msg("Realtime resubscribe failed")
		}
	}
	return nil
}

func readEstablished(ctx context.Context, conn *websocket.Conn) (*connectionEstablished, error) {
	deadline := time.Now().Add(constants.RealtimePingTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		return nil, fmt.Errorf("read handshake: %w", err)
	}

	switch msg.Event {
	case eventConnectionEstablished:
		var est connectionEstablished
		if err := json.Unmarshal(msg.Payload(), &est); err != nil {
			return nil, fmt.Errorf("decode handshake: %w", err)
		}
		return &est, nil
	case eventError:
		var pe protocolError
		_ = json.Unmarshal(msg.Payload(), &pe)
		return nil, fmt.Errorf("realtime error %d: %s", pe.Code, pe.Message)
	}
	return nil, fmt.Errorf("unexpected handshake event %q", msg.Event)
}

// Subscribe binds handler to event on channelName and subscribes to the
// channel if this is its first binding.
func (c *Client) Subscribe(ctx context.Context, channelName, event string, handler Handler) error {
	c.mu.Lock()
	ch, ok := c.channels[channelName]
	if !ok {
		ch = &channel{name: channelName, handlers: make(map[string][]Handler)}
		c.channels[channelName] = ch
	}
	ch.handlers[event] = append(ch.handlers[event], handler)
	connected := c.state == StateConnected
	c.mu.Unlock()

	if ok || !connected {
		// Existing channel, or deferred until Connect resubscribes.
		return nil
	}
	return c.sendSubscribe(ctx, channelName)
}

// Unsubscribe drops every binding on channelName.
func (c *Client) Unsubscribe(channelName string) error {
	c.mu.Lock()
	_, ok := c.channels[channelName]
	delete(c.channels, channelName)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	data, _ := json.Marshal(subscribeData{Channel: channelName})
	return c.send(Message{Event: eventUnsubscribe, Data: data})
}

// IsSubscribed reports whether the server confirmed the channel.
func (c *Client) IsSubscribed(channelName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.channels[channelName]
	return ok && ch.subscribed
}

// OnStateChange registers fn for every state transition.
func (c *Client) OnStateChange(fn func(State, error)) {
	c.mu.Lock()
	c.stateListeners = append(c.stateListeners, fn)
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SocketID returns the server-assigned socket ID.
func (c *Client) SocketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketID
}

// Disconnect closes the connection without triggering reconnects.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closing = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		conn.Close()
	}
	c.setState(StateDisconnected, nil)
}

func (c *Client) sendSubscribe(ctx context.Context, channelName string) error {
	data := subscribeData{Channel: channelName}
	if isPrivate(channelName) {
		auth, err := c.authorize(ctx, channelName)
		if err != nil {
			return fmt.Errorf("authorize %s: %w", channelName, err)
		}
		data.Auth = auth
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.send(Message{Event: eventSubscribe, Data: raw})
}

func (c *Client) authorize(ctx context.Context, channelName string) (string, error) {
	c.mu.Lock()
	opts := c.opts
	socketID := c.socketID
	c.mu.Unlock()

	if opts.AuthEndpoint == "" {
		return "", errors.New("no auth endpoint")
	}

	form := url.Values{}
	if opts.AuthParams != nil {
		for k, v := range opts.AuthParams() {
			form[k] = v
		}
	}
	form.Set("socket_id", socketID)
	form.Set("channel_name", channelName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.AuthEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth http error %d: %s", resp.StatusCode, string(body))
	}

	var ar authResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return "", fmt.Errorf("decode auth: %w", err)
	}
	if ar.Auth == "" {
		return "", errors.New("empty auth signature")
	}
	return ar.Auth, nil
}

func (c *Client) send(msg Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (c *Client) readLoop(conn *websocket.Conn, activityTimeout int) {
	timeout := constants.RealtimePingTimeout
	if activityTimeout > 0 {
		timeout = time.Duration(activityTimeout)*time.Second + 30*time.Second
	}

	for {
		conn.SetReadDeadline(time.Now().Add(timeout))
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			c.handleDrop(conn, err)
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) handleDrop(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// Replaced or closed on purpose.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	closing := c.closing
	c.mu.Unlock()

	conn.Close()
	if closing {
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && !shouldReconnect(closeErr.Code) {
		err = &PermanentError{Code: closeErr.Code, Text: closeErr.Text}
	}
	log.Warn().Err(err).Msg("Realtime connection dropped")
	c.setState(StateDisconnected, err)
}

func (c *Client) dispatch(msg Message) {
	switch msg.Event {
	case eventPing:
		if err := c.send(Message{Event: eventPong, Data: json.RawMessage(`{}`)}); err != nil {
			log.Debug().Err(err).Msg("Realtime pong failed")
		}
		return
	case eventPong:
		return
	case eventSubscriptionSucceeded:
		c.mu.Lock()
		if ch, ok := c.channels[msg.Channel]; ok {
			ch.subscribed = true
		}
		c.mu.Unlock()
		log.Debug().Str("channel", msg.Channel).Msg("Realtime subscribed")
		return
	case eventSubscriptionError, eventError:
		data := msg.Payload()
		if len(data) == 0 {
			data = json.RawMessage(`{}`)
		}
		log.Warn().Str("event", msg.Event).Str("channel", msg.Channel).RawJSON("data", data).Msg("Realtime error event")
		return
	}

	c.mu.Lock()
	var handlers []Handler
	if ch, ok := c.channels[msg.Channel]; ok {
		handlers = append(handlers, ch.handlers[msg.Event]...)
	}
	c.mu.Unlock()

	payload := msg.Payload()
	for _, h := range handlers {
		h(payload)
	}
}

func (c *Client) setState(state State, err error) {
	c.mu.Lock()
	if c.state == state && err == nil {
		c.mu.Unlock()
		return
	}
	c.state = state
	listeners := append([]func(State, error){}, c.stateListeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(state, err)
	}
}

// PermanentError is a server close code that forbids reconnecting.
type PermanentError struct {
	Code int
	Text string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("realtime closed with code %d: %s", e.Code, e.Text)
}
