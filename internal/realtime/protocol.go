// Package realtime implements a Pusher protocol client used to receive push
// events such as new report comments.
package realtime

import (
	"encoding/json"
	"strings"
)

const protocolVersion = 7

// Protocol events.
const (
	eventConnectionEstablished = "pusher:connection_established"
	eventError                 = "pusher:error"
	eventPing                  = "pusher:ping"
	eventPong                  = "pusher:pong"
	eventSubscribe             = "pusher:subscribe"
	eventUnsubscribe           = "pusher:unsubscribe"
	eventSubscriptionSucceeded = "pusher_internal:subscription_succeeded"
	eventSubscriptionError     = "pusher:subscription_error"
)

// Message is one protocol frame.
type Message struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Payload returns the event data. Servers encode data as a JSON string
// holding JSON; that layer is removed.
func (m Message) Payload() json.RawMessage {
	if len(m.Data) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(m.Data, &s); err == nil {
		return json.RawMessage(s)
	}
	return m.Data
}

type connectionEstablished struct {
	SocketID        string `json:"socket_id"`
	ActivityTimeout int    `json:"activity_timeout"`
}

type protocolError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type subscribeData struct {
	Channel string `json:"channel"`
	Auth    string `json:"auth,omitempty"`
}

type authResponse struct {
	Auth string `json:"auth"`
}

// isPrivate reports whether channel requires authorization.
func isPrivate(channel string) bool {
	return strings.HasPrefix(channel, "private-") || strings.HasPrefix(channel, "presence-")
}

// shouldReconnect follows the protocol's close code ranges: 4000-4099 means
// do not reconnect, 4100-4199 and 4200-4299 mean reconnect.
func shouldReconnect(code int) bool {
	return code < 4000 || code >= 4100
}
