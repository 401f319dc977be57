// Package api implements the command-style HTTP API client.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrUnauthorized is returned when the auth token is missing or expired.
var ErrUnauthorized = errors.New("unauthorized")

const (
	jsonCodeOK          = 200
	jsonCodeAuthExpired = 407
)

// Error is a non-200 jsonCode returned by the API.
type Error struct {
	Command string
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: api error %d: %s", e.Command, e.Code, e.Message)
}

// Response is a decoded API response.
type Response struct {
	JSONCode int
	Message  string
	fields   map[string]json.RawMessage
}

// Decode unmarshals a top-level response field into dst.
// It reports false when the field is absent.
func (r *Response) Decode(field string, dst any) (bool, error) {
	raw, ok := r.fields[field]
	if !ok || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", field, err)
	}
	return true, nil
}

// Raw returns a top-level field as raw JSON.
func (r *Response) Raw(field string) json.RawMessage {
	return r.fields[field]
}

// Client talks to the command API.
type Client struct {
	root       string
	httpClient *http.Client
	limiter    *rate.Limiter
	requestID  atomic.Int64

	mu        sync.RWMutex
	authToken string
}

// NewClient creates a client for the API rooted at root.
// A non-positive rateLimit disables rate limiting.
func NewClient(root string, rateLimit float64, rateBurst int) *Client {
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	c := &Client{
		root:       root,
		httpClient: &http.Client{},
	}
	if rateLimit > 0 {
		if rateBurst < 1 {
			rateBurst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rateLimit), rateBurst)
	}
	return c
}

// SetAuthToken sets the token sent with every command.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	c.authToken = token
	c.mu.Unlock()
}

// AuthToken returns the current auth token.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

// Root returns the API root URL.
func (c *Client) Root() string {
	return c.root
}

// Command posts a command and returns the decoded response.
func (c *Client) Command(ctx context.Context, command string, params url.Values) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	if token := c.AuthToken(); token != "" {
		form.Set("authToken", token)
	}

	id := c.requestID.Add(1)
	endpoint := c.root + "api?command=" + url.QueryEscape(command)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	log.Debug().Int64("request_id", id).Str("command", command).Msg("API request")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http error %d: %s", httpResp.StatusCode, string(body))
	}

	resp, err := decodeResponse(body)
	if err != nil {
		return nil, err
	}

	switch resp.JSONCode {
	case jsonCodeOK:
		return resp, nil
	case jsonCodeAuthExpired:
		return nil, fmt.Errorf("%s: %w", command, ErrUnauthorized)
	default:
		return nil, &Error{Command: command, Code: resp.JSONCode, Message: resp.Message}
	}
}

// Ping reports whether the API host answers at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.root, nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	resp.Body.Close()
	return nil
}

func decodeResponse(body []byte) (*Response, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	resp := &Response{fields: fields}
	if raw, ok := fields["jsonCode"]; ok {
		if err := json.Unmarshal(raw, &resp.JSONCode); err != nil {
			return nil, fmt.Errorf("unmarshal jsonCode: %w", err)
		}
	}
	if raw, ok := fields["message"]; ok {
		_ = json.Unmarshal(raw, &resp.Message)
	}
	return resp, nil
}
