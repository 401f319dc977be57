package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// newTestServer answers each command with the body registered for it.
func newTestServer(t *testing.T, bodies map[string]string, seen func(r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if seen != nil {
			seen(r)
		}
		command := r.URL.Query().Get("command")
		if command == "Get" {
			command = "Get:" + r.PostForm.Get("returnValueList")
		}
		body, ok := bodies[command]
		if !ok {
			w.Write([]byte(`{"jsonCode":404,"message":"unknown command"}`))
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCommandSendsAuthToken(t *testing.T) {
	var token, command string
	server := newTestServer(t, map[string]string{
		"User_GetBetas": `{"jsonCode":200,"betas":["all"]}`,
	}, func(r *http.Request) {
		token = r.PostForm.Get("authToken")
		command = r.URL.Query().Get("command")
	})

	client := NewClient(server.URL, 0, 0)
	client.SetAuthToken("secret")

	betas, err := client.Betas(context.Background())
	if err != nil {
		t.Fatalf("Betas() error: %v", err)
	}
	if diff := cmp.Diff([]string{"all"}, betas); diff != "" {
		t.Errorf("betas mismatch (-want +got):\n%s", diff)
	}
	if token != "secret" {
		t.Errorf("expected authToken=secret, got %q", token)
	}
	if command != "User_GetBetas" {
		t.Errorf("expected command User_GetBetas, got %q", command)
	}
}

func TestCommandErrors(t *testing.T) {
	server := newTestServer(t, map[string]string{
		"User_GetBetas":         `{"jsonCode":407,"message":"expired"}`,
		"GetRequestCountryCode": `{"jsonCode":500,"message":"boom"}`,
	}, nil)

	client := NewClient(server.URL, 0, 0)

	if _, err := client.Betas(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	_, err := client.RequestCountryCode(context.Background())
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Code != 500 || apiErr.Message != "boom" {
		t.Errorf("unexpected error fields: %+v", apiErr)
	}
}

func TestHTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, 0, 0)
	if _, err := client.Betas(context.Background()); err == nil {
		t.Error("expected error for 502")
	}
}

func TestChatListAndReports(t *testing.T) {
	server := newTestServer(t, map[string]string{
		"Get:chatList":    `{"jsonCode":200,"chatList":"1, 2,,3"}`,
		"Get:reportStuff": `{"jsonCode":200,"reports":{"1":{"reportName":"One","participants":["a@x"]},"3":{"reportID":"3","reportName":"Three"}}}`,
	}, nil)

	client := NewClient(server.URL, 0, 0)
	ids, err := client.ChatList(context.Background())
	if err != nil {
		t.Fatalf("ChatList() error: %v", err)
	}
	if diff := cmp.Diff([]string{"1", "2", "3"}, ids); diff != "" {
		t.Errorf("chat list mismatch (-want +got):\n%s", diff)
	}

	reports, err := client.Reports(context.Background(), ids)
	if err != nil {
		t.Fatalf("Reports() error: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].ReportID != "1" || reports[0].ReportName != "One" {
		t.Errorf("unexpected first report: %+v", reports[0])
	}
	if reports[1].ReportID != "3" {
		t.Errorf("unexpected second report: %+v", reports[1])
	}
}

func TestNameValuePair(t *testing.T) {
	server := newTestServer(t, map[string]string{
		"Get:nameValuePairs": `{"jsonCode":200,"nameValuePairs":{"priorityMode":"gsd"}}`,
	}, nil)
	client := NewClient(server.URL, 0, 0)

	raw, ok, err := client.NameValuePair(context.Background(), "priorityMode")
	if err != nil || !ok {
		t.Fatalf("expected value, ok=%v err=%v", ok, err)
	}
	if string(raw) != `"gsd"` {
		t.Errorf("unexpected raw value %s", raw)
	}

	_, ok, err = client.NameValuePair(context.Background(), "other")
	if err != nil || ok {
		t.Errorf("expected unset for other, ok=%v err=%v", ok, err)
	}
}

func TestCreateChatReportNumericID(t *testing.T) {
	server := newTestServer(t, map[string]string{
		"CreateChatReport": `{"jsonCode":200,"reportID":987}`,
	}, nil)
	client := NewClient(server.URL, 0, 0)

	id, err := client.CreateChatReport(context.Background(), []string{"a@x", "b@x"})
	if err != nil {
		t.Fatalf("CreateChatReport() error: %v", err)
	}
	if id != "987" {
		t.Errorf("expected 987, got %s", id)
	}
}

func TestPing(t *testing.T) {
	server := newTestServer(t, nil, nil)
	client := NewClient(server.URL, 0, 0)
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}

	server.Close()
	if err := client.Ping(context.Background()); err == nil {
		t.Error("expected ping error after server close")
	}
}

func TestRateLimiterHonorsContext(t *testing.T) {
	server := newTestServer(t, map[string]string{
		"User_GetBetas": `{"jsonCode":200,"betas":[]}`,
	}, nil)
	client := NewClient(server.URL, 0.001, 1)

	if _, err := client.Betas(context.Background()); err != nil {
		t.Fatalf("first call should use the burst: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Betas(ctx); err == nil {
		t.Error("expected limiter wait to fail on cancelled context")
	}
}
