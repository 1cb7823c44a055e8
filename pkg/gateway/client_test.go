package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordedRequest struct {
	method string
	path   string
	body   map[string]string
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	response string
	delay    time.Duration
}

func (f *fakeAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		var body map[string]string
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				t.Errorf("request body is not JSON: %v", err)
			}
		}
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{method: r.Method, path: r.URL.Path, body: body})
		status, response, delay := f.status, f.response, f.delay
		f.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}
}

func newTestClient(t *testing.T, api *fakeAPI, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, opts...)
}

func TestSendPostsPayload(t *testing.T) {
	api := &fakeAPI{response: `{"status":"Success","description":"sent"}`}
	c := newTestClient(t, api, WithSender("AquaMind"))

	if err := c.Send(context.Background(), "+49 170 1234567", "Drink up."); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if len(api.requests) != 1 {
		t.Fatalf("expected one request, got %d", len(api.requests))
	}
	got := api.requests[0]
	if got.method != http.MethodPost || got.path != "/sms/send" {
		t.Fatalf("unexpected request %s %s", got.method, got.path)
	}
	if got.body["phoneNumber"] != "491701234567" || got.body["message"] != "Drink up." || got.body["sender"] != "AquaMind" {
		t.Fatalf("unexpected payload %+v", got.body)
	}
}

func TestSendValidatesBeforeCalling(t *testing.T) {
	api := &fakeAPI{response: `{"status":"Success"}`}
	c := newTestClient(t, api)

	if err := c.Send(context.Background(), "+1 555 0100", "hi"); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}
	if err := c.Send(context.Background(), "491701234567", strings.Repeat("a", 161)); !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("expected ErrMessageTooLong, got %v", err)
	}
	if err := c.Send(context.Background(), "491701234567", strings.Repeat("ü", 160)); err != nil {
		t.Fatalf("expected 160 characters to be accepted, got %v", err)
	}
	if len(api.requests) != 1 {
		t.Fatalf("expected only the valid message to reach the API, got %d requests", len(api.requests))
	}
}

func TestSendReportsGatewayErrors(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		response string
	}{
		{name: "status error", response: `{"status":"Error","description":"number not registered"}`},
		{name: "http 500", status: http.StatusInternalServerError, response: "boom"},
		{name: "invalid json", response: "<html>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &fakeAPI{status: tc.status, response: tc.response}
			c := newTestClient(t, api)
			err := c.Send(context.Background(), "491701234567", "hi")
			var gwErr *Error
			if !errors.As(err, &gwErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if gwErr.Op != "send sms" {
				t.Fatalf("unexpected op %q", gwErr.Op)
			}
		})
	}
}

func TestSendTimeoutIsGatewayError(t *testing.T) {
	api := &fakeAPI{response: `{"status":"Success"}`, delay: 200 * time.Millisecond}
	c := newTestClient(t, api, WithTimeout(20*time.Millisecond))

	err := c.Send(context.Background(), "491701234567", "hi")
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected gateway error on timeout, got %v", err)
	}
	if gwErr.Err == nil {
		t.Fatalf("expected transport error inside gateway error, got %+v", gwErr)
	}
}

func TestAddTeam(t *testing.T) {
	api := &fakeAPI{response: `{"status":"Success"}`}
	c := newTestClient(t, api)

	if err := c.AddTeam(context.Background(), "Water Proof"); !errors.Is(err, ErrInvalidTeam) {
		t.Fatalf("expected ErrInvalidTeam, got %v", err)
	}
	if err := c.AddTeam(context.Background(), " WaterProof "); err != nil {
		t.Fatalf("AddTeam returned error: %v", err)
	}
	if api.requests[0].path != "/team/addNewTeam" || api.requests[0].body["teamName"] != "WaterProof" {
		t.Fatalf("unexpected request %+v", api.requests[0])
	}

	api.status = http.StatusInternalServerError
	api.response = "Team WaterProof already exists"
	if err := c.AddTeam(context.Background(), "WaterProof"); !errors.Is(err, ErrTeamExists) {
		t.Fatalf("expected ErrTeamExists, got %v", err)
	}
}

func TestRegisterNumber(t *testing.T) {
	api := &fakeAPI{response: `{"status":"Success"}`}
	c := newTestClient(t, api)

	if err := c.RegisterNumber(context.Background(), "+49 170 1234567", "WaterProof"); err != nil {
		t.Fatalf("RegisterNumber returned error: %v", err)
	}
	got := api.requests[0]
	if got.path != "/team/registerNumber" || got.body["phoneNumber"] != "491701234567" || got.body["teamName"] != "WaterProof" {
		t.Fatalf("unexpected request %+v", got)
	}
	if err := c.RegisterNumber(context.Background(), "12345", "WaterProof"); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}
}
