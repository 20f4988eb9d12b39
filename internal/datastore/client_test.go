package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/datastorer/internal/core"
	"github.com/JonMunkholm/datastorer/internal/logging"
)

// fakeCKAN serves /api/3/action/{action} with scripted responses.
type fakeCKAN struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(action string, n int) (int, string)
}

type recordedRequest struct {
	action        string
	contentType   string
	authorization string
	body          map[string]any
}

func newFakeCKAN(t *testing.T, respond func(action string, n int) (int, string)) (*fakeCKAN, *httptest.Server) {
	t.Helper()
	f := &fakeCKAN{respond: respond}

	r := chi.NewRouter()
	r.Post("/api/3/action/{action}", func(w http.ResponseWriter, req *http.Request) {
		action := chi.URLParam(req, "action")
		var body map[string]any
		_ = json.NewDecoder(req.Body).Decode(&body)

		f.mu.Lock()
		n := 0
		for _, rr := range f.requests {
			if rr.action == action {
				n++
			}
		}
		f.requests = append(f.requests, recordedRequest{
			action:        action,
			contentType:   req.Header.Get("Content-Type"),
			authorization: req.Header.Get("Authorization"),
			body:          body,
		})
		f.mu.Unlock()

		status, resp := f.respond(action, n)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(resp))
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

func okResponse(string, int) (int, string) { return http.StatusOK, `{"success": true}` }

func newTestClient(url string, opts ...Option) *Client {
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return New(url+"/", "secret-key", 5*time.Second, opts...)
}

func TestClient_RequestShape(t *testing.T) {
	fake, srv := newFakeCKAN(t, okResponse)
	c := newTestClient(srv.URL)
	ctx := context.Background()

	fields := []core.Field{{ID: "id", Type: core.FieldNumeric}}
	records := []core.Record{{"id": "1"}, {"id": nil}}

	if err := c.DeleteDatastore(ctx, "res-1"); err != nil {
		t.Fatalf("DeleteDatastore: %v", err)
	}
	if err := c.CreateDatastore(ctx, "res-1", fields, records); err != nil {
		t.Fatalf("CreateDatastore: %v", err)
	}
	if err := c.UpdateResource(ctx, map[string]any{"id": "res-1", "webstore_url": "active"}); err != nil {
		t.Fatalf("UpdateResource: %v", err)
	}

	if len(fake.requests) != 3 {
		t.Fatalf("requests = %d, want 3", len(fake.requests))
	}
	for _, rr := range fake.requests {
		if rr.contentType != "application/json" {
			t.Errorf("%s Content-Type = %q", rr.action, rr.contentType)
		}
		if rr.authorization != "secret-key" {
			t.Errorf("%s Authorization = %q", rr.action, rr.authorization)
		}
	}

	if got := fake.requests[0]; got.action != ActionDelete || got.body["resource_id"] != "res-1" {
		t.Errorf("delete request = %+v", got)
	}

	create := fake.requests[1].body
	if create["resource_id"] != "res-1" {
		t.Errorf("create resource_id = %v", create["resource_id"])
	}
	gotFields, _ := json.Marshal(create["fields"])
	if string(gotFields) != `[{"id":"id","type":"numeric"}]` {
		t.Errorf("create fields = %s", gotFields)
	}
	gotRecords, _ := json.Marshal(create["records"])
	if string(gotRecords) != `[{"id":"1"},{"id":null}]` {
		t.Errorf("create records = %s", gotRecords)
	}

	if fake.requests[2].body["webstore_url"] != "active" {
		t.Errorf("update body = %v", fake.requests[2].body)
	}
}

func TestClient_StatusHandling(t *testing.T) {
	tests := []struct {
		name    string
		action  string
		status  int
		body    string
		wantErr bool
	}{
		{name: "delete 200", action: ActionDelete, status: 200, body: `{"success": true}`},
		{name: "delete 404", action: ActionDelete, status: 404, body: `{"success": false, "error": {"__type": "Not Found Error"}}`},
		{name: "delete 403", action: ActionDelete, status: 403, body: `{"success": false}`, wantErr: true},
		{name: "create 201", action: ActionCreate, status: 201, body: ``},
		{name: "create 409", action: ActionCreate, status: 409, body: `{"error": {"message": "bad"}}`, wantErr: true},
		{name: "create 200 with failure body", action: ActionCreate, status: 200, body: `{"success": false}`, wantErr: true},
		{name: "create 404", action: ActionCreate, status: 404, body: ``, wantErr: true},
		{name: "update 500", action: ActionUpdate, status: 500, body: `oops`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := newFakeCKAN(t, func(string, int) (int, string) { return tt.status, tt.body })
			c := newTestClient(srv.URL)
			ctx := context.Background()

			var err error
			switch tt.action {
			case ActionDelete:
				err = c.DeleteDatastore(ctx, "r")
			case ActionCreate:
				err = c.CreateDatastore(ctx, "r", nil, nil)
			case ActionUpdate:
				err = c.UpdateResource(ctx, map[string]any{"id": "r"})
			}

			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var re core.RemoteError
			if !errors.As(err, &re) {
				t.Fatalf("err = %T, want core.RemoteError", err)
			}
			if re.StatusCode() != tt.status {
				t.Errorf("StatusCode = %d, want %d", re.StatusCode(), tt.status)
			}
		})
	}
}

func TestDiagnose(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "empty body", status: 500, body: "", want: "500 Internal Server Error"},
		{
			name:   "json error object",
			status: 409,
			body:   `{"success": false, "error": {"message": "bad", "__type": "Validation Error"}}`,
			want:   "409 Conflict\n{\n    \"__type\": \"Validation Error\",\n    \"message\": \"bad\"\n}",
		},
		{
			name:   "json without error key",
			status: 400,
			body:   `{"b": 1, "a": 2}`,
			want:   "400 Bad Request\n{\n    \"a\": 2,\n    \"b\": 1\n}",
		},
		{name: "plain text", status: 502, body: "bad gateway", want: "502 Bad Gateway <bad gateway>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Status: fmt.Sprintf("%d %s", tt.status, http.StatusText(tt.status))}
			if got := diagnose(resp, []byte(tt.body)); got != tt.want {
				t.Errorf("diagnose =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestClient_RetriesIdempotentCalls(t *testing.T) {
	fake, srv := newFakeCKAN(t, func(action string, n int) (int, string) {
		if n < 2 {
			return http.StatusServiceUnavailable, `{"success": false}`
		}
		return http.StatusOK, `{"success": true}`
	})
	c := newTestClient(srv.URL, WithRetry(RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}))

	if err := c.DeleteDatastore(context.Background(), "r"); err != nil {
		t.Fatalf("DeleteDatastore: %v", err)
	}
	if len(fake.requests) != 3 {
		t.Errorf("delete attempts = %d, want 3", len(fake.requests))
	}
}

func TestClient_NeverRetriesCreate(t *testing.T) {
	fake, srv := newFakeCKAN(t, func(string, int) (int, string) {
		return http.StatusInternalServerError, ``
	})
	c := newTestClient(srv.URL, WithRetry(RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond}))

	if err := c.CreateDatastore(context.Background(), "r", nil, nil); err == nil {
		t.Fatal("expected error")
	}
	if len(fake.requests) != 1 {
		t.Errorf("create attempts = %d, want 1", len(fake.requests))
	}
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	fake, srv := newFakeCKAN(t, func(string, int) (int, string) {
		return http.StatusForbidden, `{"success": false}`
	})
	c := newTestClient(srv.URL, WithRetry(RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond}))

	if err := c.UpdateResource(context.Background(), map[string]any{"id": "r"}); err == nil {
		t.Fatal("expected error")
	}
	if len(fake.requests) != 1 {
		t.Errorf("update attempts = %d, want 1", len(fake.requests))
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := newTestClient(url).DeleteDatastore(context.Background(), "r")
	if err == nil {
		t.Fatal("expected transport error")
	}
	var re *ResponseError
	if errors.As(err, &re) {
		t.Errorf("transport failure reported as ResponseError: %v", err)
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, w := range want {
		if got := p.delay(i + 1); got != w {
			t.Errorf("delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestRetryPolicy_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := RetryPolicy{MaxAttempts: 10, InitialDelay: time.Hour}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Do(ctx, logging.Discard(), "test", func() error {
		calls++
		return errors.New("transport down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestClient_ShowResource(t *testing.T) {
	fake, srv := newFakeCKAN(t, func(string, int) (int, string) {
		return http.StatusOK, `{"success": true, "result": {"id": "r", "url": "http://example.org/f.csv", "package_id": "pkg"}}`
	})
	c := newTestClient(srv.URL)

	got, err := c.ShowResource(context.Background(), "r")
	if err != nil {
		t.Fatalf("ShowResource: %v", err)
	}
	if got["url"] != "http://example.org/f.csv" || got["package_id"] != "pkg" {
		t.Errorf("resource = %v", got)
	}
	if rr := fake.requests[0]; rr.action != ActionShow || rr.body["id"] != "r" {
		t.Errorf("request = %+v", rr)
	}
}

func TestClient_ShowResourceErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{name: "not found", status: 404, body: `{"success": false, "error": {"__type": "Not Found Error"}}`, wantStatus: 404},
		{name: "no result", status: 200, body: `{"success": true}`, wantStatus: 200},
		{name: "not json", status: 200, body: `<html></html>`, wantStatus: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := newFakeCKAN(t, func(string, int) (int, string) { return tt.status, tt.body })
			c := newTestClient(srv.URL, WithRetry(RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond}))

			_, err := c.ShowResource(context.Background(), "r")
			var re *ResponseError
			if !errors.As(err, &re) {
				t.Fatalf("err = %v, want *ResponseError", err)
			}
			if re.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", re.Status, tt.wantStatus)
			}
		})
	}
}
