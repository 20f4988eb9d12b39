package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/datastorer/internal/core"
	"github.com/JonMunkholm/datastorer/internal/history"
	"github.com/JonMunkholm/datastorer/internal/logging"
)

// fakeStore is an in-memory core.Store.
type fakeStore struct {
	mu        sync.Mutex
	calls     []string
	records   int
	createErr error
}

func (s *fakeStore) DeleteDatastore(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "delete:"+id)
	return nil
}

func (s *fakeStore) CreateDatastore(_ context.Context, id string, _ []core.Field, records []core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf("create:%s:%d", id, len(records)))
	if s.createErr != nil {
		return s.createErr
	}
	s.records += len(records)
	return nil
}

func (s *fakeStore) ShowResource(_ context.Context, id string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "show:"+id)
	return map[string]any{"id": id, "url": "http://example.org/" + id}, nil
}

func (s *fakeStore) UpdateResource(_ context.Context, res map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf("update:%v", res["id"]))
	return nil
}

type testEnv struct {
	server  *Server
	store   *fakeStore
	history *history.Memory
	limiter *core.IngestLimiter
}

func newTestEnv(t *testing.T, store *fakeStore) *testEnv {
	t.Helper()
	logger := logging.Discard()
	pipeline := core.NewPipeline(store, core.Options{}, nil, logger)
	limiter := core.NewIngestLimiter(1, 20*time.Millisecond)
	mem := history.NewMemory(10)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "datastorer_runs_total 0\n")
	})

	srv := NewServer(pipeline, limiter, mem, nil, logger, Options{Metrics: metrics})
	return &testEnv{server: srv, store: store, history: mem, limiter: limiter}
}

func uploadRequest(t *testing.T, resourceID, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(fw, content)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/resources/"+resourceID+"/ingest", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(env *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func TestIngest_Success(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})

	rec := serve(env, uploadRequest(t, "res-1", "spending.csv", "id,amount\n1,2.50\n2,3.75\n", map[string]string{"name": "Spending"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var result core.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Records != 2 || result.ResourceID != "res-1" {
		t.Errorf("result = %+v", result)
	}
	if got := strings.Join(env.store.calls, ","); got != "delete:res-1,create:res-1:2,show:res-1,update:res-1" {
		t.Errorf("store calls = %s", got)
	}

	runs, _ := env.history.Recent(context.Background(), 10)
	if len(runs) != 1 || runs[0].Status != history.StatusSucceeded || runs[0].ResourceName != "Spending" {
		t.Errorf("history = %+v", runs)
	}
	if env.limiter.ActiveCount() != 0 {
		t.Errorf("limiter slot not released")
	}
}

func TestIngest_Errors(t *testing.T) {
	tests := []struct {
		name       string
		store      *fakeStore
		filename   string
		content    string
		fields     map[string]string
		wantStatus int
		wantCode   string
		wantRun    history.Status
	}{
		{
			name:       "format not accepted",
			store:      &fakeStore{},
			filename:   "report.pdf",
			content:    "%PDF-1.4",
			wantStatus: http.StatusUnsupportedMediaType,
			wantCode:   "DEC003",
		},
		{
			name:       "missing file",
			store:      &fakeStore{},
			wantStatus: http.StatusBadRequest,
			wantCode:   "REQ000",
		},
		{
			name:       "empty file",
			store:      &fakeStore{},
			filename:   "empty.csv",
			content:    "  \n",
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "DEC004",
			wantRun:    history.StatusFailed,
		},
		{
			name:       "datastore unreachable",
			store:      &fakeStore{createErr: errors.New("dial tcp: connection refused")},
			filename:   "data.csv",
			content:    "a\n1\n",
			wantStatus: http.StatusBadGateway,
			wantCode:   "UPL002",
			wantRun:    history.StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.store)

			rec := serve(env, uploadRequest(t, "r", tt.filename, tt.content, tt.fields))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
			if resp := decodeError(t, rec); resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}

			runs, _ := env.history.Recent(context.Background(), 10)
			if tt.wantRun == "" {
				if len(runs) != 0 {
					t.Errorf("unexpected history entry: %+v", runs)
				}
				return
			}
			if len(runs) != 1 || runs[0].Status != tt.wantRun || runs[0].ErrorCode != tt.wantCode {
				t.Errorf("history = %+v", runs)
			}
		})
	}
}

func TestIngest_Busy(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})
	if !env.limiter.TryAcquire() {
		t.Fatal("could not take the only slot")
	}
	defer env.limiter.Release()

	rec := serve(env, uploadRequest(t, "r", "data.csv", "a\n1\n", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != "LIM001" {
		t.Errorf("code = %q, want LIM001", resp.Code)
	}
	if len(env.store.calls) != 0 {
		t.Errorf("store was called: %v", env.store.calls)
	}
}

func TestRuns_JSONAndPage(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})
	serve(env, uploadRequest(t, "r1", "a.csv", "a\n1\n", map[string]string{"name": "<b>budget</b>"}))

	rec := serve(env, httptest.NewRequest(http.MethodGet, "/api/runs?limit=5", nil))
	var body struct {
		Runs []history.Run `json:"runs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(body.Runs) != 1 || body.Runs[0].ResourceID != "r1" {
		t.Errorf("runs = %+v", body.Runs)
	}

	rec = serve(env, httptest.NewRequest(http.MethodGet, "/runs", nil))
	page := rec.Body.String()
	if !strings.Contains(page, "&lt;b&gt;budget&lt;/b&gt;") {
		t.Errorf("resource name not escaped in page:\n%s", page)
	}
	if strings.Contains(page, "<b>budget</b>") {
		t.Error("raw HTML from resource name leaked into page")
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})

	rec := serve(env, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("healthz = %d %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	rec = serve(env, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "datastorer_runs_total") {
		t.Errorf("metrics = %s", rec.Body)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrTooManyIngests, http.StatusServiceUnavailable},
		{&core.DecodeError{Err: fmt.Errorf("%w: big", core.ErrContentTooLarge)}, http.StatusRequestEntityTooLarge},
		{&core.DecodeError{Err: core.ErrBinaryContent}, http.StatusUnsupportedMediaType},
		{&core.DecodeError{Err: core.ErrNoHeader}, http.StatusUnprocessableEntity},
		{&core.InferenceError{Column: "c"}, http.StatusUnprocessableEntity},
		{&core.RemoteDeleteError{Status: 500}, http.StatusBadGateway},
		{&core.FinalizeError{}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
