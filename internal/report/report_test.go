package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// sentryServer collects the bodies of envelopes posted to it.
type sentryServer struct {
	mu     sync.Mutex
	bodies []string
}

func (s *sentryServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.bodies = append(s.bodies, string(b))
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *sentryServer) all() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.bodies, "\n")
}

// TestReport exercises the global client end to end, so it does not run in
// parallel.
func TestReport(t *testing.T) {
	Capture(errors.New("before init"), nil) // no-op while disabled
	if Enabled() {
		t.Fatal("enabled before Init")
	}
	if err := Init("", "test", ""); err != nil || Enabled() {
		t.Fatalf("Init without DSN = %v, enabled %v", err, Enabled())
	}

	srv := &sentryServer{}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	dsn := fmt.Sprintf("http://public@%s/1", strings.TrimPrefix(ts.URL, "http://"))
	if err := Init(dsn, "test", "v0"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { enabled.Store(false) })

	Capture(errors.New("tts provider unreachable"), map[string]string{"stage": "speak"})
	Capture(context.Canceled, nil)
	Flush()

	body := srv.all()
	if !strings.Contains(body, "tts provider unreachable") {
		t.Errorf("captured event not delivered; got %q", body)
	}
	if !strings.Contains(body, `"stage":"speak"`) {
		t.Errorf("tag missing from event")
	}
	if strings.Contains(body, "context canceled") {
		t.Errorf("cancellation was reported")
	}

	h := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestInit_BadDSN(t *testing.T) {
	if err := Init("::not a dsn", "test", ""); err == nil {
		t.Error("expected error for malformed DSN")
	}
}
