package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPChecker_StatusOK(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("want GET, got %s", r.Method)
		}
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer s.Close()

	chk := NewHTTPChecker(2 * time.Second)
	out := chk.Check(context.Background(), s.URL)
	if !out.Success || !out.Reachable {
		t.Fatalf("want success, got %+v", out)
	}
	if out.StatusCode != 200 {
		t.Fatalf("want status 200, got %d", out.StatusCode)
	}
	if sc := out.Status(); sc == nil || *sc != 200 {
		t.Fatalf("want Status()=200, got %v", sc)
	}
	if !strings.HasPrefix(out.Message, "200") {
		t.Fatalf("want message to start with 200, got %q", out.Message)
	}
	if out.LatencyMS < 0 {
		t.Fatalf("latency should be >= 0, got %f", out.LatencyMS)
	}
}

func TestHTTPChecker_Status404(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer s.Close()

	out := NewHTTPChecker(2*time.Second).Check(context.Background(), s.URL)
	if out.Success {
		t.Fatalf("want failure, got %+v", out)
	}
	if !out.Reachable || out.StatusCode != 404 {
		t.Fatalf("want reachable 404, got %+v", out)
	}
}

func TestHTTPChecker_RedirectFollowed(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(204)
	}))
	defer final.Close()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusFound)
	}))
	defer s.Close()

	out := NewHTTPChecker(2*time.Second).Check(context.Background(), s.URL)
	if !out.Success || out.StatusCode != 204 {
		t.Fatalf("want 204 success after redirect, got %+v", out)
	}
}

func TestHTTPChecker_TimeoutIsUnreachable(t *testing.T) {
	// Server sleeps longer than client timeout
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(200)
	}))
	defer s.Close()

	chk := NewHTTPChecker(50 * time.Millisecond)
	out := chk.Check(context.Background(), s.URL)
	if out.Success || out.Reachable {
		t.Fatalf("want unreachable due to timeout, got %+v", out)
	}
	if out.Status() != nil {
		t.Fatalf("want nil status on transport error, got %v", *out.Status())
	}
	if out.Message == "" {
		t.Fatalf("want non-empty error message")
	}
}

func TestHTTPChecker_BadURL(t *testing.T) {
	out := NewHTTPChecker(0).Check(context.Background(), "://nope")
	if out.Reachable || out.Success || out.Message == "" {
		t.Fatalf("want unreachable with message, got %+v", out)
	}
}
