package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPChecker_WakesHostWithUserAgent(t *testing.T) {
	var ua string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(strings.Repeat("x", 1<<20)))
	}))
	defer s.Close()

	out := NewHTTPChecker(2*time.Second).Check(context.Background(), s.URL)
	if !out.Success || out.StatusCode != http.StatusOK {
		t.Fatalf("want 200 success, got %+v", out)
	}
	if ua != userAgent {
		t.Fatalf("user agent=%q", ua)
	}
	if out.Name != checkHTTP || out.LatencyMS < 0 {
		t.Fatalf("result=%+v", out)
	}
}

func TestHTTPChecker_StatusClasses(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{http.StatusNoContent, true},
		{http.StatusNotModified, true},
		{http.StatusNotFound, false},
		{http.StatusServiceUnavailable, false},
	}
	for _, c := range cases {
		s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.code)
		}))
		out := NewHTTPChecker(2*time.Second).Check(context.Background(), s.URL)
		s.Close()
		if out.Success != c.want || out.StatusCode != c.code {
			t.Fatalf("code %d: got %+v", c.code, out)
		}
		if !strings.Contains(out.Message, http.StatusText(c.code)) {
			t.Fatalf("code %d: message %q", c.code, out.Message)
		}
	}
}

func TestHTTPChecker_SleepingHostTimesOut(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer s.Close()

	out := NewHTTPChecker(50*time.Millisecond).Check(context.Background(), s.URL)
	if out.Success || out.StatusCode != 0 || out.Message == "" {
		t.Fatalf("want transport failure, got %+v", out)
	}
}

func TestHTTPChecker_BadURL(t *testing.T) {
	out := NewHTTPChecker(0).Check(context.Background(), "://nope")
	if out.Success || out.Message == "" {
		t.Fatalf("got %+v", out)
	}
}

func TestHTTPChecker_CancelledContext(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if out := NewHTTPChecker(time.Second).Check(ctx, s.URL); out.Success {
		t.Fatalf("cancelled ctx should fail, got %+v", out)
	}
}
