package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dreschagin/anomaly-engine/pkg/logger"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		forwarded  string
		realIP     string
		want       string
	}{
		{name: "remote addr without port kept as is", remoteAddr: "10.0.0.1", want: "10.0.0.1"},
		{name: "port stripped from remote addr", remoteAddr: "10.0.0.1:5412", want: "10.0.0.1"},
		{name: "x-real-ip wins over remote addr", remoteAddr: "10.0.0.1:5412", realIP: "192.0.2.7", want: "192.0.2.7"},
		{name: "first forwarded hop wins", remoteAddr: "10.0.0.1:5412", forwarded: "203.0.113.5, 198.51.100.1", realIP: "192.0.2.7", want: "203.0.113.5"},
		{name: "forwarded value is trimmed", remoteAddr: "10.0.0.1:5412", forwarded: "  203.0.113.5  ", want: "203.0.113.5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/stats", nil)
			r.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if tc.realIP != "" {
				r.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := clientIP(r); got != tc.want {
				t.Fatalf("clientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRateLimit_RejectsAboveBurst(t *testing.T) {
	limiter := NewIPRateLimiter(1, 2)
	handler := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/stats", nil)
		r.RemoteAddr = "10.0.0.1:5412"
		handler.ServeHTTP(rec, r)
		statuses = append(statuses, rec.Code)
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Fatalf("requests within burst must pass, got %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("request above burst must get 429, got %d", statuses[2])
	}
}

func TestRateLimit_LimitsPerClient(t *testing.T) {
	limiter := NewIPRateLimiter(1, 1)
	handler := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRequest(http.MethodGet, "/stats", nil)
	first.RemoteAddr = "10.0.0.1:5412"
	other := httptest.NewRequest(http.MethodGet, "/stats", nil)
	other.RemoteAddr = "10.0.0.2:5412"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("first client first request = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Fatalf("second client must have its own budget, got %d", rec.Code)
	}
}

func TestIPRateLimiter_EvictsStaleVisitors(t *testing.T) {
	limiter := NewIPRateLimiter(1, 1)
	limiter.allow("10.0.0.1")
	limiter.allow("10.0.0.2")

	if got := limiter.visitorCount(); got != 2 {
		t.Fatalf("expected 2 visitors, got %d", got)
	}

	// cutoff в будущем — все записи считаются устаревшими
	limiter.evictStale(time.Now().Add(time.Minute))
	if got := limiter.visitorCount(); got != 0 {
		t.Fatalf("expected stale visitors evicted, got %d", got)
	}
}

func TestLogger_PreservesResponse(t *testing.T) {
	handler := Logger(logger.New("error"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	if rec.Body.String() != "short and stout" {
		t.Fatalf("body = %q, recorder must pass writes through", rec.Body.String())
	}
}

func TestResponseRecorder_CountsBytesAndStatus(t *testing.T) {
	rec := &responseRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	rec.WriteHeader(http.StatusAccepted)
	_, _ = rec.Write([]byte("ok"))
	_, _ = rec.Write([]byte("!"))

	if rec.status != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.status, http.StatusAccepted)
	}
	if rec.bytes != 3 {
		t.Fatalf("bytes = %d, want 3", rec.bytes)
	}
}
