package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"yieldredirect/crypto"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"write": {RatePerSecond: 1, Burst: 1},
	}, nil)
	throttled := 0
	limiter.OnLimit(func(string) { throttled++ })
	handler := limiter.Middleware("write")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/deposit", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
	if throttled != 1 {
		t.Fatalf("expected throttle hook once, got %d", throttled)
	}
}

func TestRateLimiterSeparatesGroups(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"read":  {RatePerSecond: 1, Burst: 1},
		"write": {RatePerSecond: 1, Burst: 1},
	}, nil)
	read := limiter.Middleware("read")(okHandler())
	write := limiter.Middleware("write")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/vault", nil)
	res := httptest.NewRecorder()
	read.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected read to succeed, got %d", res.Code)
	}
	res = httptest.NewRecorder()
	write.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected write bucket to be independent, got %d", res.Code)
	}
}

func TestRateLimiterKeysByCaller(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"write": {RatePerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("write")(okHandler())

	for _, name := range []string{"alice", "bob"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/deposit", nil)
		ctx := context.WithValue(req.Context(), contextKeyCaller, crypto.ModuleAddress(name))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req.WithContext(ctx))
		if res.Code != http.StatusOK {
			t.Fatalf("expected %s to have a fresh bucket, got %d", name, res.Code)
		}
	}
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"write": {RatePerSecond: 0.001, Burst: 1},
	}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware("write")(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/v1/deposit", nil)

	handler.ServeHTTP(httptest.NewRecorder(), req)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected limit, got %d", res.Code)
	}

	now = now.Add(10 * time.Minute)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected idle visitor to be evicted, got %d", res.Code)
	}
}

func TestRateLimiterIgnoresForwardingHeadersByDefault(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"write": {RatePerSecond: 0.001, Burst: 1},
	}, nil)
	handler := limiter.Middleware("write")(okHandler())

	for i, spoofed := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/deposit", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		req.Header.Set("X-Real-IP", spoofed)
		req.Header.Set("X-Forwarded-For", spoofed)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		want := http.StatusTooManyRequests
		if i == 0 {
			want = http.StatusOK
		}
		if res.Code != want {
			t.Fatalf("request %d with forged address %s: expected %d, got %d", i, spoofed, want, res.Code)
		}
	}
}

func TestRateLimiterHonoursTrustedProxyHeaders(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"write": {RatePerSecond: 0.001, Burst: 1},
	}, nil)
	limiter.TrustProxyHeaders(true)
	handler := limiter.Middleware("write")(okHandler())

	send := func(realIP, forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/deposit", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		if realIP != "" {
			req.Header.Set("X-Real-IP", realIP)
		}
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		return res.Code
	}
	if code := send("198.51.100.1", ""); code != http.StatusOK {
		t.Fatalf("expected first client to pass, got %d", code)
	}
	if code := send("", "198.51.100.2, 10.0.0.1"); code != http.StatusOK {
		t.Fatalf("expected forwarded client to get its own bucket, got %d", code)
	}
	if code := send("198.51.100.1", ""); code != http.StatusTooManyRequests {
		t.Fatalf("expected repeat client to be limited, got %d", code)
	}
	if code := send("not-an-ip", ""); code != http.StatusOK {
		t.Fatalf("expected malformed header to fall back to the proxy address, got %d", code)
	}
}
