package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimit struct {
	RatePerSecond float64
	Burst         int
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per route group and client. Clients are
// identified by authenticated caller first and by address otherwise.
// X-Real-IP and X-Forwarded-For are only consulted when the limiter sits
// behind a trusted proxy.
type RateLimiter struct {
	logger     *slog.Logger
	limits     map[string]RateLimit
	idle       time.Duration
	mu         sync.Mutex
	visitors   map[string]*rateEntry
	clockNow   func() time.Time
	onLimit    func(group string)
	trustProxy bool
}

func NewRateLimiter(limits map[string]RateLimit, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		logger:   logger,
		limits:   limits,
		idle:     5 * time.Minute,
		visitors: make(map[string]*rateEntry),
		clockNow: time.Now,
	}
}

// TrustProxyHeaders makes the limiter key anonymous clients by the address a
// fronting proxy reports instead of the connection's remote address.
func (r *RateLimiter) TrustProxyHeaders(trust bool) {
	r.trustProxy = trust
}

// OnLimit registers a hook invoked whenever a request is throttled.
func (r *RateLimiter) OnLimit(fn func(group string)) {
	r.onLimit = fn
}

func (r *RateLimiter) Middleware(group string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			limit, ok := r.limits[group]
			if !ok {
				next.ServeHTTP(w, req)
				return
			}
			identifier := group + "|" + r.clientID(req)
			if !r.obtainLimiter(identifier, limit).Allow() {
				if r.onLimit != nil {
					r.onLimit(group)
				}
				r.logger.Debug("rate limited", slog.String("group", group))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func (r *RateLimiter) obtainLimiter(id string, cfg RateLimit) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clockNow()
	for key, entry := range r.visitors {
		if now.Sub(entry.lastSeen) > r.idle {
			delete(r.visitors, key)
		}
	}
	if entry, ok := r.visitors[id]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	r.visitors[id] = &rateEntry{limiter: limiter, lastSeen: now}
	return limiter
}

func (r *RateLimiter) clientID(req *http.Request) string {
	if caller, ok := CallerFromContext(req.Context()); ok {
		return "caller:" + caller.String()
	}
	if r.trustProxy {
		if parsed := net.ParseIP(strings.TrimSpace(req.Header.Get("X-Real-IP"))); parsed != nil {
			return parsed.String()
		}
		if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
				return parsed.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
