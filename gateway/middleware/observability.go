package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RequestObserver receives one observation per completed request.
type RequestObserver interface {
	Observe(module, method string, status int, duration time.Duration)
}

type ObservabilityConfig struct {
	LogRequests bool
}

type Observability struct {
	cfg      ObservabilityConfig
	logger   *slog.Logger
	observer RequestObserver
	now      func() time.Time
}

func NewObservability(cfg ObservabilityConfig, observer RequestObserver, logger *slog.Logger) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observability{cfg: cfg, logger: logger, observer: observer, now: time.Now}
}

// Middleware labels the active span and records status and latency under
// module and route.
func (o *Observability) Middleware(module, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := o.now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			elapsed := o.now().Sub(start)

			span := trace.SpanFromContext(r.Context())
			span.SetAttributes(
				attribute.String("vault.module", module),
				attribute.String("http.route", route),
				attribute.Int("http.status_code", recorder.status),
			)
			if o.observer != nil {
				o.observer.Observe(module, route, recorder.status, elapsed)
			}
			if o.cfg.LogRequests {
				o.logger.Info("request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", recorder.status),
					slog.Float64("duration_ms", float64(elapsed.Microseconds())/1000))
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
