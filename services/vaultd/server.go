package vaultd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"yieldredirect/core"
	coreerrors "yieldredirect/core/errors"
	"yieldredirect/core/types"
	"yieldredirect/crypto"
	"yieldredirect/gateway/middleware"
	"yieldredirect/observability"
	"yieldredirect/storage/audit"
)

const maxBodyBytes = 1 << 16

// AuditLog answers history queries. storage/audit implements it.
type AuditLog interface {
	Receipts(ctx context.Context, filter audit.Filter) ([]*types.Receipt, error)
	Payouts(ctx context.Context, filter audit.Filter) ([]audit.Payout, error)
}

// ServerConfig captures the dependencies required to construct the server.
type ServerConfig struct {
	Service     *core.Service
	Audit       AuditLog
	Auth        middleware.AuthConfig
	RateLimits  RateLimitConfig
	CORSOrigins []string
	LogRequests bool
	Logger      *slog.Logger
}

// Server exposes the ledger over HTTP.
type Server struct {
	svc     *core.Service
	audit   AuditLog
	logger  *slog.Logger
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability
	cors    []string
	proxied bool
	router  http.Handler
}

// NewServer constructs the router with authentication, rate limiting and
// request metrics.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("vaultd: service required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
		"read":  {RatePerSecond: cfg.RateLimits.ReadPerSecond, Burst: cfg.RateLimits.ReadBurst},
		"write": {RatePerSecond: cfg.RateLimits.WritePerSecond, Burst: cfg.RateLimits.WriteBurst},
	}, logger)
	limiter.TrustProxyHeaders(cfg.RateLimits.TrustProxyHeaders)
	limiter.OnLimit(func(group string) {
		observability.ModuleMetrics().RecordThrottle(group, "rate_limit")
	})
	srv := &Server{
		svc:     cfg.Service,
		audit:   cfg.Audit,
		logger:  logger,
		auth:    middleware.NewAuthenticator(cfg.Auth, logger),
		limiter: limiter,
		obs:     middleware.NewObservability(middleware.ObservabilityConfig{LogRequests: cfg.LogRequests}, observability.ModuleMetrics(), logger),
		cors:    cfg.CORSOrigins,
		proxied: cfg.RateLimits.TrustProxyHeaders,
	}
	srv.router = otelhttp.NewHandler(srv.buildRouter(), "vaultd")
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if s.proxied {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: s.cors}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Group(func(read chi.Router) {
			read.Use(s.auth.Middleware(middleware.ScopeRead))
			read.Use(s.limiter.Middleware("read"))
			read.With(s.obs.Middleware("vault", "vault")).Get("/vault", s.handleVault)
			read.With(s.obs.Middleware("vault", "depositors")).Get("/depositors", s.handleDepositors)
			read.With(s.obs.Middleware("vault", "params")).Get("/params", s.handleParams)
			read.With(s.obs.Middleware("vault", "account")).Get("/accounts/{address}", s.handleAccount)
			read.With(s.obs.Middleware("vault", "balance")).Get("/accounts/{address}/balances/{token}", s.handleBalance)
			read.With(s.obs.Middleware("distributor", "distributor")).Get("/distributor", s.handleDistributor)
			read.With(s.obs.Middleware("audit", "receipts")).Get("/audit/receipts", s.handleReceipts)
			read.With(s.obs.Middleware("audit", "payouts")).Get("/audit/payouts", s.handlePayouts)
		})
		api.Group(func(write chi.Router) {
			write.Use(s.auth.Middleware(middleware.ScopeWrite))
			write.Use(s.limiter.Middleware("write"))
			write.With(s.obs.Middleware("bank", "approve")).Post("/approve", s.handleApprove)
			write.With(s.obs.Middleware("vault", "deposit")).Post("/deposit", s.handleDeposit)
			write.With(s.obs.Middleware("vault", "withdraw")).Post("/withdraw", s.handleWithdraw)
			write.With(s.obs.Middleware("vault", "emergency_withdraw")).Post("/emergency-withdraw", s.handleEmergencyWithdraw)
			write.With(s.obs.Middleware("vault", "transfer_shares")).Post("/transfer-shares", s.handleTransferShares)
			write.With(s.obs.Middleware("distributor", "harvest")).Post("/harvest", s.handleHarvest)
			write.With(s.obs.Middleware("distributor", "claim")).Post("/claim", s.handleClaim)
			write.With(s.obs.Middleware("distributor", "convert")).Post("/convert", s.handleConvert)

			write.Route("/admin", func(admin chi.Router) {
				admin.Use(s.obs.Middleware("governance", "admin"))
				admin.Post("/parameters", s.handleSetParameters)
				admin.Post("/epoch-duration", s.handleSetEpochDuration)
				admin.Post("/migration-delay", s.handleSetMigrationDelay)
				admin.Post("/tvl-cap", s.handleSetTVLCap)
				admin.Post("/keepers", s.handleAddKeeper)
				admin.Delete("/keepers/{address}", s.handleRemoveKeeper)
				admin.Post("/fee-recipient", s.handleSetFeeRecipient)
				admin.Post("/pauses", s.handleSetPauses)
				admin.Post("/strategy/propose", s.handleProposeStrategy)
				admin.Post("/strategy/upgrade", s.handleUpgradeStrategy)
				admin.Post("/strategy/impaired", s.handleSetImpaired)
				admin.Post("/deactivate", s.handleDeactivate)
				admin.Post("/distributor/disable", s.handleEmergencyDisable)
				admin.Post("/distributor/sweep", s.handleEmergencySweep)
				admin.Post("/distributor/target", s.handleMigrateTarget)
				admin.Post("/distributor/permit", s.handlePermitToken)
			})
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	initialized, err := s.svc.Initialized()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !initialized {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "uninitialized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// statusFor maps an error classification onto an HTTP status.
func statusFor(kind coreerrors.Kind) int {
	switch kind {
	case coreerrors.KindAuthorization:
		return http.StatusForbidden
	case coreerrors.KindInsufficient:
		return http.StatusUnprocessableEntity
	case coreerrors.KindInvariant:
		return http.StatusBadRequest
	case coreerrors.KindTemporal, coreerrors.KindNothingToDo:
		return http.StatusConflict
	case coreerrors.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := coreerrors.KindOf(err)
	status := statusFor(kind)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", slog.Any("error", err))
		message = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: message, Kind: kind.String()})
}

func writeBadRequest(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf(format, args...), Kind: "bad_request"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeBody reads a JSON request body into dst. An empty body leaves dst
// untouched.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// caller returns the authenticated account or writes a 401.
func caller(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	addr, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "caller identity required", Kind: "unauthenticated"})
		return crypto.Address{}, false
	}
	return addr, true
}

// parseAmount accepts a base-10 integer that fits in 256 bits.
func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	value, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return value.ToBig(), nil
}
