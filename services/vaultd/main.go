package vaultd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"yieldredirect/core"
	"yieldredirect/core/genesis"
	"yieldredirect/core/types"
	"yieldredirect/gateway/middleware"
	"yieldredirect/integrations/webhooks"
	"yieldredirect/observability/logging"
	telemetry "yieldredirect/observability/otel"
	"yieldredirect/storage"
	"yieldredirect/storage/audit"
)

// Version is stamped at build time.
var Version = "dev"

// Main initialises and runs the vault daemon.
func Main() error {
	var cfgPath, envFile string
	flag.StringVar(&cfgPath, "config", "services/vaultd/config.yaml", "path to vaultd configuration")
	flag.StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before the configuration")
	flag.Parse()

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.SetupWithOptions(logging.Options{
		Service:    "vaultd",
		Env:        cfg.Environment,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	logger.Info("starting vaultd", slog.String("version", Version), slog.Any("config", cfg))

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "vaultd",
		Version:     Version,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	g, err := loadGenesis(cfg.GenesisPath)
	if err != nil {
		return err
	}
	db, err := OpenDatabase(cfg.Storage)
	if err != nil {
		return err
	}
	defer db.Close()

	var recorders fanoutRecorder
	var auditLog AuditLog
	if cfg.Audit.DSN != "" {
		store, err := audit.Open(cfg.Audit.DSN)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		recorders = append(recorders, store)
		auditLog = store
	}
	if cfg.Webhook.Endpoint != "" {
		dispatcher, err := webhooks.NewDispatcher(cfg.Webhook.Endpoint, []byte(cfg.Webhook.Secret))
		if err != nil {
			return err
		}
		defer dispatcher.Close()
		recorders = append(recorders, dispatcher)
	}

	registry, err := core.NewStrategyRegistry(g.Strategies)
	if err != nil {
		return fmt.Errorf("build strategies: %w", err)
	}
	svc, err := core.NewService(db, registry,
		core.WithLogger(logger.With(slog.String("component", "ledger"))),
		core.WithMetrics(),
		core.WithRecorder(recorders),
	)
	if err != nil {
		return err
	}
	if err := ensureGenesis(context.Background(), svc, g, logger); err != nil {
		return err
	}

	server, err := NewServer(ServerConfig{
		Service: svc,
		Audit:   auditLog,
		Auth: middleware.AuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.Auth.Secret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew.Duration,
		},
		RateLimits:  cfg.RateLimits,
		CORSOrigins: cfg.CORSOrigins,
		LogRequests: cfg.Environment == "dev",
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("vaultd listening", slog.String("addr", cfg.ListenAddress))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func loadGenesis(path string) (*genesis.Genesis, error) {
	spec, err := genesis.LoadSpec(path)
	if err != nil {
		return nil, fmt.Errorf("load genesis: %w", err)
	}
	g, err := spec.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolve genesis: %w", err)
	}
	return g, nil
}

// ensureGenesis applies g on an empty database and leaves an initialised one
// untouched.
func ensureGenesis(ctx context.Context, svc *core.Service, g *genesis.Genesis, logger *slog.Logger) error {
	initialized, err := svc.Initialized()
	if err != nil {
		return err
	}
	if initialized {
		logger.Info("ledger already initialised")
		return nil
	}
	receipt, err := svc.InitGenesis(ctx, g)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	logger.Info("genesis applied", slog.String("receipt", receipt.ID))
	return nil
}

// OpenDatabase opens the configured ledger backend.
func OpenDatabase(cfg StorageConfig) (storage.Database, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return storage.NewMemDB(), nil
	case BackendLevelDB:
		db, err := storage.NewLevelDB(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open leveldb: %w", err)
		}
		return db, nil
	case BackendBolt:
		db, err := storage.NewBoltDB(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open bolt: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// fanoutRecorder hands each receipt to every sink and joins their errors.
type fanoutRecorder []core.Recorder

func (f fanoutRecorder) Record(ctx context.Context, receipt *types.Receipt) error {
	var errs []error
	for _, recorder := range f {
		if err := recorder.Record(ctx, receipt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
