package vaultd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"yieldredirect/observability/logging"
)

// Storage backends accepted by StorageConfig.Backend.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for vaultd.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	Environment   string          `yaml:"env"`
	GenesisPath   string          `yaml:"genesis"`
	Log           LogConfig       `yaml:"log"`
	Storage       StorageConfig   `yaml:"storage"`
	Audit         AuditConfig     `yaml:"audit"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimits    RateLimitConfig `yaml:"rate_limits"`
	Webhook       WebhookConfig   `yaml:"webhook"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	CORSOrigins   []string        `yaml:"cors_origins"`
	ReadTimeout   Duration        `yaml:"read_timeout"`
	WriteTimeout  Duration        `yaml:"write_timeout"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// StorageConfig selects the ledger database.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// AuditConfig points at the SQL database holding the receipt history. An
// empty DSN disables the audit log and its endpoints.
type AuditConfig struct {
	DSN string `yaml:"dsn"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Secret    string   `yaml:"secret"`
	SecretEnv string   `yaml:"secret_env"`
	Issuer    string   `yaml:"issuer"`
	Audience  string   `yaml:"audience"`
	ClockSkew Duration `yaml:"clock_skew"`
}

// RateLimitConfig sets the per-client buckets for read and write routes.
// TrustProxyHeaders must only be enabled behind a proxy that overwrites
// X-Real-IP and X-Forwarded-For.
type RateLimitConfig struct {
	ReadPerSecond     float64 `yaml:"read_per_second"`
	ReadBurst         int     `yaml:"read_burst"`
	WritePerSecond    float64 `yaml:"write_per_second"`
	WriteBurst        int     `yaml:"write_burst"`
	TrustProxyHeaders bool    `yaml:"trust_proxy_headers"`
}

// WebhookConfig enables signed notifications for conversions and payouts.
type WebhookConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Secret    string `yaml:"secret"`
	SecretEnv string `yaml:"secret_env"`
}

// TelemetryConfig configures the OTLP exporters.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	Headers     string  `yaml:"headers"`
	Traces      bool    `yaml:"traces"`
	Metrics     bool    `yaml:"metrics"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.GenesisPath == "" {
		cfg.GenesisPath = "services/vaultd/genesis.toml"
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendMemory
	}
	if cfg.Auth.SecretEnv == "" {
		cfg.Auth.SecretEnv = "VAULTD_JWT_SECRET"
	}
	if cfg.Auth.Audience == "" {
		cfg.Auth.Audience = "vaultd"
	}
	if cfg.Webhook.SecretEnv == "" {
		cfg.Webhook.SecretEnv = "VAULTD_WEBHOOK_SECRET"
	}
	if cfg.RateLimits.ReadPerSecond <= 0 {
		cfg.RateLimits.ReadPerSecond = 50
	}
	if cfg.RateLimits.ReadBurst <= 0 {
		cfg.RateLimits.ReadBurst = 100
	}
	if cfg.RateLimits.WritePerSecond <= 0 {
		cfg.RateLimits.WritePerSecond = 5
	}
	if cfg.RateLimits.WriteBurst <= 0 {
		cfg.RateLimits.WriteBurst = 10
	}
	if cfg.ReadTimeout.Duration <= 0 {
		cfg.ReadTimeout.Duration = 15 * time.Second
	}
	if cfg.WriteTimeout.Duration <= 0 {
		cfg.WriteTimeout.Duration = 30 * time.Second
	}
}

// applyEnv lets secrets and the audit DSN come from the environment, which
// is where a .env file loaded at startup lands them.
func applyEnv(cfg *Config) {
	if secret := strings.TrimSpace(os.Getenv(cfg.Auth.SecretEnv)); secret != "" {
		cfg.Auth.Secret = secret
	}
	if secret := strings.TrimSpace(os.Getenv(cfg.Webhook.SecretEnv)); secret != "" {
		cfg.Webhook.Secret = secret
	}
	if dsn := strings.TrimSpace(os.Getenv("VAULTD_AUDIT_DSN")); dsn != "" {
		cfg.Audit.DSN = dsn
	}
	if env := strings.TrimSpace(os.Getenv("VAULTD_ENV")); env != "" {
		cfg.Environment = env
	}
}

func validateConfig(cfg Config) error {
	switch cfg.Storage.Backend {
	case BackendMemory:
	case BackendLevelDB, BackendBolt:
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return fmt.Errorf("storage path must be configured for %s", cfg.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if cfg.Auth.Enabled && len(cfg.Auth.Secret) < 16 {
		return fmt.Errorf("auth secret must be at least 16 bytes")
	}
	if cfg.Webhook.Endpoint != "" && cfg.Webhook.Secret == "" {
		return fmt.Errorf("webhook secret must be configured")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample_ratio must be within [0,1]")
	}
	return nil
}

// LogValue renders the configuration with secrets masked.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("listen", c.ListenAddress),
		slog.String("env", c.Environment),
		slog.String("genesis", c.GenesisPath),
		slog.String("backend", c.Storage.Backend),
		slog.String("storage_path", c.Storage.Path),
		logging.MaskField("audit_dsn", c.Audit.DSN),
		slog.Bool("auth", c.Auth.Enabled),
		logging.MaskField("jwt_secret", c.Auth.Secret),
		slog.String("webhook", c.Webhook.Endpoint),
		logging.MaskField("webhook_secret", c.Webhook.Secret),
		slog.Bool("traces", c.Telemetry.Traces),
		slog.Bool("metrics", c.Telemetry.Metrics),
	)
}
