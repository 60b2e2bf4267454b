package vaultd

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"yieldredirect/observability/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "env: dev\n"))
	require.NoError(t, err)
	require.Equal(t, ":7090", cfg.ListenAddress)
	require.Equal(t, BackendMemory, cfg.Storage.Backend)
	require.Equal(t, "vaultd", cfg.Auth.Audience)
	require.Equal(t, 15*time.Second, cfg.ReadTimeout.Duration)
	require.Equal(t, 5.0, cfg.RateLimits.WritePerSecond)
	require.False(t, cfg.RateLimits.TrustProxyHeaders)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("VAULTD_JWT_SECRET", "from-env-0123456789")
	t.Setenv("VAULTD_AUDIT_DSN", "file:audit.db")
	cfg, err := LoadConfig(writeConfig(t, `
listen: 127.0.0.1:9000
storage:
  backend: LevelDB
  path: /tmp/vault
auth:
  enabled: true
read_timeout: 2s
`))
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, BackendLevelDB, cfg.Storage.Backend)
	require.Equal(t, "from-env-0123456789", cfg.Auth.Secret)
	require.Equal(t, "file:audit.db", cfg.Audit.DSN)
	require.Equal(t, 2*time.Second, cfg.ReadTimeout.Duration)
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		"unknown field":      "bogus: true\n",
		"missing path":       "storage:\n  backend: bolt\n",
		"unknown backend":    "storage:\n  backend: redis\n",
		"short secret":       "auth:\n  enabled: true\n  secret: short\n",
		"webhook secret":     "webhook:\n  endpoint: http://localhost:9999/hook\n",
		"sample ratio":       "telemetry:\n  sample_ratio: 2\n",
		"malformed duration": "write_timeout: soon\n",
	}
	t.Setenv("VAULTD_JWT_SECRET", "")
	t.Setenv("VAULTD_WEBHOOK_SECRET", "")
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestConfigLogValueMasksSecrets(t *testing.T) {
	cfg := Config{ListenAddress: ":7090"}
	cfg.Auth.Secret = "super-secret-value"
	cfg.Webhook.Secret = "hook-secret"
	cfg.Audit.DSN = "postgres://user:pass@db/audit"

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("config", slog.Any("config", cfg))

	out := buf.String()
	require.NotContains(t, out, "super-secret-value")
	require.NotContains(t, out, "hook-secret")
	require.NotContains(t, out, "user:pass")
	require.Contains(t, out, logging.RedactedValue)
	require.Contains(t, out, ":7090")
}
