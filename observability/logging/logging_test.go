package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupEmitsJSONOutsideDev(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := SetupWithOptions(Options{Service: "vaultd", Env: "prod", Output: buf})
	logger.Info("operation committed", slog.String("operation", "deposit"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if entry["message"] != "operation committed" || entry["severity"] != "INFO" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["service"] != "vaultd" || entry["env"] != "prod" {
		t.Fatalf("missing service attributes: %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Fatalf("missing timestamp: %v", entry)
	}
}

func TestSetupUsesTextInDev(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := SetupWithOptions(Options{Service: "vaultd", Env: "dev", Level: "debug", Output: buf})
	logger.Debug("converted", slog.String("token", "USDC"))
	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Fatalf("expected text output, got %s", out)
	}
	if !strings.Contains(out, "converted") || !strings.Contains(out, "token=USDC") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestSetupWritesRotatedFile(t *testing.T) {
	buf := &bytes.Buffer{}
	path := filepath.Join(t.TempDir(), "vaultd.log")
	logger := SetupWithOptions(Options{Service: "vaultd", Env: "prod", Output: buf, File: path, Level: "warn"})
	logger.Info("dropped")
	logger.Warn("kept")
	if strings.Contains(buf.String(), "dropped") {
		t.Fatalf("info line should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("expected warn line on stdout copy")
	}
}

func TestMaskFieldRedactsSecrets(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{}))
	logger.Info("config", MaskField("jwt_secret", "hunter2"), slog.String("operation", "deposit"))

	if bytes.Contains(buf.Bytes(), []byte("hunter2")) {
		t.Fatalf("log output leaked secret: %s", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["jwt_secret"] != RedactedValue || entry["operation"] != "deposit" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if !IsSensitive("Webhook_Secret") || IsSensitive("operation") {
		t.Fatalf("unexpected sensitivity classification")
	}
}

func TestSetupRedactsSensitiveKeys(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := SetupWithOptions(Options{Service: "vaultd", Env: "prod", Output: buf})
	logger.Info("webhook configured", slog.String("webhook_secret", "s3cr3t"), slog.String("endpoint", "http://hooks"))
	if strings.Contains(buf.String(), "s3cr3t") {
		t.Fatalf("log output leaked secret: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "http://hooks") {
		t.Fatalf("non-sensitive attribute dropped: %s", buf.String())
	}
}
