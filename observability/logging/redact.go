package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// Keys containing any of these fragments are masked by every handler Setup
// builds, whatever the caller passes.
var sensitiveFragments = []string{"secret", "password", "dsn", "authorization", "bearer", "private_key"}

// IsSensitive reports whether values logged under key must be masked.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	for _, fragment := range sensitiveFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

// MaskField returns key with its value redacted when non-empty. Empty values
// pass through so operators can see that a secret is unset.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// redactAttr is chained into ReplaceAttr. Group values are walked so nested
// LogValuer output is covered too.
func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindGroup {
		members := attr.Value.Group()
		out := make([]slog.Attr, 0, len(members))
		for _, member := range members {
			out = append(out, redactAttr(member))
		}
		return slog.Attr{Key: attr.Key, Value: slog.GroupValue(out...)}
	}
	if IsSensitive(attr.Key) && attr.Value.String() != "" && attr.Value.String() != RedactedValue {
		return slog.String(attr.Key, RedactedValue)
	}
	return attr
}
