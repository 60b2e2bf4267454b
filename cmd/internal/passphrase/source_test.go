package passphrase

import (
	"errors"
	"testing"
)

func TestSourcePrefersEnvironment(t *testing.T) {
	t.Setenv("VAULTCTL_TEST_SECRET", "from-env")
	src := NewSource("VAULTCTL_TEST_SECRET", "")
	src.isTerminal = func(int) bool {
		t.Fatalf("terminal consulted despite env value")
		return false
	}
	got, err := src.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "from-env" {
		t.Fatalf("unexpected secret %q", got)
	}
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	t.Setenv("VAULTCTL_TEST_SECRET", "   ")
	if _, err := NewSource("VAULTCTL_TEST_SECRET", "").Get(); err == nil {
		t.Fatalf("expected error for blank env value")
	}
}

func TestSourcePromptsOnce(t *testing.T) {
	calls := 0
	src := NewSource("", "Signing secret")
	src.isTerminal = func(int) bool { return true }
	src.readPassword = func(int) ([]byte, error) {
		calls++
		return []byte("typed-secret"), nil
	}
	for i := 0; i < 2; i++ {
		got, err := src.Get()
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got != "typed-secret" {
			t.Fatalf("unexpected secret %q", got)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single prompt, got %d", calls)
	}
}

func TestSourceWithoutTerminal(t *testing.T) {
	src := NewSource("", "")
	src.isTerminal = func(int) bool { return false }
	if _, err := src.Get(); err == nil {
		t.Fatalf("expected error without terminal")
	}

	failing := NewSource("", "")
	failing.isTerminal = func(int) bool { return true }
	failing.readPassword = func(int) ([]byte, error) { return nil, errors.New("tty closed") }
	if _, err := failing.Get(); err == nil {
		t.Fatalf("expected read error")
	}
}
