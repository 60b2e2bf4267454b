package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"yieldredirect/crypto"
)

func sampleAddress(t *testing.T) crypto.Address {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key.PubKey().Address()
}

func TestTokenCommandMintsVerifiableToken(t *testing.T) {
	t.Setenv(secretEnv, "cli-secret-0123456789")
	addr := sampleAddress(t)

	var out bytes.Buffer
	err := run(context.Background(), []string{"token", "--subject", addr.String(), "--scopes", "vault:read"}, &out)
	require.NoError(t, err)

	parsed, err := jwt.Parse(strings.TrimSpace(out.String()), func(*jwt.Token) (any, error) {
		return []byte("cli-secret-0123456789"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	require.Equal(t, addr.String(), claims["sub"])
	require.Equal(t, "vault:read", claims["scope"])
}

func TestTokenCommandRequiresSubject(t *testing.T) {
	t.Setenv(secretEnv, "cli-secret-0123456789")
	err := run(context.Background(), []string{"token"}, &bytes.Buffer{})
	require.ErrorContains(t, err, "--subject")
}

func TestKeygenPrintsAddress(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"keygen"}, &out))
	require.Contains(t, out.String(), "address: "+string(crypto.AccountPrefix))
	require.Contains(t, out.String(), "private key: ")
}

func TestUnknownCommand(t *testing.T) {
	require.Error(t, run(context.Background(), []string{"explode"}, &bytes.Buffer{}))
	require.Error(t, run(context.Background(), nil, &bytes.Buffer{}))
}

func TestDepositSendsAmountAndToken(t *testing.T) {
	var (
		gotAuth string
		gotPath string
		gotBody map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"result":{"principal":"250"}}`))
	}))
	defer srv.Close()
	t.Setenv(tokenEnv, "abc.def.ghi")

	var out bytes.Buffer
	err := run(context.Background(), []string{"deposit", "--endpoint", srv.URL, "--amount", "250"}, &out)
	require.NoError(t, err)
	require.Equal(t, "Bearer abc.def.ghi", gotAuth)
	require.Equal(t, "/v1/deposit", gotPath)
	require.Equal(t, "250", gotBody["amount"])
	require.Contains(t, out.String(), `"principal":"250"`)
}

func TestServerErrorsSurface(t *testing.T) {
	var gotCaller string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCaller = r.Header.Get("X-Vault-Caller")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"ledger: caller not authorized","kind":"authorization"}`))
	}))
	defer srv.Close()

	err := run(context.Background(), []string{"convert", "--endpoint", srv.URL, "--caller", "yr1caller"}, &bytes.Buffer{})
	require.ErrorContains(t, err, "caller not authorized (authorization)")
	require.Equal(t, "yr1caller", gotCaller)
}

func TestAmountRequired(t *testing.T) {
	require.ErrorContains(t, run(context.Background(), []string{"withdraw"}, &bytes.Buffer{}), "--amount")
}
