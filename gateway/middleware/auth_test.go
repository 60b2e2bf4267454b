package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"yieldredirect/crypto"
)

var testSecret = []byte("vault-secret")

func testCaller() crypto.Address {
	return crypto.ModuleAddress("alice")
}

func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(caller.String()))
	})
}

func TestAuthenticatorAcceptsValidToken(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: string(testSecret), Issuer: "vaultctl", Audience: "vaultd"}, nil)
	token, err := MintToken(testSecret, "vaultctl", "vaultd", testCaller(), []string{ScopeRead, ScopeWrite}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/deposit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	auth.Middleware(ScopeWrite)(echoCaller()).ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if res.Body.String() != testCaller().String() {
		t.Fatalf("unexpected caller %q", res.Body.String())
	}
}

func TestAuthenticatorRejects(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: string(testSecret), Audience: "vaultd"}, nil)
	now := time.Now()
	readOnly, _ := MintToken(testSecret, "", "vaultd", testCaller(), []string{ScopeRead}, time.Hour, now)
	expired, _ := MintToken(testSecret, "", "vaultd", testCaller(), []string{ScopeWrite}, time.Minute, now.Add(-time.Hour))
	foreign, _ := MintToken([]byte("other"), "", "vaultd", testCaller(), []string{ScopeWrite}, time.Hour, now)
	wrongAud, _ := MintToken(testSecret, "", "explorer", testCaller(), []string{ScopeWrite}, time.Hour, now)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"scope", "Bearer " + readOnly, http.StatusForbidden},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"signature", "Bearer " + foreign, http.StatusUnauthorized},
		{"audience", "Bearer " + wrongAud, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/deposit", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			res := httptest.NewRecorder()
			auth.Middleware(ScopeWrite)(echoCaller()).ServeHTTP(res, req)
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestAuthenticatorDisabledUsesHeader(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{}, nil)
	handler := auth.Middleware(ScopeWrite)(echoCaller())

	req := httptest.NewRequest(http.MethodGet, "/v1/vault", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected anonymous pass-through, got %d", res.Code)
	}

	req.Header.Set("X-Vault-Caller", testCaller().String())
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Body.String() != testCaller().String() {
		t.Fatalf("unexpected caller %q", res.Body.String())
	}

	req.Header.Set("X-Vault-Caller", "garbage")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad caller, got %d", res.Code)
	}
}
