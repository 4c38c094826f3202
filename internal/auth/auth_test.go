package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestParseTokenGlobal(t *testing.T) {
	v, err := NewVerifier("test-secret-value")
	if err != nil {
		t.Fatal(err)
	}
	claims := Claims{
		Type: KindGlobal,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed := signToken(t, "test-secret-value", claims)

	tok, err := v.ParseToken(signed)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if tok.Principal.UserID != "alice" {
		t.Errorf("got subject %q", tok.Principal.UserID)
	}
	if tok.Kind != KindGlobal {
		t.Errorf("got kind %q", tok.Kind)
	}
}

func TestParseTokenExpired(t *testing.T) {
	v, _ := NewVerifier("test-secret-value")
	claims := Claims{
		Type: KindGlobal,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	signed := signToken(t, "test-secret-value", claims)

	_, err := v.ParseToken(signed)
	if err != ErrExpired {
		t.Fatalf("got %v, want ErrExpired", err)
	}
}

func TestResolvePodMismatch(t *testing.T) {
	tok := &Token{Principal: Principal{UserID: "alice"}, Kind: KindPod, Pod: "alice"}
	if _, err := Resolve(tok, "bob"); err == nil {
		t.Fatal("expected mismatch error")
	}
	if _, err := Resolve(tok, "alice"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
}

func TestResolveGlobalOnMainDomainOnly(t *testing.T) {
	tok := &Token{Principal: Principal{UserID: "alice"}, Kind: KindGlobal}
	if _, err := Resolve(tok, "alice"); err == nil {
		t.Fatal("expected mismatch error for global token on pod subdomain")
	}
	if _, err := Resolve(tok, ""); err != nil {
		t.Fatalf("expected ok on main domain, got %v", err)
	}
}

func TestMiddlewarePassesThroughWithoutToken(t *testing.T) {
	v, _ := NewVerifier("test-secret-value")
	called := false
	handler := Middleware(v, func(*http.Request) string { return "" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := FromContext(r.Context()); ok {
			t.Error("expected no principal in context")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if !called {
		t.Fatal("handler not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
}

func TestMiddlewareRejectsMismatchedPodToken(t *testing.T) {
	v, _ := NewVerifier("test-secret-value")
	claims := Claims{
		Pod:  "alice",
		Type: KindPod,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed := signToken(t, "test-secret-value", claims)

	handler := Middleware(v, func(*http.Request) string { return "bob" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d", rec.Code)
	}
}
