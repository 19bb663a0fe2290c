package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	m := NewJWTManager(DefaultJWTConfig("test-secret"))

	token, err := m.GenerateToken("claims-desk")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.ClientName != "claims-desk" {
		t.Errorf("client name = %q, want %q", claims.ClientName, "claims-desk")
	}
	if claims.Issuer != "policybot" {
		t.Errorf("issuer = %q", claims.Issuer)
	}
}

func TestJWTManager_WrongSecret(t *testing.T) {
	m := NewJWTManager(DefaultJWTConfig("secret-a"))
	other := NewJWTManager(DefaultJWTConfig("secret-b"))

	token, err := m.GenerateToken("client")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := other.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("got %v, want ErrInvalidToken", err)
	}
}

func TestJWTManager_ExpiredToken(t *testing.T) {
	cfg := DefaultJWTConfig("test-secret")
	cfg.Expiry = -time.Hour
	m := NewJWTManager(cfg)

	token, err := m.GenerateToken("client")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := m.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("got %v, want ErrExpiredToken", err)
	}
}

func TestJWTManager_Garbage(t *testing.T) {
	m := NewJWTManager(DefaultJWTConfig("test-secret"))
	if _, err := m.ValidateToken("not.a.token"); err == nil {
		t.Fatal("expected error for garbage token")
	}
}

func TestMiddleware_APIKey(t *testing.T) {
	mw := NewMiddleware("topsecret", nil)
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := ClientFromContext(r.Context())
		if !ok || info.Name != "api-key" {
			t.Error("client info missing from context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/query", nil)
	req.Header.Set(APIKeyHeader, "topsecret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/query", nil)
	req.Header.Set(APIKeyHeader, "wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestMiddleware_BearerJWT(t *testing.T) {
	m := NewJWTManager(DefaultJWTConfig("test-secret"))
	mw := NewMiddleware("", m)

	var gotClient string
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if info, ok := ClientFromContext(r.Context()); ok {
			gotClient = info.Name
		}
		w.WriteHeader(http.StatusOK)
	}))

	token, err := m.GenerateToken("portal")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/query", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if gotClient != "portal" {
		t.Errorf("client = %q, want %q", gotClient, "portal")
	}
}

func TestMiddleware_MissingCredentials(t *testing.T) {
	mw := NewMiddleware("topsecret", NewJWTManager(DefaultJWTConfig("s")))
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/query", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestMiddleware_Disabled(t *testing.T) {
	mw := NewMiddleware("", nil)
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/query", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
