package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// APIKeyHeader is the request header for API key authentication
	APIKeyHeader = "X-API-Key"

	// clientContextKey is the context key for storing the client identity
	clientContextKey contextKey = "client"
)

// ClientInfo holds the authenticated client identity
type ClientInfo struct {
	Name string
}

// ClientFromContext returns the authenticated client, if any
func ClientFromContext(ctx context.Context) (*ClientInfo, bool) {
	info, ok := ctx.Value(clientContextKey).(*ClientInfo)
	return info, ok
}

// Middleware validates requests with either a static API key or a
// Bearer JWT. Either credential grants access; the API key takes
// precedence when both are present.
type Middleware struct {
	apiKey string
	jwt    *JWTManager
}

// NewMiddleware creates authentication middleware. An empty apiKey
// disables API key auth; a nil manager disables JWT auth. With both
// disabled every request passes through unauthenticated.
func NewMiddleware(apiKey string, jwtManager *JWTManager) *Middleware {
	return &Middleware{apiKey: apiKey, jwt: jwtManager}
}

// Handler wraps next with authentication checks
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.apiKey == "" && m.jwt == nil {
			next.ServeHTTP(w, r)
			return
		}

		if key := r.Header.Get(APIKeyHeader); key != "" && m.apiKey != "" {
			if subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) == 1 {
				ctx := context.WithValue(r.Context(), clientContextKey, &ClientInfo{Name: "api-key"})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			http.Error(w, "invalid API key", http.StatusUnauthorized)
			return
		}

		if m.jwt != nil {
			if token := bearerToken(r); token != "" {
				claims, err := m.jwt.ValidateToken(token)
				if err != nil {
					http.Error(w, "invalid token", http.StatusUnauthorized)
					return
				}
				ctx := context.WithValue(r.Context(), clientContextKey, &ClientInfo{Name: claims.ClientName})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		http.Error(w, "missing credentials", http.StatusUnauthorized)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
