package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// AuthMiddleware validates bearer tokens on the API routes.
type AuthMiddleware struct {
	secret  []byte
	enabled bool
	logger  *zap.Logger
}

// NewAuthMiddleware creates the bearer token validator. With enabled false
// every request passes through.
func NewAuthMiddleware(secret string, enabled bool, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{secret: []byte(secret), enabled: enabled, logger: logger}
}

// Middleware returns the HTTP middleware function.
func (m *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Probe endpoints answer without credentials; restart and readiness
		// gating must work in authenticated deployments.
		if r.URL.Path == "/health" || r.URL.Path == "/readiness" {
			next.ServeHTTP(w, r)
			return
		}
		if !m.enabled || os.Getenv("GATEWAY_SKIP_AUTH") == "1" {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearer(r)
		if token == "" {
			m.sendUnauthorized(w, "bearer token required")
			return
		}

		claims := jwt.MapClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return m.secret, nil
		})
		if err != nil || !parsed.Valid {
			m.logger.Debug("Token validation failed", zap.Error(err))
			m.sendUnauthorized(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func (m *AuthMiddleware) sendUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
