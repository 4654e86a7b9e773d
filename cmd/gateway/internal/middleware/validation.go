package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// ValidationMiddleware rejects malformed query submissions before they reach
// classification. Keep this minimal and fast.
type ValidationMiddleware struct {
	maxQueryBytes int
	logger        *zap.Logger
}

func NewValidationMiddleware(maxQueryBytes int, logger *zap.Logger) *ValidationMiddleware {
	if maxQueryBytes <= 0 {
		maxQueryBytes = 8192
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidationMiddleware{maxQueryBytes: maxQueryBytes, logger: logger}
}

func (vm *ValidationMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/query" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, int64(vm.maxQueryBytes)+1))
		if err != nil {
			vm.sendError(w, http.StatusBadRequest, "unreadable request body")
			return
		}
		r.Body.Close()

		if len(body) > vm.maxQueryBytes {
			vm.sendError(w, http.StatusRequestEntityTooLarge, "query too large")
			return
		}

		var probe struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(body, &probe); err != nil {
			vm.sendError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		// The handler re-reads the body.
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func (vm *ValidationMiddleware) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
