package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// MiddlewareFunc wraps an http.Handler with extra behavior.
type MiddlewareFunc func(http.Handler) http.Handler

// Chain composes middlewares so the first argument runs outermost.
func Chain(middlewares ...MiddlewareFunc) MiddlewareFunc {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// APIKeyAuth authenticates requests against bcrypt hashes, so a leaked
// config file does not leak the tokens themselves. Keys that verified once
// are remembered in an allow set to skip the bcrypt cost on later requests.
type APIKeyAuth struct {
	headerName string
	hashes     [][]byte

	mu       sync.RWMutex
	verified map[string]bool
}

// NewAPIKeyAuth builds an authenticator; blank hashes are skipped.
func NewAPIKeyAuth(headerName string, keyHashes []string) *APIKeyAuth {
	a := &APIKeyAuth{
		headerName: headerName,
		verified:   make(map[string]bool),
	}
	for _, h := range keyHashes {
		if h != "" {
			a.hashes = append(a.hashes, []byte(h))
		}
	}
	return a
}

// Enabled reports whether any keys are configured.
func (a *APIKeyAuth) Enabled() bool {
	return len(a.hashes) > 0
}

// IsValid reports whether key matches one of the configured hashes.
func (a *APIKeyAuth) IsValid(key string) bool {
	a.mu.RLock()
	seen := a.verified[key]
	a.mu.RUnlock()
	if seen {
		return true
	}

	for _, hash := range a.hashes {
		if bcrypt.CompareHashAndPassword(hash, []byte(key)) == nil {
			a.mu.Lock()
			a.verified[key] = true
			a.mu.Unlock()
			return true
		}
	}
	return false
}

// extractKey reads the configured header, falling back to a Bearer token.
func (a *APIKeyAuth) extractKey(r *http.Request) string {
	if key := r.Header.Get(a.headerName); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return token
	}
	return ""
}

// Middleware rejects requests that do not present a valid key.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := a.extractKey(r)
		switch {
		case key == "":
			rejectJSON(w, http.StatusUnauthorized, "missing_api_key", "API key is required")
		case !a.IsValid(key):
			rejectJSON(w, http.StatusUnauthorized, "invalid_api_key", "Invalid API key")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// TimeoutMiddleware enforces a per-request deadline. The handler keeps
// running in its goroutine after a timeout; only the response is cut off.
func TimeoutMiddleware(timeout time.Duration) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(w, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					rejectJSON(w, http.StatusGatewayTimeout, "timeout", "Request timeout exceeded")
				}
			}
		})
	}
}

// SecurityHeadersMiddleware sets the hardening headers on every response.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// RequestSizeLimitMiddleware rejects oversized bodies up front and caps
// reads for requests that do not declare a length.
func RequestSizeLimitMiddleware(maxBytes int64) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				rejectJSON(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// rejectJSON writes a minimal error body without pulling in the server's
// response envelope, keeping this package free of upward dependencies.
func rejectJSON(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `","message":"` + message + `"}`))
}
