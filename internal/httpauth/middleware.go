// Package httpauth guards protected routes with CredentialStore-backed
// bearer-token auth: a skip-path set plus a single header check,
// hash-and-look-up validation, and format-matching error bodies.
package httpauth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/thotenn/aicarousel/internal/providerstore"
)

// publicPaths never require authentication.
var publicPaths = map[string]bool{
	"/health":    true,
	"/v1/models": true,
}

func isPublic(path string) bool {
	if publicPaths[path] {
		return true
	}
	return strings.HasPrefix(path, "/v1/models/")
}

// Middleware wraps an http.Handler with a cross-cutting concern.
type Middleware func(http.Handler) http.Handler

// New builds the AuthMiddleware: extracts a bearer key from
// Authorization or x-api-key, validates it against store, and writes a
// 401 in the style matching the route (Anthropic-shaped for
// /v1/messages..., OpenAI-shaped otherwise) on failure.
func New(store *providerstore.CredentialStore, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			key := extractKey(r)
			if key == "" {
				writeUnauthorized(w, r, "Missing API key")
				return
			}

			record, ok, err := store.Validate(key)
			if err != nil {
				logger.Error("credential validation failed", zap.Error(err))
				writeUnauthorized(w, r, "Invalid API key")
				return
			}
			if !ok {
				writeUnauthorized(w, r, "Invalid API key")
				return
			}

			_ = record
			next.ServeHTTP(w, r)
		})
	}
}

func extractKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("x-api-key")
}

func isAnthropicRoute(path string) bool {
	return strings.HasPrefix(path, "/v1/messages")
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if isAnthropicRoute(r.URL.Path) {
		w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"` + message + `"}}`))
		return
	}
	w.Write([]byte(`{"error":{"message":"` + message + `","type":"invalid_request_error","param":null,"code":"invalid_api_key"}}`))
}
