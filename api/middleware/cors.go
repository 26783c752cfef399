package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

const corsPreflightMaxAge = 300

// CORS applies the configured origin allow-list. A wildcard origin turns off
// credentialed requests, which browsers refuse to combine with "*".
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(origins))
	credentials := true
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if origin == "*" {
			credentials = false
		}
		allowed = append(allowed, origin)
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, "Retry-After"},
		AllowCredentials: credentials,
		MaxAge:           corsPreflightMaxAge,
	})
}
