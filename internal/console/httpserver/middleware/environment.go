package middleware

import (
	"context"
	"net/http"
	"strings"
)

type environmentKey struct{}

// Environment labels every request with the deployment environment shown in the page chrome.
func Environment(label string) func(http.Handler) http.Handler {
	if label = strings.TrimSpace(label); label == "" {
		label = "Development"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), environmentKey{}, label)))
		})
	}
}

// EnvironmentFromContext returns the label set by Environment, or "Development".
func EnvironmentFromContext(ctx context.Context) string {
	if label, ok := ctx.Value(environmentKey{}).(string); ok {
		return label
	}
	return "Development"
}
