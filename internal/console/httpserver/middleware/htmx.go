package middleware

import (
	"context"
	"net/http"
)

type htmxKey struct{}

// HTMX flags requests issued by htmx. History-restore requests want a full page
// and are treated as ordinary navigation.
func HTMX() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "HX-Request")
			if r.Header.Get("HX-Request") == "true" && r.Header.Get("HX-History-Restore-Request") != "true" {
				r = r.WithContext(context.WithValue(r.Context(), htmxKey{}, true))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsHTMXRequest reports whether HTMX flagged the request.
func IsHTMXRequest(ctx context.Context) bool {
	flagged, _ := ctx.Value(htmxKey{}).(bool)
	return flagged
}

// Redirect sends the client to target. htmx gets 204 with HX-Redirect so it
// performs a full navigation; everything else gets a plain redirect with status.
func Redirect(w http.ResponseWriter, r *http.Request, target string, status int) {
	if IsHTMXRequest(r.Context()) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, target, status)
}
