package middleware

import (
	"context"
	"net/http"
	"path"
	"strings"
)

// RouteInfo tells templates where the console is mounted and which path is being served.
type RouteInfo struct {
	Base  string
	Login string
	Path  string
}

type routeInfoKey struct{}

// Routes stores the console mount points alongside the request path.
func Routes(base, login string) func(http.Handler) http.Handler {
	base = NormaliseBase(base)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := RouteInfo{Base: base, Login: login, Path: r.URL.Path}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), routeInfoKey{}, info)))
		})
	}
}

// RoutesFromContext returns the stored RouteInfo. Base is "/" when Routes did not run.
func RoutesFromContext(ctx context.Context) RouteInfo {
	info, ok := ctx.Value(routeInfoKey{}).(RouteInfo)
	if !ok {
		return RouteInfo{Base: "/"}
	}
	return info
}

// NormaliseBase cleans a mount path to "/" or "/seg[/seg...]" without a trailing slash.
func NormaliseBase(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return "/"
	}
	return path.Clean("/" + base)
}
