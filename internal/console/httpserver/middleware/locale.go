package middleware

import (
	"context"
	"net/http"
	"strings"

	"finitefield.org/crm-console/internal/console/i18n"
)

type localeContextKey struct{}

const localeCookieName = "hl"

// Locale resolves the preferred language from ?hl=, the hl cookie or Accept-Language,
// in that order, and stores a localizer on the context.
func Locale(bundle *i18n.Bundle) func(http.Handler) http.Handler {
	if bundle == nil {
		bundle = i18n.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := ""
			if q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("hl"))); q != "" && bundle.IsSupported(q) {
				lang = q
				http.SetCookie(w, &http.Cookie{Name: localeCookieName, Value: q, Path: "/", SameSite: http.SameSiteLaxMode})
			} else if c, err := r.Cookie(localeCookieName); err == nil && bundle.IsSupported(strings.ToLower(c.Value)) {
				lang = strings.ToLower(c.Value)
			} else {
				lang = bundle.Resolve(r.Header.Get("Accept-Language"))
			}

			loc := bundle.Localizer(lang)
			w.Header().Set("Content-Language", loc.Lang())
			ctx := context.WithValue(r.Context(), localeContextKey{}, loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LocalizerFromContext returns the request localizer, or the default catalog.
func LocalizerFromContext(ctx context.Context) i18n.Localizer {
	if ctx != nil {
		if loc, ok := ctx.Value(localeContextKey{}).(i18n.Localizer); ok {
			return loc
		}
	}
	return i18n.Default().Localizer(i18n.DefaultLanguage)
}
