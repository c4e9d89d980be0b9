package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"finitefield.org/crm-console/internal/console/guard"
	"finitefield.org/crm-console/internal/console/observability"
)

// Guard evaluates policies against the request session on every request and
// applies the first denial as a redirect.
func Guard(policies ...guard.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := guard.Evaluate(StoreFromContext(r.Context()), policies...)
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			observability.FromContext(r.Context()).Info("navigation denied",
				zap.String("reason", decision.Reason),
				zap.String("redirect", decision.Redirect),
			)
			denied(w, r, decision)
		})
	}
}

func denied(w http.ResponseWriter, r *http.Request, decision guard.Decision) {
	if IsHTMXRequest(r.Context()) {
		status := http.StatusForbidden
		if decision.Reason == guard.ReasonUnauthenticated {
			status = http.StatusUnauthorized
		}
		w.Header().Set("HX-Redirect", decision.Redirect)
		http.Error(w, http.StatusText(status), status)
		return
	}
	http.Redirect(w, r, decision.Redirect, http.StatusFound)
}
