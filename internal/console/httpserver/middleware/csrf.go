package middleware

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"time"

	"go.uber.org/zap"

	"finitefield.org/crm-console/internal/console/observability"
)

// CSRFFormField is the hidden form field accepted when the header is absent.
const CSRFFormField = "csrf_token"

// CSRFConfig controls the double-submit cookie.
type CSRFConfig struct {
	CookieName string
	CookiePath string
	HeaderName string
	MaxAge     time.Duration
	Secure     bool
}

type csrfKey struct{}

type csrfGuard struct {
	cfg CSRFConfig
}

// CSRF issues a token cookie on every request that lacks one and requires unsafe
// methods to echo it through the header or the csrf_token form field.
func CSRF(cfg CSRFConfig) func(http.Handler) http.Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = "console_csrf"
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = "X-CSRF-Token"
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	g := csrfGuard{cfg: cfg}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := observability.FromContext(r.Context())
			token, err := g.token(w, r)
			if err != nil {
				logger.Error("csrf token issue failed", zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !safeMethod(r.Method) && !g.echoed(r, token) {
				logger.Warn("csrf token mismatch", zap.String("method", r.Method))
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfKey{}, token)))
		})
	}
}

// CSRFTokenFromContext returns the token bound to the current request.
func CSRFTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(csrfKey{}).(string)
	return token
}

func (g csrfGuard) token(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(g.cfg.CookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	http.SetCookie(w, &http.Cookie{
		Name:     g.cfg.CookieName,
		Value:    token,
		Path:     g.cfg.CookiePath,
		MaxAge:   int(g.cfg.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   g.cfg.Secure || r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	return token, nil
}

func (g csrfGuard) echoed(r *http.Request, token string) bool {
	submitted := r.Header.Get(g.cfg.HeaderName)
	if submitted == "" {
		submitted = r.PostFormValue(CSRFFormField)
	}
	return submitted != "" && subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) == 1
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
