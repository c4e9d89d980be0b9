package middleware

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"finitefield.org/crm-console/internal/console/observability"
	appsession "finitefield.org/crm-console/internal/console/session"
)

type sessionContextKey string

const requestSessionKey sessionContextKey = "console.session"

// SessionStore loads and persists the per-request session cookie.
type SessionStore interface {
	Load(*http.Request) (*appsession.Session, error)
	Fresh() *appsession.Session
	Save(http.ResponseWriter, *appsession.Session) error
	Expire(http.ResponseWriter)
}

// Session attaches the decoded session to the request context and persists it
// right before the response headers go out.
func Session(store SessionStore) func(http.Handler) http.Handler {
	if store == nil {
		panic("session store is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := observability.FromContext(r.Context())

			sess, err := store.Load(r)
			switch {
			case errors.Is(err, appsession.ErrExpired):
				logger.Info("session expired, signing out")
				store.Expire(w)
				sess = store.Fresh()
			case err != nil:
				logger.Warn("session load failed", zap.Error(err))
				sess = store.Fresh()
			case sess == nil:
				sess = store.Fresh()
			}

			if user := sess.CurrentUser(); user != nil {
				logger = logger.With(zap.String("user_id", observability.SanitizeUserID(user.ID)))
			}
			ctx := context.WithValue(r.Context(), requestSessionKey, sess)
			ctx = observability.WithLogger(ctx, logger)

			sw := &sessionWriter{ResponseWriter: w}
			sw.save = func() {
				if err := store.Save(w, sess); err != nil {
					logger.Error("session save failed", zap.Error(err))
				}
			}

			next.ServeHTTP(sw, r.WithContext(ctx))
			sw.flushSession()
		})
	}
}

// SessionFromContext retrieves the session attached to this request.
func SessionFromContext(ctx context.Context) (*appsession.Session, bool) {
	if ctx == nil {
		return nil, false
	}
	sess, ok := ctx.Value(requestSessionKey).(*appsession.Session)
	return sess, ok && sess != nil
}

// StoreFromContext exposes the request session as a session.Store, or nil.
func StoreFromContext(ctx context.Context) appsession.Store {
	sess, ok := SessionFromContext(ctx)
	if !ok {
		return nil
	}
	return sess
}

// CurrentUserFromContext returns the signed-in user for the request, or nil.
func CurrentUserFromContext(ctx context.Context) *appsession.User {
	sess, ok := SessionFromContext(ctx)
	if !ok {
		return nil
	}
	return sess.CurrentUser()
}

// sessionWriter saves the session once, before the first header write.
type sessionWriter struct {
	http.ResponseWriter
	once sync.Once
	save func()
}

func (w *sessionWriter) flushSession() {
	w.once.Do(w.save)
}

func (w *sessionWriter) WriteHeader(status int) {
	w.flushSession()
	w.ResponseWriter.WriteHeader(status)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.flushSession()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Flush() {
	w.flushSession()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
