package middleware

import "net/http"

// AbandonLogin drops any pending code verification once the visitor navigates
// away from the login view.
func AbandonLogin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sess, ok := SessionFromContext(r.Context()); ok && r.Method == http.MethodGet {
				sess.ClearPendingLogin()
			}
			next.ServeHTTP(w, r)
		})
	}
}
