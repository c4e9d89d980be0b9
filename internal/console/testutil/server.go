package testutil

import (
	"net/http/httptest"
	"testing"

	"finitefield.org/crm-console/internal/console/authclient"
	"finitefield.org/crm-console/internal/console/httpserver"
	"finitefield.org/crm-console/internal/console/session"
)

// ServerOption customises the HTTP server configuration for tests.
type ServerOption func(*httpserver.Config)

// WithBasePath sets a custom base path for the console routes.
func WithBasePath(path string) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.BasePath = path
	}
}

// NewServer constructs an httptest server running the console stack against upstreamURL.
func NewServer(t testing.TB, upstreamURL string, opts ...ServerOption) *httptest.Server {
	t.Helper()

	client, err := authclient.New(upstreamURL, nil)
	if err != nil {
		t.Fatalf("auth client: %v", err)
	}

	cfg := httpserver.Config{
		Address:        ":0",
		BasePath:       "/",
		CSRFCookieName: "csrf_token",
		CSRFHeaderName: "X-CSRF-Token",
		Authenticator:  client,
		Session: session.Config{
			CookieName: "console_session",
			HashKey:    []byte("test-hash-key-0123456789abcdef01"),
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := httpserver.New(cfg)
	if err != nil {
		t.Fatalf("httpserver.New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}
