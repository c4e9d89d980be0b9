package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"finitefield.org/crm-console/internal/console/flow"
	"finitefield.org/crm-console/internal/console/guard"
	custommw "finitefield.org/crm-console/internal/console/httpserver/middleware"
	"finitefield.org/crm-console/internal/console/httpserver/ui"
	"finitefield.org/crm-console/internal/console/i18n"
	"finitefield.org/crm-console/internal/console/observability"
	appsession "finitefield.org/crm-console/internal/console/session"
	"finitefield.org/crm-console/public"
)

// Config holds runtime options for the console HTTP server.
type Config struct {
	Address     string
	BasePath    string
	LoginPath   string
	Environment string

	// Authenticator performs the two upstream sign-in calls. Required.
	Authenticator flow.Authenticator
	FlowOptions   []flow.Option

	Session appsession.Config
	Locales *i18n.Bundle
	Logger  *zap.Logger

	CSRFCookieName   string
	CSRFCookieSecure bool
	CSRFHeaderName   string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// New constructs the HTTP server with middleware stack and embedded assets.
func New(cfg Config) (*http.Server, error) {
	if cfg.Authenticator == nil {
		return nil, errors.New("httpserver: authenticator is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locales := cfg.Locales
	if locales == nil {
		locales = i18n.Default()
	}
	sessions, err := appsession.NewManager(cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("httpserver: session manager: %w", err)
	}
	staticContent, err := public.StaticFS()
	if err != nil {
		return nil, fmt.Errorf("httpserver: embed static: %w", err)
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(observability.InjectLoggerMiddleware(logger))
	router.Use(observability.RequestLoggerMiddleware())
	router.Use(observability.RecoveryMiddleware())
	router.Use(chimw.Timeout(60 * time.Second))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/public/static/*", http.StripPrefix("/public/static/", http.FileServer(http.FS(staticContent))))

	basePath := normalizeBasePath(cfg.BasePath)
	loginPath := resolveLoginPath(basePath, cfg.LoginPath)

	mountConsoleRoutes(router, basePath, routeOptions{
		LoginPath:   loginPath,
		Controller:  flow.NewController(cfg.Authenticator, cfg.FlowOptions...),
		Sessions:    sessions,
		Locales:     locales,
		Environment: cfg.Environment,
		CSRF: custommw.CSRFConfig{
			CookieName: cfg.CSRFCookieName,
			CookiePath: basePath,
			HeaderName: cfg.CSRFHeaderName,
			Secure:     cfg.CSRFCookieSecure,
		},
	})

	return &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  durationOr(cfg.ReadTimeout, 10*time.Second),
		WriteTimeout: durationOr(cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:  durationOr(cfg.IdleTimeout, 60*time.Second),
	}, nil
}

type routeOptions struct {
	LoginPath   string
	Controller  *flow.Controller
	Sessions    custommw.SessionStore
	Locales     *i18n.Bundle
	Environment string
	CSRF        custommw.CSRFConfig
}

// protectedRoute binds a view to the ordered guard policies that gate it.
type protectedRoute struct {
	Path     string
	View     string
	TitleKey string
	Policies []guard.Policy
}

func protectedRoutes(loginPath, rootPath string) []protectedRoute {
	signedIn := guard.Authenticated(loginPath)
	admin := guard.Admin(rootPath)
	return []protectedRoute{
		{Path: "/", View: "dashboard", TitleKey: "nav.dashboard", Policies: []guard.Policy{signedIn}},
		{Path: "/contacts", View: "contacts", TitleKey: "nav.contacts", Policies: []guard.Policy{signedIn}},
		{Path: "/companies", View: "companies", TitleKey: "nav.companies", Policies: []guard.Policy{signedIn}},
		{Path: "/kanban", View: "kanban", TitleKey: "nav.kanban", Policies: []guard.Policy{signedIn}},
		{Path: "/messages", View: "messages", TitleKey: "nav.messages", Policies: []guard.Policy{signedIn}},
		{Path: "/settings", View: "settings", TitleKey: "nav.settings", Policies: []guard.Policy{signedIn, admin}},
	}
}

func mountConsoleRoutes(router chi.Router, base string, opts routeOptions) {
	authHandlers := newAuthHandlers(opts.Controller, base, opts.LoginPath)
	views := ui.NewHandlers()

	router.Group(func(r chi.Router) {
		r.Use(custommw.HTMX())
		r.Use(custommw.NoStore())
		r.Use(custommw.Environment(opts.Environment))
		r.Use(custommw.Routes(base, opts.LoginPath))
		r.Use(custommw.Locale(opts.Locales))
		r.Use(custommw.Session(opts.Sessions))
		r.Use(custommw.CSRF(opts.CSRF))

		r.Get(opts.LoginPath, authHandlers.LoginForm)
		r.Post(opts.LoginPath, authHandlers.LoginSubmit)
		r.Post(authHandlers.verifyPath, authHandlers.VerifySubmit)

		r.Group(func(r chi.Router) {
			r.Use(custommw.AbandonLogin())
			for _, route := range protectedRoutes(opts.LoginPath, base) {
				r.With(custommw.Guard(route.Policies...)).Get(joinBasePath(base, route.Path), views.View(route.View, route.TitleKey))
			}
		})
	})

	router.NotFound(views.Fallback(base))
}

func normalizeBasePath(path string) string {
	return custommw.NormaliseBase(path)
}

func resolveLoginPath(base string, override string) string {
	if strings.TrimSpace(override) != "" {
		return normalizeBasePath(override)
	}
	return joinBasePath(base, "/login")
}

func joinBasePath(base, suffix string) string {
	if !strings.HasPrefix(suffix, "/") {
		suffix = "/" + suffix
	}
	if base == "/" {
		return suffix
	}
	if suffix == "/" {
		return base
	}
	return strings.TrimRight(base, "/") + suffix
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
