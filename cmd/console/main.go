package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"finitefield.org/crm-console/internal/console/authclient"
	"finitefield.org/crm-console/internal/console/config"
	"finitefield.org/crm-console/internal/console/httpserver"
	"finitefield.org/crm-console/internal/console/i18n"
	"finitefield.org/crm-console/internal/console/observability"
	appsession "finitefield.org/crm-console/internal/console/session"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if cfg.Session.GeneratedKey {
		logger.Warn("CONSOLE_SESSION_HASH_KEY not set; using an ephemeral key, sessions will not survive restarts")
	}

	locales, err := i18n.Embedded(cfg.Locale)
	if err != nil {
		logger.Fatal("failed to load locales", zap.String("locale", cfg.Locale), zap.Error(err))
	}

	client, err := authclient.New(cfg.API.BaseURL, &http.Client{})
	if err != nil {
		logger.Fatal("failed to build auth client", zap.Error(err))
	}

	srv, err := httpserver.New(httpserver.Config{
		Address:          cfg.Server.Addr,
		BasePath:         cfg.Server.BasePath,
		LoginPath:        cfg.Server.LoginPath,
		Environment:      cfg.Environment,
		Authenticator:    client,
		Locales:          locales,
		Logger:           logger,
		CSRFCookieName:   cfg.CSRF.CookieName,
		CSRFCookieSecure: cfg.Session.CookieSecure,
		CSRFHeaderName:   cfg.CSRF.HeaderName,
		ReadTimeout:      cfg.Server.ReadTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		IdleTimeout:      cfg.Server.IdleTimeout,
		Session: appsession.Config{
			CookieName:   cfg.Session.CookieName,
			HashKey:      cfg.Session.HashKey,
			BlockKey:     cfg.Session.BlockKey,
			CookieSecure: cfg.Session.CookieSecure,
			IdleTimeout:  cfg.Session.IdleTimeout,
			Lifetime:     cfg.Session.Lifetime,
		},
	})
	if err != nil {
		logger.Fatal("failed to build http server", zap.Error(err))
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	logger.Info("console server listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("base_path", cfg.Server.BasePath),
		zap.String("environment", cfg.Environment),
	)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		cancel()
		stop()
		os.Exit(1)
	}
}
