package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"accountbook/internal/auth"
	"accountbook/internal/cache"
	"accountbook/internal/cli"
	"accountbook/internal/core"
	apphttp "accountbook/internal/http"
	applog "accountbook/internal/log"
	"accountbook/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger)
	appLogger := applog.FromSlog(logger, applog.ComponentApp)

	res := cli.InitBackend(context.Background(), logger, cfg)
	repo := res.Repository

	// A nil *amqp.Client must not become a non-nil interface.
	var publisher services.ChangePublisher
	if res.Changes != nil {
		publisher = res.Changes
	}

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	var federator auth.Federator
	if cfg.GoogleEnabled() {
		federator = auth.NewGoogleFederator(cfg.GoogleOAuthClientID, cfg.GoogleOAuthClientSecret, cfg.GoogleOAuthRedirectURL)
		logger.Info("Google sign-in enabled", "redirect_url", cfg.GoogleOAuthRedirectURL)
	}
	provider := auth.NewService(auth.Options{
		Users:     repo,
		Tokens:    tokens,
		Federator: federator,
		Logger:    appLogger,
	})

	policy := core.NewAlertPolicy(cfg.BudgetWarnRatio)
	budgets := services.NewBudgetService(repo, policy, publisher, appLogger)
	reports := services.NewReportService(repo, budgets, cfg.CacheTTL, appLogger)
	ledger := services.NewLedgerService(repo, publisher, appLogger, reports)
	dashboards := services.NewViewRefresher(reports.Dashboard)

	caches := cache.NewManager(logger)
	for name, c := range provider.Caches() {
		caches.Register(name, c)
	}
	caches.Register("month_summaries", reports.SummaryCache())
	caches.StartCleanup(10 * time.Minute)

	// Drop an owner's cached views once they sign out.
	events, unsubscribe := provider.Watch(64)
	go func() {
		for ev := range events {
			if ev.Kind == auth.SignedOut {
				dashboards.Forget(ev.UserID)
				reports.Invalidate(ev.UserID)
			}
		}
	}()

	srv := apphttp.NewServer(apphttp.Options{
		Addr:              ":" + cfg.Port,
		Auth:              provider,
		Ledger:            ledger,
		Budgets:           budgets,
		Reports:           reports,
		Dashboards:        dashboards,
		Store:             repo,
		Locale:            cfg.Locale,
		RequestsPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:    cfg.TrustedProxies,
		AllowedOrigins:    cfg.CORSAllowedOrigins,
		Logger:            appLogger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		unsubscribe()
		caches.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting accountbook server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"change_feed", publisher != nil,
		"warn_ratio", cfg.BudgetWarnRatio)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
