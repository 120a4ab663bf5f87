package main

import (
	"context"
	"errors"
	"os"
	"time"

	"accountbook/internal/cache"
	"accountbook/internal/cli"
	"accountbook/internal/core"
	applog "accountbook/internal/log"
	"accountbook/internal/notify"
	"accountbook/internal/services"
	"accountbook/internal/worker"
)

const alertDedupeTTL = 24 * time.Hour

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger)
	appLogger := applog.FromSlog(logger, applog.ComponentWorker)

	res := cli.InitBackend(context.Background(), logger, cfg)
	if res.Changes == nil {
		logger.Error("The alert worker needs a change feed; set AMQP_URL")
		_ = res.Cleanup()
		os.Exit(1)
	}

	budgets := services.NewBudgetService(res.Repository, core.NewAlertPolicy(cfg.BudgetWarnRatio), nil, appLogger)

	var notifier notify.Notifier = notify.LogNotifier{Logger: appLogger}
	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, appLogger)
		if err != nil {
			logger.Error("Telegram unavailable, alerts go to the log", "error", err)
		} else {
			notifier = tg
		}
	}

	alerts := worker.NewAlertWorker(budgets, notifier, alertDedupeTTL, appLogger)

	caches := cache.NewManager(logger)
	caches.Register("sent_alerts", alerts.SentCache())
	caches.StartCleanup(30 * time.Minute)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		caches.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting accountbook alert worker",
		"backend", cfg.DataBackend,
		"queue", cfg.AMQPQueue,
		"telegram", cfg.TelegramEnabled(),
		"dedupe_ttl", alertDedupeTTL)

	go func() {
		err := res.Changes.ConsumeChanges(ctx, alerts.HandleChange)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Change consumer stopped", "error", err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Alert worker stopped gracefully")
}
