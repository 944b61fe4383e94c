package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	appbootstrap "github.com/wolfman30/practice-concierge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/practice-concierge/internal/config"
	"github.com/wolfman30/practice-concierge/internal/observability/metrics"
	"github.com/wolfman30/practice-concierge/internal/reminder"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := appbootstrap.BuildRedisClient(ctx, cfg, logger, true)
	stores, err := appbootstrap.BuildStores(ctx, cfg, redisClient, logger)
	if err != nil {
		logger.Error("failed to build stores", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	sender, provider := appbootstrap.BuildSender(cfg, logger)
	scanner := appbootstrap.BuildReminderScanner(cfg, stores, sender, metrics.NewSchedulingMetrics(nil), logger)

	runner, err := reminder.NewCronRunner(scanner, cfg.ReminderCronSpec(), cfg.ReminderScanInterval, logger)
	if err != nil {
		logger.Error("invalid reminder schedule", "error", err, "spec", cfg.ReminderCronSpec())
		os.Exit(1)
	}
	logger.Info("reminder worker starting",
		"lead_time", cfg.ReminderLeadTime.String(),
		"window", cfg.ReminderWindow.String(),
		"interval", cfg.ReminderScanInterval.String(),
		"sender", provider,
	)
	runner.Start(ctx)
}
