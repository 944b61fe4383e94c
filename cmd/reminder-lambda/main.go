package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	appbootstrap "github.com/wolfman30/practice-concierge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/practice-concierge/internal/config"
	"github.com/wolfman30/practice-concierge/internal/observability/metrics"
	"github.com/wolfman30/practice-concierge/internal/reminder"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

type scanner interface {
	Scan(ctx context.Context) (reminder.ScanResult, error)
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	ctx := context.Background()
	redisClient := appbootstrap.BuildRedisClient(ctx, cfg, logger, true)
	stores, err := appbootstrap.BuildStores(ctx, cfg, redisClient, logger)
	if err != nil {
		panic(err)
	}
	sender, _ := appbootstrap.BuildSender(cfg, logger)
	s := appbootstrap.BuildReminderScanner(cfg, stores, sender, metrics.NewSchedulingMetrics(nil), logger)

	lambda.Start(func(ctx context.Context, evt events.CloudWatchEvent) (reminder.ScanResult, error) {
		return handle(ctx, s, logger, evt)
	})
}

// handle runs one sweep per scheduled EventBridge invocation. A failed sweep is
// returned so the invocation is marked failed; the next schedule retries.
func handle(ctx context.Context, s scanner, logger *logging.Logger, evt events.CloudWatchEvent) (reminder.ScanResult, error) {
	logger.Info("reminder lambda invoked", "event_id", evt.ID, "source", evt.Source, "time", evt.Time)
	result, err := s.Scan(ctx)
	if err != nil {
		return result, fmt.Errorf("reminder scan: %w", err)
	}
	return result, nil
}
