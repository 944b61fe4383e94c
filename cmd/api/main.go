package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/practice-concierge/cmd/mainconfig"
	"github.com/wolfman30/practice-concierge/internal/api/router"
	appbootstrap "github.com/wolfman30/practice-concierge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/practice-concierge/internal/config"
	"github.com/wolfman30/practice-concierge/internal/conversation"
	"github.com/wolfman30/practice-concierge/internal/messaging"
	"github.com/wolfman30/practice-concierge/internal/observability/metrics"
	"github.com/wolfman30/practice-concierge/internal/reminder"
	"github.com/wolfman30/practice-concierge/internal/reviews"
	"github.com/wolfman30/practice-concierge/internal/scheduling"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting practice-concierge API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"memory_queue", cfg.UseMemoryQueue,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	redisClient := appbootstrap.BuildRedisClient(ctx, cfg, logger, true)
	stores, err := appbootstrap.BuildStores(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	metricsHandler, schedMetrics := setupMetrics()
	sender, provider := appbootstrap.BuildSender(cfg, logger)
	logger.Info("outbound messaging initialized", "provider", provider)

	email := appbootstrap.BuildEmailSender(cfg, awsCfg, logger)
	service := appbootstrap.BuildSchedulingService(cfg, stores, email, schedMetrics, logger)
	scanner := appbootstrap.BuildReminderScanner(cfg, stores, sender, schedMetrics, logger)
	turns := appbootstrap.BuildTurnStore(cfg, awsCfg, logger)

	handlerOpts := []messaging.HandlerOption{
		messaging.WithWebhookSecret(cfg.TwilioWebhookSecret),
		messaging.WithPublicBaseURL(cfg.PublicBaseURL),
		messaging.WithTurnRecorder(turns),
		messaging.WithHandlerMetrics(schedMetrics),
	}
	if cfg.UseMemoryQueue {
		// Everything runs in this process: turns inline, plus the mirror
		// drain and reminder schedule the workers would otherwise own.
		inline, closeLLM, err := buildInlineProcessor(ctx, cfg, awsCfg, stores, service, sender, turns, schedMetrics, logger)
		if err != nil {
			return err
		}
		defer closeLLM()
		handlerOpts = append(handlerOpts, messaging.WithInlineProcessor(inline))
		startInProcessWorkers(ctx, cfg, stores, scanner, schedMetrics, logger)
	} else {
		handlerOpts = append(handlerOpts, messaging.WithQueue(appbootstrap.BuildQueue(cfg, awsCfg, cfg.InboundQueueURL, logger)))
	}

	resolver := appbootstrap.BuildPracticeResolver(cfg, stores, logger)
	reviewQueue := appbootstrap.BuildQueue(cfg, awsCfg, cfg.ReviewQueueURL, logger)

	handler := router.New(&router.Config{
		Logger:             logger,
		MessagingHandler:   messaging.NewHandler(resolver, logger, handlerOpts...),
		ReviewsHandler:     reviews.NewHandler(stores.Practices, stores.Processed, reviewQueue, logger, reviews.WithMetrics(schedMetrics)),
		SchedulingHandler:  scheduling.NewHandler(service, logger),
		ReminderHandler:    reminder.NewHandler(scanner, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		PublicRateRPS:      cfg.PublicRateLimitRPS,
		PublicRateBurst:    cfg.PublicRateLimitBurst,
		ReadyCheck:         stores.Ping,
	})
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes are disabled")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// setupMetrics registers the scheduling metrics on a dedicated registry along
// with the Go runtime collectors.
func setupMetrics() (http.Handler, *metrics.SchedulingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewSchedulingMetrics(reg)
}

func buildInlineProcessor(
	ctx context.Context,
	cfg *appconfig.Config,
	awsCfg aws.Config,
	stores *appbootstrap.Stores,
	service *scheduling.Service,
	sender messaging.Sender,
	turns conversation.TurnStore,
	m *metrics.SchedulingMetrics,
	logger *logging.Logger,
) (messaging.InlineProcessor, func(), error) {
	llm, closeLLM, err := appbootstrap.BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		return nil, nil, err
	}
	deps := appbootstrap.ConversationDeps{
		Stores:    stores,
		Scheduler: service,
		Sender:    sender,
		LLM:       llm,
		Turns:     turns,
		Archiver:  appbootstrap.BuildTurnArchive(cfg, awsCfg, logger),
		Metrics:   m,
	}
	return appbootstrap.BuildConversationProcessor(deps, logger), closeLLM, nil
}

func startInProcessWorkers(ctx context.Context, cfg *appconfig.Config, stores *appbootstrap.Stores, scanner *reminder.Scanner, m *metrics.SchedulingMetrics, logger *logging.Logger) {
	mirror := appbootstrap.BuildCalendarMirror(ctx, cfg, logger)
	go appbootstrap.BuildMirrorDeliverer(cfg, stores, mirror, m, logger).Start(ctx)

	runner, err := reminder.NewCronRunner(scanner, cfg.ReminderCronSpec(), cfg.ReminderScanInterval, logger)
	if err != nil {
		logger.Error("reminder schedule invalid; in-process reminders disabled", "error", err)
		return
	}
	go runner.Start(ctx)
}
