package conversationworker

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/practice-concierge/cmd/mainconfig"
	appbootstrap "github.com/wolfman30/practice-concierge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/practice-concierge/internal/config"
	"github.com/wolfman30/practice-concierge/internal/conversation"
	"github.com/wolfman30/practice-concierge/internal/observability/metrics"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

// Run starts the inbound turn workers and the calendar mirror drain, and
// blocks until ctx is canceled.
func Run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg == nil {
		return fmt.Errorf("conversation worker requires config")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.UseMemoryQueue {
		return fmt.Errorf("conversation worker cannot run when USE_MEMORY_QUEUE=true; the API process handles turns inline instead")
	}
	if cfg.InboundQueueURL == "" {
		return fmt.Errorf("conversation worker requires INBOUND_QUEUE_URL")
	}

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	redisClient := appbootstrap.BuildRedisClient(ctx, cfg, logger, true)
	stores, err := appbootstrap.BuildStores(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	llm, closeLLM, err := appbootstrap.BuildLLMClient(ctx, cfg, awsConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to configure LLM client: %w", err)
	}
	defer closeLLM()

	schedMetrics := metrics.NewSchedulingMetrics(nil)
	sender, provider := appbootstrap.BuildSender(cfg, logger)
	logger.Info("outbound messaging initialized for async workers", "provider", provider)

	email := appbootstrap.BuildEmailSender(cfg, awsConfig, logger)
	service := appbootstrap.BuildSchedulingService(cfg, stores, email, schedMetrics, logger)

	processor := appbootstrap.BuildConversationProcessor(appbootstrap.ConversationDeps{
		Stores:    stores,
		Scheduler: service,
		Sender:    sender,
		LLM:       llm,
		Turns:     appbootstrap.BuildTurnStore(cfg, awsConfig, logger),
		Archiver:  appbootstrap.BuildTurnArchive(cfg, awsConfig, logger),
		Metrics:   schedMetrics,
	}, logger)

	worker := conversation.NewWorker(
		processor,
		appbootstrap.BuildQueue(cfg, awsConfig, cfg.InboundQueueURL, logger),
		logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
	)

	mirror := appbootstrap.BuildCalendarMirror(ctx, cfg, logger)
	deliverer := appbootstrap.BuildMirrorDeliverer(cfg, stores, mirror, schedMetrics, logger)
	delivererDone := make(chan struct{})
	go func() {
		defer close(delivererDone)
		deliverer.Start(ctx)
	}()

	worker.Start(ctx)
	logger.Info("conversation worker started", "workers", cfg.WorkerCount)

	<-ctx.Done()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		<-delivererDone
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}

	return nil
}
