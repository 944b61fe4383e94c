package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/practice-concierge/internal/archive"
	appconfig "github.com/wolfman30/practice-concierge/internal/config"
	"github.com/wolfman30/practice-concierge/internal/conversation"
	"github.com/wolfman30/practice-concierge/internal/messaging"
	"github.com/wolfman30/practice-concierge/internal/observability/metrics"
	"github.com/wolfman30/practice-concierge/internal/scheduling"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

// ErrNoLLMProvider is returned when neither Gemini nor Bedrock is configured.
var ErrNoLLMProvider = errors.New("bootstrap: no LLM provider configured (set GEMINI_API_KEY or BEDROCK_MODEL_ID)")

// BuildLLMClient wires the configured provider as primary and the other one,
// when also configured, as fallback. The returned func releases client resources.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (conversation.LLMClient, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	closer := func() {}

	var gemini, bedrock conversation.LLMClient
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		gc, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, nil, err
		}
		gemini = gc
		closer = func() { _ = gc.Close() }
	}
	if strings.TrimSpace(cfg.BedrockModelID) != "" {
		bedrock = conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
	}

	client, err := selectLLMClient(cfg.LLMProvider, gemini, bedrock, logger)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return client, closer, nil
}

func selectLLMClient(provider string, gemini, bedrock conversation.LLMClient, logger *logging.Logger) (conversation.LLMClient, error) {
	primary, fallback := gemini, bedrock
	primaryName, fallbackName := "gemini", "bedrock"
	if provider == "bedrock" {
		primary, fallback = bedrock, gemini
		primaryName, fallbackName = "bedrock", "gemini"
	}
	if primary == nil {
		primary, fallback = fallback, nil
		primaryName, fallbackName = fallbackName, ""
	}
	if primary == nil {
		return nil, ErrNoLLMProvider
	}
	if provider != "" && provider != primaryName {
		logger.Warn("preferred LLM provider not configured", "preferred", provider, "using", primaryName)
	}
	if fallback == nil {
		logger.Info("LLM client initialized", "provider", primaryName)
		return primary, nil
	}
	logger.Info("LLM client initialized", "provider", primaryName, "fallback", fallbackName)
	return conversation.NewFallbackLLMClient(primary, fallback, logger), nil
}

// BuildTurnStore returns the DynamoDB turn store when TURN_JOBS_TABLE is set.
func BuildTurnStore(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) conversation.TurnStore {
	if strings.TrimSpace(cfg.TurnJobsTable) == "" {
		logger.Warn("TURN_JOBS_TABLE not set; webhook dedupe is process-local")
		return conversation.NewMemoryTurnStore()
	}
	return conversation.NewDynamoTurnStore(dynamodb.NewFromConfig(awsCfg), cfg.TurnJobsTable, logger)
}

// BuildTurnArchive returns the S3 turn archive, or nil when no bucket is set.
func BuildTurnArchive(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) conversation.TurnArchiver {
	if strings.TrimSpace(cfg.TurnArchiveBucket) == "" {
		return nil
	}
	return archive.NewTurnArchive(s3.NewFromConfig(awsCfg), cfg.TurnArchiveBucket, logger)
}

// ConversationDeps collects what the conversation pipeline needs.
type ConversationDeps struct {
	Stores    *Stores
	Scheduler *scheduling.Service
	Sender    messaging.Sender
	LLM       conversation.LLMClient
	Turns     conversation.TurnStore
	Archiver  conversation.TurnArchiver
	Metrics   *metrics.SchedulingMetrics
}

// BuildConversationProcessor wires intent extraction, the router and turn
// bookkeeping into the processor consumed by the worker or the inline webhook path.
func BuildConversationProcessor(deps ConversationDeps, logger *logging.Logger) *conversation.Processor {
	if logger == nil {
		logger = logging.Default()
	}
	router := conversation.NewRouter(
		deps.Scheduler,
		conversation.NewLLMIntentExtractor(deps.LLM, ""),
		conversation.NewLLMResponder(deps.LLM, ""),
		deps.Sender,
		logger,
		conversation.WithRouterRecorder(deps.Stores.Operator),
		conversation.WithRouterMetrics(deps.Metrics),
	)
	opts := []conversation.ProcessorOption{conversation.WithTurnStore(deps.Turns)}
	if deps.Archiver != nil {
		opts = append(opts, conversation.WithTurnArchiver(deps.Archiver))
	}
	return conversation.NewProcessor(deps.Stores.Practices, router, logger, opts...)
}
