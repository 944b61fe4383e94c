package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	PublicBaseURL  string
	LogLevel       string
	UseMemoryQueue bool
	UseMemoryStore bool
	WorkerCount    int

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	SlotLockTTL   time.Duration

	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioWebhookSecret  string
	TwilioFromNumber     string
	PracticePhoneMapJSON string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	InboundQueueURL     string
	ReviewQueueURL      string
	TurnJobsTable       string

	LLMProvider    string
	GeminiAPIKey   string
	GeminiModelID  string
	BedrockModelID string

	GoogleCalendarCredentialsFile string

	ReminderLeadTime     time.Duration
	ReminderWindow       time.Duration
	ReminderScanInterval time.Duration
	ReminderConcurrency  int

	MirrorPollInterval time.Duration
	MirrorMaxAttempts  int

	AdminJWTSecret       string
	PublicRateLimitRPS   float64
	PublicRateLimitBurst int
	CORSAllowedOrigins   []string

	EmailProvider    string
	SendGridAPIKey   string
	EmailFromAddress string
	EmailFromName    string

	TurnArchiveBucket string
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		SlotLockTTL:   getEnvAsDuration("SLOT_LOCK_TTL", 10*time.Second),

		TwilioAccountSID:     getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:      getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioWebhookSecret:  getEnv("TWILIO_WEBHOOK_SECRET", ""),
		TwilioFromNumber:     getEnv("TWILIO_FROM_NUMBER", ""),
		PracticePhoneMapJSON: getEnv("PRACTICE_PHONE_MAP_JSON", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		InboundQueueURL:     getEnv("INBOUND_QUEUE_URL", ""),
		ReviewQueueURL:      getEnv("REVIEW_QUEUE_URL", ""),
		TurnJobsTable:       getEnv("TURN_JOBS_TABLE", ""),

		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),

		GoogleCalendarCredentialsFile: getEnv("GOOGLE_CALENDAR_CREDENTIALS_FILE", ""),

		ReminderLeadTime:     getEnvAsDuration("REMINDER_LEAD_TIME", 24*time.Hour),
		ReminderWindow:       getEnvAsDuration("REMINDER_WINDOW", time.Hour),
		ReminderScanInterval: getEnvAsDuration("REMINDER_SCAN_INTERVAL", 15*time.Minute),
		ReminderConcurrency:  getEnvAsInt("REMINDER_CONCURRENCY", 8),

		MirrorPollInterval: getEnvAsDuration("MIRROR_POLL_INTERVAL", 5*time.Second),
		MirrorMaxAttempts:  getEnvAsInt("MIRROR_MAX_ATTEMPTS", 8),

		AdminJWTSecret:       getEnv("ADMIN_JWT_SECRET", ""),
		PublicRateLimitRPS:   getEnvAsFloat("PUBLIC_RATE_LIMIT_RPS", 1),
		PublicRateLimitBurst: getEnvAsInt("PUBLIC_RATE_LIMIT_BURST", 5),
		CORSAllowedOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS"),

		EmailProvider:    strings.ToLower(getEnv("EMAIL_PROVIDER", "")),
		SendGridAPIKey:   getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Practice Concierge"),

		TurnArchiveBucket: getEnv("TURN_ARCHIVE_BUCKET", ""),
	}
}

// Validate rejects combinations that would make the reminder sweep leave gaps.
func (c *Config) Validate() error {
	if c.ReminderLeadTime <= 0 {
		return errors.New("config: REMINDER_LEAD_TIME must be positive")
	}
	if c.ReminderWindow <= 0 {
		return errors.New("config: REMINDER_WINDOW must be positive")
	}
	if c.ReminderScanInterval <= 0 {
		return errors.New("config: REMINDER_SCAN_INTERVAL must be positive")
	}
	if c.ReminderScanInterval > c.ReminderWindow {
		return fmt.Errorf("config: REMINDER_SCAN_INTERVAL (%s) must not exceed REMINDER_WINDOW (%s)", c.ReminderScanInterval, c.ReminderWindow)
	}
	return nil
}

// PracticePhoneMap decodes the WhatsApp number to practice id override table.
func (c *Config) PracticePhoneMap() (map[string]string, error) {
	raw := strings.TrimSpace(c.PracticePhoneMapJSON)
	if raw == "" {
		return map[string]string{}, nil
	}
	var mapping map[string]string
	if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
		return nil, fmt.Errorf("config: parse PRACTICE_PHONE_MAP_JSON: %w", err)
	}
	return mapping, nil
}

// ReminderCronSpec returns the robfig/cron schedule for the reminder sweep.
func (c *Config) ReminderCronSpec() string {
	return "@every " + c.ReminderScanInterval.String()
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
