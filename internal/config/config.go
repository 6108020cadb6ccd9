package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	ClinicSettingsFile string
	AdminJWTSecret     string

	// AI collaborator
	AIProvider     string
	AITimeout      time.Duration
	GeminiAPIKey   string
	GeminiModel    string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	OpenAIModel    string
	AWSRegion      string
	BedrockModelID string

	// Engine tuning
	AIConfidenceThreshold int
	MaxFailedAttempts     int
	ContextTTL            time.Duration
	ContextSweepInterval  time.Duration
	ConversationWindow    time.Duration

	// Telnyx transport
	TelnyxAPIKey             string
	TelnyxMessagingProfileID string
	TelnyxFromNumber         string
	TelnyxWebhookSecret      string

	// Email notifications
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string

	JobsEnabled     bool
	JobsInterval    time.Duration
	QuietHoursStart string
	QuietHoursEnd   string

	// SimulateEnabled exposes POST /simulate.
	SimulateEnabled bool
	SimulateRPS     float64
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		ClinicSettingsFile: getEnv("CLINIC_SETTINGS_FILE", ""),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),

		AIProvider:     strings.ToLower(strings.TrimSpace(getEnv("AI_PROVIDER", "gemini"))),
		AITimeout:      getEnvAsDuration("AI_TIMEOUT", 15*time.Second),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),

		AIConfidenceThreshold: getEnvAsInt("AI_CONFIDENCE_THRESHOLD", 60),
		MaxFailedAttempts:     getEnvAsInt("MAX_FAILED_ATTEMPTS", 3),
		ContextTTL:            getEnvAsDuration("CONTEXT_TTL", 24*time.Hour),
		ContextSweepInterval:  getEnvAsDuration("CONTEXT_SWEEP_INTERVAL", 5*time.Minute),
		ConversationWindow:    getEnvAsDuration("CONVERSATION_WINDOW", 24*time.Hour),

		TelnyxAPIKey:             getEnv("TELNYX_API_KEY", ""),
		TelnyxMessagingProfileID: getEnv("TELNYX_MESSAGING_PROFILE_ID", ""),
		TelnyxFromNumber:         getEnv("TELNYX_FROM_NUMBER", ""),
		TelnyxWebhookSecret:      getEnv("TELNYX_WEBHOOK_SECRET", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Clinic Concierge"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),

		JobsEnabled:     getEnvAsBool("JOBS_ENABLED", true),
		JobsInterval:    getEnvAsDuration("JOBS_INTERVAL", 10*time.Minute),
		QuietHoursStart: getEnv("QUIET_HOURS_START", "21:00"),
		QuietHoursEnd:   getEnv("QUIET_HOURS_END", "08:00"),

		SimulateEnabled: getEnvAsBool("SIMULATE_ENABLED", false),
		SimulateRPS:     getEnvAsFloat("SIMULATE_RPS", 2),
	}
}

// IsProduction reports whether ENV names the production environment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate rejects settings that would start a misconfigured server. In
// production an admin secret is mandatory and a Telnyx key needs its webhook secret.
func (c *Config) Validate() error {
	var errs []error
	if c.AIConfidenceThreshold < 0 || c.AIConfidenceThreshold > 100 {
		errs = append(errs, fmt.Errorf("AI_CONFIDENCE_THRESHOLD must be 0-100, got %d", c.AIConfidenceThreshold))
	}
	if c.MaxFailedAttempts < 1 {
		errs = append(errs, fmt.Errorf("MAX_FAILED_ATTEMPTS must be positive, got %d", c.MaxFailedAttempts))
	}
	if c.SimulateEnabled && c.SimulateRPS <= 0 {
		errs = append(errs, errors.New("SIMULATE_RPS must be positive when SIMULATE_ENABLED is set"))
	}
	if c.IsProduction() {
		if c.AdminJWTSecret == "" {
			errs = append(errs, errors.New("ADMIN_JWT_SECRET is required in production"))
		}
		if c.TelnyxAPIKey != "" && c.TelnyxWebhookSecret == "" {
			errs = append(errs, errors.New("TELNYX_WEBHOOK_SECRET is required in production"))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
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

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
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
