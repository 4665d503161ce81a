package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	DatabaseURL        string
	LedgerDatabaseURL  string
	UseMemoryStore     bool
	CORSAllowedOrigins []string
	WriteRateLimit     float64
	WriteBurst         int

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	EventsChannel string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	EventsQueueURL      string
	EventsArchiveBucket string
	RecommendationTable string

	// Policy lookup enrichment
	PolicyProvider      string
	PolicyLookupTimeout time.Duration
	BedrockModelID      string
	GeminiAPIKey        string
	GeminiModelID       string

	// Critical alert email
	SendGridAPIKey  string
	SESFromEmail    string
	AlertFromEmail  string
	AlertFromName   string
	AlertRecipients []string
	UseSESForAlerts bool

	// Scoring engine
	WeightCondition      float64
	WeightSpecialization float64
	WeightEquipment      float64
	WeightInfection      float64
	WeightPreference     float64
	MaxAlternatives      int
	NotableThreshold     float64

	// Capacity alert monitor
	HighOccupancyPct     float64
	CriticalOccupancyPct float64
	CleaningOverdueAfter time.Duration
	SweepInterval        time.Duration
	SweepLeaseTTL        time.Duration

	// Assignment workflow
	WorkflowDeadline   time.Duration
	ReaperInterval     time.Duration
	RetryMaxAttempts   int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	OutboxPollInterval time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		LedgerDatabaseURL:  getEnv("LEDGER_DATABASE_URL", ""),
		UseMemoryStore:     getEnvAsBool("USE_MEMORY_STORE", false),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		WriteRateLimit:     getEnvAsFloat("API_WRITE_RATE_LIMIT", 5),
		WriteBurst:         getEnvAsInt("API_WRITE_BURST", 20),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		EventsChannel: getEnv("EVENTS_CHANNEL", "hospital:events"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		EventsQueueURL:      getEnv("EVENTS_QUEUE_URL", ""),
		EventsArchiveBucket: getEnv("EVENTS_ARCHIVE_BUCKET", ""),
		RecommendationTable: getEnv("RECOMMENDATION_AUDIT_TABLE", ""),

		PolicyProvider:      strings.ToLower(strings.TrimSpace(getEnv("POLICY_PROVIDER", "none"))),
		PolicyLookupTimeout: getEnvAsDuration("POLICY_LOOKUP_TIMEOUT", 2*time.Second),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:       getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		SendGridAPIKey:  getEnv("SENDGRID_API_KEY", ""),
		SESFromEmail:    getEnv("SES_FROM_EMAIL", ""),
		AlertFromEmail:  getEnv("ALERT_FROM_EMAIL", ""),
		AlertFromName:   getEnv("ALERT_FROM_NAME", "Bed Management"),
		AlertRecipients: getEnvAsList("ALERT_RECIPIENTS", nil),
		UseSESForAlerts: getEnvAsBool("ALERT_EMAIL_USE_SES", false),

		WeightCondition:      getEnvAsFloat("SCORING_WEIGHT_CONDITION", 0.35),
		WeightSpecialization: getEnvAsFloat("SCORING_WEIGHT_SPECIALIZATION", 0.25),
		WeightEquipment:      getEnvAsFloat("SCORING_WEIGHT_EQUIPMENT", 0.20),
		WeightInfection:      getEnvAsFloat("SCORING_WEIGHT_INFECTION", 0.15),
		WeightPreference:     getEnvAsFloat("SCORING_WEIGHT_PREFERENCE", 0.05),
		MaxAlternatives:      getEnvAsInt("SCORING_MAX_ALTERNATIVES", 3),
		NotableThreshold:     getEnvAsFloat("SCORING_NOTABLE_THRESHOLD", 0.8),

		HighOccupancyPct:     getEnvAsFloat("ALERT_HIGH_OCCUPANCY_PCT", 85),
		CriticalOccupancyPct: getEnvAsFloat("ALERT_CRITICAL_OCCUPANCY_PCT", 90),
		CleaningOverdueAfter: getEnvAsDuration("ALERT_CLEANING_OVERDUE_AFTER", 2*time.Hour),
		SweepInterval:        getEnvAsDuration("ALERT_SWEEP_INTERVAL", 2*time.Minute),
		SweepLeaseTTL:        getEnvAsDuration("ALERT_SWEEP_LEASE_TTL", 90*time.Second),

		WorkflowDeadline:   getEnvAsDuration("WORKFLOW_DEADLINE", 2*time.Minute),
		ReaperInterval:     getEnvAsDuration("WORKFLOW_REAPER_INTERVAL", 15*time.Second),
		RetryMaxAttempts:   getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:     getEnvAsDuration("RETRY_BASE_DELAY", 50*time.Millisecond),
		RetryMaxDelay:      getEnvAsDuration("RETRY_MAX_DELAY", 2*time.Second),
		OutboxPollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
	}
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
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
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
