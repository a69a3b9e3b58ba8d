package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Messaging provider selection values.
const (
	ProviderStub   = "stub"
	ProviderGowa   = "gowa"
	ProviderTwilio = "twilio"
)

type Config struct {
	Env         string
	HTTPAddr    string
	DatabaseURL string

	RedisURL         string
	AsynqQueue       string
	AsynqConcurrency int

	CORSAllowAll bool
	CORSOrigins  []string

	// Messaging provider selection and credentials. The dispatcher is
	// provider-agnostic; exactly one implementation is wired at startup.
	MessagingProvider string
	ProviderTimeout   time.Duration
	GowaURL           string
	GowaAPIKey        string
	GowaDeviceID      string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string

	// AI planner (Gemini) settings for AI-mode scenarios.
	GeminiAPIKey string
	GeminiModel  string

	// Optional SMTP side channel for handover notifications.
	EmailEnabled  bool
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	EmailFrom     string
	EmailFromName string

	// Default first-response target when the ingestion request carries none.
	SLATargetMinutes int

	BreachSweepInterval   time.Duration
	DispatchSweepInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:         getEnv("APP_ENV", "development"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisURL:         getEnv("REDIS_URL", ""),
		AsynqQueue:       getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: getIntEnv("ASYNQ_CONCURRENCY", 10),

		CORSAllowAll: strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true"),
		CORSOrigins:  splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200")),

		MessagingProvider: strings.ToLower(getEnv("MESSAGING_PROVIDER", ProviderStub)),
		ProviderTimeout:   mustDuration(getEnv("PROVIDER_TIMEOUT", "10s")),
		GowaURL:           getEnv("WHATSAPP_URL", ""),
		GowaAPIKey:        getEnv("WHATSAPP_API_KEY", ""),
		GowaDeviceID:      getEnv("WHATSAPP_DEVICE_ID", ""),
		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:  getEnv("TWILIO_FROM_NUMBER", ""),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		EmailEnabled:  strings.EqualFold(getEnv("EMAIL_ENABLED", "false"), "true"),
		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getIntEnv("SMTP_PORT", 587),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		EmailFrom:     getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName: getEnv("EMAIL_FROM_NAME", "LeadPulse"),

		SLATargetMinutes: getIntEnv("SLA_TARGET_MINUTES", 30),

		BreachSweepInterval:   mustDuration(getEnv("SLA_BREACH_SWEEP_INTERVAL", "30s")),
		DispatchSweepInterval: mustDuration(getEnv("DISPATCH_SWEEP_INTERVAL", "15s")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	switch cfg.MessagingProvider {
	case ProviderStub:
	case ProviderGowa:
		if cfg.GowaURL == "" {
			return nil, fmt.Errorf("WHATSAPP_URL is required when MESSAGING_PROVIDER=gowa")
		}
	case ProviderTwilio:
		if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioFromNumber == "" {
			return nil, fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER are required when MESSAGING_PROVIDER=twilio")
		}
	default:
		return nil, fmt.Errorf("unknown MESSAGING_PROVIDER %q", cfg.MessagingProvider)
	}

	if cfg.EmailEnabled && (cfg.SMTPHost == "" || cfg.EmailFrom == "") {
		return nil, fmt.Errorf("SMTP_HOST and EMAIL_FROM_ADDRESS are required when EMAIL_ENABLED is true")
	}

	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 10 * time.Second
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
