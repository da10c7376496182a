package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every environment-driven setting the service needs.
type Config struct {
	DatabaseURL string

	// Outbound mail.
	ResendAPIKey     string
	EmailFromAddress string
	EmailFromName    string
	EmailDryRun      bool

	// Scheduler / webhook.
	CronSecret         string
	EnableWorkflowCron bool
	TickInterval       time.Duration

	// HTTP.
	ListenAddr string

	// All date rules are evaluated in this timezone.
	Timezone string
}

// Load reads configuration from the environment, honoring a local .env file
// when present, and validates that every required variable is set.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		ResendAPIKey:       os.Getenv("RESEND_API_KEY"),
		EmailFromAddress:   os.Getenv("EMAIL_FROM_ADDRESS"),
		EmailFromName:      envDefault("EMAIL_FROM_NAME", "TC Team"),
		EmailDryRun:        os.Getenv("EMAIL_DRY_RUN") == "true",
		CronSecret:         os.Getenv("CRON_SECRET"),
		EnableWorkflowCron: os.Getenv("ENABLE_WORKFLOW_CRON") == "true",
		ListenAddr:         envDefault("LISTEN_ADDR", ":8080"),
		Timezone:           envDefault("TIMEZONE", "America/Los_Angeles"),
	}

	interval := envDefault("TICK_INTERVAL", "10m")
	parsed, err := time.ParseDuration(interval)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid TICK_INTERVAL %q: %w", interval, err)
	}
	cfg.TickInterval = parsed

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.CronSecret == "" {
		missing = append(missing, "CRON_SECRET")
	}
	// Transport credentials are only required when mail is actually sent.
	if !cfg.EmailDryRun {
		if cfg.ResendAPIKey == "" {
			missing = append(missing, "RESEND_API_KEY")
		}
		if cfg.EmailFromAddress == "" {
			missing = append(missing, "EMAIL_FROM_ADDRESS")
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return Config{}, fmt.Errorf("config: invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

// Location resolves the configured timezone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
