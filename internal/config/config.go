package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted in STORE_DRIVER.
const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds the application configuration.
type Config struct {
	AppEnv          string
	Debug           bool
	Version         string
	BotToken        string
	ChannelID       int64
	SentryDSN       string
	DefaultLanguage string
	AdminOnly       bool

	// Location is the zone in which "today/tomorrow at PublishHour" is computed.
	Location    *time.Location
	PublishHour int

	StoreDriver     string
	MongoDBURI      string
	MongoDBDatabase string
	Postgres        PostgresConfig

	LLM LLMConfig

	PublishTimeout     time.Duration
	PublishInterval    time.Duration
	MetricsInterval    time.Duration
	MetricsDelay       time.Duration
	RunJobsOnStart     bool
	PendingTopicTTL    time.Duration
	TelemetryAddr      string
	ChannelSendsPerMin int
}

// PostgresConfig holds the connection parameters of the relational store.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN builds a libpq style connection string, leaving out an empty password.
func (p PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s", p.Host, p.Port, p.User, p.DBName, p.SSLMode)
	if p.Password != "" {
		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
	}
	return dsn
}

// LLMConfig holds the text generation endpoint settings.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	SiteURL string
	AppName string
	Timeout time.Duration
}

// LoadConfig loads configuration from environment variables.
// It attempts to load a .env file if present but prioritizes
// actual environment variables set in the system (e.g., by Docker).
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv builds and validates the configuration from the current environment only.
func FromEnv() (*Config, error) {
	debug, _ := strconv.ParseBool(getEnv("DEBUG", "false"))

	channelIDStr := getEnv("CHANNEL_ID", "")
	channelID, err := strconv.ParseInt(channelIDStr, 10, 64)
	if err != nil && channelIDStr != "" {
		return nil, fmt.Errorf("invalid CHANNEL_ID: %w", err)
	}

	location, err := time.LoadLocation(getEnv("TIMEZONE", "Europe/Moscow"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		Debug:           debug,
		Version:         getEnv("VERSION", "dev"),
		BotToken:        getEnv("TELEGRAM_BOT_TOKEN", ""),
		ChannelID:       channelID,
		SentryDSN:       getEnv("SENTRY_DSN", ""),
		DefaultLanguage: getEnv("DEFAULT_LANGUAGE", "ru"),
		Location:        location,
		StoreDriver:     getEnv("STORE_DRIVER", StoreMongo),
		MongoDBURI:      getEnv("MONGODB_URI", ""),
		MongoDBDatabase: getEnv("MONGODB_DATABASE", "tgbot_db"),
		Postgres: PostgresConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "tgbot_user"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "tgbot_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		LLM: LLMConfig{
			APIKey:  getEnv("LLM_API_KEY", ""),
			BaseURL: getEnv("LLM_BASE_URL", "https://openrouter.ai/api/v1"),
			Model:   getEnv("LLM_MODEL", "deepseek/deepseek-chat"),
			SiteURL: getEnv("OPENROUTER_SITE_URL", ""),
			AppName: getEnv("OPENROUTER_APP_NAME", ""),
		},
		TelemetryAddr: getEnv("TELEMETRY_ADDR", ""),
	}

	var errs []error
	parseBool := func(key, def string) bool {
		v, err := strconv.ParseBool(getEnv(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return v
	}
	parseInt := func(key, def string) int {
		v, err := strconv.Atoi(getEnv(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return v
	}
	parseDuration := func(key, def string) time.Duration {
		v, err := time.ParseDuration(getEnv(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return v
	}

	cfg.AdminOnly = parseBool("ADMIN_ONLY", "true")
	cfg.RunJobsOnStart = parseBool("SCHEDULER_RUN_ON_START", "true")
	cfg.PublishHour = parseInt("PUBLISH_HOUR", "12")
	cfg.ChannelSendsPerMin = parseInt("CHANNEL_SENDS_PER_MINUTE", "20")
	cfg.LLM.Timeout = parseDuration("LLM_TIMEOUT", "60s")
	cfg.PublishTimeout = parseDuration("PUBLISH_TIMEOUT", "30s")
	cfg.PublishInterval = parseDuration("PUBLISH_INTERVAL", "60m")
	cfg.MetricsInterval = parseDuration("METRICS_INTERVAL", "24h")
	cfg.MetricsDelay = parseDuration("METRICS_DELAY", "24h")
	cfg.PendingTopicTTL = parseDuration("PENDING_TOPIC_TTL", "10m")
	if len(errs) > 0 {
		return nil, errs[0]
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SentryDSN == "" {
		log.Println("Warning: SENTRY_DSN is not set. Error tracking disabled.")
	}
	return cfg, nil
}

// Validate checks the essential variables.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.ChannelID == 0 {
		return fmt.Errorf("CHANNEL_ID is required")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.PublishHour < 0 || c.PublishHour > 23 {
		return fmt.Errorf("PUBLISH_HOUR must be between 0 and 23, got %d", c.PublishHour)
	}
	if c.ChannelSendsPerMin <= 0 {
		return fmt.Errorf("CHANNEL_SENDS_PER_MINUTE must be positive")
	}
	for name, d := range map[string]time.Duration{
		"PUBLISH_INTERVAL":  c.PublishInterval,
		"METRICS_INTERVAL":  c.MetricsInterval,
		"PUBLISH_TIMEOUT":   c.PublishTimeout,
		"LLM_TIMEOUT":       c.LLM.Timeout,
		"PENDING_TOPIC_TTL": c.PendingTopicTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.MetricsDelay < 0 {
		return fmt.Errorf("METRICS_DELAY must not be negative")
	}

	switch c.StoreDriver {
	case StoreMongo:
		if c.MongoDBURI == "" {
			return fmt.Errorf("MONGODB_URI is required")
		}
		if c.MongoDBDatabase == "" {
			return fmt.Errorf("MONGODB_DATABASE is required")
		}
	case StorePostgres:
		if c.Postgres.Host == "" || c.Postgres.DBName == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required for the postgres store")
		}
	case StoreMemory:
		log.Println("Warning: STORE_DRIVER=memory, state is lost on restart")
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
