package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	SLA          SLAConfig
	Outbox       OutboxConfig
	Feed         FeedConfig
	Directory    DirectoryConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr selects the
// in-process realtime broker.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level    string
	Encoding string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig controls channel adapters.
type NotificationConfig struct {
	EmailFrom           string
	MailEndpoint        string
	MailTimeoutSeconds  int
	MailMaxRetries      int
	MailRetryBackoffMs  int
	DeliveryConcurrency int
}

// SLAConfig holds the priority thresholds used by SLA classification and the sweep.
type SLAConfig struct {
	LowHours      int
	MediumHours   int
	HighHours     int
	UrgentHours   int
	AtRiskRatio   float64
	SweepSchedule string
	Timezone      string
	PolicyFile    string
}

// OutboxConfig tunes the outbox relay.
type OutboxConfig struct {
	PollIntervalMs int
	BatchSize      int
	ConsumerName   string
}

// FeedConfig tunes the change-feed watcher.
type FeedConfig struct {
	Enabled          bool
	SnapshotLimit    int
	ReconnectDelayMs int
}

// DirectoryConfig points at a YAML user directory used to seed the in-memory
// store when Postgres is not configured.
type DirectoryConfig struct {
	SeedFile string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	atRisk, err := strconv.ParseFloat(getEnv("SLA_AT_RISK_RATIO", "0.75"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SLA_AT_RISK_RATIO: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-workflow"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:          os.Getenv("REDIS_ADDR"),
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            redisDB,
			ChannelPrefix: getEnv("REDIS_CHANNEL_PREFIX", "notifications"),
		},
		Logger: LoggerConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			EmailFrom:           getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			MailEndpoint:        os.Getenv("NOTIFY_MAIL_ENDPOINT"),
			MailTimeoutSeconds:  getEnvAsInt("NOTIFY_MAIL_TIMEOUT_SECONDS", 10),
			MailMaxRetries:      getEnvAsInt("NOTIFY_MAIL_MAX_RETRIES", 3),
			MailRetryBackoffMs:  getEnvAsInt("NOTIFY_MAIL_RETRY_BACKOFF_MS", 500),
			DeliveryConcurrency: getEnvAsInt("NOTIFY_DELIVERY_CONCURRENCY", 8),
		},
		SLA: SLAConfig{
			LowHours:      getEnvAsInt("SLA_LOW_HOURS", 48),
			MediumHours:   getEnvAsInt("SLA_MEDIUM_HOURS", 24),
			HighHours:     getEnvAsInt("SLA_HIGH_HOURS", 12),
			UrgentHours:   getEnvAsInt("SLA_URGENT_HOURS", 2),
			AtRiskRatio:   atRisk,
			SweepSchedule: getEnv("SLA_SWEEP_SCHEDULE", "*/5 * * * *"),
			Timezone:      getEnv("SLA_TIMEZONE", "UTC"),
			PolicyFile:    os.Getenv("SLA_POLICY_FILE"),
		},
		Outbox: OutboxConfig{
			PollIntervalMs: getEnvAsInt("OUTBOX_POLL_INTERVAL_MS", 500),
			BatchSize:      getEnvAsInt("OUTBOX_BATCH_SIZE", 100),
			ConsumerName:   getEnv("OUTBOX_CONSUMER", "notification-dispatcher"),
		},
		Feed: FeedConfig{
			Enabled:          getEnvAsBool("FEED_ENABLED", true),
			SnapshotLimit:    getEnvAsInt("FEED_SNAPSHOT_LIMIT", 200),
			ReconnectDelayMs: getEnvAsInt("FEED_RECONNECT_DELAY_MS", 1000),
		},
		Directory: DirectoryConfig{
			SeedFile: os.Getenv("USER_DIRECTORY_FILE"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the lifetime of issued bearer tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// MailTimeout returns the HTTP timeout for the mail collaborator.
func (n NotificationConfig) MailTimeout() time.Duration {
	return time.Duration(n.MailTimeoutSeconds) * time.Second
}

// MailRetryBackoff returns the base delay between mail attempts.
func (n NotificationConfig) MailRetryBackoff() time.Duration {
	return time.Duration(n.MailRetryBackoffMs) * time.Millisecond
}

// PollInterval returns the relay tick.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(o.PollIntervalMs) * time.Millisecond
}

// ReconnectDelay returns the base backoff for a dropped feed connection.
func (f FeedConfig) ReconnectDelay() time.Duration {
	if f.ReconnectDelayMs <= 0 {
		return time.Second
	}
	return time.Duration(f.ReconnectDelayMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
