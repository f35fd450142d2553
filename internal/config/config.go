package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	IMAP     IMAPConfig
	SMTP     SMTPConfig
	Ingest   IngestConfig
	Kafka    KafkaConfig
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

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token verification parameters. Access tokens are issued
// by the external login service sharing the same secret.
type AuthConfig struct {
	JWTSecret  string
	BcryptCost int
}

// IMAPConfig holds the inbound mailbox connection values.
type IMAPConfig struct {
	Host           string
	Port           int
	UseSSL         bool
	Username       string
	Password       string
	Folder         string
	Search         string
	TimeoutSeconds int
}

// Addr returns the IMAP dial address.
func (c IMAPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Timeout returns the per-call IMAP timeout.
func (c IMAPConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SMTPConfig holds the outbound mail connection values.
type SMTPConfig struct {
	Host        string
	Port        int
	StartTLS    bool
	Username    string
	Password    string
	FromName    string
	FromAddress string
}

// IngestConfig tunes the email ingestion pipeline.
type IngestConfig struct {
	SendAutoreply       bool
	DefaultDepartmentID int64
	DefaultPriorityID   int64
	AddressMappingFile  string
	PollIntervalSeconds int
	MinBackoffSeconds   int
	MaxBackoffSeconds   int
	WebhookKey          string
	MailboxLockKey      string
	AttachmentDir       string
}

// PollInterval returns the pause between mailbox searches.
func (c IngestConfig) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// MinBackoff returns the initial reconnect backoff.
func (c IngestConfig) MinBackoff() time.Duration {
	if c.MinBackoffSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.MinBackoffSeconds) * time.Second
}

// MaxBackoff returns the reconnect backoff cap.
func (c IngestConfig) MaxBackoff() time.Duration {
	if c.MaxBackoffSeconds <= 0 {
		return 600 * time.Second
	}
	return time.Duration(c.MaxBackoffSeconds) * time.Second
}

// KafkaConfig holds the optional event stream sink values. Empty brokers
// disable the sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("AUTH_JWT_SECRET", "dev-secret"),
			BcryptCost: getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		IMAP: IMAPConfig{
			Host:           os.Getenv("IMAP_HOST"),
			Port:           getEnvAsInt("IMAP_PORT", 993),
			UseSSL:         getEnvAsBool("IMAP_USE_SSL", true),
			Username:       os.Getenv("IMAP_USER"),
			Password:       os.Getenv("IMAP_PASSWORD"),
			Folder:         getEnv("IMAP_FOLDER", "INBOX"),
			Search:         getEnv("IMAP_SEARCH", "UNSEEN"),
			TimeoutSeconds: getEnvAsInt("IMAP_TIMEOUT_SECONDS", 60),
		},
		SMTP: SMTPConfig{
			Host:        os.Getenv("SMTP_HOST"),
			Port:        getEnvAsInt("SMTP_PORT", 587),
			StartTLS:    getEnvAsBool("SMTP_STARTTLS", true),
			Username:    os.Getenv("SMTP_USER"),
			Password:    os.Getenv("SMTP_PASSWORD"),
			FromName:    getEnv("SMTP_FROM_NAME", "Support"),
			FromAddress: os.Getenv("SMTP_FROM_ADDRESS"),
		},
		Ingest: IngestConfig{
			SendAutoreply:       getEnvAsBool("INGEST_SEND_AUTOREPLY", true),
			DefaultDepartmentID: int64(getEnvAsInt("INGEST_DEFAULT_DEPARTMENT_ID", 1)),
			DefaultPriorityID:   int64(getEnvAsInt("INGEST_DEFAULT_PRIORITY_ID", 3)),
			AddressMappingFile:  getEnv("INGEST_ADDRESS_MAPPING_FILE", ""),
			PollIntervalSeconds: getEnvAsInt("INGEST_POLL_INTERVAL_SECONDS", 60),
			MinBackoffSeconds:   getEnvAsInt("INGEST_MIN_BACKOFF_SECONDS", 5),
			MaxBackoffSeconds:   getEnvAsInt("INGEST_MAX_BACKOFF_SECONDS", 600),
			WebhookKey:          os.Getenv("INGEST_WEBHOOK_KEY"),
			MailboxLockKey:      getEnv("INGEST_MAILBOX_LOCK_KEY", "helpdesk:mailbox-poller"),
			AttachmentDir:       getEnv("INGEST_ATTACHMENT_DIR", "attachments"),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_EVENTS_TOPIC", "helpdesk.ticket-events"),
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

func splitNonEmpty(val string) []string {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
