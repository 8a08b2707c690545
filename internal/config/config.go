package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Mailtrap     MailtrapConfig     `yaml:"mailtrap"`
	Validation   ValidationConfig   `yaml:"validation"`
	DNS          DNSConfig          `yaml:"dns"`
	Logging      LoggingConfig      `yaml:"logging"`
	Webhook      WebhookConfig      `yaml:"webhook"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting"`
	SES          SESConfig          `yaml:"ses"`
	Events       EventsConfig       `yaml:"events"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig selects and configures the relational store.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // postgres, sqlite or memory
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig enables cross-instance locks and rate limits when URL is set.
type RedisConfig struct {
	URL            string `yaml:"url"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
}

// LockTTL returns the per-address lock TTL
func (c RedisConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// MailtrapConfig holds Mailtrap API configuration
type MailtrapConfig struct {
	APIToken       string `yaml:"api_token"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c MailtrapConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ValidationConfig controls the validation cache and send-time blocking.
type ValidationConfig struct {
	Enabled              bool `yaml:"enabled"`
	CacheDurationSeconds int  `yaml:"cache_duration_seconds"` // 0 keeps verdicts forever
	RetryAttempts        int  `yaml:"retry_attempts"`
	BlockInvalid         bool `yaml:"block_invalid"`
	UseProviderAPI       bool `yaml:"use_provider_api"`
}

// CacheDuration returns the verdict freshness window
func (c ValidationConfig) CacheDuration() time.Duration {
	return time.Duration(c.CacheDurationSeconds) * time.Second
}

// DNSConfig bounds MX and host lookups.
type DNSConfig struct {
	TimeoutMS int `yaml:"timeout_ms"`
}

// Timeout returns the per-lookup timeout
func (c DNSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// LoggingConfig controls the mail log and the process logger.
type LoggingConfig struct {
	Enabled          bool   `yaml:"enabled"`
	LogSuccessful    bool   `yaml:"log_successful"`
	LogFailed        bool   `yaml:"log_failed"`
	CleanupAfterDays int    `yaml:"cleanup_after_days"` // 0 disables retention
	Level            string `yaml:"level"`
}

// Retention returns how long mail log rows are kept
func (c LoggingConfig) Retention() time.Duration {
	return time.Duration(c.CleanupAfterDays) * 24 * time.Hour
}

// WebhookConfig holds provider webhook settings.
type WebhookConfig struct {
	Enabled             bool   `yaml:"enabled"`
	Secret              string `yaml:"secret"`
	VerifySignature     bool   `yaml:"verify_signature"`
	BatchTimeoutSeconds int    `yaml:"batch_timeout_seconds"`
	EventTimeoutMS      int    `yaml:"event_timeout_ms"`
	MaxBodyBytes        int64  `yaml:"max_body_bytes"`
}

// BatchTimeout returns the whole-batch deadline
func (c WebhookConfig) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutSeconds) * time.Second
}

// EventTimeout returns the per-event deadline
func (c WebhookConfig) EventTimeout() time.Duration {
	return time.Duration(c.EventTimeoutMS) * time.Millisecond
}

// RateLimitingConfig caps provider API calls.
type RateLimitingConfig struct {
	Enabled              bool `yaml:"enabled"`
	MaxRequestsPerMinute int  `yaml:"max_requests_per_minute"`
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	FromAddress    string `yaml:"from_address"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EventsConfig configures the SQS status-change publisher. Empty QueueURL
// disables publishing.
type EventsConfig struct {
	SQSQueueURL string `yaml:"sqs_queue_url"`
	Region      string `yaml:"region"`
}

// defaults is the file every Load starts from, so booleans that default to
// true stay true unless the YAML says otherwise.
func defaults() Config {
	return Config{
		Server:   ServerConfig{Port: 8080, Host: "localhost"},
		Database: DatabaseConfig{Driver: "postgres", MaxOpenConns: 10},
		Redis:    RedisConfig{LockTTLSeconds: 30},
		Mailtrap: MailtrapConfig{
			BaseURL:        "https://api.mailtrap.io/api/v1",
			TimeoutSeconds: 30,
		},
		Validation: ValidationConfig{
			Enabled:       true,
			RetryAttempts: 3,
		},
		DNS: DNSConfig{TimeoutMS: 3000},
		Logging: LoggingConfig{
			Enabled:          true,
			LogSuccessful:    true,
			LogFailed:        true,
			CleanupAfterDays: 30,
			Level:            "info",
		},
		Webhook: WebhookConfig{
			Enabled:             true,
			VerifySignature:     true,
			BatchTimeoutSeconds: 25,
			EventTimeoutMS:      2000,
			MaxBodyBytes:        5 << 20,
		},
		RateLimiting: RateLimitingConfig{Enabled: true, MaxRequestsPerMinute: 60},
		SES:          SESConfig{Region: "us-west-2", TimeoutSeconds: 30},
	}
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	cfg := defaults()
	cfg.Events.Region = cfg.SES.Region
	return &cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Zero values written explicitly in YAML fall back to defaults
	d := defaults()
	if cfg.Server.Port == 0 {
		cfg.Server.Port = d.Server.Port
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = d.Server.Host
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = d.Database.Driver
	}
	if cfg.Mailtrap.BaseURL == "" {
		cfg.Mailtrap.BaseURL = d.Mailtrap.BaseURL
	}
	if cfg.Mailtrap.TimeoutSeconds == 0 {
		cfg.Mailtrap.TimeoutSeconds = d.Mailtrap.TimeoutSeconds
	}
	if cfg.DNS.TimeoutMS == 0 {
		cfg.DNS.TimeoutMS = d.DNS.TimeoutMS
	}
	if cfg.Webhook.BatchTimeoutSeconds == 0 {
		cfg.Webhook.BatchTimeoutSeconds = d.Webhook.BatchTimeoutSeconds
	}
	if cfg.Webhook.EventTimeoutMS == 0 {
		cfg.Webhook.EventTimeoutMS = d.Webhook.EventTimeoutMS
	}
	if cfg.Webhook.MaxBodyBytes == 0 {
		cfg.Webhook.MaxBodyBytes = d.Webhook.MaxBodyBytes
	}
	if cfg.RateLimiting.MaxRequestsPerMinute == 0 {
		cfg.RateLimiting.MaxRequestsPerMinute = d.RateLimiting.MaxRequestsPerMinute
	}
	if cfg.Redis.LockTTLSeconds == 0 {
		cfg.Redis.LockTTLSeconds = d.Redis.LockTTLSeconds
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = d.SES.Region
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = d.SES.TimeoutSeconds
	}
	if cfg.Events.Region == "" {
		cfg.Events.Region = cfg.SES.Region
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets
// can live in .env locally and in real env vars in deployment. An empty
// path starts from Default.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("MAILTRAP_API_TOKEN"); v != "" {
		cfg.Mailtrap.APIToken = v
	}
	if v := os.Getenv("MAILTRAP_BASE_URL"); v != "" {
		cfg.Mailtrap.BaseURL = v
	}
	if v := os.Getenv("MAILTRAP_WEBHOOK_SECRET"); v != "" {
		cfg.Webhook.Secret = v
	}
	if v, ok := envInt("MAILTRAP_VALIDATION_CACHE_DURATION"); ok {
		cfg.Validation.CacheDurationSeconds = v
	}
	if v, ok := envBool("MAILTRAP_BLOCK_INVALID_EMAILS"); ok {
		cfg.Validation.BlockInvalid = v
	}

	// Database override (deployments keep local defaults in config.yaml)
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}

	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("AWS_SES_FROM_ADDRESS"); v != "" {
		cfg.SES.FromAddress = v
	}
	if v := os.Getenv("EVENTS_SQS_QUEUE_URL"); v != "" {
		cfg.Events.SQSQueueURL = v
	}

	return cfg, nil
}

func envInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
