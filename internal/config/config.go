package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Redis    RedisConfig    `yaml:"redis"`
	Waitlist WaitlistConfig `yaml:"waitlist"`
	Token    TokenConfig    `yaml:"token"`
	SES      SESConfig      `yaml:"ses"`
	Webhooks WebhookConfig  `yaml:"webhooks"`
	SQS      SQSConfig      `yaml:"sqs"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	PublicBaseURL  string   `yaml:"public_base_url"` // used to build confirmation links
	AllowedOrigins []string `yaml:"allowed_origins"`
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

// StoreConfig selects and configures the key-value backend
type StoreConfig struct {
	Type          string `yaml:"type"` // "redis", "postgres", "dynamodb", "memory"
	DatabaseURL   string `yaml:"database_url"`
	Table         string `yaml:"table"` // postgres table name
	DynamoDBTable string `yaml:"dynamodb_table"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // Empty string uses default credential chain
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StoreConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// RedisConfig holds Redis connection settings. Redis backs the KV store when
// store.type is "redis", and always backs locks and rate limiting when set.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// WaitlistConfig holds queue, referral, and rate limit tuning
type WaitlistConfig struct {
	SignupsPerWindow  int `yaml:"signups_per_window"`
	WindowSeconds     int `yaml:"window_seconds"`
	ReferralBoostMin  int `yaml:"referral_boost_min"`
	ReferralBoostMax  int `yaml:"referral_boost_max"`
	LockTTLSeconds    int `yaml:"lock_ttl_seconds"`
	NotifyWorkers     int `yaml:"notify_workers"`
	NotifyQueueSize   int `yaml:"notify_queue_size"`
	RecentWindowHours int `yaml:"recent_window_hours"`
}

// Window returns the rate-limit window as a duration
func (c WaitlistConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// LockTTL returns the keyed lock lease as a duration
func (c WaitlistConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// RecentWindow returns the lookback used for recentSignups
func (c WaitlistConfig) RecentWindow() time.Duration {
	return time.Duration(c.RecentWindowHours) * time.Hour
}

// TokenConfig holds confirmation token settings
type TokenConfig struct {
	Secret   string `yaml:"secret"`
	TTLHours int    `yaml:"ttl_hours"`
}

// TTL returns the token lifetime as a duration
func (c TokenConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// SESConfig holds AWS SES settings for outbound confirmation mail
type SESConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
	ReplyTo        string `yaml:"reply_to"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WebhookConfig holds outbound webhook targets
type WebhookConfig struct {
	URLs           []string `yaml:"urls"`
	SigningSecret  string   `yaml:"signing_secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	MaxRetries     int      `yaml:"max_retries"`
}

// Timeout returns the per-attempt timeout as a duration
func (c WebhookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SQSConfig holds the event queue settings
type SQSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	QueueURL string `yaml:"queue_url"`
	Region   string `yaml:"region"`
}

// AuthConfig holds Google OAuth settings for the admin console
type AuthConfig struct {
	Enabled            bool   `yaml:"enabled"`
	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`
	AllowedDomain      string `yaml:"allowed_domain"`
	SessionSecret      string `yaml:"session_secret"` // signs session cookies
	CookieName         string `yaml:"cookie_name"`
	CookieMaxAge       int    `yaml:"cookie_max_age"`
	DevMode            bool   `yaml:"dev_mode"` // skips the admin gate
}

// LoggingConfig holds structured logger settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.PublicBaseURL == "" {
		cfg.Server.PublicBaseURL = "http://localhost:8080"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = "memory"
	}
	if cfg.Store.Table == "" {
		cfg.Store.Table = "kv_store"
	}
	if cfg.Store.AWSRegion == "" {
		cfg.Store.AWSRegion = "us-east-1"
	}
	if cfg.Waitlist.SignupsPerWindow == 0 {
		cfg.Waitlist.SignupsPerWindow = 5
	}
	if cfg.Waitlist.WindowSeconds == 0 {
		cfg.Waitlist.WindowSeconds = 3600
	}
	if cfg.Waitlist.ReferralBoostMin == 0 {
		cfg.Waitlist.ReferralBoostMin = 3
	}
	if cfg.Waitlist.ReferralBoostMax == 0 {
		cfg.Waitlist.ReferralBoostMax = 10
	}
	if cfg.Waitlist.LockTTLSeconds == 0 {
		cfg.Waitlist.LockTTLSeconds = 10
	}
	if cfg.Waitlist.NotifyWorkers == 0 {
		cfg.Waitlist.NotifyWorkers = 4
	}
	if cfg.Waitlist.NotifyQueueSize == 0 {
		cfg.Waitlist.NotifyQueueSize = 1000
	}
	if cfg.Waitlist.RecentWindowHours == 0 {
		cfg.Waitlist.RecentWindowHours = 24
	}
	if cfg.Token.TTLHours == 0 {
		cfg.Token.TTLHours = 24
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 15
	}
	if cfg.SES.FromName == "" {
		cfg.SES.FromName = "The Waitlist Team"
	}
	if cfg.Webhooks.TimeoutSeconds == 0 {
		cfg.Webhooks.TimeoutSeconds = 10
	}
	if cfg.Webhooks.MaxRetries == 0 {
		cfg.Webhooks.MaxRetries = 3
	}
	if cfg.SQS.Region == "" {
		cfg.SQS.Region = cfg.Store.AWSRegion
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "waitlist_admin"
	}
	if cfg.Auth.CookieMaxAge == 0 {
		cfg.Auth.CookieMaxAge = 8 * 3600
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("STORE_TYPE"); v != "" {
		cfg.Store.Type = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.DatabaseURL = v
	}
	if v := os.Getenv("DYNAMODB_TABLE"); v != "" {
		cfg.Store.DynamoDBTable = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("TOKEN_SECRET"); v != "" {
		cfg.Token.Secret = v
	}
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
		cfg.Server.PublicBaseURL = v
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
	if v := os.Getenv("WEBHOOK_URLS"); v != "" {
		cfg.Webhooks.URLs = splitList(v)
	}
	if v := os.Getenv("WEBHOOK_SIGNING_SECRET"); v != "" {
		cfg.Webhooks.SigningSecret = v
	}
	if v := os.Getenv("SQS_QUEUE_URL"); v != "" {
		cfg.SQS.QueueURL = v
		cfg.SQS.Enabled = true
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Auth.GoogleClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Auth.GoogleClientSecret = v
	}
	if v := os.Getenv("AUTH_ALLOWED_DOMAIN"); v != "" {
		cfg.Auth.AllowedDomain = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.Auth.SessionSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
