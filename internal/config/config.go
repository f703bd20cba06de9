// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Model providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Usage store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	Port                string
	SiteURL             string
	MaxRequestBodyBytes int64
	HealthCheckTimeout  time.Duration

	LLM       LLMConfig
	License   LicenseConfig
	RateLimit RateLimitConfig

	ConversationLog ConversationLogConfig
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	Provider         string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string
	AnthropicVersion string
	GeminiAPIKey     string
	GeminiModel      string
	MaxTokens        int
	MaxRetries       int
	Timeout          time.Duration
}

// LicenseConfig configures the Lemon Squeezy integration.
type LicenseConfig struct {
	APIKey        string
	BaseURL       string
	WebhookSecret string
}

// RateLimitConfig controls per-identity usage limits.
type RateLimitConfig struct {
	Enabled         bool
	Backend         string
	DBPath          string
	RedisURL        string
	CleanupInterval time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled          bool
	Dir              string
	GlobalEnabled    bool
	GlobalPath       string
	QueueSize        int
	GlobalMaxSizeMB  int
	GlobalMaxBackups int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		SiteURL:             getEnv("SITE_URL", ""),
		MaxRequestBodyBytes: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		HealthCheckTimeout:  getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
		LLM: LLMConfig{
			Provider:         strings.ToLower(getEnv("LLM_PROVIDER", ProviderAnthropic)),
			AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicBaseURL: getEnv("ANTHROPIC_API_URL", "https://api.anthropic.com"),
			AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-3-haiku-20240307"),
			AnthropicVersion: getEnv("ANTHROPIC_VERSION", "2023-06-01"),
			GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
			GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			MaxTokens:        getEnvInt("LLM_MAX_TOKENS", 1024),
			MaxRetries:       getEnvInt("LLM_MAX_RETRIES", 0),
			Timeout:          getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		},
		License: LicenseConfig{
			APIKey:        getEnv("LEMON_SQUEEZY_API_KEY", ""),
			BaseURL:       getEnv("LEMON_SQUEEZY_API_URL", "https://api.lemonsqueezy.com"),
			WebhookSecret: getEnv("LEMON_SQUEEZY_WEBHOOK_SECRET", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvBool("RATE_LIMIT_ENABLED", false),
			Backend:         strings.ToLower(getEnv("RATE_LIMIT_BACKEND", BackendMemory)),
			DBPath:          getEnv("RATE_LIMIT_DB_PATH", "./data/usage.db"),
			RedisURL:        getEnv("REDIS_URL", ""),
			CleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 10*time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:          getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:              getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled:    getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:       getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:        queueSize,
			GlobalMaxSizeMB:  getEnvInt("CONVERSATION_LOG_GLOBAL_MAX_SIZE_MB", 100),
			GlobalMaxBackups: getEnvInt("CONVERSATION_LOG_GLOBAL_MAX_BACKUPS", 5),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Port == "" {
		result = multierror.Append(result, errors.New("PORT cannot be empty"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		result = multierror.Append(result, errors.New("MAX_REQUEST_BODY_BYTES must be > 0"))
	}

	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderGemini:
	default:
		result = multierror.Append(result, fmt.Errorf("LLM_PROVIDER must be %q or %q, got %q", ProviderAnthropic, ProviderGemini, c.LLM.Provider))
	}
	if c.LLM.MaxTokens <= 0 {
		result = multierror.Append(result, errors.New("LLM_MAX_TOKENS must be > 0"))
	}
	if c.LLM.MaxRetries < 0 {
		result = multierror.Append(result, errors.New("LLM_MAX_RETRIES must be >= 0"))
	}
	if c.LLM.Timeout <= 0 {
		result = multierror.Append(result, errors.New("LLM_TIMEOUT must be > 0"))
	}

	if c.RateLimit.Enabled {
		switch c.RateLimit.Backend {
		case BackendMemory:
		case BackendSQLite:
			if c.RateLimit.DBPath == "" {
				result = multierror.Append(result, errors.New("RATE_LIMIT_DB_PATH cannot be empty with the sqlite backend"))
			}
		case BackendRedis:
			if c.RateLimit.RedisURL == "" {
				result = multierror.Append(result, errors.New("REDIS_URL cannot be empty with the redis backend"))
			}
		default:
			result = multierror.Append(result, fmt.Errorf("RATE_LIMIT_BACKEND must be memory, sqlite or redis, got %q", c.RateLimit.Backend))
		}
		if c.RateLimit.CleanupInterval <= 0 {
			result = multierror.Append(result, errors.New("RATE_LIMIT_CLEANUP_INTERVAL must be > 0"))
		}
	}

	if c.ConversationLog.Enabled {
		if c.ConversationLog.Dir == "" {
			result = multierror.Append(result, errors.New("CONVERSATION_LOG_DIR cannot be empty"))
		}
		if c.ConversationLog.GlobalEnabled && c.ConversationLog.GlobalPath == "" {
			result = multierror.Append(result, errors.New("CONVERSATION_LOG_GLOBAL_PATH cannot be empty"))
		}
	}

	return result.ErrorOrNil()
}

// ModelConfigured reports whether the selected provider has an API key.
func (c *Config) ModelConfigured() bool {
	switch c.LLM.Provider {
	case ProviderGemini:
		return c.LLM.GeminiAPIKey != ""
	default:
		return c.LLM.AnthropicAPIKey != ""
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.SiteURL == "" ||
		strings.Contains(c.SiteURL, "localhost") ||
		strings.Contains(c.SiteURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
