// Package config provides configuration for the support chat server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the server configuration.
type Config struct {
	// Server settings
	HTTPPort int `yaml:"http_port"`

	// Database
	DatabaseDriver string `yaml:"database_driver"`
	DatabaseURL    string `yaml:"database_url"`

	// Completion backend
	LLMProvider    string  `yaml:"llm_provider"`
	LLMBaseURL     string  `yaml:"llm_base_url"`
	LLMAPIKey      string  `yaml:"llm_api_key"`
	LLMModel       string  `yaml:"llm_model"`
	LLMMaxTokens   int     `yaml:"llm_max_tokens"`
	LLMTemperature float64 `yaml:"llm_temperature"`
	LLMTimeoutMS   int     `yaml:"llm_timeout_ms"`

	// Boundary
	ClientURL            string   `yaml:"client_url"`
	JWTSecret            string   `yaml:"jwt_secret"`
	AllowedOrigins       []string `yaml:"allowed_origins"`
	RateLimitWindowMS    int      `yaml:"rate_limit_window_ms"`
	RateLimitMaxRequests int      `yaml:"rate_limit_max_requests"`

	// Conversation
	ContextWindowSize  int    `yaml:"context_window_size"`
	MaxMessageLength   int    `yaml:"max_message_length"`
	MaxTurnsPerSession int    `yaml:"max_turns_per_session"`
	PolicyFile         string `yaml:"policy_file"`

	// WebSocket settings
	WSPingIntervalMS int   `yaml:"ws_ping_interval_ms"`
	WSWriteTimeoutMS int   `yaml:"ws_write_timeout_ms"`
	WSReadTimeoutMS  int   `yaml:"ws_read_timeout_ms"`
	WSMaxMessageSize int64 `yaml:"ws_max_message_size"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPPort:             5000,
		DatabaseDriver:       "sqlite3",
		DatabaseURL:          "file:supportchat.db?mode=rwc&_txlock=immediate&_busy_timeout=5000",
		LLMProvider:          "openrouter",
		LLMMaxTokens:         500,
		LLMTemperature:       0.7,
		LLMTimeoutMS:         30000,
		ClientURL:            "http://localhost:3000",
		RateLimitWindowMS:    15 * 60 * 1000,
		RateLimitMaxRequests: 100,
		ContextWindowSize:    10,
		MaxMessageLength:     1000,
		WSPingIntervalMS:     30000,
		WSWriteTimeoutMS:     10000,
		WSReadTimeoutMS:      60000,
		WSMaxMessageSize:     65536,
		LogLevel:             "info",
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPPort = getEnvInt("HTTP_PORT", getEnvInt("PORT", c.HTTPPort))
	c.DatabaseDriver = getEnv("DATABASE_DRIVER", c.DatabaseDriver)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)

	c.LLMProvider = getEnv("LLM_PROVIDER", c.LLMProvider)
	c.LLMBaseURL = getEnv("LLM_BASE_URL", c.LLMBaseURL)
	c.LLMAPIKey = getEnv("LLM_API_KEY", getEnv("OPENROUTER_API_KEY", c.LLMAPIKey))
	c.LLMModel = getEnv("LLM_MODEL", getEnv("AI_MODEL", c.LLMModel))
	c.LLMMaxTokens = getEnvInt("LLM_MAX_TOKENS", c.LLMMaxTokens)
	c.LLMTemperature = getEnvFloat("LLM_TEMPERATURE", c.LLMTemperature)
	c.LLMTimeoutMS = getEnvInt("LLM_TIMEOUT_MS", c.LLMTimeoutMS)

	c.ClientURL = getEnv("CLIENT_URL", c.ClientURL)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", c.AllowedOrigins)
	c.RateLimitWindowMS = getEnvInt("RATE_LIMIT_WINDOW_MS", c.RateLimitWindowMS)
	c.RateLimitMaxRequests = getEnvInt("RATE_LIMIT_MAX_REQUESTS", c.RateLimitMaxRequests)

	c.ContextWindowSize = getEnvInt("CONTEXT_WINDOW_SIZE", c.ContextWindowSize)
	c.MaxMessageLength = getEnvInt("MAX_MESSAGE_LENGTH", c.MaxMessageLength)
	c.MaxTurnsPerSession = getEnvInt("MAX_TURNS_PER_SESSION", c.MaxTurnsPerSession)
	c.PolicyFile = getEnv("POLICY_FILE", c.PolicyFile)

	c.WSPingIntervalMS = getEnvInt("WS_PING_INTERVAL_MS", c.WSPingIntervalMS)
	c.WSWriteTimeoutMS = getEnvInt("WS_WRITE_TIMEOUT_MS", c.WSWriteTimeoutMS)
	c.WSReadTimeoutMS = getEnvInt("WS_READ_TIMEOUT_MS", c.WSReadTimeoutMS)
	c.WSMaxMessageSize = int64(getEnvInt("WS_MAX_MESSAGE_SIZE", int(c.WSMaxMessageSize)))

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// validate checks that values are in range.
func (c *Config) validate() error {
	var errs []string
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Sprintf("http_port %d out of range", c.HTTPPort))
	}
	switch c.DatabaseDriver {
	case "sqlite3", "gorm-sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database_driver %q is not one of sqlite3, gorm-sqlite, mysql", c.DatabaseDriver))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, "database_url is required")
	}
	if c.LLMMaxTokens <= 0 {
		errs = append(errs, "llm_max_tokens must be positive")
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		errs = append(errs, "llm_temperature must be between 0 and 2")
	}
	if c.LLMTimeoutMS <= 0 {
		errs = append(errs, "llm_timeout_ms must be positive")
	}
	if c.ContextWindowSize <= 0 {
		errs = append(errs, "context_window_size must be positive")
	}
	if c.MaxMessageLength <= 0 {
		errs = append(errs, "max_message_length must be positive")
	}
	if c.MaxTurnsPerSession < 0 {
		errs = append(errs, "max_turns_per_session must not be negative")
	}
	if c.RateLimitWindowMS <= 0 || c.RateLimitMaxRequests <= 0 {
		errs = append(errs, "rate limit window and max requests must be positive")
	}
	if c.WSPingIntervalMS <= 0 || c.WSWriteTimeoutMS <= 0 || c.WSReadTimeoutMS <= 0 {
		errs = append(errs, "ws ping interval, write timeout and read timeout must be positive")
	} else if c.WSPingIntervalMS >= c.WSReadTimeoutMS {
		errs = append(errs, fmt.Sprintf("ws_ping_interval_ms %d must be below ws_read_timeout_ms %d", c.WSPingIntervalMS, c.WSReadTimeoutMS))
	}
	if c.WSMaxMessageSize <= 0 {
		errs = append(errs, "ws_max_message_size must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Origins returns the CORS allow-list. CLIENT_URL is always included.
func (c *Config) Origins() []string {
	origins := make([]string, 0, len(c.AllowedOrigins)+1)
	seen := make(map[string]bool)
	for _, o := range append([]string{c.ClientURL}, c.AllowedOrigins...) {
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		origins = append(origins, o)
	}
	return origins
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutMS) * time.Millisecond
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMS) * time.Millisecond
}

func (c *Config) WSPingInterval() time.Duration {
	return time.Duration(c.WSPingIntervalMS) * time.Millisecond
}

func (c *Config) WSWriteTimeout() time.Duration {
	return time.Duration(c.WSWriteTimeoutMS) * time.Millisecond
}

func (c *Config) WSReadTimeout() time.Duration {
	return time.Duration(c.WSReadTimeoutMS) * time.Millisecond
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
