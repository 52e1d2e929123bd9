// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultPipecatAPIBase is the public session-start API of Pipecat Cloud.
const DefaultPipecatAPIBase = "https://api.pipecat.daily.co/v1/public"

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DBPath         string
	LevelsFile     string // optional YAML catalog override
	AllowedOrigins []string
	Pipecat        PipecatConfig
	Call           CallConfig
	Session        SessionConfig
	RateLimit      RateLimitConfig
}

// PipecatConfig holds the cloud voice-agent credentials used by the connect proxy.
type PipecatConfig struct {
	AgentName      string
	APIKey         string
	APIBase        string
	ConnectTimeout time.Duration
	// ClientAPIBase is the base URL the browser SDK uses for its own endpoints.
	ClientAPIBase string
}

// CallConfig controls the websocket call relay.
type CallConfig struct {
	CommandTimeout time.Duration
}

// SessionConfig controls in-memory tab session lifetime.
type SessionConfig struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// RateLimitConfig throttles calls to the connect proxy per user.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/voicelab.db"),
		LevelsFile:     getEnv("LEVELS_FILE", ""),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		Pipecat: PipecatConfig{
			AgentName:      getEnv("AGENT_NAME", ""),
			APIKey:         getEnv("PIPECAT_CLOUD_API_KEY", ""),
			APIBase:        strings.TrimRight(getEnv("PIPECAT_API_BASE", DefaultPipecatAPIBase), "/"),
			ConnectTimeout: getEnvDuration("CONNECT_TIMEOUT", 30*time.Second),
			ClientAPIBase:  getEnv("API_BASE_URL", "/api"),
		},
		Call: CallConfig{
			CommandTimeout: getEnvDuration("CALL_COMMAND_TIMEOUT", 60*time.Second),
		},
		Session: SessionConfig{
			IdleTTL:       getEnvDuration("SESSION_IDLE_TTL", 2*time.Hour),
			SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("CONNECT_RATE_LIMIT", 10),
			WindowDuration:    getEnvDuration("CONNECT_RATE_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
// Missing Pipecat credentials are not an error: the server still serves
// progress and screens, and the connect proxy fails closed.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Pipecat.APIBase == "" {
		return fmt.Errorf("PIPECAT_API_BASE cannot be empty")
	}
	if c.Pipecat.ConnectTimeout <= 0 {
		return fmt.Errorf("CONNECT_TIMEOUT must be > 0")
	}
	if c.Call.CommandTimeout <= 0 {
		return fmt.Errorf("CALL_COMMAND_TIMEOUT must be > 0")
	}
	if c.Session.IdleTTL <= 0 || c.Session.SweepInterval <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL and SESSION_SWEEP_INTERVAL must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("CONNECT_RATE_LIMIT must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("CONNECT_RATE_WINDOW must be > 0")
	}
	return nil
}

// PipecatConfigured reports whether the connect proxy has credentials.
func (c *Config) PipecatConfigured() bool {
	return c.Pipecat.AgentName != "" && c.Pipecat.APIKey != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
