package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all environment configuration values for the chat client.
// These values are loaded from a .env file at startup when one is present.
type Config struct {
	// APIBaseURL is the root of the chat REST backend, e.g. https://api.example.com/api
	APIBaseURL string `env:"API_BASE_URL"`

	// WSURL is the realtime gateway endpoint, e.g. wss://api.example.com/ws
	WSURL string `env:"WS_URL"`

	// AuthToken is the session token issued by the platform's auth service
	AuthToken string `env:"AUTH_TOKEN"`

	// Port is where the local UI API listens
	Port string `env:"PORT" envDefault:"8090"`

	// CORSOrigins lists the UI origins allowed to call the local API
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:3000"`

	LogDev bool `env:"LOG_DEV" envDefault:"false"`

	// Reconnection policy for the realtime connection
	MaxReconnectAttempts uint64        `env:"WS_MAX_RECONNECT_ATTEMPTS" envDefault:"5"`
	ReconnectDelay       time.Duration `env:"WS_RECONNECT_DELAY" envDefault:"1s"`
	ReconnectMaxDelay    time.Duration `env:"WS_RECONNECT_MAX_DELAY" envDefault:"5s"`

	// TypingQuietPeriod is the silence after the last keystroke before typing-stop is sent
	TypingQuietPeriod time.Duration `env:"TYPING_QUIET_PERIOD" envDefault:"2s"`

	// SendGuardGrace keeps a send's dedup key reserved after it completes
	SendGuardGrace time.Duration `env:"SEND_GUARD_GRACE" envDefault:"500ms"`

	// SendTimeout bounds one send request. Sends are not tied to the UI request that started them.
	SendTimeout time.Duration `env:"SEND_TIMEOUT" envDefault:"30s"`

	// MatchTolerance bounds the content+timestamp fallback match
	MatchTolerance time.Duration `env:"MATCH_TOLERANCE" envDefault:"5s"`

	PageSize int `env:"PAGE_SIZE" envDefault:"50"`

	APITimeout         time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
	APIRetryMaxElapsed time.Duration `env:"API_RETRY_MAX_ELAPSED" envDefault:"5s"`

	// ResyncInterval is how often the conversation list is refetched. Zero disables it.
	ResyncInterval time.Duration `env:"RESYNC_INTERVAL" envDefault:"60s"`
}

// Load reads a .env file if present, then environment variables, and returns
// a populated Config. A missing .env file is not an error since production
// runs with real environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("PAGE_SIZE must be positive, got %d", cfg.PageSize)
	}
	return cfg, nil
}

// Warnings lists missing settings the client can start without but cannot sync without.
func (c *Config) Warnings() []string {
	var out []string
	if c.APIBaseURL == "" {
		out = append(out, "API_BASE_URL is not set")
	}
	if c.WSURL == "" {
		out = append(out, "WS_URL is not set")
	}
	if c.AuthToken == "" {
		out = append(out, "AUTH_TOKEN is not set")
	}
	return out
}
