// Package config loads and sanitizes the server runtime configuration from
// environment variables.
package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
)

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string        `env:"SERVER_PORT,default=:8080"`
	JWTSecret       string        `env:"JWT_SECRET,required=true"`
	TokenTTL        time.Duration `env:"TOKEN_TTL,default=2h"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	BadgerFilepath  string        `env:"BADGER_FILEPATH,default=./data/chat"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE,default=4096"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST,default=5"`
	RateLimitRefill time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// ErrMissingSecret is returned when JWT_SECRET is absent or empty; the server
// refuses to start without a signing key.
var ErrMissingSecret = errors.New("JWT_SECRET must be set")

// Load reads the configuration from the process environment and applies
// defaults for any zero values that slipped through.
func Load() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, err
	}
	return sanitize(cfg)
}

func sanitize(cfg Config) (Config, error) {
	if cfg.JWTSecret == "" {
		return Config{}, ErrMissingSecret
	}
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 2 * time.Hour
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 5
	}
	if cfg.RateLimitRefill <= 0 {
		cfg.RateLimitRefill = time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return cfg, nil
}

// Origins splits the configured comma-separated origin allow-list.
func (c Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// ParseLogLevel maps a configured level name onto a slog level, defaulting to
// info for anything unrecognized.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
