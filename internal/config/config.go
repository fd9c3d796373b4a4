// Package config loads the chat server settings from defaults, an optional
// .env file and environment variables.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// RateLimitConfig bounds how many chat lines one session may send. A zero
// Burst or Interval disables limiting.
type RateLimitConfig struct {
	Burst    int
	Interval time.Duration
}

func (r RateLimitConfig) Enabled() bool {
	return r.Burst > 0 && r.Interval > 0
}

// Config holds every tunable of the chat server. Values are fixed for the
// lifetime of the process.
type Config struct {
	Addr            string
	MetricsAddr     string
	Rooms           int
	MaxConnections  int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	OutboxSize      int
	MaxMessageLen   int
	MaxUsernameLen  int
	RateLimit       RateLimitConfig
	ShutdownTimeout time.Duration
	LogLevel        slog.Level
}

// Default returns the reference deployment: three rooms on port 8888.
// ReadTimeout is zero, so idle clients stay connected indefinitely. Rate
// limiting and message truncation are off, so every chat line is relayed
// as typed.
func Default() Config {
	return Config{
		Addr:            ":8888",
		MetricsAddr:     ":9090",
		Rooms:           3,
		MaxConnections:  256,
		ReadTimeout:     0,
		WriteTimeout:    10 * time.Second,
		OutboxSize:      64,
		MaxMessageLen:   0,
		MaxUsernameLen:  16,
		RateLimit:       RateLimitConfig{},
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        slog.LevelInfo,
	}
}

// FromEnv builds a Config from the environment, loading .env first if it
// exists. Unset or unparsable variables keep their default.
func FromEnv() Config {
	// missing .env is the normal case outside development
	_ = godotenv.Load()

	cfg := Default()

	cfg.Addr = getString("CHAT_ADDR", cfg.Addr)
	cfg.MetricsAddr = getString("METRICS_ADDR", cfg.MetricsAddr)
	cfg.Rooms = getInt("CHAT_ROOMS", cfg.Rooms)
	cfg.MaxConnections = getInt("MAX_CONNECTIONS", cfg.MaxConnections)
	cfg.ReadTimeout = getDuration("READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = getDuration("WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.OutboxSize = getInt("OUTBOX_SIZE", cfg.OutboxSize)
	cfg.MaxMessageLen = getInt("MAX_MESSAGE_LEN", cfg.MaxMessageLen)
	cfg.MaxUsernameLen = getInt("MAX_USERNAME_LEN", cfg.MaxUsernameLen)
	cfg.RateLimit.Burst = getInt("RATE_LIMIT_BURST", cfg.RateLimit.Burst)
	cfg.RateLimit.Interval = getDuration("RATE_LIMIT_INTERVAL", cfg.RateLimit.Interval)
	cfg.ShutdownTimeout = getDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.LogLevel = getLevel("LOG_LEVEL", cfg.LogLevel)

	return cfg.Sanitize()
}

// Sanitize replaces invalid values with defaults. Negative limits become
// zero, which switches the feature off.
func (c Config) Sanitize() Config {
	def := Default()

	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.Rooms <= 0 {
		c.Rooms = def.Rooms
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = def.MaxConnections
	}
	if c.ReadTimeout < 0 {
		c.ReadTimeout = 0
	}
	if c.WriteTimeout < 0 {
		c.WriteTimeout = 0
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = def.OutboxSize
	}
	if c.MaxMessageLen < 0 {
		c.MaxMessageLen = 0
	}
	if c.MaxUsernameLen <= 0 {
		c.MaxUsernameLen = def.MaxUsernameLen
	}
	if c.RateLimit.Burst < 0 {
		c.RateLimit.Burst = 0
	}
	if c.RateLimit.Interval < 0 {
		c.RateLimit.Interval = 0
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	return c
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring invalid integer", "key", key, "value", v)
		return fallback
	}
	return n
}

// getDuration accepts Go duration syntax ("15s") or a bare number of seconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	slog.Warn("ignoring invalid duration", "key", key, "value", v)
	return fallback
}

func getLevel(key string, fallback slog.Level) slog.Level {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		slog.Warn("ignoring invalid log level", "key", key, "value", v)
		return fallback
	}
	return lvl
}
