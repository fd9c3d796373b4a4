package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var envKeys = []string{
	"CHAT_ADDR", "METRICS_ADDR", "CHAT_ROOMS", "MAX_CONNECTIONS",
	"READ_TIMEOUT", "WRITE_TIMEOUT", "OUTBOX_SIZE", "MAX_MESSAGE_LEN",
	"MAX_USERNAME_LEN", "RATE_LIMIT_BURST", "RATE_LIMIT_INTERVAL",
	"SHUTDOWN_TIMEOUT", "LOG_LEVEL",
}

// clearEnv blanks every key so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := FromEnv()
	assert.Equal(t, Default(), cfg)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAT_ADDR", "127.0.0.1:7000")
	t.Setenv("CHAT_ROOMS", "5")
	t.Setenv("MAX_CONNECTIONS", "8")
	t.Setenv("READ_TIMEOUT", "30s")
	t.Setenv("WRITE_TIMEOUT", "3")
	t.Setenv("RATE_LIMIT_BURST", "2")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := FromEnv()

	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
	assert.Equal(t, 5, cfg.Rooms)
	assert.Equal(t, 8, cfg.MaxConnections)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 3*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 2, cfg.RateLimit.Burst)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(t *testing.T, cfg Config)
	}{
		{
			name:  "non-numeric rooms",
			key:   "CHAT_ROOMS",
			value: "three",
			check: func(t *testing.T, cfg Config) { assert.Equal(t, 3, cfg.Rooms) },
		},
		{
			name:  "negative rooms",
			key:   "CHAT_ROOMS",
			value: "-1",
			check: func(t *testing.T, cfg Config) { assert.Equal(t, 3, cfg.Rooms) },
		},
		{
			name:  "bad duration",
			key:   "WRITE_TIMEOUT",
			value: "soon",
			check: func(t *testing.T, cfg Config) { assert.Equal(t, 10*time.Second, cfg.WriteTimeout) },
		},
		{
			name:  "bad log level",
			key:   "LOG_LEVEL",
			value: "loud",
			check: func(t *testing.T, cfg Config) { assert.Equal(t, slog.LevelInfo, cfg.LogLevel) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			tt.check(t, FromEnv())
		})
	}
}

func TestSanitize(t *testing.T) {
	cfg := Config{ReadTimeout: -time.Second}.Sanitize()

	def := Default()
	assert.Equal(t, def.Addr, cfg.Addr)
	assert.Equal(t, def.Rooms, cfg.Rooms)
	assert.Equal(t, def.OutboxSize, cfg.OutboxSize)
	assert.Equal(t, def.RateLimit, cfg.RateLimit)
	assert.Zero(t, cfg.ReadTimeout)
	assert.Zero(t, cfg.WriteTimeout)
}

func TestDefault_RelaysChatUnchanged(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.RateLimit.Enabled())
	assert.Zero(t, cfg.MaxMessageLen)
}

func TestSanitize_NegativeLimitsDisable(t *testing.T) {
	cfg := Config{
		MaxMessageLen: -5,
		RateLimit:     RateLimitConfig{Burst: -1, Interval: -time.Second},
	}.Sanitize()

	assert.Zero(t, cfg.MaxMessageLen)
	assert.Equal(t, RateLimitConfig{}, cfg.RateLimit)
	assert.False(t, cfg.RateLimit.Enabled())
}

func TestFromEnv_OptInLimits(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_MESSAGE_LEN", "256")
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_INTERVAL", "2s")

	cfg := FromEnv()

	assert.Equal(t, 256, cfg.MaxMessageLen)
	assert.Equal(t, RateLimitConfig{Burst: 5, Interval: 2 * time.Second}, cfg.RateLimit)
	assert.True(t, cfg.RateLimit.Enabled())
}
