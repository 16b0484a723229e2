package main

import (
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(map[string]string{"JWT_SECRET": "s"})
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "postgres", cfg.StorageDriver)
	assert.Equal(t, 10, cfg.DBMaxOpenConns)
	assert.Equal(t, 30*time.Minute, cfg.DBConnMaxLifetime)
	assert.Equal(t, 720*time.Hour, cfg.JWTTTL)
	assert.Equal(t, "token", cfg.CookieName)
	assert.Equal(t, 25*time.Second, cfg.SSEHeartbeat)
	assert.Equal(t, slog.LevelInfo, cfg.logLevel())
	assert.Equal(t, http.SameSiteLaxMode, cfg.sameSite())
}

func TestParseConfigOverrides(t *testing.T) {
	cfg, err := parseConfig(map[string]string{
		"JWT_SECRET":           "s",
		"STORAGE_DRIVER":       "memory",
		"LOG_LEVEL":            "debug",
		"COOKIE_SAMESITE":      "Strict",
		"CORS_ALLOWED_ORIGINS": "http://a.test,http://b.test",
		"EVENT_BUFFER":         "4",
	})
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StorageDriver)
	assert.Equal(t, slog.LevelDebug, cfg.logLevel())
	assert.Equal(t, http.SameSiteStrictMode, cfg.sameSite())
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.True(t, cfg.originAllowed("http://b.test"))
	assert.False(t, cfg.originAllowed("http://c.test"))
	assert.Equal(t, 4, cfg.EventBuffer)
}

func TestParseConfigValidation(t *testing.T) {
	_, err := parseConfig(map[string]string{})
	assert.ErrorContains(t, err, "JWT_SECRET")

	_, err = parseConfig(map[string]string{"JWT_SECRET": "s", "STORAGE_DRIVER": "sqlite"})
	assert.ErrorContains(t, err, "STORAGE_DRIVER")

	_, err = parseConfig(map[string]string{"JWT_SECRET": "s", "COOKIE_SAMESITE": "sometimes"})
	assert.ErrorContains(t, err, "COOKIE_SAMESITE")

	_, err = parseConfig(map[string]string{"JWT_SECRET": "s", "EVENT_BUFFER": "many"})
	assert.Error(t, err)

	_, err = parseConfig(map[string]string{"JWT_SECRET": "s", "CORS_ALLOWED_ORIGINS": "http://a.example, *"})
	assert.ErrorContains(t, err, "CORS_ALLOWED_ORIGINS")
}

func TestOriginAllowedMatchesExactly(t *testing.T) {
	cfg := Config{AllowedOrigins: []string{"http://localhost:3000", " https://app.example "}}
	assert.True(t, cfg.originAllowed("http://localhost:3000"))
	assert.True(t, cfg.originAllowed("https://app.example"))
	assert.False(t, cfg.originAllowed("https://evil.example"))
	assert.False(t, cfg.originAllowed("*"))
}
