package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Addr          string `env:"ADDR" envDefault:":8080"`
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL" envDefault:"postgres://postgres:postgres@db:5432/taskboard?sslmode=disable"`

	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	JWTSecret      string        `env:"JWT_SECRET"`
	JWTTTL         time.Duration `env:"JWT_TTL" envDefault:"720h"`
	CookieName     string        `env:"AUTH_COOKIE_NAME" envDefault:"token"`
	CookieSecure   bool          `env:"COOKIE_SECURE" envDefault:"false"`
	CookieSameSite string        `env:"COOKIE_SAMESITE" envDefault:"lax"`

	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	AuthRatePerSec float64 `env:"AUTH_RATE_PER_SEC" envDefault:"0.5"`
	AuthRateBurst  int     `env:"AUTH_RATE_BURST" envDefault:"20"`

	EventBuffer  int           `env:"EVENT_BUFFER" envDefault:"16"`
	SSEHeartbeat time.Duration `env:"SSE_HEARTBEAT" envDefault:"25s"`
}

func loadConfig() (Config, error) { return parseConfig(nil) }

// parseConfig reads the process environment, or environ when it is non-nil.
func parseConfig(environ map[string]string) (Config, error) {
	var cfg Config
	var err error
	if environ == nil {
		err = env.Parse(&cfg)
	} else {
		err = env.ParseWithOptions(&cfg, env.Options{Environment: environ})
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.StorageDriver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be postgres or memory, got %q", c.StorageDriver))
	}
	switch strings.ToLower(c.CookieSameSite) {
	case "lax", "strict", "none":
	default:
		errs = append(errs, fmt.Errorf("COOKIE_SAMESITE must be lax, strict or none, got %q", c.CookieSameSite))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if c.EventBuffer <= 0 {
		errs = append(errs, errors.New("EVENT_BUFFER must be positive"))
	}
	if c.SSEHeartbeat <= 0 {
		errs = append(errs, errors.New("SSE_HEARTBEAT must be positive"))
	}
	// credentialed CORS needs explicit origins
	for _, o := range c.AllowedOrigins {
		if strings.TrimSpace(o) == "*" {
			errs = append(errs, errors.New("CORS_ALLOWED_ORIGINS cannot contain *, list origins explicitly"))
			break
		}
	}
	return errors.Join(errs...)
}

func (c Config) logLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func (c Config) sameSite() http.SameSite {
	switch strings.ToLower(c.CookieSameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func (c Config) originAllowed(origin string) bool {
	for _, o := range c.AllowedOrigins {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}
