// Package config loads service configuration from an optional YAML file with
// environment-variable overrides. A .env file is honoured in development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"confreg.org/internal/auth"
)

// Config is the full service configuration.
type Config struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	Addr     string `yaml:"addr"`

	// PublicBaseURL is where the backend is reachable (magic-link URLs are
	// built against it); FrontendBaseURL plus DashboardPath is the redirect
	// target after verification.
	PublicBaseURL   string `yaml:"public_base_url"`
	FrontendBaseURL string `yaml:"frontend_base_url"`
	DashboardPath   string `yaml:"dashboard_path"`

	PGDSN string `yaml:"pg_dsn"`

	SMTP SMTPConfig `yaml:"smtp"`
	Auth AuthConfig `yaml:"auth"`

	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	CORSOrigins []string        `yaml:"cors_origins"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

// Enabled reports whether SMTP delivery is configured at all.
func (c SMTPConfig) Enabled() bool { return c.Host != "" }

type AuthConfig struct {
	CookieName        string        `yaml:"cookie_name"`
	MagicLinkTTL      time.Duration `yaml:"magic_link_ttl"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
	ExchangeTTL       time.Duration `yaml:"exchange_ttl"`
	ExposeTokenInBody *bool         `yaml:"expose_token_in_body"`
	SecureCookies     *bool         `yaml:"secure_cookies"`
}

type RateLimitConfig struct {
	PerSecond int `yaml:"per_second"`
	Burst     int `yaml:"burst"`
}

// Load reads CONFREG_CONFIG (YAML path) if set, then applies environment
// overrides. godotenv makes local .env files work without exporting.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:             "dev",
		LogLevel:        "info",
		Addr:            ":8080",
		PublicBaseURL:   "http://localhost:8080",
		FrontendBaseURL: "http://localhost:3000",
		DashboardPath:   "/dashboard",
		RateLimit:       RateLimitConfig{PerSecond: 2, Burst: 5},
	}

	if path := os.Getenv("CONFREG_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Env, "CONFREG_ENV")
	setString(&cfg.LogLevel, "CONFREG_LOG_LEVEL")
	setString(&cfg.Addr, "CONFREG_ADDR")
	setString(&cfg.PublicBaseURL, "CONFREG_PUBLIC_BASE_URL")
	setString(&cfg.FrontendBaseURL, "CONFREG_FRONTEND_BASE_URL")
	setString(&cfg.DashboardPath, "CONFREG_DASHBOARD_PATH")
	setString(&cfg.PGDSN, "CONFREG_PG_DSN")

	setString(&cfg.SMTP.Host, "CONFREG_SMTP_HOST")
	setInt(&cfg.SMTP.Port, "CONFREG_SMTP_PORT")
	setString(&cfg.SMTP.Username, "CONFREG_SMTP_USERNAME")
	setString(&cfg.SMTP.Password, "CONFREG_SMTP_PASSWORD")
	setString(&cfg.SMTP.From, "CONFREG_SMTP_FROM")
	setString(&cfg.SMTP.FromName, "CONFREG_SMTP_FROM_NAME")

	setString(&cfg.Auth.CookieName, "CONFREG_COOKIE_NAME")
	setDuration(&cfg.Auth.MagicLinkTTL, "CONFREG_MAGIC_LINK_TTL")
	setDuration(&cfg.Auth.SessionTTL, "CONFREG_SESSION_TTL")
	setDuration(&cfg.Auth.ExchangeTTL, "CONFREG_EXCHANGE_TTL")
	setBoolPtr(&cfg.Auth.ExposeTokenInBody, "CONFREG_EXPOSE_TOKEN_IN_BODY")
	setBoolPtr(&cfg.Auth.SecureCookies, "CONFREG_SECURE_COOKIES")

	setInt(&cfg.RateLimit.PerSecond, "CONFREG_RATE_PER_SECOND")
	setInt(&cfg.RateLimit.Burst, "CONFREG_RATE_BURST")

	if v := os.Getenv("CONFREG_CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORSOrigins = origins
	}
}

// AuthConfig converts the loaded settings into the immutable value the auth
// service consumes. Unset knobs fall back to the built-in defaults; cookies are
// Secure unless explicitly disabled for plain-HTTP development.
func (c *Config) AuthConfig() auth.Config {
	out := auth.DefaultConfig()
	if c.Auth.CookieName != "" {
		out.CookieName = c.Auth.CookieName
	}
	if c.Auth.MagicLinkTTL > 0 {
		out.MagicLinkTTL = c.Auth.MagicLinkTTL
	}
	if c.Auth.SessionTTL > 0 {
		out.SessionTTL = c.Auth.SessionTTL
	}
	if c.Auth.ExchangeTTL > 0 {
		out.ExchangeTTL = c.Auth.ExchangeTTL
	}
	if c.Auth.ExposeTokenInBody != nil {
		out.ExposeTokenInBody = *c.Auth.ExposeTokenInBody
	}
	if c.Auth.SecureCookies != nil {
		out.SecureCookies = *c.Auth.SecureCookies
	} else if !strings.EqualFold(c.Env, "prod") {
		out.SecureCookies = false
	}
	return out
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setBoolPtr(dst **bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = &b
		}
	}
}
