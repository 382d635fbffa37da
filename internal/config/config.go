// Package config loads ShipLoop settings from an optional TOML file and the environment.
// Environment variables always win over file values.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
	Redis     RedisConfig     `toml:"redis"`
	Auth      AuthConfig      `toml:"auth"`
	Stripe    StripeConfig    `toml:"stripe"`
	GitHub    GitHubConfig    `toml:"github"`
	Email     EmailConfig     `toml:"email"`
	Coach     CoachConfig     `toml:"coach"`
	Waitlist  WaitlistConfig  `toml:"waitlist"`
	Streak    StreakConfig    `toml:"streak"`
	Supabase  SupabaseConfig  `toml:"supabase"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

type ServerConfig struct {
	Port    string `toml:"port"`
	DataDir string `toml:"data_dir"`
	SiteURL string `toml:"site_url"`
}

type LogConfig struct {
	Level slog.Level `toml:"level"`
	// AlertWebhookURL receives Slack-compatible alert messages when set.
	AlertWebhookURL string `toml:"alert_webhook_url"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type AuthConfig struct {
	SessionSecret string `toml:"session_secret"`
	CronSecret    string `toml:"cron_secret"`
	AdminAPIKey   string `toml:"admin_api_key"`
	DevBypass     bool   `toml:"dev_bypass"`
}

type StripeConfig struct {
	SecretKey     string `toml:"secret_key"`
	ClientID      string `toml:"client_id"`
	WebhookSecret string `toml:"webhook_secret"`
}

type GitHubConfig struct {
	WebhookSecret string `toml:"webhook_secret"`
	APIBaseURL    string `toml:"api_base_url"`
}

type EmailConfig struct {
	ResendAPIKey string `toml:"resend_api_key"`
	From         string `toml:"from"`
}

type CoachConfig struct {
	OpenAIAPIKey string `toml:"openai_api_key"`
	Model        string `toml:"model"`
}

type WaitlistConfig struct {
	// Store is "file" (JSON file in DataDir) or "sqlite".
	Store string `toml:"store"`
}

type StreakConfig struct {
	Timezone string `toml:"timezone"`
}

// SupabaseConfig is accepted for deployments that still share the dashboard's env file.
type SupabaseConfig struct {
	URL     string `toml:"url"`
	AnonKey string `toml:"anon_key"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// Default returns the configuration used when neither file nor env set a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    "8080",
			DataDir: "./data",
			SiteURL: "http://localhost:3000",
		},
		Log:       LogConfig{Level: slog.LevelInfo},
		Email:     EmailConfig{From: "ShipLoop <hello@shiploop.dev>"},
		Coach:     CoachConfig{Model: "gpt-4o-mini"},
		Waitlist:  WaitlistConfig{Store: "file"},
		Streak:    StreakConfig{Timezone: "UTC"},
		GitHub:    GitHubConfig{APIBaseURL: "https://api.github.com"},
		RateLimit: RateLimitConfig{RequestsPerMinute: 60},
	}
}

// LoadFile decodes a TOML file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	if err = toml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads SHIPLOOP_CONFIG when set and then applies environment overrides.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("SHIPLOOP_CONFIG"); path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	set(&c.Server.Port, "PORT")
	set(&c.Server.DataDir, "DATA_DIR")
	set(&c.Server.SiteURL, "NEXT_PUBLIC_SITE_URL")
	set(&c.Redis.Addr, "REDIS_ADDR")
	set(&c.Redis.Password, "REDIS_PASSWORD")
	set(&c.Auth.SessionSecret, "SESSION_SECRET")
	set(&c.Auth.CronSecret, "CRON_SECRET")
	set(&c.Auth.AdminAPIKey, "ADMIN_API_KEY")
	set(&c.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	set(&c.Stripe.ClientID, "STRIPE_CLIENT_ID")
	set(&c.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	set(&c.GitHub.WebhookSecret, "GITHUB_WEBHOOK_SECRET")
	set(&c.GitHub.APIBaseURL, "GITHUB_API_URL")
	set(&c.Email.ResendAPIKey, "RESEND_API_KEY")
	set(&c.Email.From, "RESEND_FROM")
	set(&c.Coach.OpenAIAPIKey, "OPENAI_API_KEY")
	set(&c.Coach.Model, "OPENAI_MODEL")
	set(&c.Waitlist.Store, "WAITLIST_STORE")
	set(&c.Streak.Timezone, "STREAK_TIMEZONE")
	set(&c.Supabase.URL, "NEXT_PUBLIC_SUPABASE_URL")
	set(&c.Supabase.AnonKey, "NEXT_PUBLIC_SUPABASE_ANON_KEY")
	set(&c.Log.AlertWebhookURL, "ALERT_WEBHOOK_URL")

	if v := getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = n
		}
	}
	if v := getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateLimit.RequestsPerMinute = n
		}
	}
	if v := getenv("NEXT_PUBLIC_DEV_BYPASS"); v != "" {
		c.Auth.DevBypass = v == "true" || v == "1"
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(strings.ToUpper(v))); err == nil {
			c.Log.Level = lvl
		}
	}
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port must not be empty")
	}
	switch c.Waitlist.Store {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unknown waitlist store %q", c.Waitlist.Store)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the streak timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Streak.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid streak timezone %q: %w", c.Streak.Timezone, err)
	}
	return loc, nil
}

// Missing lists integration keys that are unset, for the startup log.
func (c *Config) Missing() []string {
	var missing []string
	check := func(v, key string) {
		if v == "" {
			missing = append(missing, key)
		}
	}
	check(c.Coach.OpenAIAPIKey, "OPENAI_API_KEY")
	check(c.Auth.CronSecret, "CRON_SECRET")
	check(c.Email.ResendAPIKey, "RESEND_API_KEY")
	check(c.Stripe.ClientID, "STRIPE_CLIENT_ID")
	check(c.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	check(c.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	check(c.GitHub.WebhookSecret, "GITHUB_WEBHOOK_SECRET")
	check(c.Auth.SessionSecret, "SESSION_SECRET")
	return missing
}
