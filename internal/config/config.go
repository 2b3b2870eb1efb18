// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port      int `yaml:"port"`       // public payment API
	AdminPort int `yaml:"admin_port"` // /metrics, /healthz
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	EventTTL time.Duration `yaml:"event_ttl"` // processed webhook event cache
}

type RazorpayConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type StripeConfig struct {
	SuccessURL string        `yaml:"success_url"`
	CancelURL  string        `yaml:"cancel_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// PackConfig is the analysis-pack offer. The original sold a fixed
// 10-analysis pack for 9900 paise valid 30 days; these are the defaults.
type PackConfig struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	Quantity     int    `yaml:"quantity"`
	Amount       int64  `yaml:"amount"` // minor units
	Currency     string `yaml:"currency"`
	ValidityDays int    `yaml:"validity_days"`
}

type ReconcilerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

// Secrets are injected via process environment only, never from the yaml
// file and never hard-coded.
type Secrets struct {
	DatabaseURL         string `envconfig:"DATABASE_URL"`
	RedisURL            string `envconfig:"REDIS_URL"`
	RazorpayKeyID       string `envconfig:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret   string `envconfig:"RAZORPAY_KEY_SECRET"`
	RazorpayWebhookSec  string `envconfig:"RAZORPAY_WEBHOOK_SECRET"`
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	SupabaseJWTSecret   string `envconfig:"SUPABASE_JWT_SECRET"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Razorpay   RazorpayConfig   `yaml:"razorpay"`
	Stripe     StripeConfig     `yaml:"stripe"`
	Pack       PackConfig       `yaml:"pack"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`

	Secrets Secrets       `yaml:"-"`
	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := envconfig.Process("SPROUT", &cfg.Secrets); err != nil {
		return nil, fmt.Errorf("read secrets from env: %w", err)
	}

	// defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.AdminPort == 0 {
		cfg.Server.AdminPort = 9090
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.EventTTL <= 0 {
		cfg.Redis.EventTTL = 24 * time.Hour
	}
	if cfg.Razorpay.BaseURL == "" {
		cfg.Razorpay.BaseURL = "https://api.razorpay.com"
	}
	if cfg.Razorpay.Timeout <= 0 {
		cfg.Razorpay.Timeout = 4 * time.Second
	}
	if cfg.Stripe.Timeout <= 0 {
		cfg.Stripe.Timeout = 4 * time.Second
	}
	if cfg.Pack.Name == "" {
		cfg.Pack.Name = "10 Plant Analyses"
	}
	if cfg.Pack.Description == "" {
		cfg.Pack.Description = "One-time purchase of 10 plant identification analyses"
	}
	if cfg.Pack.Quantity <= 0 {
		cfg.Pack.Quantity = 10
	}
	if cfg.Pack.Amount <= 0 {
		cfg.Pack.Amount = 9900
	}
	if cfg.Pack.Currency == "" {
		cfg.Pack.Currency = "inr"
	}
	if cfg.Pack.ValidityDays <= 0 {
		cfg.Pack.ValidityDays = 30
	}
	if cfg.Reconciler.Interval <= 0 {
		cfg.Reconciler.Interval = time.Minute
	}
	if cfg.Reconciler.StaleAfter <= 0 {
		cfg.Reconciler.StaleAfter = 10 * time.Minute
	}

	// Secrets may override file values so deployments can keep connection
	// strings out of the yaml entirely.
	if cfg.Secrets.DatabaseURL != "" {
		cfg.Database.URL = cfg.Secrets.DatabaseURL
	}
	if cfg.Secrets.RedisURL != "" {
		cfg.Redis.URL = cfg.Secrets.RedisURL
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required (or SPROUT_DATABASE_URL)")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required (or SPROUT_REDIS_URL)")
	}
	if cfg.Secrets.RazorpayKeyID == "" || cfg.Secrets.RazorpayKeySecret == "" {
		return nil, errors.New("SPROUT_RAZORPAY_KEY_ID and SPROUT_RAZORPAY_KEY_SECRET are required")
	}
	if cfg.Secrets.StripeSecretKey == "" {
		return nil, errors.New("SPROUT_STRIPE_SECRET_KEY is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
