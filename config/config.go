package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Session  SessionConfig
	Stripe   StripeConfig
	SMTP     SMTPConfig
	Redis    RedisConfig
	Logging  LoggingConfig
	Cache    CacheConfig
	Limits   RateLimitConfig
}

type ServerConfig struct {
	Port        string `mapstructure:"PORT"`
	GinMode     string `mapstructure:"GIN_MODE"`
	FrontendURL string `mapstructure:"FRONTEND_URL"`
	Domain      string `mapstructure:"DOMAIN"`
}

// DatabaseConfig selects postgres when URL is set, otherwise the sqlite file.
type DatabaseConfig struct {
	URL             string        `mapstructure:"DATABASE_URL"`
	SqlitePath      string        `mapstructure:"SQLITE_DB"`
	MaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	ConnMaxIdleTime time.Duration `mapstructure:"DB_CONN_MAX_IDLE_TIME"`
	ConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
}

type SessionConfig struct {
	Secret string `mapstructure:"SESSION_SECRET"`
	Name   string `mapstructure:"SESSION_NAME"`
	MaxAge int    `mapstructure:"SESSION_MAX_AGE"`
	Secure bool   `mapstructure:"SESSION_SECURE"`
}

type StripeConfig struct {
	SecretKey         string `mapstructure:"STRIPE_SECRET_KEY"`
	PublishableKey    string `mapstructure:"STRIPE_PUBLISHABLE_KEY"`
	WebhookSecret     string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	DefaultPriceCents int64  `mapstructure:"PAYMENT_PRICE_CENTS"`
	Currency          string `mapstructure:"PAYMENT_CURRENCY"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"SMTP_HOST"`
	Port     string `mapstructure:"SMTP_PORT"`
	User     string `mapstructure:"SMTP_USER"`
	Password string `mapstructure:"SMTP_PASSWORD"`
	From     string `mapstructure:"SMTP_FROM"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"REDIS_ADDR"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

// RateLimitConfig bounds the unauthenticated write endpoints per client IP.
type RateLimitConfig struct {
	RequestsPerMinute float64 `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	Burst             int     `mapstructure:"RATE_LIMIT_BURST"`
}

type CacheConfig struct {
	Dir    string        `mapstructure:"CACHE_DIR"`
	MaxAge time.Duration `mapstructure:"CACHE_MAX_AGE"`
}

var defaults = map[string]interface{}{
	"PORT":                  "8080",
	"GIN_MODE":              "debug",
	"FRONTEND_URL":          "http://localhost:5173",
	"DOMAIN":                "http://localhost:8080",
	"DB_MAX_OPEN_CONNS":     10,
	"DB_MAX_IDLE_CONNS":     2,
	"DB_CONN_MAX_IDLE_TIME": 30 * time.Second,
	"DB_CONN_MAX_LIFETIME":  30 * time.Minute,
	"SESSION_NAME":          "reclaim-session",
	"SESSION_MAX_AGE":       86400 * 7,
	"SESSION_SECURE":        false,
	"PAYMENT_PRICE_CENTS":   9700,
	"PAYMENT_CURRENCY":      "usd",
	"SMTP_PORT":             "587",
	"LOG_LEVEL":             "info",
	"LOG_FORMAT":            "console",
	"CACHE_DIR":             "cache",
	"CACHE_MAX_AGE":         time.Hour,
	"REDIS_DB":              0,
	"RATE_LIMIT_PER_MINUTE": 10,
	"RATE_LIMIT_BURST":      5,
}

var envKeys = []string{
	"DATABASE_URL", "SQLITE_DB",
	"SESSION_SECRET",
	"STRIPE_SECRET_KEY", "STRIPE_PUBLISHABLE_KEY", "STRIPE_WEBHOOK_SECRET",
	"SMTP_USER", "SMTP_HOST", "SMTP_PASSWORD", "SMTP_FROM",
	"REDIS_ADDR", "REDIS_PASSWORD",
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range envKeys {
		v.BindEnv(key)
	}

	cfg := &Config{}
	sections := []interface{}{
		&cfg.Server, &cfg.Database, &cfg.Session, &cfg.Stripe,
		&cfg.SMTP, &cfg.Redis, &cfg.Logging, &cfg.Cache, &cfg.Limits,
	}
	for _, section := range sections {
		if err := v.Unmarshal(section); err != nil {
			return nil, errors.New("failed to unmarshal config: " + err.Error())
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Session.Secret == "" {
		return errors.New("SESSION_SECRET is required")
	}
	if c.Database.URL == "" && c.Database.SqlitePath == "" {
		return errors.New("either DATABASE_URL or SQLITE_DB is required")
	}
	if c.Stripe.DefaultPriceCents <= 0 {
		return errors.New("PAYMENT_PRICE_CENTS must be positive")
	}
	return nil
}
