package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "secret")
	t.Setenv("SQLITE_DB", "reclaim.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "reclaim.db", cfg.Database.SqlitePath)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 30*time.Second, cfg.Database.ConnMaxIdleTime)
	assert.Equal(t, int64(9700), cfg.Stripe.DefaultPriceCents)
	assert.Equal(t, "usd", cfg.Stripe.Currency)
	assert.Equal(t, "reclaim-session", cfg.Session.Name)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SESSION_SECRET", "secret")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/reclaim")
	t.Setenv("PAYMENT_PRICE_CENTS", "4900")
	t.Setenv("DB_CONN_MAX_IDLE_TIME", "1m")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@localhost/reclaim", cfg.Database.URL)
	assert.Equal(t, int64(4900), cfg.Stripe.DefaultPriceCents)
	assert.Equal(t, time.Minute, cfg.Database.ConnMaxIdleTime)
	assert.Equal(t, "whsec_123", cfg.Stripe.WebhookSecret)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{SqlitePath: "x.db"},
		Stripe:   StripeConfig{DefaultPriceCents: 100},
	}
	assert.EqualError(t, cfg.Validate(), "SESSION_SECRET is required")

	cfg.Session.Secret = "s"
	cfg.Database.SqlitePath = ""
	assert.Error(t, cfg.Validate())

	cfg.Database.URL = "postgres://localhost/db"
	assert.NoError(t, cfg.Validate())
}
