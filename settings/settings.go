package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reclaim/common"
	"reclaim/config"
	"reclaim/models"
)

const (
	KeyPriceCents           = "payment_price_cents"
	KeyCurrency             = "payment_currency"
	KeyStripeSecretKey      = "stripe_secret_key"
	KeyStripePublishableKey = "stripe_publishable_key"
	KeyStripeWebhookSecret  = "stripe_webhook_secret"
	KeySMTPHost             = "smtp_host"
	KeySMTPPort             = "smtp_port"
	KeySMTPUser             = "smtp_user"
	KeySMTPPassword         = "smtp_password"
	KeySMTPFrom             = "smtp_from"
)

const (
	SourceDatabase    = "database"
	SourceEnvironment = "environment"
	SourceUnset       = "unset"
)

type definition struct {
	secret   bool
	fallback func(cfg *config.Config) string
	validate func(value string) error
}

var definitions = map[string]definition{
	KeyPriceCents: {
		fallback: func(cfg *config.Config) string { return strconv.FormatInt(cfg.Stripe.DefaultPriceCents, 10) },
		validate: validatePrice,
	},
	KeyCurrency: {
		fallback: func(cfg *config.Config) string { return cfg.Stripe.Currency },
		validate: validateCurrency,
	},
	KeyStripeSecretKey:      {secret: true, fallback: func(cfg *config.Config) string { return cfg.Stripe.SecretKey }},
	KeyStripePublishableKey: {fallback: func(cfg *config.Config) string { return cfg.Stripe.PublishableKey }},
	KeyStripeWebhookSecret:  {secret: true, fallback: func(cfg *config.Config) string { return cfg.Stripe.WebhookSecret }},
	KeySMTPHost:             {fallback: func(cfg *config.Config) string { return cfg.SMTP.Host }},
	KeySMTPPort: {
		fallback: func(cfg *config.Config) string { return cfg.SMTP.Port },
		validate: validatePort,
	},
	KeySMTPUser:     {fallback: func(cfg *config.Config) string { return cfg.SMTP.User }},
	KeySMTPPassword: {secret: true, fallback: func(cfg *config.Config) string { return cfg.SMTP.Password }},
	KeySMTPFrom:     {fallback: func(cfg *config.Config) string { return cfg.SMTP.From }},
}

// Keys lists the known setting keys in display order.
var Keys = []string{
	KeyPriceCents, KeyCurrency,
	KeyStripeSecretKey, KeyStripePublishableKey, KeyStripeWebhookSecret,
	KeySMTPHost, KeySMTPPort, KeySMTPUser, KeySMTPPassword, KeySMTPFrom,
}

// IsKnown reports whether key can be stored.
func IsKnown(key string) bool {
	_, ok := definitions[key]
	return ok
}

// Store resolves runtime settings: a non-empty row in the settings table
// wins over the environment.
type Store struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewStore(db *gorm.DB, cfg *config.Config) *Store {
	return &Store{db: db, cfg: cfg}
}

// Get returns the effective value for key, falling back to the
// environment when no row is set.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, _, err := s.resolve(ctx, key)
	return value, err
}

func (s *Store) resolve(ctx context.Context, key string) (string, string, error) {
	def, ok := definitions[key]
	if !ok {
		return "", "", fmt.Errorf("unknown setting %q", key)
	}

	var row models.Setting
	err := s.db.WithContext(ctx).Where(&models.Setting{Key: key}).First(&row).Error
	if err == nil && row.Value != "" {
		return row.Value, SourceDatabase, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", err
	}

	if value := def.fallback(s.cfg); value != "" {
		return value, SourceEnvironment, nil
	}
	return "", SourceUnset, nil
}

// Set validates and stores a value. Concurrent writers race; the last write wins.
func (s *Store) Set(ctx context.Context, key, value string) error {
	def, ok := definitions[key]
	if !ok {
		return common.BadRequest(fmt.Sprintf("Unknown setting %q", key))
	}

	value = strings.TrimSpace(value)
	if def.validate != nil && value != "" {
		if err := def.validate(value); err != nil {
			return err
		}
	}

	row := models.Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return common.Internal("Failed to save setting", err)
	}
	return nil
}

// View is a setting as shown to admins. Source is one of the Source
// constants.
type View struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Secret bool   `json:"secret"`
	Source string `json:"source"`
}

// List reports every known key with secrets masked.
func (s *Store) List(ctx context.Context) ([]View, error) {
	views := make([]View, 0, len(Keys))
	for _, key := range Keys {
		value, source, err := s.resolve(ctx, key)
		if err != nil {
			return nil, err
		}
		secret := definitions[key].secret
		if secret {
			value = Mask(value)
		}
		views = append(views, View{Key: key, Value: value, Secret: secret, Source: source})
	}
	return views, nil
}

// Mask hides all but the last four characters.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

// PriceCents is the lifetime price. Invalid or non-positive values fall
// back to the configured default.
func (s *Store) PriceCents(ctx context.Context) (int64, error) {
	raw, err := s.Get(ctx, KeyPriceCents)
	if err != nil {
		return 0, err
	}
	price, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || price <= 0 {
		return s.cfg.Stripe.DefaultPriceCents, nil
	}
	return price, nil
}

func (s *Store) Currency(ctx context.Context) (string, error) {
	currency, err := s.Get(ctx, KeyCurrency)
	if err != nil {
		return "", err
	}
	if currency == "" {
		return "usd", nil
	}
	return strings.ToLower(currency), nil
}

// StripeKeys are the credentials read for each payment call.
type StripeKeys struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
}

func (s *Store) Stripe(ctx context.Context) (StripeKeys, error) {
	var keys StripeKeys
	var err error
	if keys.SecretKey, err = s.Get(ctx, KeyStripeSecretKey); err != nil {
		return keys, err
	}
	if keys.PublishableKey, err = s.Get(ctx, KeyStripePublishableKey); err != nil {
		return keys, err
	}
	if keys.WebhookSecret, err = s.Get(ctx, KeyStripeWebhookSecret); err != nil {
		return keys, err
	}
	return keys, nil
}

// SMTP resolves mail credentials. It satisfies email.SMTPSource.
func (s *Store) SMTP(ctx context.Context) (config.SMTPConfig, error) {
	var smtp config.SMTPConfig
	fields := []struct {
		key string
		dst *string
	}{
		{KeySMTPHost, &smtp.Host},
		{KeySMTPPort, &smtp.Port},
		{KeySMTPUser, &smtp.User},
		{KeySMTPPassword, &smtp.Password},
		{KeySMTPFrom, &smtp.From},
	}
	for _, f := range fields {
		value, err := s.Get(ctx, f.key)
		if err != nil {
			return smtp, err
		}
		*f.dst = value
	}
	return smtp, nil
}

func validatePrice(value string) error {
	price, err := strconv.ParseInt(value, 10, 64)
	if err != nil || price <= 0 {
		return common.Validation("payment_price_cents must be a positive integer", nil)
	}
	return nil
}

func validateCurrency(value string) error {
	if len(value) != 3 {
		return common.Validation("payment_currency must be a three-letter ISO code", nil)
	}
	for _, r := range value {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return common.Validation("payment_currency must be a three-letter ISO code", nil)
		}
	}
	return nil
}

func validatePort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port <= 0 || port > 65535 {
		return common.Validation("smtp_port must be a valid port", nil)
	}
	return nil
}
