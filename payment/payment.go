package payment

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reclaim/common"
	"reclaim/email"
	"reclaim/metrics"
	"reclaim/models"
	"reclaim/settings"
)

// MetadataUserID is the intent metadata key holding the buyer's user id.
const MetadataUserID = "userId"

var errNotConfigured = common.NewAppError("PAYMENT_UNAVAILABLE", "Payments are not configured", http.StatusServiceUnavailable)

// PaymentModule sells lifetime access through the Gateway and grants it
// from either the client verify call or the webhook.
type PaymentModule struct {
	db       *gorm.DB
	gateway  Gateway
	settings *settings.Store
	mailer   email.Mailer
	now      func() time.Time
}

func NewPaymentModule(db *gorm.DB, gateway Gateway, store *settings.Store, mailer email.Mailer) *PaymentModule {
	return &PaymentModule{db: db, gateway: gateway, settings: store, mailer: mailer, now: time.Now}
}

func (m *PaymentModule) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/payment-config", m.config)
	api.POST("/create-payment-intent", m.createIntent)
	api.POST("/verify-payment", m.verify)
	api.POST("/stripe-webhook", m.webhook)
}

type configResponse struct {
	PublishableKey string `json:"publishableKey"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

func (m *PaymentModule) config(c *gin.Context) {
	ctx := c.Request.Context()
	keys, err := m.settings.Stripe(ctx)
	if err != nil {
		common.Fail(c, common.Internal("Failed to load payment settings", err))
		return
	}
	amount, currency, err := m.price(ctx)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, configResponse{PublishableKey: keys.PublishableKey, Amount: amount, Currency: currency})
}

func (m *PaymentModule) price(ctx context.Context) (int64, string, error) {
	amount, err := m.settings.PriceCents(ctx)
	if err != nil {
		return 0, "", common.Internal("Failed to load payment settings", err)
	}
	currency, err := m.settings.Currency(ctx)
	if err != nil {
		return 0, "", common.Internal("Failed to load payment settings", err)
	}
	return amount, currency, nil
}

type intentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

func (m *PaymentModule) createIntent(c *gin.Context) {
	ctx := c.Request.Context()

	var user models.User
	if err := m.db.First(&user, common.CurrentUserID(c)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, common.Unauthorized("Authentication required"))
			return
		}
		common.Fail(c, common.Internal("Failed to load user", err))
		return
	}
	if user.HasLifetimeAccess() {
		common.Fail(c, common.Conflict("You already have lifetime access"))
		return
	}

	keys, err := m.settings.Stripe(ctx)
	if err != nil {
		common.Fail(c, common.Internal("Failed to load payment settings", err))
		return
	}
	if keys.SecretKey == "" {
		common.Fail(c, errNotConfigured)
		return
	}
	amount, currency, err := m.price(ctx)
	if err != nil {
		common.Fail(c, err)
		return
	}

	intent, err := m.gateway.CreateIntent(ctx, keys.SecretKey, amount, currency, map[string]string{
		MetadataUserID: strconv.FormatUint(uint64(user.ID), 10),
		"email":        user.Email,
	})
	if err != nil {
		common.Fail(c, providerError(err))
		return
	}

	if err := m.db.Model(&user).Update("stripe_payment_intent_id", intent.ID).Error; err != nil {
		common.Fail(c, common.Internal("Failed to save payment intent", err))
		return
	}

	c.JSON(http.StatusOK, intentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
	})
}

type verifyRequest struct {
	PaymentIntentID string `json:"paymentIntentId" binding:"required"`
}

func (m *PaymentModule) verify(c *gin.Context) {
	ctx := c.Request.Context()

	var req verifyRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	keys, err := m.settings.Stripe(ctx)
	if err != nil {
		common.Fail(c, common.Internal("Failed to load payment settings", err))
		return
	}
	if keys.SecretKey == "" {
		common.Fail(c, errNotConfigured)
		return
	}

	intent, err := m.gateway.GetIntent(ctx, keys.SecretKey, req.PaymentIntentID)
	if err != nil {
		common.Fail(c, providerError(err))
		return
	}

	userID := common.CurrentUserID(c)
	if owner, ok := intentOwner(intent); !ok || owner != userID {
		log.Warn().Uint("user_id", userID).Str("payment_intent", intent.ID).Msg("payment intent belongs to another user")
		common.Fail(c, common.Forbidden("Payment does not belong to this account"))
		return
	}
	if intent.Status != IntentSucceeded {
		common.Fail(c, common.PaymentRequired("Payment has not succeeded"))
		return
	}

	user, err := m.Activate(ctx, userID, intent, "verify")
	if err != nil {
		common.Fail(c, common.NotFoundOr(err, "User"))
		return
	}
	c.JSON(http.StatusOK, user)
}

func (m *PaymentModule) webhook(c *gin.Context) {
	ctx := c.Request.Context()

	payload, err := c.GetRawData()
	if err != nil {
		common.Fail(c, common.BadRequest("Unreadable webhook payload"))
		return
	}

	keys, err := m.settings.Stripe(ctx)
	if err != nil {
		common.Fail(c, common.Internal("Failed to load payment settings", err))
		return
	}
	if keys.WebhookSecret == "" {
		common.Fail(c, errNotConfigured)
		return
	}

	event, err := m.gateway.ParseEvent(payload, c.GetHeader("Stripe-Signature"), keys.WebhookSecret)
	if err != nil {
		log.Warn().Err(err).Msg("webhook rejected")
		common.Fail(c, common.BadRequest("Invalid webhook signature"))
		return
	}

	logger := log.With().Str("event_id", event.ID).Str("event_type", event.Type).Logger()
	switch {
	case event.Type == EventIntentSucceeded && event.Intent != nil:
		owner, ok := intentOwner(event.Intent)
		if !ok {
			logger.Warn().Str("payment_intent", event.Intent.ID).Msg("payment intent has no user metadata")
			break
		}
		if _, err := m.Activate(ctx, owner, event.Intent, "webhook"); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				logger.Warn().Uint("user_id", owner).Msg("payment for unknown user")
				break
			}
			common.Fail(c, common.Internal("Failed to activate payment", err))
			return
		}
	case event.Type == EventIntentFailed && event.Intent != nil:
		logger.Warn().Str("payment_intent", event.Intent.ID).Msg("payment failed")
	case strings.HasPrefix(event.Type, "customer.subscription."):
		logger.Info().Msg("subscription event acknowledged")
	default:
		logger.Debug().Msg("webhook event ignored")
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// Activate grants lifetime access for a succeeded intent. Replaying the same
// intent returns the user unchanged.
func (m *PaymentModule) Activate(ctx context.Context, userID uint, intent *Intent, source string) (*models.User, error) {
	var user models.User
	activated := false
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error; err != nil {
			return err
		}
		if user.HasLifetimeAccess() && user.PaidAt != nil {
			return nil
		}

		now := m.now()
		user.SubscriptionTier = models.TierLifetime
		user.SubscriptionStatus = models.SubscriptionActive
		user.AmountPaidCents = intent.Amount
		user.PaidAt = &now
		user.StripePaymentIntentID = intent.ID
		if intent.CustomerID != "" {
			user.StripeCustomerID = intent.CustomerID
		}
		activated = true
		return tx.Save(&user).Error
	})
	if err != nil {
		return nil, err
	}

	if activated {
		metrics.PaymentsActivated.WithLabelValues(source).Inc()
		log.Info().Uint("user_id", user.ID).Str("payment_intent", intent.ID).Str("source", source).Msg("lifetime access activated")
		m.sendConfirmation(ctx, &user, intent)
	}
	return &user, nil
}

func (m *PaymentModule) sendConfirmation(ctx context.Context, user *models.User, intent *Intent) {
	if m.mailer == nil {
		return
	}
	if err := m.mailer.SendPaymentConfirmation(ctx, user.Email, user.FirstName, intent.Amount, intent.Currency); err != nil {
		log.Warn().Err(err).Uint("user_id", user.ID).Msg("payment confirmation email failed")
	}
}

func intentOwner(intent *Intent) (uint, bool) {
	raw, ok := intent.Metadata[MetadataUserID]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func providerError(err error) error {
	if errors.Is(err, ErrIntentNotFound) {
		return common.NotFound("Payment intent")
	}
	e := common.NewAppError("PAYMENT_PROVIDER_ERROR", "Payment provider error", http.StatusBadGateway)
	e.Internal = err
	return e
}
