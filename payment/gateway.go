package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	IntentSucceeded = "succeeded"

	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
)

var (
	ErrIntentNotFound   = errors.New("payment intent not found")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Intent is the subset of a payment intent the module needs.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	CustomerID   string
	Metadata     map[string]string
}

// Event is a verified webhook delivery.
type Event struct {
	ID     string
	Type   string
	Intent *Intent // set for payment_intent.* events
}

// Gateway is the payment provider. Keys are passed per call because admins
// can rotate them at runtime.
type Gateway interface {
	CreateIntent(ctx context.Context, secretKey string, amount int64, currency string, metadata map[string]string) (*Intent, error)
	GetIntent(ctx context.Context, secretKey, id string) (*Intent, error)
	ParseEvent(payload []byte, signature, webhookSecret string) (*Event, error)
}

// StripeGateway talks to the Stripe API. A client is built per call so a
// rotated secret key takes effect on the next request.
type StripeGateway struct {
	backends *stripe.Backends // nil selects the SDK defaults
}

func NewStripeGateway() *StripeGateway {
	return &StripeGateway{}
}

func (g *StripeGateway) api(secretKey string) *client.API {
	sc := &client.API{}
	sc.Init(secretKey, g.backends)
	return sc
}

func (g *StripeGateway) CreateIntent(ctx context.Context, secretKey string, amount int64, currency string, metadata map[string]string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api(secretKey).PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return fromStripe(pi), nil
}

func (g *StripeGateway) GetIntent(ctx context.Context, secretKey, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api(secretKey).PaymentIntents.Get(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("retrieve payment intent: %w", err)
	}
	return fromStripe(pi), nil
}

func (g *StripeGateway) ParseEvent(payload []byte, signature, webhookSecret string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}
	if event.Data != nil && (out.Type == EventIntentSucceeded || out.Type == EventIntentFailed) {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		out.Intent = fromStripe(&pi)
	}
	return out, nil
}

func fromStripe(pi *stripe.PaymentIntent) *Intent {
	intent := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
	if pi.Customer != nil {
		intent.CustomerID = pi.Customer.ID
	}
	return intent
}
