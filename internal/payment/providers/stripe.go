package providers

import (
	"encoding/json"
	"fmt"

	"hotel-booking/internal/config"
	"hotel-booking/internal/logger"
	"hotel-booking/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeClient opens PaymentIntents and re-fetches their status. The
// browser confirms the intent with the client secret; we only ever learn
// the result by asking Stripe again (confirm call or webhook).
type StripeClient struct {
	api *client.API
	log *logger.Logger
}

func NewStripeClient(cfg config.StripeConfig, log *logger.Logger) *StripeClient {
	c := &StripeClient{log: log}
	if cfg.SecretKey == "" {
		log.Warn("STRIPE", "STRIPE_SECRET_KEY not set, Stripe payments disabled")
		return c
	}
	c.api = client.New(cfg.SecretKey, nil)
	return c
}

func (c *StripeClient) Name() models.PaymentProvider { return models.ProviderStripe }

func (c *StripeClient) CreateSession(req SessionRequest) (*Session, error) {
	if c.api == nil {
		return nil, &ProviderError{
			Provider: models.ProviderStripe,
			Category: CategoryMisconfigured,
			Reason:   "stripe is not configured",
		}
	}
	if req.Amount <= 0 {
		return nil, &ProviderError{
			Provider: models.ProviderStripe,
			Category: CategoryInvalidAmount,
			Reason:   fmt.Sprintf("invalid amount %.2f", req.Amount),
		}
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinorUnits(req.Amount)),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("booking_id", req.BookingID)
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}

	intent, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, c.classify("create payment intent", err)
	}

	c.log.LogProvider("STRIPE", "SESSION", fmt.Sprintf("Created payment intent %s for booking %s", intent.ID, req.BookingID))
	return &Session{
		Reference:    intent.ID,
		ClientSecret: intent.ClientSecret,
		Raw:          structToMap(intent),
	}, nil
}

func (c *StripeClient) FetchStatus(reference string) (*Outcome, error) {
	if c.api == nil {
		return nil, &ProviderError{
			Provider: models.ProviderStripe,
			Category: CategoryMisconfigured,
			Reason:   "stripe is not configured",
		}
	}

	intent, err := c.api.PaymentIntents.Get(reference, nil)
	if err != nil {
		return nil, c.classify("fetch payment intent", err)
	}
	return OutcomeFromIntent(intent), nil
}

// OutcomeFromIntent maps a PaymentIntent status to the normalized result.
// Canceled and requires_payment_method are definitive failures; anything
// still in flight stays pending.
func OutcomeFromIntent(intent *stripe.PaymentIntent) *Outcome {
	outcome := &Outcome{Raw: map[string]interface{}{"callback": structToMap(intent)}}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		outcome.Result = ResultSuccess
	case stripe.PaymentIntentStatusCanceled, stripe.PaymentIntentStatusRequiresPaymentMethod:
		outcome.Result = ResultFailure
		outcome.Reason = string(intent.Status)
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			outcome.Reason = intent.LastPaymentError.Msg
		}
	default:
		outcome.Result = ResultPending
		outcome.Reason = string(intent.Status)
	}
	return outcome
}

func (c *StripeClient) classify(action string, err error) error {
	c.log.Error("STRIPE", fmt.Sprintf("Failed to %s: %v", action, err))
	if stripeErr, ok := err.(*stripe.Error); ok {
		category := CategoryRejected
		if stripeErr.HTTPStatusCode == 401 || stripeErr.HTTPStatusCode == 403 {
			category = CategoryMisconfigured
		}
		return &ProviderError{
			Provider: models.ProviderStripe,
			Category: category,
			Reason:   "stripe rejected the request",
			Err:      err,
		}
	}
	return &ProviderError{
		Provider: models.ProviderStripe,
		Category: CategoryUnavailable,
		Reason:   "unable to reach stripe",
		Err:      err,
	}
}

// toMinorUnits converts a decimal amount to the smallest currency unit.
func toMinorUnits(amount float64) int64 {
	return int64(amount*100 + 0.5)
}

func structToMap(v interface{}) map[string]interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}
