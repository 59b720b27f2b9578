package checkout

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/AuraquanTech/paytrust/internal/fraud"
)

// StripeCharger charges approved attempts by creating and confirming a
// PaymentIntent.
type StripeCharger struct {
	api             *client.API
	defaultCurrency string
}

// NewStripeCharger creates a charger over the Stripe API.
func NewStripeCharger(apiKey, defaultCurrency string) *StripeCharger {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeCharger{api: api, defaultCurrency: defaultCurrency}
}

func (s *StripeCharger) Charge(ctx context.Context, req *AuthorizeRequest) (string, error) {
	currency := req.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	params := &stripe.PaymentIntentParams{
		Params:      stripe.Params{Context: ctx},
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(currency),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}
	params.AddMetadata("customer_identity", fraud.CustomerIdentity(req.Email, req.IP))

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return "", fmt.Errorf("create payment intent: %w", err)
	}
	return pi.ID, nil
}

// NoopCharger lets checkouts proceed without moving money. Used in
// development and when no payment credentials are configured.
type NoopCharger struct{}

func (NoopCharger) Charge(context.Context, *AuthorizeRequest) (string, error) {
	return "", nil
}
