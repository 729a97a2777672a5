package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// DefaultTimeout bounds each provider call.
const DefaultTimeout = 15 * time.Second

// StripeClient implements Client on Stripe: PaymentIntents for charges,
// Transfers for payouts to connected accounts.
type StripeClient struct {
	api     *client.API
	timeout time.Duration
}

// NewStripeClient creates a Stripe-backed gateway client.
func NewStripeClient(apiKey string, timeout time.Duration) *StripeClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeClient{api: api, timeout: timeout}
}

// cents converts a 2-decimal amount to the provider's integer minor units.
func cents(amount decimal.Decimal) int64 {
	return amount.Shift(2).IntPart()
}

func (c *StripeClient) Charge(ctx context.Context, req ChargeRequest) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(cents(req.Amount)),
		Currency:      stripe.String(string(stripe.CurrencyUSD)),
		Customer:      stripe.String(req.PayerRef),
		PaymentMethod: stripe.String(req.Method),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	params.AddMetadata("payment_id", req.Reference)

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			reason := string(stripeErr.DeclineCode)
			if reason == "" {
				reason = string(stripeErr.Code)
			}
			return &Result{OK: false, Reason: reason}, nil
		}
		return nil, err
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return &Result{OK: false, Reason: string(pi.Status)}, nil
	}
	return &Result{OK: true, ProviderRef: pi.ID}, nil
}

func (c *StripeClient) Transfer(ctx context.Context, req TransferRequest) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.TransferParams{
		Params:      stripe.Params{Context: ctx},
		Amount:      stripe.Int64(cents(req.Amount)),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Destination: stripe.String(req.PayeeRef),
	}
	params.AddMetadata("payment_id", req.Reference)

	tr, err := c.api.Transfers.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeInvalidRequest {
			return &Result{OK: false, Reason: string(stripeErr.Code)}, nil
		}
		return nil, err
	}
	return &Result{OK: true, ProviderRef: tr.ID}, nil
}

// Compile-time assertion that StripeClient implements Client.
var _ Client = (*StripeClient)(nil)
