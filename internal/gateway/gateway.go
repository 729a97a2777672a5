// Package gateway wraps the external payment provider behind a narrow
// client interface: attempt a charge, attempt a transfer. The engine treats
// every call as a blocking external collaborator with a bounded timeout;
// timeouts are failures, never "pending", and the engine does not retry on
// its own to avoid duplicate charges.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// ChargeRequest asks the provider to charge the payer's payment method.
type ChargeRequest struct {
	PayerRef  string          // provider-side payer reference (customer ID)
	Amount    decimal.Decimal // gross amount, currency minor-unit precision
	Method    string          // payment method reference
	Reference string          // our payment ID, for provider-side correlation
}

// TransferRequest asks the provider to pay out to the payee.
type TransferRequest struct {
	PayeeRef  string // provider-side payee reference (connected account)
	Amount    decimal.Decimal
	Reference string
}

// Result is the outcome of a charge or transfer attempt. A transport-level
// error is returned separately; OK=false with a Reason means the provider
// processed the request and declined it.
type Result struct {
	OK          bool
	ProviderRef string // opaque charge/transfer reference, set when OK
	Reason      string // provider-supplied decline reason when !OK
}

// Client is the payment-provider interface the engine calls.
type Client interface {
	Charge(ctx context.Context, req ChargeRequest) (*Result, error)
	Transfer(ctx context.Context, req TransferRequest) (*Result, error)
}
