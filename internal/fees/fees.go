// Package fees computes the platform fee retained on each escrow payment.
//
// The fee percentage is captured on the payment at creation time, so changes
// to the platform fee schedule never alter existing ledger entries.
package fees

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrInvalidPercentage = errors.New("fee percentage must be between 0 and 100")
)

// Precision is the number of minor units in the settlement currency.
const Precision = 2

var hundred = decimal.NewFromInt(100)

// Calculate splits a gross amount into platform fee and net amount.
// The fee is rounded half-up to the currency's minor unit, and the net
// amount is derived by subtraction so that fee + net == amount exactly.
func Calculate(amount decimal.Decimal, percentage decimal.Decimal) (fee, net decimal.Decimal, err error) {
	if !amount.IsPositive() {
		return decimal.Zero, decimal.Zero, ErrInvalidAmount
	}
	if percentage.IsNegative() || percentage.GreaterThan(hundred) {
		return decimal.Zero, decimal.Zero, ErrInvalidPercentage
	}

	// Round is half-away-from-zero, which is half-up for non-negative fees.
	fee = amount.Mul(percentage).Div(hundred).Round(Precision)
	net = amount.Sub(fee)
	return fee, net, nil
}
