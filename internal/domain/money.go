package domain

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// Monetary values use fixed-precision decimals throughout. Floating-point
// arithmetic is not allowed anywhere in the ledger: repeated addition and
// subtraction of binary floats drifts away from the operation log, breaking
// the balance-ledger consistency invariant.

var amountPattern = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

// ParseAmount parses a decimal string into a positive operation amount
// with at most 2 decimal places.
func ParseAmount(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, fmt.Errorf("%w: amount value cannot be empty", ErrInvalidArgument)
	}

	if !amountPattern.MatchString(value) {
		return decimal.Zero, fmt.Errorf("%w: amount must be a decimal with up to 2 decimal places", ErrInvalidArgument)
	}

	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	return amount, nil
}

// validateAmount checks that an operation amount is strictly positive and
// representable with 2 decimal places.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: amount must have at most 2 decimal places", ErrInvalidArgument)
	}
	return nil
}
