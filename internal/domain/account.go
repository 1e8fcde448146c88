package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountKind discriminates the two account variants. The variants share a
// uniform row shape; only the debit admission rule differs.
type AccountKind string

const (
	// AccountCurrent is a current account that may go negative up to its
	// overdraft limit
	AccountCurrent AccountKind = "CURRENT"

	// AccountSaving is a savings account whose balance may never go negative
	AccountSaving AccountKind = "SAVING"
)

// Account represents a bank account. It is the single mutable entity of the
// ledger: every balance change flows through Debit/Credit under the
// LedgerService's transaction boundary.
type Account struct {
	ID         uuid.UUID   // Unique identifier of the account
	CustomerID uuid.UUID   // Owning customer (reference only; the customer directory is external)
	Kind       AccountKind // Variant discriminator
	Balance    decimal.Decimal
	// OverdraftLimit is the maximum negative-balance magnitude a CURRENT
	// account may reach. Always zero for SAVING accounts.
	OverdraftLimit decimal.Decimal
	// InterestRate is informational for SAVING accounts; the ledger never
	// applies it. Always zero for CURRENT accounts.
	InterestRate decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewCurrentAccount creates a current account with the given overdraft limit.
func NewCurrentAccount(id, customerID uuid.UUID, initialBalance, overdraftLimit decimal.Decimal) (*Account, error) {
	if overdraftLimit.IsNegative() {
		return nil, fmt.Errorf("%w: overdraft limit cannot be negative", ErrInvalidArgument)
	}
	if initialBalance.LessThan(overdraftLimit.Neg()) {
		return nil, fmt.Errorf("%w: initial balance below overdraft limit", ErrInvalidArgument)
	}

	now := time.Now()
	return &Account{
		ID:             id,
		CustomerID:     customerID,
		Kind:           AccountCurrent,
		Balance:        initialBalance,
		OverdraftLimit: overdraftLimit,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// NewSavingAccount creates a savings account with the given interest rate.
func NewSavingAccount(id, customerID uuid.UUID, initialBalance, interestRate decimal.Decimal) (*Account, error) {
	if interestRate.IsNegative() {
		return nil, fmt.Errorf("%w: interest rate cannot be negative", ErrInvalidArgument)
	}
	if initialBalance.IsNegative() {
		return nil, fmt.Errorf("%w: savings account balance cannot be negative", ErrInvalidArgument)
	}

	now := time.Now()
	return &Account{
		ID:           id,
		CustomerID:   customerID,
		Kind:         AccountSaving,
		Balance:      initialBalance,
		InterestRate: interestRate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// minBalance is the lowest balance the account variant admits.
func (a *Account) minBalance() decimal.Decimal {
	if a.Kind == AccountCurrent {
		return a.OverdraftLimit.Neg()
	}
	return decimal.Zero
}

// CanDebit reports whether debiting the given amount would keep the balance
// at or above the variant's minimum.
func (a *Account) CanDebit(amount decimal.Decimal) bool {
	return a.Balance.Sub(amount).GreaterThanOrEqual(a.minBalance())
}

// Debit subtracts the given amount from the account balance.
// Returns ErrInsufficientFunds if the variant's admission rule rejects it.
func (a *Account) Debit(amount decimal.Decimal) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if !a.CanDebit(amount) {
		return ErrInsufficientFunds
	}

	a.Balance = a.Balance.Sub(amount)
	a.UpdatedAt = time.Now()
	return nil
}

// Credit adds the given amount to the account balance. Credits are always
// admissible; only the amount itself is validated.
func (a *Account) Credit(amount decimal.Decimal) error {
	if err := validateAmount(amount); err != nil {
		return err
	}

	a.Balance = a.Balance.Add(amount)
	a.UpdatedAt = time.Now()
	return nil
}
