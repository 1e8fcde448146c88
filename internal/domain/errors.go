package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAccountNotFound is returned when an account doesn't exist
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientFunds is returned when a debit would take the account
	// below its minimum allowed balance
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidArgument is the base error for all caller-correctable input errors
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict is returned when the store detects a conflicting concurrent
	// mutation. The operation left no partial effect and may be retried.
	ErrConflict = errors.New("concurrent modification conflict")

	// ErrDuplicate is returned when creating an account whose identifier
	// already exists
	ErrDuplicate = errors.New("duplicate entry")
)

var (
	// ErrInvalidAmount is returned when an operation amount is not strictly positive
	ErrInvalidAmount = fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)

	// ErrSameAccount is returned when a transfer names the same account twice
	ErrSameAccount = fmt.Errorf("%w: source and destination must be different accounts", ErrInvalidArgument)
)
