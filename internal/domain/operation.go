package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OperationType carries the sign of an operation; the amount itself is
// always stored positive.
type OperationType string

const (
	OperationDebit  OperationType = "DEBIT"
	OperationCredit OperationType = "CREDIT"
)

// AccountOperation is one immutable fact in the append-only operation log.
// Once appended it is never mutated or deleted; an account's balance is a
// projection of its initial balance plus the signed sum of its operations.
type AccountOperation struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	// Seq is assigned by the store on append and is strictly increasing
	// across the whole log. It breaks timestamp ties so that history
	// ordering is total and deterministic.
	Seq           int64
	Type          OperationType
	Amount        decimal.Decimal // always positive; sign is carried by Type
	Description   string
	OperationDate time.Time
}

// NewOperation creates an operation record for the given account.
// Seq is zero until the store assigns it on append.
func NewOperation(accountID uuid.UUID, opType OperationType, amount decimal.Decimal, description string) *AccountOperation {
	return &AccountOperation{
		ID:            uuid.New(),
		AccountID:     accountID,
		Type:          opType,
		Amount:        amount,
		Description:   description,
		OperationDate: time.Now(),
	}
}

// SignedAmount returns the amount with the sign implied by the operation
// type: negative for debits, positive for credits.
func (op *AccountOperation) SignedAmount() decimal.Decimal {
	if op.Type == OperationDebit {
		return op.Amount.Neg()
	}
	return op.Amount
}
