package domain

import (
	"context"

	"github.com/google/uuid"
)

// AccountRepository defines the interface for account data access operations.
// It is the sole owner of durable balance storage.
type AccountRepository interface {
	// Create persists a new account. Returns ErrDuplicate if the
	// identifier is already taken.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by its unique identifier.
	// Returns ErrAccountNotFound if the account doesn't exist.
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// Update persists changes to an existing account, typically the
	// balance after a debit or credit.
	Update(ctx context.Context, account *Account) error

	// Lock acquires an exclusive lock on the account for the duration of
	// the ambient transaction and returns its current state.
	// Must be called within a transaction context.
	Lock(ctx context.Context, id uuid.UUID) (*Account, error)
}

// OperationRepository defines the interface for the append-only operation log.
type OperationRepository interface {
	// Append durably persists one new immutable operation record and
	// assigns its Seq. Existing records are never overwritten or removed.
	// Participates in the ambient transaction so that the append commits
	// or rolls back together with the balance write it accompanies.
	Append(ctx context.Context, op *AccountOperation) error

	// ListByAccount returns the account's full history, newest first.
	// Re-querying re-enumerates current state; this is a snapshot, not a
	// live stream.
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*AccountOperation, error)

	// PageByAccount returns one newest-first page of the account's history
	// plus the total record count. Page index is 0-based.
	PageByAccount(ctx context.Context, accountID uuid.UUID, page, size int) ([]*AccountOperation, int64, error)
}

// TransactionManager defines the interface for managing store transactions.
// This abstraction lets the ledger engine span one balance write and its
// log append (or, for transfer, two of each) with a single atomic unit
// without being coupled to a specific database implementation.
type TransactionManager interface {
	// WithTransaction executes the given function within a transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
