// Package memory provides in-memory implementations of the ledger's
// repository contracts. They back unit tests and local development; the
// PostgreSQL implementations in internal/db are the production path.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/bankcore/ledger-service/internal/domain"
)

var (
	_ domain.AccountRepository   = (*AccountRepository)(nil)
	_ domain.OperationRepository = (*OperationRepository)(nil)
	_ domain.TransactionManager  = (*TransactionManager)(nil)
)

// Store holds all in-memory ledger state. Accounts and operations share one
// store so a transaction can snapshot and restore both together.
type Store struct {
	mu         sync.RWMutex
	accounts   map[uuid.UUID]*domain.Account
	operations map[uuid.UUID][]*domain.AccountOperation
	seq        int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts:   make(map[uuid.UUID]*domain.Account),
		operations: make(map[uuid.UUID][]*domain.AccountOperation),
	}
}

// Accounts returns the account repository view of the store.
func (s *Store) Accounts() *AccountRepository {
	return &AccountRepository{store: s}
}

// Operations returns the operation log view of the store.
func (s *Store) Operations() *OperationRepository {
	return &OperationRepository{store: s}
}

// Transactions returns the transaction manager for the store.
func (s *Store) Transactions() *TransactionManager {
	return &TransactionManager{store: s}
}

// snapshot deep-copies the mutable state. Operation records are immutable,
// so their pointers are shared; only the slices and account values are cloned.
// Caller must hold mu.
func (s *Store) snapshot() *Store {
	snap := &Store{
		accounts:   make(map[uuid.UUID]*domain.Account, len(s.accounts)),
		operations: make(map[uuid.UUID][]*domain.AccountOperation, len(s.operations)),
		seq:        s.seq,
	}
	for id, acc := range s.accounts {
		cp := *acc
		snap.accounts[id] = &cp
	}
	for id, ops := range s.operations {
		snap.operations[id] = append([]*domain.AccountOperation(nil), ops...)
	}
	return snap
}

// restore replaces the mutable state with a snapshot. Caller must hold mu.
func (s *Store) restore(snap *Store) {
	s.accounts = snap.accounts
	s.operations = snap.operations
	s.seq = snap.seq
}

// txKey marks a context as running inside a store transaction. While the
// marker is present the transaction manager holds the store's write lock,
// so repositories must not lock again.
type txKey struct{}

func inTx(ctx context.Context) bool {
	active, ok := ctx.Value(txKey{}).(bool)
	return ok && active
}

// TransactionManager implements domain.TransactionManager for the in-memory
// store. All transactions serialize behind the store's write lock, which
// gives the same per-account mutual exclusion the database's row locks do.
type TransactionManager struct {
	store *Store
}

// WithTransaction runs fn while holding the store's write lock, restoring a
// snapshot of the whole store if fn fails. Both halves of a ledger unit (the
// balance write and the log append) therefore commit or roll back together.
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tm.store.mu.Lock()
	defer tm.store.mu.Unlock()

	snap := tm.store.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		tm.store.restore(snap)
		return err
	}
	return nil
}
