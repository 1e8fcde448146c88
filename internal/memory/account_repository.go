package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bankcore/ledger-service/internal/domain"
)

// AccountRepository implements domain.AccountRepository on the in-memory store.
type AccountRepository struct {
	store *Store
}

// Create persists a new account.
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	if !inTx(ctx) {
		r.store.mu.Lock()
		defer r.store.mu.Unlock()
	}

	if _, exists := r.store.accounts[account.ID]; exists {
		return fmt.Errorf("%w: account %s", domain.ErrDuplicate, account.ID)
	}

	cp := *account
	r.store.accounts[account.ID] = &cp
	return nil
}

// GetByID retrieves a copy of the account's current state.
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if !inTx(ctx) {
		r.store.mu.RLock()
		defer r.store.mu.RUnlock()
	}

	return r.get(id)
}

// Update persists changes to an existing account.
func (r *AccountRepository) Update(ctx context.Context, account *domain.Account) error {
	if !inTx(ctx) {
		r.store.mu.Lock()
		defer r.store.mu.Unlock()
	}

	if _, exists := r.store.accounts[account.ID]; !exists {
		return domain.ErrAccountNotFound
	}

	cp := *account
	r.store.accounts[account.ID] = &cp
	return nil
}

// Lock returns the account's current state. Mutual exclusion comes from the
// transaction manager's store-wide lock, so there is no per-row lock to take.
func (r *AccountRepository) Lock(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if !inTx(ctx) {
		r.store.mu.RLock()
		defer r.store.mu.RUnlock()
	}

	return r.get(id)
}

func (r *AccountRepository) get(id uuid.UUID) (*domain.Account, error) {
	account, exists := r.store.accounts[id]
	if !exists {
		return nil, domain.ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}
