package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/bankcore/ledger-service/internal/domain"
)

// OperationRepository implements domain.OperationRepository on the in-memory
// store. The log is append-only: records are never mutated after Append.
type OperationRepository struct {
	store *Store
}

// Append assigns the next sequence number and stores the record.
func (r *OperationRepository) Append(ctx context.Context, op *domain.AccountOperation) error {
	if !inTx(ctx) {
		r.store.mu.Lock()
		defer r.store.mu.Unlock()
	}

	r.store.seq++
	op.Seq = r.store.seq

	cp := *op
	r.store.operations[op.AccountID] = append(r.store.operations[op.AccountID], &cp)
	return nil
}

// ListByAccount returns the account's full history, newest first.
func (r *OperationRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*domain.AccountOperation, error) {
	if !inTx(ctx) {
		r.store.mu.RLock()
		defer r.store.mu.RUnlock()
	}

	return r.sorted(accountID), nil
}

// PageByAccount returns one newest-first page plus the total record count.
func (r *OperationRepository) PageByAccount(ctx context.Context, accountID uuid.UUID, page, size int) ([]*domain.AccountOperation, int64, error) {
	if !inTx(ctx) {
		r.store.mu.RLock()
		defer r.store.mu.RUnlock()
	}

	ops := r.sorted(accountID)
	total := int64(len(ops))

	start := page * size
	if start >= len(ops) {
		return nil, total, nil
	}
	end := start + size
	if end > len(ops) {
		end = len(ops)
	}

	return ops[start:end], total, nil
}

// sorted returns a fresh newest-first slice: operation date descending,
// ties broken by sequence descending.
func (r *OperationRepository) sorted(accountID uuid.UUID) []*domain.AccountOperation {
	ops := append([]*domain.AccountOperation(nil), r.store.operations[accountID]...)
	sort.SliceStable(ops, func(i, j int) bool {
		if !ops[i].OperationDate.Equal(ops[j].OperationDate) {
			return ops[i].OperationDate.After(ops[j].OperationDate)
		}
		return ops[i].Seq > ops[j].Seq
	})
	return ops
}
