package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bankcore/ledger-service/internal/domain"
)

// OperationRepository implements domain.OperationRepository using PostgreSQL.
// The account_operations table is append-only: rows are inserted by Append
// and never updated or deleted.
type OperationRepository struct {
	pool *pgxpool.Pool
}

// NewOperationRepository creates a new OperationRepository.
func NewOperationRepository(pool *pgxpool.Pool) *OperationRepository {
	return &OperationRepository{
		pool: pool,
	}
}

// Append durably persists one operation record and assigns its Seq from the
// table's sequence. Runs inside the ambient transaction when one is present,
// so the append commits or rolls back together with the balance write.
func (r *OperationRepository) Append(ctx context.Context, op *domain.AccountOperation) error {
	query := `
		INSERT INTO account_operations (id, account_id, type, amount, description, operation_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq
	`

	args := []any{
		op.ID,
		op.AccountID,
		string(op.Type),
		op.Amount.String(),
		op.Description,
		op.OperationDate,
	}

	var row pgx.Row
	if tx := getTx(ctx); tx != nil {
		row = tx.QueryRow(ctx, query, args...)
	} else {
		row = r.pool.QueryRow(ctx, query, args...)
	}

	if err := row.Scan(&op.Seq); err != nil {
		return fmt.Errorf("failed to append operation: %w", err)
	}

	return nil
}

// ListByAccount returns the account's full history, newest first. Timestamp
// ties are broken by seq so the ordering is total and deterministic.
func (r *OperationRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*domain.AccountOperation, error) {
	query := `
		SELECT id, account_id, seq, type, amount::text, description, operation_date
		FROM account_operations
		WHERE account_id = $1
		ORDER BY operation_date DESC, seq DESC
	`

	var rows pgx.Rows
	var err error
	if tx := getTx(ctx); tx != nil {
		rows, err = tx.Query(ctx, query, accountID)
	} else {
		rows, err = r.pool.Query(ctx, query, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	return scanOperations(rows)
}

// PageByAccount returns one newest-first page of the account's history plus
// the total record count. Page index is 0-based.
func (r *OperationRepository) PageByAccount(ctx context.Context, accountID uuid.UUID, page, size int) ([]*domain.AccountOperation, int64, error) {
	countQuery := `SELECT COUNT(*) FROM account_operations WHERE account_id = $1`
	pageQuery := `
		SELECT id, account_id, seq, type, amount::text, description, operation_date
		FROM account_operations
		WHERE account_id = $1
		ORDER BY operation_date DESC, seq DESC
		LIMIT $2 OFFSET $3
	`

	var total int64
	var countRow pgx.Row
	if tx := getTx(ctx); tx != nil {
		countRow = tx.QueryRow(ctx, countQuery, accountID)
	} else {
		countRow = r.pool.QueryRow(ctx, countQuery, accountID)
	}
	if err := countRow.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count operations: %w", err)
	}

	var rows pgx.Rows
	var err error
	if tx := getTx(ctx); tx != nil {
		rows, err = tx.Query(ctx, pageQuery, accountID, size, page*size)
	} else {
		rows, err = r.pool.Query(ctx, pageQuery, accountID, size, page*size)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to page operations: %w", err)
	}
	defer rows.Close()

	ops, err := scanOperations(rows)
	if err != nil {
		return nil, 0, err
	}

	return ops, total, nil
}

func scanOperations(rows pgx.Rows) ([]*domain.AccountOperation, error) {
	var ops []*domain.AccountOperation
	for rows.Next() {
		var (
			op            domain.AccountOperation
			opType        string
			amount        string
			operationDate time.Time
		)
		err := rows.Scan(&op.ID, &op.AccountID, &op.Seq, &opType, &amount, &op.Description, &operationDate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}

		op.Type = domain.OperationType(opType)
		op.OperationDate = operationDate
		if op.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invalid stored amount: %w", err)
		}

		ops = append(ops, &op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read operations: %w", err)
	}

	return ops, nil
}
