package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bankcore/ledger-service/internal/domain"
)

// AccountRepository implements domain.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{
		pool: pool,
	}
}

const accountColumns = `id, customer_id, kind, balance::text, overdraft_limit::text, interest_rate::text, created_at, updated_at`

// Create persists a new account.
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, customer_id, kind, balance, overdraft_limit, interest_rate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	args := []any{
		account.ID,
		account.CustomerID,
		string(account.Kind),
		account.Balance.String(),
		account.OverdraftLimit.String(),
		account.InterestRate.String(),
		account.CreatedAt,
		account.UpdatedAt,
	}

	var err error
	if tx := getTx(ctx); tx != nil {
		_, err = tx.Exec(ctx, query, args...)
	} else {
		_, err = r.pool.Exec(ctx, query, args...)
	}

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: account %s", domain.ErrDuplicate, account.ID)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its unique identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	var row pgx.Row
	if tx := getTx(ctx); tx != nil {
		row = tx.QueryRow(ctx, query, id)
	} else {
		row = r.pool.QueryRow(ctx, query, id)
	}

	return scanAccount(row)
}

// Update persists changes to an existing account.
func (r *AccountRepository) Update(ctx context.Context, account *domain.Account) error {
	query := `
		UPDATE accounts
		SET balance = $2,
		    updated_at = $3
		WHERE id = $1
	`

	var result pgconn.CommandTag
	var err error
	if tx := getTx(ctx); tx != nil {
		result, err = tx.Exec(ctx, query, account.ID, account.Balance.String(), account.UpdatedAt)
	} else {
		result, err = r.pool.Exec(ctx, query, account.ID, account.Balance.String(), account.UpdatedAt)
	}

	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// Lock acquires a pessimistic lock on the account row for the duration of
// the transaction, using SELECT ... FOR UPDATE. Concurrent mutations of the
// same account serialize behind this lock.
// Must be called within a transaction context.
func (r *AccountRepository) Lock(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

	var row pgx.Row
	if tx := getTx(ctx); tx != nil {
		row = tx.QueryRow(ctx, query, id)
	} else {
		row = r.pool.QueryRow(ctx, query, id)
	}

	return scanAccount(row)
}

// scanAccount scans one accounts row. Numeric columns travel as text and are
// parsed into fixed-precision decimals.
func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account                      domain.Account
		kind                         string
		balance, overdraft, interest string
		createdAt, updatedAt         time.Time
	)

	err := row.Scan(
		&account.ID,
		&account.CustomerID,
		&kind,
		&balance,
		&overdraft,
		&interest,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	account.Kind = domain.AccountKind(kind)
	account.CreatedAt = createdAt
	account.UpdatedAt = updatedAt

	if account.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("invalid stored balance: %w", err)
	}
	if account.OverdraftLimit, err = decimal.NewFromString(overdraft); err != nil {
		return nil, fmt.Errorf("invalid stored overdraft limit: %w", err)
	}
	if account.InterestRate, err = decimal.NewFromString(interest); err != nil {
		return nil, fmt.Errorf("invalid stored interest rate: %w", err)
	}

	return &account, nil
}
