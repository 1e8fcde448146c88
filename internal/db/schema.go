package db

import (
	"context"
	"fmt"
)

// migrations holds the schema statements applied by Migrate, in order.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY,
		customer_id UUID NOT NULL,
		kind VARCHAR(10) NOT NULL,
		balance NUMERIC(15, 2) NOT NULL,
		overdraft_limit NUMERIC(15, 2) NOT NULL DEFAULT 0,
		interest_rate NUMERIC(8, 4) NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS account_operations (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		account_id UUID NOT NULL REFERENCES accounts(id),
		type VARCHAR(10) NOT NULL,
		amount NUMERIC(15, 2) NOT NULL CHECK (amount > 0),
		description TEXT,
		operation_date TIMESTAMP NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_account_operations_account_id
		ON account_operations(account_id, operation_date DESC, seq DESC);`,
}

// Migrate applies the schema to the connected database. Statements are
// idempotent, so running Migrate on every startup is safe.
func Migrate(ctx context.Context, pool *Pool) error {
	for i, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration %d: %w", i+1, err)
		}
	}
	return nil
}
