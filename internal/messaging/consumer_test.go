package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/bankcore/ledger-service/internal/domain"
	"github.com/bankcore/ledger-service/internal/memory"
)

func newTestConsumer(t *testing.T) (*Consumer, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	ledger := domain.NewLedgerService(
		store.Accounts(),
		store.Operations(),
		store.Transactions(),
		nil,
		nil,
		zerolog.Nop(),
	)
	return &Consumer{ledger: ledger, log: zerolog.Nop()}, store
}

func seedAccount(t *testing.T, store *memory.Store, balance string) uuid.UUID {
	t.Helper()
	acc, err := domain.NewCurrentAccount(uuid.New(), uuid.New(), decimal.RequireFromString(balance), decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Accounts().Create(context.Background(), acc); err != nil {
		t.Fatal(err)
	}
	return acc.ID
}

func TestApply(t *testing.T) {
	c, store := newTestConsumer(t)
	ctx := context.Background()
	accountID := seedAccount(t, store, "100")
	otherID := seedAccount(t, store, "0")

	tests := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{
			name: "debit",
			cmd:  Command{CommandType: "debit", AccountID: accountID.String(), Amount: "30", Description: "rent"},
		},
		{
			name: "credit",
			cmd:  Command{CommandType: "credit", AccountID: accountID.String(), Amount: "10", Description: "refund"},
		},
		{
			name: "transfer",
			cmd:  Command{CommandType: "transfer", AccountID: accountID.String(), ToAccountID: otherID.String(), Amount: "20", Description: "move"},
		},
		{
			name:    "bad amount",
			cmd:     Command{CommandType: "debit", AccountID: accountID.String(), Amount: "nope"},
			wantErr: domain.ErrInvalidArgument,
		},
		{
			name:    "bad account id",
			cmd:     Command{CommandType: "debit", AccountID: "not-a-uuid", Amount: "10"},
			wantErr: domain.ErrInvalidArgument,
		},
		{
			name:    "unknown command type",
			cmd:     Command{CommandType: "freeze", AccountID: accountID.String(), Amount: "10"},
			wantErr: domain.ErrInvalidArgument,
		},
		{
			name:    "unknown account",
			cmd:     Command{CommandType: "credit", AccountID: uuid.New().String(), Amount: "10"},
			wantErr: domain.ErrAccountNotFound,
		},
		{
			name:    "transfer without destination",
			cmd:     Command{CommandType: "transfer", AccountID: accountID.String(), Amount: "10"},
			wantErr: domain.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.apply(ctx, tt.cmd)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("apply: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	// 100 - 30 + 10 - 20 after the successful commands.
	acc, err := store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		t.Fatal(err)
	}
	if !acc.Balance.Equal(decimal.RequireFromString("60")) {
		t.Errorf("expected balance 60, got %s", acc.Balance)
	}
}

func TestIsPermanent(t *testing.T) {
	permanent := []error{domain.ErrInvalidArgument, domain.ErrInvalidAmount, domain.ErrSameAccount, domain.ErrAccountNotFound, domain.ErrInsufficientFunds}
	for _, err := range permanent {
		if !isPermanent(err) {
			t.Errorf("expected %v to be permanent", err)
		}
	}
	if isPermanent(domain.ErrConflict) {
		t.Error("conflicts are retryable, not permanent")
	}
	if isPermanent(errors.New("broker hiccup")) {
		t.Error("unknown failures are retryable, not permanent")
	}
}
