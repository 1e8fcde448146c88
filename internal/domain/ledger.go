package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// maxConflictRetries bounds transparent retries of operations aborted by a
// store-level concurrency conflict. A conflicted attempt leaves no partial
// effect, so re-running the whole unit is safe.
const maxConflictRetries = 3

// EventPublisher publishes completed-operation events to external systems
// (e.g. RabbitMQ). Publishing is best-effort and happens after commit.
type EventPublisher interface {
	PublishOperationCompleted(ctx context.Context, op *AccountOperation) error
}

// MetricsRecorder records per-operation metrics. Implementations must be
// safe for concurrent use.
type MetricsRecorder interface {
	RecordOperation(operation string, success bool, elapsed time.Duration)
}

// LedgerService is the only component permitted to mutate balances. It
// composes the account model, the account repository and the operation log
// into atomic, auditable units: within one transaction the balance write
// and the log append both commit or neither does.
type LedgerService struct {
	accounts   AccountRepository
	operations OperationRepository
	txManager  TransactionManager
	publisher  EventPublisher  // optional, may be nil
	metrics    MetricsRecorder // optional, may be nil
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerService.
// Pass nil for publisher or metrics if those concerns are not wired.
func NewLedgerService(
	accounts AccountRepository,
	operations OperationRepository,
	txManager TransactionManager,
	publisher EventPublisher,
	metrics MetricsRecorder,
	log zerolog.Logger,
) *LedgerService {
	return &LedgerService{
		accounts:   accounts,
		operations: operations,
		txManager:  txManager,
		publisher:  publisher,
		metrics:    metrics,
		log:        log,
	}
}

// Debit withdraws amount from the account and appends a DEBIT record, as one
// atomic unit. Returns the updated account state.
func (s *LedgerService) Debit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string) (*Account, error) {
	start := time.Now()
	account, op, err := s.applyOperation(ctx, accountID, OperationDebit, amount, description)
	s.record("debit", err, start)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account_id", accountID.String()).
		Str("amount", amount.String()).
		Str("balance", account.Balance.String()).
		Msg("debit completed")

	s.publish(op)
	return account, nil
}

// Credit deposits amount into the account and appends a CREDIT record, as
// one atomic unit. Credits are always admissible.
func (s *LedgerService) Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string) (*Account, error) {
	start := time.Now()
	account, op, err := s.applyOperation(ctx, accountID, OperationCredit, amount, description)
	s.record("credit", err, start)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account_id", accountID.String()).
		Str("amount", amount.String()).
		Str("balance", account.Balance.String()).
		Msg("credit completed")

	s.publish(op)
	return account, nil
}

// applyOperation executes a single-account debit or credit inside one
// transaction, retrying on store conflicts.
func (s *LedgerService) applyOperation(ctx context.Context, accountID uuid.UUID, opType OperationType, amount decimal.Decimal, description string) (*Account, *AccountOperation, error) {
	var (
		account *Account
		op      *AccountOperation
	)
	err := s.withRetry(ctx, func(txCtx context.Context) error {
		var err error
		account, err = s.accounts.Lock(txCtx, accountID)
		if err != nil {
			return err
		}

		switch opType {
		case OperationDebit:
			err = account.Debit(amount)
		case OperationCredit:
			err = account.Credit(amount)
		default:
			err = fmt.Errorf("%w: unknown operation type %q", ErrInvalidArgument, opType)
		}
		if err != nil {
			return err
		}

		if err := s.accounts.Update(txCtx, account); err != nil {
			return fmt.Errorf("failed to update account: %w", err)
		}

		op = NewOperation(accountID, opType, amount, description)
		if err := s.operations.Append(txCtx, op); err != nil {
			return fmt.Errorf("failed to append operation: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return account, op, nil
}

// Transfer moves amount from one account to another as a single atomic unit:
// the source debit, the destination credit and both operation records commit
// together or not at all. The source account's debit admission rule decides
// sufficiency; the destination is never checked.
func (s *LedgerService) Transfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, description string) (*Account, *Account, error) {
	start := time.Now()
	from, to, ops, err := s.executeTransfer(ctx, fromID, toID, amount, description)
	s.record("transfer", err, start)
	if err != nil {
		return nil, nil, err
	}

	s.log.Info().
		Str("from_account_id", fromID.String()).
		Str("to_account_id", toID.String()).
		Str("amount", amount.String()).
		Msg("transfer completed")

	for _, op := range ops {
		s.publish(op)
	}
	return from, to, nil
}

func (s *LedgerService) executeTransfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, description string) (*Account, *Account, []*AccountOperation, error) {
	if fromID == toID {
		return nil, nil, nil, ErrSameAccount
	}
	if err := validateAmount(amount); err != nil {
		return nil, nil, nil, err
	}

	var (
		from, to *Account
		ops      []*AccountOperation
	)
	err := s.withRetry(ctx, func(txCtx context.Context) error {
		var err error

		// Lock in a deterministic order to prevent deadlocks between
		// opposing transfers on the same pair of accounts.
		if fromID.String() < toID.String() {
			from, err = s.accounts.Lock(txCtx, fromID)
			if err != nil {
				return fmt.Errorf("failed to lock source account: %w", err)
			}
			to, err = s.accounts.Lock(txCtx, toID)
			if err != nil {
				return fmt.Errorf("failed to lock destination account: %w", err)
			}
		} else {
			to, err = s.accounts.Lock(txCtx, toID)
			if err != nil {
				return fmt.Errorf("failed to lock destination account: %w", err)
			}
			from, err = s.accounts.Lock(txCtx, fromID)
			if err != nil {
				return fmt.Errorf("failed to lock source account: %w", err)
			}
		}

		if err := from.Debit(amount); err != nil {
			return err
		}
		if err := to.Credit(amount); err != nil {
			return err
		}

		if err := s.accounts.Update(txCtx, from); err != nil {
			return fmt.Errorf("failed to update source account: %w", err)
		}
		if err := s.accounts.Update(txCtx, to); err != nil {
			return fmt.Errorf("failed to update destination account: %w", err)
		}

		debitOp := NewOperation(fromID, OperationDebit, amount, fmt.Sprintf("%s (to %s)", description, toID))
		creditOp := NewOperation(toID, OperationCredit, amount, fmt.Sprintf("%s (from %s)", description, fromID))

		if err := s.operations.Append(txCtx, debitOp); err != nil {
			return fmt.Errorf("failed to append debit operation: %w", err)
		}
		if err := s.operations.Append(txCtx, creditOp); err != nil {
			return fmt.Errorf("failed to append credit operation: %w", err)
		}

		ops = []*AccountOperation{debitOp, creditOp}
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}

	return from, to, ops, nil
}

// GetAccount retrieves the current state of an account.
func (s *LedgerService) GetAccount(ctx context.Context, accountID uuid.UUID) (*Account, error) {
	return s.accounts.GetByID(ctx, accountID)
}

// ListOperations returns the full history of an account, newest first.
// Returns ErrAccountNotFound if the account doesn't exist.
func (s *LedgerService) ListOperations(ctx context.Context, accountID uuid.UUID) ([]*AccountOperation, error) {
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.operations.ListByAccount(ctx, accountID)
}

// PageOperations returns one newest-first page of an account's history plus
// the total record count. Page index is 0-based; pages past the end yield an
// empty slice with the true total.
func (s *LedgerService) PageOperations(ctx context.Context, accountID uuid.UUID, page, size int) ([]*AccountOperation, int64, error) {
	if page < 0 {
		return nil, 0, fmt.Errorf("%w: page index cannot be negative", ErrInvalidArgument)
	}
	if size <= 0 {
		return nil, 0, fmt.Errorf("%w: page size must be positive", ErrInvalidArgument)
	}
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return nil, 0, err
	}
	return s.operations.PageByAccount(ctx, accountID, page, size)
}

// withRetry runs the unit inside a transaction, retrying a bounded number of
// times when the store reports a concurrency conflict.
func (s *LedgerService) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.txManager.WithTransaction(ctx, fn)
		if !errors.Is(err, ErrConflict) || attempt >= maxConflictRetries {
			return err
		}
		s.log.Warn().
			Int("attempt", attempt+1).
			Err(err).
			Msg("retrying conflicted ledger operation")
	}
}

// publish emits a completed-operation event after commit, best-effort. A
// transient broker failure must not make an already-committed operation
// appear to fail, so publish errors are logged and swallowed.
func (s *LedgerService) publish(op *AccountOperation) {
	if s.publisher == nil {
		return
	}
	go func(op *AccountOperation) {
		if err := s.publisher.PublishOperationCompleted(context.Background(), op); err != nil {
			s.log.Warn().
				Str("operation_id", op.ID.String()).
				Err(err).
				Msg("failed to publish operation event")
		}
	}(op)
}

func (s *LedgerService) record(operation string, err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordOperation(operation, err == nil, time.Since(start))
}
