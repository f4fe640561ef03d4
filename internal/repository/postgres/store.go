package postgres

import (
	"bank_ledger/internal/domain"
	"bank_ledger/internal/repository"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const defaultLockTimeout = 5 * time.Second

// Store runs units of work as READ COMMITTED transactions. Account locks
// are row locks taken with SELECT ... FOR UPDATE and bounded by the
// session lock_timeout.
type Store struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

func NewStore(db *pgxpool.Pool, lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &Store{db: db, lockTimeout: lockTimeout}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// SET does not take bind parameters.
	lockTimeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, lockTimeout); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	u := &unit{tx: tx, locked: make(map[string]bool), lockTimeout: s.lockTimeout}
	if err := fn(ctx, u); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type unit struct {
	tx          pgx.Tx
	locked      map[string]bool
	lockTimeout time.Duration
}

func (u *unit) GetForUpdate(ctx context.Context, accountID string) (*domain.Account, error) {
	row := u.tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, accountID)

	account, err := scanAccount(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("%w: account %s", domain.ErrAccountNotFound, accountID)
	case pgCode(err) == pgLockNotAvailable:
		return nil, fmt.Errorf("%w: account %s after %s", domain.ErrLockTimeout, accountID, u.lockTimeout)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return nil, fmt.Errorf("%w: account %s: %w", domain.ErrLockTimeout, accountID, err)
	case err != nil:
		return nil, fmt.Errorf("lock account %s: %w", accountID, err)
	}

	u.locked[accountID] = true
	return account, nil
}

func (u *unit) ApplyDelta(ctx context.Context, accountID string, delta decimal.Decimal) (*domain.Account, error) {
	if !u.locked[accountID] {
		return nil, fmt.Errorf("%w: account %s", repository.ErrLockNotHeld, accountID)
	}

	row := u.tx.QueryRow(ctx, `
		UPDATE accounts
		SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1 AND balance + overdraft_limit + $2 >= 0
		RETURNING `+accountColumns, accountID, delta)

	account, err := scanAccount(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows), pgCode(err) == pgCheckViolation:
		return nil, fmt.Errorf("%w: account %s delta %s", domain.ErrInsufficientFunds, accountID, delta.StringFixed(2))
	case err != nil:
		return nil, fmt.Errorf("apply delta to account %s: %w", accountID, err)
	}
	return account, nil
}

func (u *unit) FindByCustomer(ctx context.Context, customerID string) ([]*domain.Account, error) {
	return listAccountsByCustomer(ctx, u.tx, customerID)
}

func (u *unit) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	return getCustomer(ctx, u.tx, customerID)
}

func (u *unit) SaveTransactionStatus(ctx context.Context, tx *domain.Transaction) error {
	return updateTransactionStatus(ctx, u.tx, tx)
}
