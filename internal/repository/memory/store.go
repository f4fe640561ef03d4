package memory

import (
	"bank_ledger/internal/domain"
	"bank_ledger/internal/repository"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const defaultLockTimeout = 5 * time.Second

// Store runs units of work against the in-memory repositories. Account
// locks are exclusive and held for the whole unit; deltas are applied to
// working copies and published together on commit.
type Store struct {
	accounts     *AccountRepository
	customers    *CustomerRepository
	transactions *TransactionRepository
	lockTimeout  time.Duration
}

func NewStore(
	accounts *AccountRepository,
	customers *CustomerRepository,
	transactions *TransactionRepository,
	lockTimeout time.Duration,
) *Store {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &Store{
		accounts:     accounts,
		customers:    customers,
		transactions: transactions,
		lockTimeout:  lockTimeout,
	}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	u := &unit{
		store: s,
		held:  make(map[string]*domain.Account),
		locks: make(map[string]chan struct{}),
	}
	defer u.release()

	if err := fn(ctx, u); err != nil {
		return err
	}

	return u.commit()
}

type unit struct {
	store    *Store
	held     map[string]*domain.Account
	locks    map[string]chan struct{}
	statuses []*domain.Transaction
}

func (u *unit) GetForUpdate(ctx context.Context, accountID string) (*domain.Account, error) {
	if working, ok := u.held[accountID]; ok {
		return working.Clone(), nil
	}

	lock, ok := u.store.accounts.lockFor(accountID)
	if !ok {
		return nil, fmt.Errorf("%w: account %s", domain.ErrAccountNotFound, accountID)
	}

	timer := time.NewTimer(u.store.lockTimeout)
	defer timer.Stop()

	select {
	case lock <- struct{}{}:
	case <-timer.C:
		return nil, fmt.Errorf("%w: account %s after %s", domain.ErrLockTimeout, accountID, u.store.lockTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: account %s: %w", domain.ErrLockTimeout, accountID, ctx.Err())
	}
	u.locks[accountID] = lock

	committed, err := u.store.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	u.held[accountID] = committed

	return committed.Clone(), nil
}

func (u *unit) ApplyDelta(ctx context.Context, accountID string, delta decimal.Decimal) (*domain.Account, error) {
	working, ok := u.held[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", repository.ErrLockNotHeld, accountID)
	}

	if !working.CanApply(delta) {
		return nil, fmt.Errorf("%w: account %s available %s, delta %s",
			domain.ErrInsufficientFunds, accountID, working.Available().StringFixed(2), delta.StringFixed(2))
	}

	working.Balance = working.Balance.Add(delta)
	return working.Clone(), nil
}

func (u *unit) FindByCustomer(ctx context.Context, customerID string) ([]*domain.Account, error) {
	accounts, err := u.store.accounts.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	for i, account := range accounts {
		if working, ok := u.held[account.ID]; ok {
			accounts[i] = working.Clone()
		}
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].ID < accounts[j].ID
	})

	return accounts, nil
}

func (u *unit) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	return u.store.customers.GetByID(ctx, customerID)
}

func (u *unit) SaveTransactionStatus(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil {
		return errors.New("nil transaction")
	}
	u.statuses = append(u.statuses, tx.Clone())
	return nil
}

// commit publishes balances and staged statuses under both repository
// mutexes, always taken accounts first.
func (u *unit) commit() error {
	accounts := u.store.accounts
	transactions := u.store.transactions

	accounts.mu.Lock()
	defer accounts.mu.Unlock()
	transactions.mu.Lock()
	defer transactions.mu.Unlock()

	for _, tx := range u.statuses {
		stored, exists := transactions.transactions[tx.ID]
		if !exists {
			return fmt.Errorf("%w: transaction %s", repository.ErrNotFound, tx.ID)
		}
		if stored.Status != tx.Status && !stored.Status.CanTransitionTo(tx.Status) {
			return fmt.Errorf("%w: stored %s, got %s", domain.ErrInvalidStateTransition, stored.Status, tx.Status)
		}
	}

	working := make([]*domain.Account, 0, len(u.held))
	for _, account := range u.held {
		working = append(working, account)
	}
	accounts.publishLocked(working, time.Now().UTC())

	for _, tx := range u.statuses {
		// checked above; cannot fail
		_ = transactions.updateStatusLocked(tx)
	}

	return nil
}

func (u *unit) release() {
	for id, lock := range u.locks {
		<-lock
		delete(u.locks, id)
	}
}
