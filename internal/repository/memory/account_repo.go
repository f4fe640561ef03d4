package memory

import (
	"bank_ledger/internal/domain"
	"bank_ledger/internal/repository"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type AccountRepository struct {
	mu            sync.RWMutex
	accounts      map[string]*domain.Account
	customerIndex map[string][]string
	// one-slot channels act as the per-row exclusive locks
	locks map[string]chan struct{}
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts:      make(map[string]*domain.Account),
		customerIndex: make(map[string][]string),
		locks:         make(map[string]chan struct{}),
	}
}

func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.ID]; exists {
		return fmt.Errorf("%w: account %s", repository.ErrDuplicate, account.ID)
	}

	now := time.Now().UTC()
	stored := account.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.accounts[stored.ID] = stored
	r.locks[stored.ID] = make(chan struct{}, 1)

	r.customerIndex[stored.CustomerID] = append(r.customerIndex[stored.CustomerID], stored.ID)

	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, exists := r.accounts[id]
	if !exists {
		return nil, fmt.Errorf("%w: account %s", domain.ErrAccountNotFound, id)
	}
	return account.Clone(), nil
}

func (r *AccountRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Account, 0, len(r.customerIndex[customerID]))
	for _, id := range r.customerIndex[customerID] {
		if account, exists := r.accounts[id]; exists {
			result = append(result, account.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result, nil
}

func (r *AccountRepository) TotalBalance() decimal.Decimal {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := decimal.Zero
	for _, account := range r.accounts {
		total = total.Add(account.Balance)
	}
	return total
}

func (r *AccountRepository) lockFor(id string) (chan struct{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lock, ok := r.locks[id]
	return lock, ok
}

// publishLocked replaces committed balances. Caller holds r.mu.
func (r *AccountRepository) publishLocked(accounts []*domain.Account, at time.Time) {
	for _, account := range accounts {
		stored, exists := r.accounts[account.ID]
		if !exists {
			continue
		}
		stored.Balance = account.Balance
		stored.UpdatedAt = at
	}
}
