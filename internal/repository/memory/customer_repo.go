package memory

import (
	"bank_ledger/internal/domain"
	"bank_ledger/internal/repository"
	"context"
	"fmt"
	"sync"
)

type CustomerRepository struct {
	mu        sync.RWMutex
	customers map[string]*domain.Customer
}

func NewCustomerRepository() *CustomerRepository {
	return &CustomerRepository{
		customers: make(map[string]*domain.Customer),
	}
}

func (r *CustomerRepository) Save(ctx context.Context, customer *domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.customers[customer.ID]; exists {
		return fmt.Errorf("%w: customer %s", repository.ErrDuplicate, customer.ID)
	}
	c := *customer
	r.customers[customer.ID] = &c
	return nil
}

func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	customer, exists := r.customers[id]
	if !exists {
		return nil, fmt.Errorf("%w: customer %s", domain.ErrCustomerNotFound, id)
	}
	c := *customer
	return &c, nil
}

func (r *CustomerRepository) SetKYCVerified(ctx context.Context, id string, verified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	customer, exists := r.customers[id]
	if !exists {
		return fmt.Errorf("%w: customer %s", domain.ErrCustomerNotFound, id)
	}
	customer.KYCVerified = verified
	return nil
}
