package memory

import (
	"bank_ledger/internal/domain"
	"bank_ledger/internal/repository"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type TransactionRepository struct {
	mu           sync.RWMutex
	transactions map[uuid.UUID]*domain.Transaction
	index        map[string][]uuid.UUID
}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{
		transactions: make(map[uuid.UUID]*domain.Transaction),
		index:        make(map[string][]uuid.UUID),
	}
}

func (r *TransactionRepository) Save(ctx context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.transactions[tx.ID]; exists {
		return fmt.Errorf("%w: transaction %s", repository.ErrDuplicate, tx.ID)
	}

	r.transactions[tx.ID] = tx.Clone()

	if tx.SenderAccountID != "" {
		r.index[tx.SenderAccountID] = append(r.index[tx.SenderAccountID], tx.ID)
	}
	if tx.ReceiverAccountID != "" && tx.ReceiverAccountID != tx.SenderAccountID {
		r.index[tx.ReceiverAccountID] = append(r.index[tx.ReceiverAccountID], tx.ID)
	}

	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, exists := r.transactions[id]
	if !exists {
		return nil, fmt.Errorf("%w: transaction %s", repository.ErrNotFound, id)
	}
	return tx.Clone(), nil
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.updateStatusLocked(tx)
}

func (r *TransactionRepository) updateStatusLocked(tx *domain.Transaction) error {
	stored, exists := r.transactions[tx.ID]
	if !exists {
		return fmt.Errorf("%w: transaction %s", repository.ErrNotFound, tx.ID)
	}
	if stored.Status != tx.Status && !stored.Status.CanTransitionTo(tx.Status) {
		return fmt.Errorf("%w: stored %s, got %s", domain.ErrInvalidStateTransition, stored.Status, tx.Status)
	}

	stored.Status = tx.Status
	stored.PreviousStatus = tx.PreviousStatus
	stored.Fee = tx.Fee
	stored.FeeType = tx.FeeType
	stored.FailureReason = tx.FailureReason
	stored.UpdatedAt = tx.UpdatedAt

	return nil
}

func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := append([]uuid.UUID(nil), r.index[accountID]...)
	sort.Slice(ids, func(i, j int) bool {
		return r.transactions[ids[i]].CreatedAt.After(r.transactions[ids[j]].CreatedAt)
	})

	if offset >= len(ids) {
		return []*domain.Transaction{}, nil
	}
	end := len(ids)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	result := make([]*domain.Transaction, 0, end-offset)
	for _, id := range ids[offset:end] {
		result = append(result, r.transactions[id].Clone())
	}

	return result, nil
}
