package memory

import (
	"bank_ledger/internal/domain"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type AuditRepository struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *AuditRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.AuditEntry
	for _, entry := range r.entries {
		if entry.TransactionID == transactionID {
			result = append(result, entry)
		}
	}
	return result, nil
}
