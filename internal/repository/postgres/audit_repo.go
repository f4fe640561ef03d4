package postgres

import (
	"bank_ledger/internal/domain"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AuditRepository struct {
	db *pgxpool.Pool
}

func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO transaction_audit (transaction_id, old_status, new_status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.TransactionID, string(entry.OldStatus), string(entry.NewStatus), entry.Notes, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit entry for %s: %w", entry.TransactionID, err)
	}
	return nil
}

func (r *AuditRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.AuditEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT transaction_id, old_status, new_status, notes, created_at
		FROM transaction_audit
		WHERE transaction_id = $1
		ORDER BY id`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries for %s: %w", transactionID, err)
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var (
			e                    domain.AuditEntry
			oldStatus, newStatus string
		)
		if err := rows.Scan(&e.TransactionID, &oldStatus, &newStatus, &e.Notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.OldStatus = domain.TransactionStatus(oldStatus)
		e.NewStatus = domain.TransactionStatus(newStatus)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
