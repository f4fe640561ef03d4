package postgres

import (
	"bank_ledger/internal/domain"
	"bank_ledger/internal/repository"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const transactionColumns = `id, amount, sender_account_id, receiver_account_id, status, previous_status,
	fee, fee_type, failure_reason, created_at, updated_at`

type TransactionRepository struct {
	db *pgxpool.Pool
}

func NewTransactionRepository(db *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Save(ctx context.Context, tx *domain.Transaction) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		tx.ID, tx.Amount, tx.SenderAccountID, tx.ReceiverAccountID, string(tx.Status),
		string(tx.PreviousStatus), tx.Fee, tx.FeeType, tx.FailureReason, tx.CreatedAt, tx.UpdatedAt)
	if pgCode(err) == pgUniqueViolation {
		return fmt.Errorf("%w: transaction %s", repository.ErrDuplicate, tx.ID)
	}
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", tx.ID, err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", repository.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx *domain.Transaction) error {
	return updateTransactionStatus(ctx, r.db, tx)
}

func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE sender_account_id = $1 OR receiver_account_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions for account %s: %w", accountID, err)
	}
	defer rows.Close()

	txs := make([]*domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// updateTransactionStatus only moves a record forward: the stored status must
// be the record's previous status, or already equal to the new one.
func updateTransactionStatus(ctx context.Context, q querier, tx *domain.Transaction) error {
	if tx == nil {
		return errors.New("nil transaction")
	}

	tag, err := q.Exec(ctx, `
		UPDATE transactions
		SET status = $2, previous_status = $3, fee = $4, fee_type = $5,
		    failure_reason = $6, updated_at = $7
		WHERE id = $1 AND (status = $2 OR status = $3)`,
		tx.ID, string(tx.Status), string(tx.PreviousStatus), tx.Fee, tx.FeeType,
		tx.FailureReason, tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", tx.ID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var stored string
	err = q.QueryRow(ctx, `SELECT status FROM transactions WHERE id = $1`, tx.ID).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: transaction %s", repository.ErrNotFound, tx.ID)
	}
	if err != nil {
		return fmt.Errorf("get transaction %s: %w", tx.ID, err)
	}
	return fmt.Errorf("%w: stored %s, got %s", domain.ErrInvalidStateTransition, stored, tx.Status)
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		tx           domain.Transaction
		status, prev string
	)
	err := row.Scan(&tx.ID, &tx.Amount, &tx.SenderAccountID, &tx.ReceiverAccountID, &status, &prev,
		&tx.Fee, &tx.FeeType, &tx.FailureReason, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return nil, err
	}
	tx.Status = domain.TransactionStatus(status)
	tx.PreviousStatus = domain.TransactionStatus(prev)
	return &tx, nil
}
