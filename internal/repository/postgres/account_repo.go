package postgres

import (
	"bank_ledger/internal/domain"
	"bank_ledger/internal/repository"
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, customer_id, category, balance, overdraft_limit, interest_rate, created_at, updated_at`

type AccountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	var rate decimal.NullDecimal
	if account.InterestRate != nil {
		rate = decimal.NewNullDecimal(*account.InterestRate)
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.ID, account.CustomerID, string(account.Category), account.Balance,
		account.OverdraftLimit, rate, account.CreatedAt, account.UpdatedAt)
	if pgCode(err) == pgUniqueViolation {
		return fmt.Errorf("%w: account %s", repository.ErrDuplicate, account.ID)
	}
	if err != nil {
		return fmt.Errorf("insert account %s: %w", account.ID, err)
	}
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", domain.ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return account, nil
}

func (r *AccountRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Account, error) {
	return listAccountsByCustomer(ctx, r.db, customerID)
}

func listAccountsByCustomer(ctx context.Context, q querier, customerID string) ([]*domain.Account, error) {
	rows, err := q.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE customer_id = $1 ORDER BY id`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts for customer %s: %w", customerID, err)
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account  domain.Account
		category string
		rate     decimal.NullDecimal
	)
	err := row.Scan(&account.ID, &account.CustomerID, &category, &account.Balance,
		&account.OverdraftLimit, &rate, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}

	account.Category = domain.Category(category)
	if rate.Valid {
		r := rate.Decimal
		account.InterestRate = &r
	}
	return &account, nil
}
