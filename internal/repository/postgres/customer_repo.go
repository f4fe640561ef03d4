package postgres

import (
	"bank_ledger/internal/domain"
	"bank_ledger/internal/repository"
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CustomerRepository struct {
	db *pgxpool.Pool
}

func NewCustomerRepository(db *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) Save(ctx context.Context, customer *domain.Customer) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO customers (id, name, email, phone, kyc_verified)
		VALUES ($1, $2, $3, $4, $5)`,
		customer.ID, customer.Name, customer.Email, customer.Phone, customer.KYCVerified)
	if pgCode(err) == pgUniqueViolation {
		return fmt.Errorf("%w: customer %s", repository.ErrDuplicate, customer.ID)
	}
	if err != nil {
		return fmt.Errorf("insert customer %s: %w", customer.ID, err)
	}
	return nil
}

func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	return getCustomer(ctx, r.db, id)
}

func (r *CustomerRepository) SetKYCVerified(ctx context.Context, id string, verified bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE customers SET kyc_verified = $2 WHERE id = $1`, id, verified)
	if err != nil {
		return fmt.Errorf("update customer %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: customer %s", domain.ErrCustomerNotFound, id)
	}
	return nil
}

func getCustomer(ctx context.Context, q querier, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := q.QueryRow(ctx,
		`SELECT id, name, email, phone, kyc_verified FROM customers WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.KYCVerified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: customer %s", domain.ErrCustomerNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get customer %s: %w", id, err)
	}
	return &c, nil
}
