package repository

import (
	"bank_ledger/internal/domain"
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store opens atomic units of work over accounts and transaction records.
// Every account lock taken inside fn is released when fn returns. If fn
// returns an error, all balance deltas and status writes made through the Tx
// are discarded.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	// GetForUpdate takes the exclusive record lock on the account, blocking
	// while another unit holds it.
	GetForUpdate(ctx context.Context, accountID string) (*domain.Account, error)
	ApplyDelta(ctx context.Context, accountID string, delta decimal.Decimal) (*domain.Account, error)
	// FindByCustomer lists the customer's accounts ordered by ID without locking them.
	FindByCustomer(ctx context.Context, customerID string) ([]*domain.Account, error)
	GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error)
	SaveTransactionStatus(ctx context.Context, tx *domain.Transaction) error
}

type AccountRepository interface {
	Save(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*domain.Account, error)
}

type CustomerRepository interface {
	Save(ctx context.Context, customer *domain.Customer) error
	GetByID(ctx context.Context, id string) (*domain.Customer, error)
}

// TransactionRepository is append-only: records are created and their status
// moved forward, never deleted.
type TransactionRepository interface {
	Save(ctx context.Context, tx *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, tx *domain.Transaction) error
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error)
}

type AuditRepository interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.AuditEntry, error)
}

type FeeRateRepository interface {
	Rate(ctx context.Context, category domain.Category, feeType string) (decimal.Decimal, error)
}

var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicate   = errors.New("duplicate entry")
	ErrLockNotHeld = errors.New("account lock not held")
)
