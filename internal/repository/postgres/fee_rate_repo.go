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

type FeeRateRepository struct {
	db *pgxpool.Pool
}

func NewFeeRateRepository(db *pgxpool.Pool) *FeeRateRepository {
	return &FeeRateRepository{db: db}
}

func (r *FeeRateRepository) SetRate(ctx context.Context, category domain.Category, feeType string, rate decimal.Decimal) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO fee_structures (account_type, fee_type, rate)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_type, fee_type) DO UPDATE SET rate = EXCLUDED.rate`,
		string(category), feeType, rate)
	if err != nil {
		return fmt.Errorf("set fee rate %s/%s: %w", category, feeType, err)
	}
	return nil
}

func (r *FeeRateRepository) Rate(ctx context.Context, category domain.Category, feeType string) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := r.db.QueryRow(ctx,
		`SELECT rate FROM fee_structures WHERE account_type = $1 AND fee_type = $2`,
		string(category), feeType,
	).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w: fee rate %s/%s", repository.ErrNotFound, category, feeType)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get fee rate %s/%s: %w", category, feeType, err)
	}
	return rate, nil
}
