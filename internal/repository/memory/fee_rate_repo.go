package memory

import (
	"bank_ledger/internal/domain"
	"bank_ledger/internal/repository"
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

type FeeRateRepository struct {
	mu    sync.RWMutex
	rates map[string]decimal.Decimal
}

func NewFeeRateRepository() *FeeRateRepository {
	return &FeeRateRepository{
		rates: make(map[string]decimal.Decimal),
	}
}

func (r *FeeRateRepository) SetRate(category domain.Category, feeType string, rate decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[rateKey(category, feeType)] = rate
}

func (r *FeeRateRepository) Rate(ctx context.Context, category domain.Category, feeType string) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rate, exists := r.rates[rateKey(category, feeType)]
	if !exists {
		return decimal.Zero, fmt.Errorf("%w: fee rate %s/%s", repository.ErrNotFound, category, feeType)
	}
	return rate, nil
}

func rateKey(category domain.Category, feeType string) string {
	return string(category) + "|" + feeType
}
