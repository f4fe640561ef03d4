package fee

import (
	"bank_ledger/internal/domain"
	"bank_ledger/internal/repository"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

const (
	FeeTypeTransaction = "TRANSACTION"
	FeeTypePremium     = "PREMIUM"
	FeeTypeWaived      = "WAIVED"
)

type Strategy interface {
	CalculateFee(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error)
	FeeType() string
}

// Basic charges amount × the category's TRANSACTION rate. A category with no
// configured rate pays nothing.
type Basic struct {
	Category domain.Category
	Rates    repository.FeeRateRepository
}

func (b Basic) FeeType() string { return FeeTypeTransaction }

func (b Basic) CalculateFee(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	rate, err := b.Rates.Rate(ctx, b.Category, FeeTypeTransaction)
	if errors.Is(err, repository.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("fee rate for %s: %w", b.Category, err)
	}
	return amount.Mul(rate), nil
}

type Percentage struct {
	Rate decimal.Decimal
	Type string
}

func (p Percentage) FeeType() string { return p.Type }

func (p Percentage) CalculateFee(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	return amount.Mul(p.Rate), nil
}

type Waived struct{}

func (Waived) FeeType() string { return FeeTypeWaived }

func (Waived) CalculateFee(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type Quote struct {
	Fee     decimal.Decimal
	FeeType string
}

type Calculator struct {
	mu         sync.RWMutex
	strategies map[domain.Category]Strategy
}

func NewCalculator() *Calculator {
	return &Calculator{strategies: make(map[domain.Category]Strategy)}
}

var premiumRate = decimal.RequireFromString("0.05")

// DefaultCalculator registers the built-in categories. STANDARD, SAVINGS and
// CHECKING read the rate table; PREMIUM pays 5%; STUDENT pays nothing.
func DefaultCalculator(rates repository.FeeRateRepository) *Calculator {
	c := NewCalculator()
	for _, category := range []domain.Category{domain.CategoryStandard, domain.CategorySavings, domain.CategoryChecking} {
		c.Register(category, Basic{Category: category, Rates: rates})
	}
	c.Register(domain.CategoryPremium, Percentage{Rate: premiumRate, Type: FeeTypePremium})
	c.Register(domain.CategoryStudent, Waived{})
	return c
}

func (c *Calculator) Register(category domain.Category, s Strategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategies[category] = s
}

func (c *Calculator) Lookup(category domain.Category) (Strategy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.strategies[category]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAccountType, category)
	}
	return s, nil
}

func (c *Calculator) Quote(ctx context.Context, category domain.Category, amount decimal.Decimal) (Quote, error) {
	s, err := c.Lookup(category)
	if err != nil {
		return Quote{}, err
	}

	fee, err := s.CalculateFee(ctx, amount)
	if err != nil {
		return Quote{}, err
	}
	if fee.IsNegative() {
		return Quote{}, fmt.Errorf("negative fee %s for %s", fee.String(), category)
	}

	return Quote{Fee: fee.Round(2), FeeType: s.FeeType()}, nil
}
