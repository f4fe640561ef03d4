package validation

import (
	"bank_ledger/internal/domain"
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Subject is what a validator sees: the locked sender, the sender's
// customer and every account that customer holds. Fee is the quoted fee
// charged on top of Amount.
type Subject struct {
	Sender   *domain.Account
	Holdings []*domain.Account
	Customer *domain.Customer
	Amount   decimal.Decimal
	Fee      decimal.Decimal
}

type Validator interface {
	Name() string
	Validate(ctx context.Context, s Subject) error
}

// Chain runs validators in registration order and stops at the first failure.
type Chain struct {
	validators []Validator
}

func NewChain(validators ...Validator) *Chain {
	return &Chain{validators: validators}
}

func DefaultChain(scope BalanceScope, kycLimit decimal.Decimal) *Chain {
	return NewChain(NewBalanceValidator(scope), NewKYCValidator(kycLimit))
}

func (c *Chain) ValidateAll(ctx context.Context, s Subject) error {
	for _, v := range c.validators {
		if err := v.Validate(ctx, s); err != nil {
			return fmt.Errorf("%s: %w", v.Name(), err)
		}
	}
	return nil
}

func (c *Chain) Len() int {
	return len(c.validators)
}
