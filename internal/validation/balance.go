package validation

import (
	"bank_ledger/internal/domain"
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type BalanceScope string

const (
	ScopeAccount  BalanceScope = "account"
	ScopeCustomer BalanceScope = "customer"
)

func ParseBalanceScope(s string) (BalanceScope, error) {
	switch BalanceScope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeAccount:
		return ScopeAccount, nil
	case ScopeCustomer:
		return ScopeCustomer, nil
	}
	return "", fmt.Errorf("unknown balance scope %q", s)
}

type BalanceValidator struct {
	Scope BalanceScope
}

func NewBalanceValidator(scope BalanceScope) *BalanceValidator {
	if scope == "" {
		scope = ScopeAccount
	}
	return &BalanceValidator{Scope: scope}
}

func (v *BalanceValidator) Name() string { return "balance" }

func (v *BalanceValidator) Validate(ctx context.Context, s Subject) error {
	var available decimal.Decimal

	switch v.Scope {
	case ScopeCustomer:
		for _, account := range s.Holdings {
			available = available.Add(account.Balance)
		}
	default:
		if s.Sender == nil {
			return fmt.Errorf("%w: no debited account", domain.ErrInsufficientFunds)
		}
		available = s.Sender.Available()
	}

	debit := s.Amount.Add(s.Fee)
	if available.LessThan(debit) {
		return fmt.Errorf("%w: available %s, requested %s",
			domain.ErrInsufficientFunds, available.StringFixed(2), debit.StringFixed(2))
	}
	return nil
}
