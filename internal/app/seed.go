package app

import (
	"bank_ledger/internal/domain"
	"bank_ledger/internal/fee"
	"bank_ledger/internal/repository"
	"bank_ledger/internal/repository/memory"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

type rateWriter interface {
	SetRate(ctx context.Context, category domain.Category, feeType string, rate decimal.Decimal) error
}

type memoryRates struct {
	*memory.FeeRateRepository
}

func (m memoryRates) SetRate(ctx context.Context, category domain.Category, feeType string, rate decimal.Decimal) error {
	m.FeeRateRepository.SetRate(category, feeType, rate)
	return nil
}

type Seed struct {
	Customers []domain.Customer `json:"customers"`
	Accounts  []struct {
		ID             string          `json:"id"`
		CustomerID     string          `json:"customer_id"`
		Category       string          `json:"category"`
		Balance        decimal.Decimal `json:"balance"`
		OverdraftLimit decimal.Decimal `json:"overdraft_limit"`
	} `json:"accounts"`
	FeeRates []struct {
		Category string          `json:"category"`
		FeeType  string          `json:"fee_type"`
		Rate     decimal.Decimal `json:"rate"`
	} `json:"fee_rates"`
}

func LoadSeedFile(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &seed, nil
}

// Apply inserts seed rows. Rows that already exist are left untouched, so
// a restart against a persistent store is harmless.
func (s *Seed) Apply(ctx context.Context, repos Repositories) error {
	for i := range s.Customers {
		if err := ignoreDuplicate(repos.Customers.Save(ctx, &s.Customers[i])); err != nil {
			return err
		}
	}
	for _, a := range s.Accounts {
		account := domain.NewAccount(a.ID, a.CustomerID, domain.ParseCategory(a.Category), a.Balance).
			WithOverdraft(a.OverdraftLimit)
		if account.Available().IsNegative() {
			return fmt.Errorf("seed account %s starts below its overdraft", a.ID)
		}
		if err := ignoreDuplicate(repos.Accounts.Save(ctx, account)); err != nil {
			return err
		}
	}
	if repos.RateWriter == nil {
		return nil
	}
	for _, r := range s.FeeRates {
		feeType := r.FeeType
		if feeType == "" {
			feeType = fee.FeeTypeTransaction
		}
		category := domain.ParseCategory(r.Category)
		if err := repos.RateWriter.SetRate(ctx, category, feeType, r.Rate); err != nil {
			return err
		}
		if repos.rateCache != nil {
			if err := repos.rateCache.Invalidate(ctx, category, feeType); err != nil {
				return fmt.Errorf("invalidate cached fee rate %s/%s: %w", category, feeType, err)
			}
		}
	}
	return nil
}

func ignoreDuplicate(err error) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return nil
	}
	return err
}
