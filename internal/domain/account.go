package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryStandard Category = "STANDARD"
	CategorySavings  Category = "SAVINGS"
	CategoryChecking Category = "CHECKING"
	CategoryPremium  Category = "PREMIUM"
	CategoryStudent  Category = "STUDENT"
)

// ParseCategory normalizes a category name. Unrecognized names are kept as-is
// so new categories can be registered with the fee calculator without a model change.
func ParseCategory(s string) Category {
	return Category(strings.ToUpper(strings.TrimSpace(s)))
}

func (c Category) String() string {
	return string(c)
}

type CategoryParams struct {
	OverdraftLimit decimal.Decimal
	InterestRate   *decimal.Decimal
}

var savingsInterest = decimal.RequireFromString("0.02")

func CategoryDefaults(c Category) CategoryParams {
	switch c {
	case CategorySavings:
		rate := savingsInterest
		return CategoryParams{OverdraftLimit: decimal.Zero, InterestRate: &rate}
	default:
		return CategoryParams{OverdraftLimit: decimal.Zero}
	}
}

// Account is owned by the account store. Balances only change through the
// transfer processor's locked update path.
type Account struct {
	ID             string           `json:"id"`
	CustomerID     string           `json:"customer_id"`
	Category       Category         `json:"category"`
	Balance        decimal.Decimal  `json:"balance"`
	OverdraftLimit decimal.Decimal  `json:"overdraft_limit"`
	InterestRate   *decimal.Decimal `json:"interest_rate,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func NewAccount(id, customerID string, category Category, balance decimal.Decimal) *Account {
	params := CategoryDefaults(category)
	now := time.Now().UTC()
	return &Account{
		ID:             id,
		CustomerID:     customerID,
		Category:       category,
		Balance:        balance,
		OverdraftLimit: params.OverdraftLimit,
		InterestRate:   params.InterestRate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// WithOverdraft sets the overdraft limit. Negative limits are clamped to zero.
func (a *Account) WithOverdraft(limit decimal.Decimal) *Account {
	if limit.IsNegative() {
		limit = decimal.Zero
	}
	a.OverdraftLimit = limit
	return a
}

func (a *Account) Available() decimal.Decimal {
	return a.Balance.Add(a.OverdraftLimit)
}

func (a *Account) CanApply(delta decimal.Decimal) bool {
	return !a.Available().Add(delta).IsNegative()
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.InterestRate != nil {
		rate := *a.InterestRate
		c.InterestRate = &rate
	}
	return &c
}
