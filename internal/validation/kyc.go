package validation

import (
	"bank_ledger/internal/domain"
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

var DefaultKYCLimit = decimal.RequireFromString("10000.00")

// KYCValidator requires a verified customer for amounts strictly above Limit.
type KYCValidator struct {
	Limit decimal.Decimal
}

func NewKYCValidator(limit decimal.Decimal) *KYCValidator {
	if !limit.IsPositive() {
		limit = DefaultKYCLimit
	}
	return &KYCValidator{Limit: limit}
}

func (v *KYCValidator) Name() string { return "kyc" }

func (v *KYCValidator) Validate(ctx context.Context, s Subject) error {
	if !s.Amount.GreaterThan(v.Limit) {
		return nil
	}
	if s.Customer == nil || !s.Customer.KYCVerified {
		return fmt.Errorf("%w: amount %s exceeds %s", domain.ErrKYCRequired, s.Amount.StringFixed(2), v.Limit.StringFixed(2))
	}
	return nil
}
