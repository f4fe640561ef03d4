package validator

import (
	"bank_ledger/internal/domain"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const maxAmountScale = 2

var ErrMalformedAccountID = errors.New("malformed account id")

type TransactionValidator struct {
	accountIDRegex *regexp.Regexp
	maxAmount      decimal.Decimal
}

// NewTransactionValidator builds the request-shape checks run before any lock
// is taken. A zero maxAmount disables the upper bound.
func NewTransactionValidator(maxAmount decimal.Decimal) *TransactionValidator {
	return &TransactionValidator{
		accountIDRegex: regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]{0,63}$`),
		maxAmount:      maxAmount,
	}
}

func (v *TransactionValidator) ValidateTransfer(senderID, receiverID string, amount decimal.Decimal) error {
	if err := v.ValidateAmount(amount); err != nil {
		return err
	}

	senderID, receiverID = strings.TrimSpace(senderID), strings.TrimSpace(receiverID)
	if senderID == "" || receiverID == "" {
		return fmt.Errorf("%w: sender and receiver are required", domain.ErrInvalidTransfer)
	}
	for _, id := range []string{senderID, receiverID} {
		if err := v.ValidateAccountID(id); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidTransfer, err)
		}
	}
	if senderID == receiverID {
		return fmt.Errorf("%w: cannot transfer to same account", domain.ErrInvalidTransfer)
	}

	return nil
}

func (v *TransactionValidator) ValidateAccountID(id string) error {
	if !v.accountIDRegex.MatchString(id) {
		return fmt.Errorf("%w %q", ErrMalformedAccountID, id)
	}
	return nil
}

func (v *TransactionValidator) ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", domain.ErrInvalidAmount, amount.String())
	}
	if -amount.Exponent() > maxAmountScale && !amount.Equal(amount.Truncate(maxAmountScale)) {
		return fmt.Errorf("%w: %s has more than %d decimal places", domain.ErrInvalidAmount, amount.String(), maxAmountScale)
	}
	if v.maxAmount.IsPositive() && amount.GreaterThan(v.maxAmount) {
		return fmt.Errorf("%w: %s exceeds maximum %s", domain.ErrInvalidAmount, amount.StringFixed(2), v.maxAmount.StringFixed(2))
	}
	return nil
}
