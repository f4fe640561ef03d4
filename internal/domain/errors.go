package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrCustomerNotFound       = errors.New("customer not found")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidTransfer        = errors.New("invalid transfer")
	ErrInvalidAccount         = errors.New("invalid account")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrKYCRequired            = errors.New("kyc verification required")
	ErrUnknownAccountType     = errors.New("unknown account type")
	ErrLockTimeout            = errors.New("lock timeout")
	ErrInvalidStateTransition = errors.New("invalid transaction state transition")
)

// ObserverFailure wraps an error raised by a post-commit observer. It is
// logged and counted, never returned from a transfer.
type ObserverFailure struct {
	Observer      string
	TransactionID string
	Err           error
}

func (e *ObserverFailure) Error() string {
	return fmt.Sprintf("observer %s failed for transaction %s: %v", e.Observer, e.TransactionID, e.Err)
}

func (e *ObserverFailure) Unwrap() error {
	return e.Err
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// IsRejection reports business-rule and input failures. Resubmitting the
// same request will fail the same way.
func IsRejection(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidTransfer),
		errors.Is(err, ErrInvalidAccount),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrKYCRequired),
		errors.Is(err, ErrUnknownAccountType),
		errors.Is(err, ErrAccountNotFound):
		return true
	}
	return false
}
