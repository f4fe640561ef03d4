package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStatus string

// Status lifecycle:
//
//	PENDING → COMMITTING → COMMITTED | FAILED
//
// COMMITTED and FAILED are terminal.
const (
	StatusPending    TransactionStatus = "PENDING"
	StatusCommitting TransactionStatus = "COMMITTING"
	StatusCommitted  TransactionStatus = "COMMITTED"
	StatusFailed     TransactionStatus = "FAILED"
)

var transitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:    {StatusCommitting},
	StatusCommitting: {StatusCommitted, StatusFailed},
}

func (s TransactionStatus) IsTerminal() bool {
	return s == StatusCommitted || s == StatusFailed
}

func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Transaction struct {
	ID                uuid.UUID         `json:"id"`
	Amount            decimal.Decimal   `json:"amount"`
	SenderAccountID   string            `json:"sender_account_id"`
	ReceiverAccountID string            `json:"receiver_account_id"`
	Status            TransactionStatus `json:"status"`
	PreviousStatus    TransactionStatus `json:"previous_status,omitempty"`
	Fee               decimal.Decimal   `json:"fee"`
	FeeType           string            `json:"fee_type,omitempty"`
	FailureReason     string            `json:"failure_reason,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func NewTransaction(senderID, receiverID string, amount decimal.Decimal) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		ID:                uuid.New(),
		Amount:            amount,
		SenderAccountID:   senderID,
		ReceiverAccountID: receiverID,
		Status:            StatusPending,
		Fee:               decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (tx *Transaction) Transition(next TransactionStatus) error {
	if !tx.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, tx.Status, next)
	}
	tx.PreviousStatus = tx.Status
	tx.Status = next
	tx.UpdatedAt = time.Now().UTC()
	return nil
}

func (tx *Transaction) Fail(reason error) error {
	if err := tx.Transition(StatusFailed); err != nil {
		return err
	}
	if reason != nil {
		tx.FailureReason = reason.Error()
	}
	return nil
}

func (tx *Transaction) Debit() decimal.Decimal {
	return tx.Amount.Add(tx.Fee)
}

func (tx *Transaction) Clone() *Transaction {
	if tx == nil {
		return nil
	}
	c := *tx
	return &c
}

type AuditEntry struct {
	TransactionID uuid.UUID         `json:"transaction_id"`
	OldStatus     TransactionStatus `json:"old_status"`
	NewStatus     TransactionStatus `json:"new_status"`
	Notes         string            `json:"notes"`
	CreatedAt     time.Time         `json:"created_at"`
}
