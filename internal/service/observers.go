package service

import (
	"bank_ledger/internal/domain"
	"bank_ledger/internal/repository"
	"bank_ledger/pkg/crypto"
	"bank_ledger/pkg/metrics"
	"bank_ledger/pkg/rabbitmq"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

type AuditObserver struct {
	audit repository.AuditRepository
}

func NewAuditObserver(audit repository.AuditRepository) *AuditObserver {
	return &AuditObserver{audit: audit}
}

func (o *AuditObserver) Name() string { return "DATABASE_AUDIT" }

func (o *AuditObserver) Notify(ctx context.Context, tx *domain.Transaction) error {
	return o.audit.Append(ctx, domain.AuditEntry{
		TransactionID: tx.ID,
		OldStatus:     tx.PreviousStatus,
		NewStatus:     tx.Status,
		Notes:         "Processed by " + o.Name(),
		CreatedAt:     time.Now().UTC(),
	})
}

var DefaultFraudThreshold = decimal.RequireFromString("10000.00")

type FraudPattern struct {
	Name   string
	Detect func(*domain.Transaction) bool
	Weight int
}

// FraudObserver flags committed transfers that match any pattern. It only
// reports; it never blocks or reverses a transfer.
type FraudObserver struct {
	patterns []FraudPattern
	alerts   Sender
	metrics  *metrics.MetricsCollector
	logger   *slog.Logger
}

// NewFraudObserver flags amounts strictly above threshold. alerts may be nil.
func NewFraudObserver(threshold decimal.Decimal, alerts Sender, m *metrics.MetricsCollector, logger *slog.Logger) *FraudObserver {
	if logger == nil {
		logger = slog.Default()
	}
	if !threshold.IsPositive() {
		threshold = DefaultFraudThreshold
	}
	o := &FraudObserver{alerts: alerts, metrics: m, logger: logger}
	o.patterns = []FraudPattern{
		{
			Name: "large_amount",
			Detect: func(tx *domain.Transaction) bool {
				return tx.Amount.Abs().GreaterThan(threshold)
			},
			Weight: 100,
		},
	}
	return o
}

func (o *FraudObserver) AddPattern(p FraudPattern) {
	o.patterns = append(o.patterns, p)
}

func (o *FraudObserver) Name() string { return "FRAUD_DETECTION" }

func (o *FraudObserver) Analyze(tx *domain.Transaction) (int, []string) {
	var score int
	var flags []string
	for _, p := range o.patterns {
		if p.Detect(tx) {
			score += p.Weight
			flags = append(flags, p.Name)
		}
	}
	return min(score, 100), flags
}

func (o *FraudObserver) Notify(ctx context.Context, tx *domain.Transaction) error {
	score, flags := o.Analyze(tx)
	if len(flags) == 0 {
		return nil
	}

	o.metrics.RecordFraudFlag()
	o.logger.WarnContext(ctx, "Fraud alert: large transaction detected",
		slog.String("transaction_id", tx.ID.String()),
		slog.String("amount", tx.Amount.StringFixed(2)),
		slog.Int("risk_score", score),
		slog.Any("flags", flags))

	if o.alerts == nil {
		return nil
	}
	body := fmt.Sprintf("Transaction %s of %s from %s to %s flagged: %v (risk %d)",
		tx.ID, tx.Amount.StringFixed(2), tx.SenderAccountID, tx.ReceiverAccountID, flags, score)
	return o.alerts.Send(ctx, "fraud-review", "Fraud Alert", body)
}

type CustomerNoticeObserver struct {
	name      string
	channel   Channel
	sender    Sender
	accounts  repository.AccountRepository
	customers repository.CustomerRepository
	logger    *slog.Logger
}

func NewCustomerNoticeObserver(
	channel Channel,
	sender Sender,
	accounts repository.AccountRepository,
	customers repository.CustomerRepository,
	logger *slog.Logger,
) *CustomerNoticeObserver {
	if logger == nil {
		logger = slog.Default()
	}
	name := "EMAIL_NOTIFICATION"
	if channel == ChannelSMS {
		name = "SMS_NOTIFICATION"
	}
	return &CustomerNoticeObserver{
		name:      name,
		channel:   channel,
		sender:    sender,
		accounts:  accounts,
		customers: customers,
		logger:    logger,
	}
}

func (o *CustomerNoticeObserver) Name() string { return o.name }

func (o *CustomerNoticeObserver) Notify(ctx context.Context, tx *domain.Transaction) error {
	sender, err := o.ownerOf(ctx, tx.SenderAccountID)
	if err != nil {
		return err
	}
	receiver, err := o.ownerOf(ctx, tx.ReceiverAccountID)
	if err != nil {
		return err
	}

	recipient := sender.Email
	if o.channel == ChannelSMS {
		recipient = sender.Phone
	}
	if recipient == "" {
		o.logger.DebugContext(ctx, "No contact for channel; notice skipped",
			slog.String("channel", string(o.channel)),
			slog.String("customer_id", sender.ID))
		return nil
	}

	body := fmt.Sprintf("Transaction Alert: Sent %s to %s", tx.Amount.StringFixed(2), displayName(receiver))
	return o.sender.Send(ctx, recipient, "Transaction Alert", body)
}

func (o *CustomerNoticeObserver) ownerOf(ctx context.Context, accountID string) (*domain.Customer, error) {
	account, err := o.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return o.customers.GetByID(ctx, account.CustomerID)
}

func displayName(c *domain.Customer) string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

const (
	DefaultEventExchange        = "ledger_events"
	RoutingKeyTransferCommitted = "transfer.committed"
)

// TransferEvent is published for every committed transfer. Signature is the
// HMAC of id:amount:fee:committed_at.
type TransferEvent struct {
	TransactionID     string          `json:"transaction_id"`
	SenderAccountID   string          `json:"sender_account_id"`
	ReceiverAccountID string          `json:"receiver_account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Fee               decimal.Decimal `json:"fee"`
	FeeType           string          `json:"fee_type"`
	Status            string          `json:"status"`
	CommittedAt       time.Time       `json:"committed_at"`
	Signature         string          `json:"signature"`
}

type EventObserver struct {
	exchange  string
	publisher rabbitmq.Publisher
	signer    *crypto.Signer
}

func NewEventObserver(exchange string, publisher rabbitmq.Publisher, signer *crypto.Signer) *EventObserver {
	if exchange == "" {
		exchange = DefaultEventExchange
	}
	return &EventObserver{exchange: exchange, publisher: publisher, signer: signer}
}

func (o *EventObserver) Name() string { return "EVENT_PUBLISHER" }

func (o *EventObserver) Notify(ctx context.Context, tx *domain.Transaction) error {
	event := NewTransferEvent(tx, o.signer)
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal transfer event: %w", err)
	}
	headers := map[string]any{"transaction_id": event.TransactionID}
	return o.publisher.PublishRaw(ctx, o.exchange, RoutingKeyTransferCommitted, body, headers)
}

func NewTransferEvent(tx *domain.Transaction, signer *crypto.Signer) TransferEvent {
	committedAt := tx.UpdatedAt.UTC().Truncate(time.Second)
	event := TransferEvent{
		TransactionID:     tx.ID.String(),
		SenderAccountID:   tx.SenderAccountID,
		ReceiverAccountID: tx.ReceiverAccountID,
		Amount:            tx.Amount,
		Fee:               tx.Fee,
		FeeType:           tx.FeeType,
		Status:            string(tx.Status),
		CommittedAt:       committedAt,
	}
	if signer != nil {
		event.Signature = signer.SignTransfer(event.TransactionID, tx.Amount, tx.Fee, committedAt.Unix())
	}
	return event
}
