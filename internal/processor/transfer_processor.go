package processor

import (
	"bank_ledger/internal/domain"
	"bank_ledger/internal/fee"
	"bank_ledger/internal/repository"
	"bank_ledger/internal/service"
	"bank_ledger/internal/validation"
	"bank_ledger/pkg/metrics"
	"bank_ledger/pkg/validator"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StatusSuccess = "SUCCESS"

	defaultMaxInFlight = 64
)

type TransferResult struct {
	Status      string              `json:"status"`
	Transaction *domain.Transaction `json:"transaction"`
}

type TransferProcessor struct {
	store        repository.Store
	accounts     repository.AccountRepository
	transactions repository.TransactionRepository
	audit        repository.AuditRepository
	fees         *fee.Calculator
	chain        *validation.Chain
	validator    *validator.TransactionValidator
	notifier     *service.Notifier
	workerPool   chan struct{}
	metrics      *metrics.MetricsCollector
	logger       *slog.Logger
}

type Option func(*TransferProcessor)

func WithNotifier(n *service.Notifier) Option {
	return func(p *TransferProcessor) { p.notifier = n }
}

func WithMetrics(m *metrics.MetricsCollector) Option {
	return func(p *TransferProcessor) { p.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *TransferProcessor) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithAuditLog(audit repository.AuditRepository) Option {
	return func(p *TransferProcessor) { p.audit = audit }
}

func WithRequestValidator(v *validator.TransactionValidator) Option {
	return func(p *TransferProcessor) {
		if v != nil {
			p.validator = v
		}
	}
}

// WithMaxInFlight bounds concurrent transfers. With the Postgres store each
// transfer holds up to two pool connections, so keep this under half the pool.
func WithMaxInFlight(n int) Option {
	return func(p *TransferProcessor) {
		if n > 0 {
			p.workerPool = make(chan struct{}, n)
		}
	}
}

func NewTransferProcessor(
	store repository.Store,
	accounts repository.AccountRepository,
	transactions repository.TransactionRepository,
	fees *fee.Calculator,
	chain *validation.Chain,
	opts ...Option,
) *TransferProcessor {
	p := &TransferProcessor{
		store:        store,
		accounts:     accounts,
		transactions: transactions,
		fees:         fees,
		chain:        chain,
		validator:    validator.NewTransactionValidator(decimal.Zero),
		workerPool:   make(chan struct{}, defaultMaxInFlight),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Transfer debits amount plus fee from sender and credits amount to
// receiver. Requests rejected before the accounts are locked leave no
// transaction record; later failures leave a FAILED record.
func (p *TransferProcessor) Transfer(ctx context.Context, senderID, receiverID string, amount decimal.Decimal) (*TransferResult, error) {
	start := time.Now()

	if err := p.validator.ValidateTransfer(senderID, receiverID, amount); err != nil {
		p.metrics.RecordTransfer(metrics.OutcomeRejected, time.Since(start), 0)
		return nil, err
	}

	select {
	case p.workerPool <- struct{}{}:
		defer func() { <-p.workerPool }()
	case <-ctx.Done():
		p.metrics.RecordTransfer(metrics.OutcomeAborted, time.Since(start), 0)
		return nil, fmt.Errorf("%w: waiting for a transfer slot: %w", domain.ErrLockTimeout, ctx.Err())
	}

	// The category never changes, so the fee can be quoted before any lock
	// is taken. A quote error fails the transfer once its record exists.
	quote, quoteErr := p.quote(ctx, senderID, amount)

	var (
		record    *domain.Transaction
		committed *domain.Transaction
	)
	err := p.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		locked := make(map[string]*domain.Account, 2)
		for _, id := range lockOrder(senderID, receiverID) {
			account, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			locked[id] = account
		}
		sender := locked[senderID]

		pending := domain.NewTransaction(senderID, receiverID, amount)
		if err := p.transactions.Save(ctx, pending); err != nil {
			return fmt.Errorf("save transaction: %w", err)
		}
		record = pending
		if err := p.advance(ctx, record, domain.StatusCommitting); err != nil {
			return err
		}

		if err := p.validate(ctx, tx, sender, amount, quote.Fee); err != nil {
			return err
		}

		if quoteErr != nil {
			return quoteErr
		}
		record.Fee = quote.Fee
		record.FeeType = quote.FeeType

		if _, err := tx.ApplyDelta(ctx, senderID, record.Debit().Neg()); err != nil {
			return err
		}
		if _, err := tx.ApplyDelta(ctx, receiverID, amount); err != nil {
			return err
		}

		next := record.Clone()
		if err := next.Transition(domain.StatusCommitted); err != nil {
			return err
		}
		if err := tx.SaveTransactionStatus(ctx, next); err != nil {
			return err
		}
		committed = next
		return nil
	})
	if err != nil {
		return nil, p.fail(ctx, start, record, err)
	}

	duration := time.Since(start)
	p.metrics.RecordTransfer(metrics.OutcomeCommitted, duration, committed.Fee.InexactFloat64())
	p.logger.InfoContext(ctx, "Transfer committed",
		slog.String("transaction_id", committed.ID.String()),
		slog.String("sender", senderID),
		slog.String("receiver", receiverID),
		slog.String("amount", amount.StringFixed(2)),
		slog.String("fee", committed.Fee.StringFixed(2)),
		slog.Duration("duration", duration))

	if p.notifier != nil {
		p.notifier.NotifyObservers(ctx, committed)
	}

	return &TransferResult{Status: StatusSuccess, Transaction: committed.Clone()}, nil
}

func (p *TransferProcessor) quote(ctx context.Context, senderID string, amount decimal.Decimal) (fee.Quote, error) {
	sender, err := p.accounts.GetByID(ctx, senderID)
	if err != nil {
		return fee.Quote{}, err
	}
	return p.fees.Quote(ctx, sender.Category, amount)
}

func (p *TransferProcessor) validate(ctx context.Context, tx repository.Tx, sender *domain.Account, amount, charge decimal.Decimal) error {
	holdings, err := tx.FindByCustomer(ctx, sender.CustomerID)
	if err != nil {
		return fmt.Errorf("load holdings: %w", err)
	}
	customer, err := tx.GetCustomer(ctx, sender.CustomerID)
	if err != nil {
		return err
	}
	return p.chain.ValidateAll(ctx, validation.Subject{
		Sender:   sender,
		Holdings: holdings,
		Customer: customer,
		Amount:   amount,
		Fee:      charge,
	})
}

func (p *TransferProcessor) advance(ctx context.Context, record *domain.Transaction, next domain.TransactionStatus) error {
	if err := record.Transition(next); err != nil {
		return err
	}
	if err := p.transactions.UpdateStatus(ctx, record); err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	return nil
}

// fail records the outcome of an aborted unit. The unit has already rolled
// back, so only the transaction record needs to move to FAILED.
func (p *TransferProcessor) fail(ctx context.Context, start time.Time, record *domain.Transaction, cause error) error {
	duration := time.Since(start)

	if errors.Is(cause, domain.ErrLockTimeout) {
		p.metrics.RecordLockTimeout()
	}

	if record == nil {
		p.metrics.RecordTransfer(metrics.OutcomeAborted, duration, 0)
		p.logger.WarnContext(ctx, "Transfer aborted",
			slog.String("error", cause.Error()),
			slog.Bool("transient", domain.IsTransient(cause)))
		return cause
	}

	if record.Status == domain.StatusCommitting {
		if err := record.Fail(cause); err == nil {
			if err := p.transactions.UpdateStatus(context.WithoutCancel(ctx), record); err != nil {
				p.logger.ErrorContext(ctx, "Failed to record transfer failure",
					slog.String("transaction_id", record.ID.String()),
					slog.String("error", err.Error()))
			}
		}
	}

	p.metrics.RecordTransfer(metrics.OutcomeFailed, duration, 0)
	p.logger.WarnContext(ctx, "Transfer failed",
		slog.String("transaction_id", record.ID.String()),
		slog.String("status", string(record.Status)),
		slog.String("error", cause.Error()),
		slog.Bool("rejection", domain.IsRejection(cause)))

	return cause
}

func (p *TransferProcessor) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return p.transactions.GetByID(ctx, id)
}

func (p *TransferProcessor) AuditTrail(ctx context.Context, id uuid.UUID) ([]domain.AuditEntry, error) {
	if _, err := p.transactions.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if p.audit == nil {
		return []domain.AuditEntry{}, nil
	}
	return p.audit.ListByTransaction(ctx, id)
}

func (p *TransferProcessor) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return p.accounts.GetByID(ctx, id)
}

func (p *TransferProcessor) History(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	if _, err := p.accounts.GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	return p.transactions.ListByAccount(ctx, accountID, limit, offset)
}

func lockOrder(a, b string) []string {
	if b < a {
		return []string{b, a}
	}
	return []string{a, b}
}
