package service

import (
	"bank_ledger/internal/domain"
	"bank_ledger/pkg/metrics"
	"context"
	"fmt"
	"log/slog"
	"time"
)

const defaultObserverTimeout = 5 * time.Second

// Observer reacts to a committed transfer. It must not change balances.
type Observer interface {
	Name() string
	Notify(ctx context.Context, tx *domain.Transaction) error
}

type Notifier struct {
	observers []Observer
	timeout   time.Duration
	metrics   *metrics.MetricsCollector
	logger    *slog.Logger
}

func NewNotifier(logger *slog.Logger, m *metrics.MetricsCollector, observers ...Observer) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	list := make([]Observer, len(observers))
	copy(list, observers)
	return &Notifier{
		observers: list,
		timeout:   defaultObserverTimeout,
		metrics:   m,
		logger:    logger,
	}
}

func (n *Notifier) WithTimeout(d time.Duration) *Notifier {
	if d > 0 {
		n.timeout = d
	}
	return n
}

func (n *Notifier) Observers() []string {
	names := make([]string, 0, len(n.observers))
	for _, o := range n.observers {
		names = append(names, o.Name())
	}
	return names
}

// NotifyObservers runs every observer even if earlier ones fail or panic.
// Failures are logged, counted and returned; they never undo the transfer.
func (n *Notifier) NotifyObservers(ctx context.Context, tx *domain.Transaction) []*domain.ObserverFailure {
	// Observers outlive the caller's request.
	base := context.WithoutCancel(ctx)

	var failures []*domain.ObserverFailure
	for _, o := range n.observers {
		if failure := n.notify(base, o, tx.Clone()); failure != nil {
			n.logger.ErrorContext(ctx, "Observer failed",
				slog.String("observer", failure.Observer),
				slog.String("transaction_id", failure.TransactionID),
				slog.String("error", failure.Err.Error()))
			n.metrics.RecordObserverFailure(failure.Observer)
			failures = append(failures, failure)
		}
	}
	return failures
}

func (n *Notifier) notify(ctx context.Context, o Observer, tx *domain.Transaction) (failure *domain.ObserverFailure) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			failure = &domain.ObserverFailure{
				Observer:      o.Name(),
				TransactionID: tx.ID.String(),
				Err:           fmt.Errorf("panic: %v", r),
			}
		}
	}()

	if err := o.Notify(ctx, tx); err != nil {
		return &domain.ObserverFailure{Observer: o.Name(), TransactionID: tx.ID.String(), Err: err}
	}
	return nil
}
