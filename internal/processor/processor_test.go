package processor

import (
	"bank_ledger/internal/domain"
	"bank_ledger/internal/fee"
	"bank_ledger/internal/repository"
	"bank_ledger/internal/repository/memory"
	"bank_ledger/internal/service"
	"bank_ledger/internal/validation"
	"bank_ledger/pkg/metrics"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	accounts     *memory.AccountRepository
	customers    *memory.CustomerRepository
	transactions *memory.TransactionRepository
	audit        *memory.AuditRepository
	rates        *memory.FeeRateRepository
	store        *memory.Store
	proc         *TransferProcessor
}

func newFixture(t *testing.T, lockTimeout time.Duration, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		accounts:     memory.NewAccountRepository(),
		customers:    memory.NewCustomerRepository(),
		transactions: memory.NewTransactionRepository(),
		audit:        memory.NewAuditRepository(),
		rates:        memory.NewFeeRateRepository(),
	}
	f.rates.SetRate(domain.CategoryStandard, fee.FeeTypeTransaction, dec("0.01"))
	f.store = memory.NewStore(f.accounts, f.customers, f.transactions, lockTimeout)

	notifier := service.NewNotifier(nil, nil, service.NewAuditObserver(f.audit))
	opts = append([]Option{WithNotifier(notifier), WithMetrics(metrics.NewMetricsCollector(nil))}, opts...)
	f.proc = NewTransferProcessor(f.store, f.accounts, f.transactions,
		fee.DefaultCalculator(f.rates), validation.DefaultChain(validation.ScopeAccount, decimal.Zero), opts...)
	return f
}

func (f *fixture) customer(t *testing.T, id string, kyc bool) {
	t.Helper()
	require.NoError(t, f.customers.Save(context.Background(), &domain.Customer{ID: id, Name: id, KYCVerified: kyc}))
}

func (f *fixture) account(t *testing.T, id, customerID string, category domain.Category, balance string) {
	t.Helper()
	require.NoError(t, f.accounts.Save(context.Background(), domain.NewAccount(id, customerID, category, dec(balance))))
}

func (f *fixture) balance(t *testing.T, id string) string {
	t.Helper()
	a, err := f.accounts.GetByID(context.Background(), id)
	require.NoError(t, err)
	return a.Balance.StringFixed(2)
}

func (f *fixture) onlyRecord(t *testing.T, accountID string) *domain.Transaction {
	t.Helper()
	list, err := f.transactions.ListByAccount(context.Background(), accountID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	return list[0]
}

func TestTransfer_StandardFeeScenario(t *testing.T) {
	f := newFixture(t, time.Second)
	f.customer(t, "C1", false)
	f.customer(t, "C2", false)
	f.account(t, "A", "C1", domain.CategoryStandard, "500.00")
	f.account(t, "B", "C2", domain.CategoryStandard, "100.00")

	result, err := f.proc.Transfer(context.Background(), "A", "B", dec("300.00"))
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, domain.StatusCommitted, result.Transaction.Status)
	assert.Equal(t, "3.00", result.Transaction.Fee.StringFixed(2))
	assert.Equal(t, fee.FeeTypeTransaction, result.Transaction.FeeType)
	assert.Equal(t, "197.00", f.balance(t, "A"))
	assert.Equal(t, "400.00", f.balance(t, "B"))

	stored, err := f.transactions.GetByID(context.Background(), result.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCommitted, stored.Status)
	assert.Equal(t, domain.StatusCommitting, stored.PreviousStatus)

	entries, err := f.audit.ListByTransaction(context.Background(), result.Transaction.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.StatusCommitted, entries[0].NewStatus)
}

func TestTransfer_FeeWaivedAndPremium(t *testing.T) {
	f := newFixture(t, time.Second)
	f.customer(t, "C1", true)
	f.account(t, "S", "C1", domain.CategoryStudent, "100.00")
	f.account(t, "P", "C1", domain.CategoryPremium, "100.00")

	_, err := f.proc.Transfer(context.Background(), "S", "P", dec("40.00"))
	require.NoError(t, err)
	assert.Equal(t, "60.00", f.balance(t, "S"))
	assert.Equal(t, "140.00", f.balance(t, "P"))

	result, err := f.proc.Transfer(context.Background(), "P", "S", dec("100.00"))
	require.NoError(t, err)
	assert.Equal(t, "5.00", result.Transaction.Fee.StringFixed(2))
	assert.Equal(t, "35.00", f.balance(t, "P"))
	assert.Equal(t, "160.00", f.balance(t, "S"))
}

func TestTransfer_InsufficientFundsLeavesFailedRecord(t *testing.T) {
	f := newFixture(t, time.Second)
	f.customer(t, "C1", false)
	f.account(t, "A", "C1", domain.CategoryStandard, "50.00")
	f.account(t, "B", "C1", domain.CategoryStandard, "0.00")

	_, err := f.proc.Transfer(context.Background(), "A", "B", dec("50.01"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assert.Equal(t, "50.00", f.balance(t, "A"))
	assert.Equal(t, "0.00", f.balance(t, "B"))

	record := f.onlyRecord(t, "A")
	assert.Equal(t, domain.StatusFailed, record.Status)
	assert.Equal(t, domain.StatusCommitting, record.PreviousStatus)
	assert.Contains(t, record.FailureReason, "insufficient funds")
}

func TestTransfer_FeePushesDebitPastBalance(t *testing.T) {
	f := newFixture(t, time.Second)
	f.customer(t, "C1", false)
	f.account(t, "A", "C1", domain.CategoryStandard, "100.00")
	f.account(t, "B", "C1", domain.CategoryStandard, "0.00")

	_, err := f.proc.Transfer(context.Background(), "A", "B", dec("100.00"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Contains(t, err.Error(), "balance: ")

	assert.Equal(t, "100.00", f.balance(t, "A"))
	assert.Equal(t, "0.00", f.balance(t, "B"))
	assert.Equal(t, domain.StatusFailed, f.onlyRecord(t, "A").Status)
}

func TestTransfer_OverdraftCoversDebit(t *testing.T) {
	f := newFixture(t, time.Second)
	f.customer(t, "C1", false)
	require.NoError(t, f.accounts.Save(context.Background(),
		domain.NewAccount("A", "C1", domain.CategoryChecking, dec("10.00")).WithOverdraft(dec("100.00"))))
	f.account(t, "B", "C1", domain.CategoryStandard, "0.00")

	_, err := f.proc.Transfer(context.Background(), "A", "B", dec("110.00"))
	require.NoError(t, err)
	assert.Equal(t, "-100.00", f.balance(t, "A"))
	assert.Equal(t, "110.00", f.balance(t, "B"))
}

func TestTransfer_KYCBoundary(t *testing.T) {
	f := newFixture(t, time.Second)
	f.customer(t, "C1", false)
	f.customer(t, "C2", true)
	f.account(t, "A", "C1", domain.CategoryStudent, "30000.00")
	f.account(t, "B", "C2", domain.CategoryStudent, "30000.00")
	f.account(t, "Z", "C2", domain.CategoryStudent, "0.00")

	_, err := f.proc.Transfer(context.Background(), "A", "Z", dec("10000.00"))
	require.NoError(t, err)

	_, err = f.proc.Transfer(context.Background(), "A", "Z", dec("10000.01"))
	require.ErrorIs(t, err, domain.ErrKYCRequired)
	assert.Equal(t, "20000.00", f.balance(t, "A"))

	_, err = f.proc.Transfer(context.Background(), "B", "Z", dec("10000.01"))
	require.NoError(t, err)
	assert.Equal(t, "20000.01", f.balance(t, "Z"))
}

func TestTransfer_UnknownCategoryFails(t *testing.T) {
	f := newFixture(t, time.Second)
	f.customer(t, "C1", true)
	f.account(t, "X", "C1", domain.Category("CRYPTO"), "100.00")
	f.account(t, "B", "C1", domain.CategoryStandard, "0.00")

	_, err := f.proc.Transfer(context.Background(), "X", "B", dec("10.00"))
	require.ErrorIs(t, err, domain.ErrUnknownAccountType)

	assert.Equal(t, "100.00", f.balance(t, "X"))
	assert.Equal(t, domain.StatusFailed, f.onlyRecord(t, "X").Status)
}

func TestTransfer_RejectedBeforeRecord(t *testing.T) {
	f := newFixture(t, time.Second)
	f.customer(t, "C1", true)
	f.account(t, "A", "C1", domain.CategoryStandard, "100.00")

	tests := []struct {
		name     string
		sender   string
		receiver string
		amount   string
		want     error
	}{
		{"zero amount", "A", "B", "0", domain.ErrInvalidAmount},
		{"negative amount", "A", "B", "-1.00", domain.ErrInvalidAmount},
		{"same account", "A", "A", "1.00", domain.ErrInvalidTransfer},
		{"missing receiver", "A", "NOPE", "1.00", domain.ErrAccountNotFound},
		{"missing sender", "NOPE", "A", "1.00", domain.ErrAccountNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.proc.Transfer(context.Background(), tt.sender, tt.receiver, dec(tt.amount))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	list, err := f.transactions.ListByAccount(context.Background(), "A", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, "100.00", f.balance(t, "A"))
}

func TestTransfer_LockTimeout(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	f.customer(t, "C1", true)
	f.account(t, "A", "C1", domain.CategoryStandard, "100.00")
	f.account(t, "B", "C1", domain.CategoryStandard, "100.00")

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.store.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			if _, err := tx.GetForUpdate(ctx, "B"); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	_, err := f.proc.Transfer(context.Background(), "A", "B", dec("10.00"))
	close(release)
	<-done

	require.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.True(t, domain.IsTransient(err))
	assert.Equal(t, "100.00", f.balance(t, "A"))

	list, err := f.transactions.ListByAccount(context.Background(), "A", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.proc.Transfer(context.Background(), "A", "B", dec("10.00"))
	assert.NoError(t, err, "lock must be free after the holder finishes")
}

// faultyStore fails the receiver credit to prove the sender debit is undone.
type faultyStore struct {
	repository.Store
	failOn string
}

type faultyTx struct {
	repository.Tx
	failOn string
}

func (s faultyStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.Store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, faultyTx{Tx: tx, failOn: s.failOn})
	})
}

var errDiskFull = errors.New("disk full")

func (t faultyTx) ApplyDelta(ctx context.Context, accountID string, delta decimal.Decimal) (*domain.Account, error) {
	if accountID == t.failOn {
		return nil, errDiskFull
	}
	return t.Tx.ApplyDelta(ctx, accountID, delta)
}

func TestTransfer_AtomicWhenCreditFails(t *testing.T) {
	f := newFixture(t, time.Second)
	f.customer(t, "C1", true)
	f.account(t, "A", "C1", domain.CategoryStandard, "500.00")
	f.account(t, "B", "C1", domain.CategoryStandard, "100.00")

	proc := NewTransferProcessor(faultyStore{Store: f.store, failOn: "B"}, f.accounts, f.transactions,
		fee.DefaultCalculator(f.rates), validation.DefaultChain(validation.ScopeAccount, decimal.Zero))

	_, err := proc.Transfer(context.Background(), "A", "B", dec("300.00"))
	require.ErrorIs(t, err, errDiskFull)

	assert.Equal(t, "500.00", f.balance(t, "A"))
	assert.Equal(t, "100.00", f.balance(t, "B"))
	assert.Equal(t, domain.StatusFailed, f.onlyRecord(t, "A").Status)
}

func TestTransfer_ObserverFailureDoesNotAffectResult(t *testing.T) {
	failing := service.NewCustomerNoticeObserver(service.ChannelEmail,
		failingSender{}, memory.NewAccountRepository(), memory.NewCustomerRepository(), nil)
	f := newFixture(t, time.Second, WithNotifier(service.NewNotifier(nil, nil, failing)))
	f.customer(t, "C1", true)
	f.account(t, "A", "C1", domain.CategoryStudent, "10.00")
	f.account(t, "B", "C1", domain.CategoryStudent, "0.00")

	result, err := f.proc.Transfer(context.Background(), "A", "B", dec("10.00"))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "10.00", f.balance(t, "B"))
}

type failingSender struct{}

func (failingSender) Send(ctx context.Context, recipient, subject, body string) error {
	return errors.New("unreachable")
}

func TestTransfer_NoLostUpdates(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	f.customer(t, "C1", true)
	f.account(t, "A", "C1", domain.CategoryStudent, "1000.00")
	for i := 0; i < 10; i++ {
		f.account(t, fmt.Sprintf("R%d", i), "C1", domain.CategoryStudent, "0.00")
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.proc.Transfer(context.Background(), "A", fmt.Sprintf("R%d", i%10), dec("1.25"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, "875.00", f.balance(t, "A"))
	for i := 0; i < 10; i++ {
		assert.Equal(t, "12.50", f.balance(t, fmt.Sprintf("R%d", i)))
	}
}

func TestTransfer_OpposingTransfersDoNotDeadlock(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	f.customer(t, "C1", true)
	f.account(t, "A", "C1", domain.CategoryStudent, "1000.00")
	f.account(t, "B", "C1", domain.CategoryStudent, "1000.00")

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, err := f.proc.Transfer(context.Background(), "A", "B", dec("1.00"))
				assert.NoError(t, err)
			}()
			go func() {
				defer wg.Done()
				_, err := f.proc.Transfer(context.Background(), "B", "A", dec("1.00"))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("opposing transfers did not finish")
	}

	assert.Equal(t, "1000.00", f.balance(t, "A"))
	assert.Equal(t, "1000.00", f.balance(t, "B"))
}

func TestTransfer_ConservationUnderConcurrency(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	f.customer(t, "C1", true)
	ids := []string{"A", "B", "C", "D", "E"}
	for _, id := range ids {
		f.account(t, id, "C1", domain.CategoryStandard, "1000.00")
	}
	before := f.accounts.TotalBalance()

	var (
		mu   sync.Mutex
		fees = decimal.Zero
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 50; i++ {
				from := ids[rng.Intn(len(ids))]
				to := ids[rng.Intn(len(ids))]
				amount := decimal.NewFromInt(int64(rng.Intn(200) + 1))

				result, err := f.proc.Transfer(context.Background(), from, to, amount)
				if err != nil {
					continue
				}
				mu.Lock()
				fees = fees.Add(result.Transaction.Fee)
				mu.Unlock()
			}
		}(int64(w))
	}
	wg.Wait()

	after := f.accounts.TotalBalance()
	assert.True(t, before.Sub(fees).Equal(after), "before %s - fees %s != after %s", before, fees, after)

	for _, id := range ids {
		a, err := f.accounts.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, a.Available().IsNegative(), "account %s went below its overdraft", id)
	}
}

func TestTransfer_HistoryAndLookups(t *testing.T) {
	f := newFixture(t, time.Second)
	f.customer(t, "C1", true)
	f.account(t, "A", "C1", domain.CategoryStudent, "100.00")
	f.account(t, "B", "C1", domain.CategoryStudent, "0.00")

	result, err := f.proc.Transfer(context.Background(), "A", "B", dec("10.00"))
	require.NoError(t, err)

	got, err := f.proc.GetTransaction(context.Background(), result.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCommitted, got.Status)

	history, err := f.proc.History(context.Background(), "B", 10, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, err = f.proc.History(context.Background(), "NOPE", 10, 0)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestLockOrder(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, lockOrder("A", "B"))
	assert.Equal(t, []string{"A", "B"}, lockOrder("B", "A"))
}
