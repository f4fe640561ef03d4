//go:build integration

package postgres

import (
	"bank_ledger/internal/domain"
	"bank_ledger/internal/repository"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ledger"),
		tcpostgres.WithUsername("ledger"),
		tcpostgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := Connect(ctx, dsn, PoolOptions{MaxConns: 20})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func seed(t *testing.T, pool *pgxpool.Pool, customerID string, accounts map[string]string) {
	t.Helper()
	ctx := context.Background()

	customers := NewCustomerRepository(pool)
	require.NoError(t, customers.Save(ctx, &domain.Customer{ID: customerID, Name: customerID, KYCVerified: true}))

	repo := NewAccountRepository(pool)
	for id, balance := range accounts {
		require.NoError(t, repo.Save(ctx, domain.NewAccount(id, customerID, domain.CategoryStandard, decimal.RequireFromString(balance))))
	}
}

func TestIntegration_Store_CommitAndRollback(t *testing.T) {
	pool := setupPostgres(t)
	seed(t, pool, "C1", map[string]string{"A": "100.00", "B": "0.00"})

	ctx := context.Background()
	store := NewStore(pool, time.Second)
	accounts := NewAccountRepository(pool)

	err := store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		for _, id := range []string{"A", "B"} {
			if _, err := tx.GetForUpdate(ctx, id); err != nil {
				return err
			}
		}
		if _, err := tx.ApplyDelta(ctx, "A", decimal.RequireFromString("-40.00")); err != nil {
			return err
		}
		_, err := tx.ApplyDelta(ctx, "B", decimal.RequireFromString("40.00"))
		return err
	})
	require.NoError(t, err)

	a, err := accounts.GetByID(ctx, "A")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(decimal.RequireFromString("60.00")))

	err = store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetForUpdate(ctx, "A"); err != nil {
			return err
		}
		if _, err := tx.GetForUpdate(ctx, "B"); err != nil {
			return err
		}
		if _, err := tx.ApplyDelta(ctx, "B", decimal.RequireFromString("10.00")); err != nil {
			return err
		}
		_, err := tx.ApplyDelta(ctx, "A", decimal.RequireFromString("-1000.00"))
		return err
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	b, err := accounts.GetByID(ctx, "B")
	require.NoError(t, err)
	assert.True(t, b.Balance.Equal(decimal.RequireFromString("40.00")), "rolled back delta must not persist")
}

func TestIntegration_Store_LockTimeout(t *testing.T) {
	pool := setupPostgres(t)
	seed(t, pool, "C1", map[string]string{"A": "100.00"})

	ctx := context.Background()
	store := NewStore(pool, 200*time.Millisecond)

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if _, err := tx.GetForUpdate(ctx, "A"); err != nil {
				return err
			}
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	err := store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.GetForUpdate(ctx, "A")
		return err
	})
	close(done)

	require.ErrorIs(t, err, domain.ErrLockTimeout)
}

func TestIntegration_Store_NoLostUpdates(t *testing.T) {
	pool := setupPostgres(t)
	seed(t, pool, "C1", map[string]string{"A": "1000.00"})

	ctx := context.Background()
	store := NewStore(pool, 5*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
				if _, err := tx.GetForUpdate(ctx, "A"); err != nil {
					return err
				}
				_, err := tx.ApplyDelta(ctx, "A", decimal.RequireFromString("-2.50"))
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	a, err := NewAccountRepository(pool).GetByID(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "950.00", a.Balance.StringFixed(2))
}

func TestIntegration_TransactionRepository_StatusMovesForward(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	repo := NewTransactionRepository(pool)

	tx := domain.NewTransaction("A", "B", decimal.RequireFromString("10.00"))
	require.NoError(t, repo.Save(ctx, tx))

	require.NoError(t, tx.Transition(domain.StatusCommitting))
	require.NoError(t, repo.UpdateStatus(ctx, tx))
	require.NoError(t, tx.Fail(domain.ErrInsufficientFunds))
	require.NoError(t, repo.UpdateStatus(ctx, tx))

	stale := tx.Clone()
	stale.PreviousStatus = domain.StatusPending
	stale.Status = domain.StatusCommitting
	assert.ErrorIs(t, repo.UpdateStatus(ctx, stale), domain.ErrInvalidStateTransition)

	got, err := repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, domain.StatusCommitting, got.PreviousStatus)
	assert.Contains(t, got.FailureReason, "insufficient funds")

	list, err := repo.ListByAccount(ctx, "B", 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestIntegration_FeeRateRepository(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	repo := NewFeeRateRepository(pool)

	_, err := repo.Rate(ctx, domain.CategoryStandard, "TRANSACTION")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, repo.SetRate(ctx, domain.CategoryStandard, "TRANSACTION", decimal.RequireFromString("0.01")))
	rate, err := repo.Rate(ctx, domain.CategoryStandard, "TRANSACTION")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.01")))
}
