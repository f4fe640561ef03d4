package rediscache

import (
	"bank_ledger/internal/domain"
	"bank_ledger/internal/repository"
	"bank_ledger/internal/repository/memory"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRates struct {
	repository.FeeRateRepository
	calls int
}

func (c *countingRates) Rate(ctx context.Context, category domain.Category, feeType string) (decimal.Decimal, error) {
	c.calls++
	return c.FeeRateRepository.Rate(ctx, category, feeType)
}

func newCache(t *testing.T) (*FeeRates, *countingRates, *memory.FeeRateRepository, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rates := memory.NewFeeRateRepository()
	backing := &countingRates{FeeRateRepository: rates}
	return NewFeeRates(client, backing, time.Minute, nil), backing, rates, mr
}

func TestFeeRates_ReadThrough(t *testing.T) {
	cache, backing, rates, mr := newCache(t)
	rates.SetRate(domain.CategoryStandard, "TRANSACTION", decimal.RequireFromString("0.01"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rate, err := cache.Rate(ctx, domain.CategoryStandard, "TRANSACTION")
		require.NoError(t, err)
		assert.True(t, rate.Equal(decimal.RequireFromString("0.01")))
	}
	assert.Equal(t, 1, backing.calls)

	cached, err := mr.Get("ledger:fee_rate:STANDARD:TRANSACTION")
	require.NoError(t, err)
	assert.Equal(t, "0.01", cached)
}

func TestFeeRates_CachesMissingRate(t *testing.T) {
	cache, backing, _, _ := newCache(t)
	ctx := context.Background()

	_, err := cache.Rate(ctx, domain.CategoryChecking, "TRANSACTION")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = cache.Rate(ctx, domain.CategoryChecking, "TRANSACTION")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.Equal(t, 1, backing.calls)
}

func TestFeeRates_ExpiresAfterTTL(t *testing.T) {
	cache, backing, rates, mr := newCache(t)
	rates.SetRate(domain.CategorySavings, "TRANSACTION", decimal.RequireFromString("0.005"))
	ctx := context.Background()

	_, err := cache.Rate(ctx, domain.CategorySavings, "TRANSACTION")
	require.NoError(t, err)

	rates.SetRate(domain.CategorySavings, "TRANSACTION", decimal.RequireFromString("0.007"))
	mr.FastForward(2 * time.Minute)

	rate, err := cache.Rate(ctx, domain.CategorySavings, "TRANSACTION")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.007")))
	assert.Equal(t, 2, backing.calls)
}

func TestFeeRates_Invalidate(t *testing.T) {
	cache, backing, rates, _ := newCache(t)
	rates.SetRate(domain.CategoryStandard, "TRANSACTION", decimal.RequireFromString("0.01"))
	ctx := context.Background()

	_, err := cache.Rate(ctx, domain.CategoryStandard, "TRANSACTION")
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, domain.CategoryStandard, "TRANSACTION"))
	_, err = cache.Rate(ctx, domain.CategoryStandard, "TRANSACTION")
	require.NoError(t, err)

	assert.Equal(t, 2, backing.calls)
}

func TestFeeRates_FallsThroughWhenRedisDown(t *testing.T) {
	cache, backing, rates, mr := newCache(t)
	rates.SetRate(domain.CategoryStandard, "TRANSACTION", decimal.RequireFromString("0.01"))
	mr.Close()

	rate, err := cache.Rate(context.Background(), domain.CategoryStandard, "TRANSACTION")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, 1, backing.calls)
}
