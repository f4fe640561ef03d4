package rediscache

import (
	"bank_ledger/internal/domain"
	"bank_ledger/internal/repository"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	defaultTTL = 5 * time.Minute
	keyPrefix  = "ledger:fee_rate:"
	// missingRate caches the absence of a rate so a missing row is not
	// re-read on every transfer.
	missingRate = "-"
)

var _ repository.FeeRateRepository = (*FeeRates)(nil)

// FeeRates is a read-through cache in front of the fee rate table. Redis
// errors fall through to the backing repository.
type FeeRates struct {
	client  redis.UniversalClient
	backing repository.FeeRateRepository
	ttl     time.Duration
	logger  *slog.Logger
}

func NewFeeRates(client redis.UniversalClient, backing repository.FeeRateRepository, ttl time.Duration, logger *slog.Logger) *FeeRates {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FeeRates{client: client, backing: backing, ttl: ttl, logger: logger}
}

func (c *FeeRates) Rate(ctx context.Context, category domain.Category, feeType string) (decimal.Decimal, error) {
	key := cacheKey(category, feeType)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached == missingRate {
			return decimal.Zero, fmt.Errorf("%w: fee rate %s/%s", repository.ErrNotFound, category, feeType)
		}
		if rate, parseErr := decimal.NewFromString(cached); parseErr == nil {
			return rate, nil
		}
		c.logger.Warn("discarding malformed cached fee rate", "key", key, "value", cached)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("fee rate cache unavailable", "key", key, "error", err)
	}

	rate, err := c.backing.Rate(ctx, category, feeType)
	if errors.Is(err, repository.ErrNotFound) {
		c.store(ctx, key, missingRate)
		return decimal.Zero, err
	}
	if err != nil {
		return decimal.Zero, err
	}

	c.store(ctx, key, rate.String())
	return rate, nil
}

func (c *FeeRates) Invalidate(ctx context.Context, category domain.Category, feeType string) error {
	return c.client.Del(ctx, cacheKey(category, feeType)).Err()
}

func (c *FeeRates) store(ctx context.Context, key, value string) {
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache fee rate", "key", key, "error", err)
	}
}

func cacheKey(category domain.Category, feeType string) string {
	return keyPrefix + string(category) + ":" + feeType
}
