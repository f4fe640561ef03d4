package app

import (
	"bank_ledger/internal/api"
	"bank_ledger/internal/config"
	"bank_ledger/internal/fee"
	"bank_ledger/internal/processor"
	"bank_ledger/internal/repository"
	"bank_ledger/internal/repository/memory"
	"bank_ledger/internal/repository/postgres"
	"bank_ledger/internal/repository/rediscache"
	"bank_ledger/internal/service"
	"bank_ledger/internal/validation"
	"bank_ledger/pkg/crypto"
	"bank_ledger/pkg/metrics"
	"bank_ledger/pkg/rabbitmq"
	"bank_ledger/pkg/validator"
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type Repositories struct {
	Store        repository.Store
	Accounts     repository.AccountRepository
	Customers    repository.CustomerRepository
	Transactions repository.TransactionRepository
	Audit        repository.AuditRepository
	FeeRates     repository.FeeRateRepository
	// RateWriter is the uncached rate table, used for seeding.
	RateWriter rateWriter

	rateCache *rediscache.FeeRates
}

type App struct {
	Config    config.Config
	Repos     Repositories
	Processor *processor.TransferProcessor
	Accounts  *service.AccountService
	Notifier  *service.Notifier
	Handler   *api.APIHandler
	Metrics   *metrics.MetricsCollector

	closers []func()
	logger  *slog.Logger
}

// Build wires the ledger from configuration. Optional backends (Redis,
// RabbitMQ) degrade to in-process fallbacks when unset or unreachable.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Metrics: metrics.NewMetricsCollector(logger), logger: logger}

	repos, err := a.buildRepositories(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Repos = repos

	scope, err := validation.ParseBalanceScope(cfg.BalanceScope)
	if err != nil {
		a.Close()
		return nil, err
	}

	publisher := rabbitmq.Connect(cfg.RabbitMQURL, logger)
	a.closers = append(a.closers, publisher.Close)

	fees := fee.DefaultCalculator(repos.FeeRates)
	a.Notifier = a.buildNotifier(publisher)
	a.Processor = processor.NewTransferProcessor(
		repos.Store,
		repos.Accounts,
		repos.Transactions,
		fees,
		validation.DefaultChain(scope, cfg.KYCLimitAmount()),
		processor.WithNotifier(a.Notifier),
		processor.WithMetrics(a.Metrics),
		processor.WithLogger(logger),
		processor.WithMaxInFlight(cfg.MaxConcurrentTransfers),
		processor.WithRequestValidator(validator.NewTransactionValidator(cfg.MaxTransferAmountValue())),
		processor.WithAuditLog(repos.Audit),
	)
	a.Accounts = service.NewAccountService(repos.Accounts, repos.Customers, fees, logger)
	a.Handler = api.NewAPIHandler(a.Processor, a.Accounts, logger)

	logger.Info("Ledger wired",
		slog.String("store", cfg.StoreDriver),
		slog.String("balance_scope", string(scope)),
		slog.Any("observers", a.Notifier.Observers()))
	return a, nil
}

func (a *App) buildRepositories(ctx context.Context) (Repositories, error) {
	var repos Repositories

	switch a.Config.StoreDriver {
	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, a.Config.DatabaseURL, postgres.PoolOptions{MaxConns: a.Config.DBMaxConns})
		if err != nil {
			return repos, err
		}
		a.closers = append(a.closers, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			return repos, err
		}
		rates := postgres.NewFeeRateRepository(pool)
		repos = Repositories{
			Store:        postgres.NewStore(pool, a.Config.LockTimeout()),
			Accounts:     postgres.NewAccountRepository(pool),
			Customers:    postgres.NewCustomerRepository(pool),
			Transactions: postgres.NewTransactionRepository(pool),
			Audit:        postgres.NewAuditRepository(pool),
			FeeRates:     rates,
			RateWriter:   rates,
		}
	default:
		accounts := memory.NewAccountRepository()
		customers := memory.NewCustomerRepository()
		transactions := memory.NewTransactionRepository()
		rates := memory.NewFeeRateRepository()
		repos = Repositories{
			Store:        memory.NewStore(accounts, customers, transactions, a.Config.LockTimeout()),
			Accounts:     accounts,
			Customers:    customers,
			Transactions: transactions,
			Audit:        memory.NewAuditRepository(),
			FeeRates:     rates,
			RateWriter:   memoryRates{rates},
		}
	}

	if a.Config.RedisURL != "" {
		opts, err := redis.ParseURL(a.Config.RedisURL)
		if err != nil {
			return repos, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			a.logger.Warn("redis unavailable; fee rates are read uncached", slog.String("error", err.Error()))
		} else {
			repos.rateCache = rediscache.NewFeeRates(client, repos.FeeRates, a.Config.FeeRateCacheTTL(), a.logger)
			repos.FeeRates = repos.rateCache
		}
	}

	return repos, nil
}

func (a *App) buildNotifier(publisher rabbitmq.Publisher) *service.Notifier {
	breaker := service.BreakerSettings{
		MaxFailures: a.Config.BreakerFailures,
		Timeout:     a.Config.BreakerTimeout(),
	}
	sender := func(channel service.Channel) service.Sender {
		var next service.Sender = service.LogSender{Channel: channel, Logger: a.logger}
		if a.Config.RabbitMQURL != "" {
			next = service.QueueSender{Channel: channel, Exchange: a.Config.NotificationExchange, Publisher: publisher}
		}
		return service.NewBreakerSender(string(channel), next, breaker, a.logger)
	}

	observers := []service.Observer{
		service.NewAuditObserver(a.Repos.Audit),
		service.NewFraudObserver(a.Config.FraudThresholdAmount(), sender(service.ChannelAlert), a.Metrics, a.logger),
		service.NewCustomerNoticeObserver(service.ChannelEmail, sender(service.ChannelEmail), a.Repos.Accounts, a.Repos.Customers, a.logger),
		service.NewCustomerNoticeObserver(service.ChannelSMS, sender(service.ChannelSMS), a.Repos.Accounts, a.Repos.Customers, a.logger),
	}
	if a.Config.EventSigningKey != "" {
		signer := crypto.NewSigner(a.Config.EventSigningKey, a.logger)
		observers = append(observers, service.NewEventObserver(a.Config.EventExchange, publisher, signer))
	}

	return service.NewNotifier(a.logger, a.Metrics, observers...)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
