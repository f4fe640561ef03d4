package service

import (
	"bank_ledger/internal/domain"
	"bank_ledger/internal/fee"
	"bank_ledger/internal/repository"
	"bank_ledger/pkg/validator"
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

type OpenAccountRequest struct {
	ID             string          `json:"id"`
	CustomerID     string          `json:"customer_id"`
	Category       string          `json:"category"`
	InitialDeposit decimal.Decimal `json:"initial_deposit"`
	OverdraftLimit decimal.Decimal `json:"overdraft_limit"`
}

type CustomerBalance struct {
	CustomerID string          `json:"customer_id"`
	Accounts   int             `json:"accounts"`
	Total      decimal.Decimal `json:"total"`
}

// AccountService opens accounts and reports customer holdings. Only
// categories with a registered fee strategy can be opened, so every account
// can later be charged.
type AccountService struct {
	accounts  repository.AccountRepository
	customers repository.CustomerRepository
	fees      *fee.Calculator
	validator *validator.TransactionValidator
	logger    *slog.Logger
}

func NewAccountService(
	accounts repository.AccountRepository,
	customers repository.CustomerRepository,
	fees *fee.Calculator,
	logger *slog.Logger,
) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		accounts:  accounts,
		customers: customers,
		fees:      fees,
		validator: validator.NewTransactionValidator(decimal.Zero),
		logger:    logger,
	}
}

func (s *AccountService) OpenAccount(ctx context.Context, req OpenAccountRequest) (*domain.Account, error) {
	if err := s.validator.ValidateAccountID(req.ID); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidAccount, err)
	}
	if req.InitialDeposit.IsNegative() || !req.InitialDeposit.Equal(req.InitialDeposit.Truncate(2)) {
		return nil, fmt.Errorf("%w: initial deposit %s", domain.ErrInvalidAmount, req.InitialDeposit.String())
	}
	if req.OverdraftLimit.IsNegative() {
		return nil, fmt.Errorf("%w: overdraft limit %s", domain.ErrInvalidAccount, req.OverdraftLimit.String())
	}

	category := domain.ParseCategory(req.Category)
	if _, err := s.fees.Lookup(category); err != nil {
		return nil, err
	}
	if _, err := s.customers.GetByID(ctx, req.CustomerID); err != nil {
		return nil, err
	}

	account := domain.NewAccount(req.ID, req.CustomerID, category, req.InitialDeposit.Round(2))
	if req.OverdraftLimit.IsPositive() {
		account.WithOverdraft(req.OverdraftLimit)
	}
	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Account opened",
		slog.String("account_id", account.ID),
		slog.String("customer_id", account.CustomerID),
		slog.String("category", account.Category.String()),
		slog.String("initial_deposit", account.Balance.StringFixed(2)))
	return account, nil
}

func (s *AccountService) CustomerBalance(ctx context.Context, customerID string) (*CustomerBalance, error) {
	if _, err := s.customers.GetByID(ctx, customerID); err != nil {
		return nil, err
	}
	accounts, err := s.accounts.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}
	return &CustomerBalance{CustomerID: customerID, Accounts: len(accounts), Total: total}, nil
}
