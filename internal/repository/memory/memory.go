package memory

import (
	"bank_ledger/internal/repository"
)

var (
	_ repository.Store                 = (*Store)(nil)
	_ repository.Tx                    = (*unit)(nil)
	_ repository.AccountRepository     = (*AccountRepository)(nil)
	_ repository.CustomerRepository    = (*CustomerRepository)(nil)
	_ repository.TransactionRepository = (*TransactionRepository)(nil)
	_ repository.AuditRepository       = (*AuditRepository)(nil)
	_ repository.FeeRateRepository     = (*FeeRateRepository)(nil)
)
