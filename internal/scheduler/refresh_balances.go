package scheduler

import (
	"context"
	"fmt"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/utils"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BalanceRefresher is the vault operation the keeper job drives
type BalanceRefresher interface {
	RefreshBalances(ctx context.Context, caller domain.Account, ids []domain.MarketID) (decimal.Decimal, error)
}

// RefreshBalancesJob re-values every market on behalf of the keeper account.
// Fees accrue as part of the same unit.
type RefreshBalancesJob struct {
	JobBase
	vault  BalanceRefresher
	keeper domain.Account
}

// NewRefreshBalancesJob creates a new RefreshBalancesJob
func NewRefreshBalancesJob(vault BalanceRefresher, keeper domain.Account) *RefreshBalancesJob {
	return &RefreshBalancesJob{
		JobBase: JobBase{log: zerolog.Nop()},
		vault:   vault,
		keeper:  keeper,
	}
}

// Name returns the job name
func (j *RefreshBalancesJob) Name() string {
	return "refresh_balances"
}

// Run executes the refresh
func (j *RefreshBalancesJob) Run() error {
	defer utils.OperationTimer(j.Name(), j.log)()

	ctx, cancel := j.runContext()
	defer cancel()

	total, err := j.vault.RefreshBalances(ctx, j.keeper, nil)
	if err != nil {
		return fmt.Errorf("failed to refresh balances: %w", err)
	}

	j.log.Info().
		Str("keeper", string(j.keeper)).
		Str("total_assets", total.String()).
		Msg("Balances refreshed")
	return nil
}
