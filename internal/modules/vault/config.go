package vault

import (
	"context"
	"fmt"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/events"
	"github.com/aristath/sentinel-vault/internal/state"
	"github.com/aristath/sentinel-vault/pkg/formulas"
	"github.com/shopspring/decimal"
)

// configure runs a configuration change as a unit of work
func (v *Vault) configure(ctx context.Context, caller domain.Account, change string, fn func(t *txn) error) error {
	return v.run(ctx, caller, domain.OpConfigure, func(t *txn) error {
		if err := fn(t); err != nil {
			return fmt.Errorf("failed to %s: %w", change, err)
		}
		t.emit(&events.ConfigChangedData{
			UnitID: t.ID().String(),
			Caller: string(caller),
			Change: change,
		})
		v.log.Info().
			Str("caller", string(caller)).
			Str("change", change).
			Msg("Configuration changed")
		return nil
	})
}

// AddMarket creates a market with its initial substrate grants
func (v *Vault) AddMarket(ctx context.Context, caller domain.Account, id domain.MarketID, substrates []domain.Substrate) error {
	return v.configure(ctx, caller, fmt.Sprintf("add market %s", id), func(t *txn) error {
		return v.registry.AddMarket(t.State(), id, substrates)
	})
}

func (v *Vault) GrantSubstrates(ctx context.Context, caller domain.Account, id domain.MarketID, substrates []domain.Substrate) error {
	return v.configure(ctx, caller, fmt.Sprintf("grant substrates on market %s", id), func(t *txn) error {
		return v.registry.GrantSubstrates(t.State(), id, substrates)
	})
}

func (v *Vault) RevokeSubstrates(ctx context.Context, caller domain.Account, id domain.MarketID, substrates []domain.Substrate) error {
	return v.configure(ctx, caller, fmt.Sprintf("revoke substrates on market %s", id), func(t *txn) error {
		return v.registry.RevokeSubstrates(t.State(), id, substrates)
	})
}

// RegisterAdapter binds an adapter to a market
func (v *Vault) RegisterAdapter(ctx context.Context, caller domain.Account, market domain.MarketID, adapter domain.AdapterID) error {
	return v.configure(ctx, caller, fmt.Sprintf("register adapter %s on market %s", adapter, market), func(t *txn) error {
		return v.registry.RegisterAdapter(t.State(), market, adapter)
	})
}

func (v *Vault) DeregisterAdapter(ctx context.Context, caller domain.Account, adapter domain.AdapterID) error {
	return v.configure(ctx, caller, fmt.Sprintf("deregister adapter %s", adapter), func(t *txn) error {
		return v.registry.DeregisterAdapter(t.State(), adapter)
	})
}

// SetBalanceAdapter selects the adapter that reports a market's balance
func (v *Vault) SetBalanceAdapter(ctx context.Context, caller domain.Account, market domain.MarketID, adapter domain.AdapterID) error {
	return v.configure(ctx, caller, fmt.Sprintf("set balance adapter of market %s to %s", market, adapter), func(t *txn) error {
		return v.registry.SetBalanceAdapter(t.State(), market, adapter)
	})
}

// SetDependencies replaces the markets refreshed together with market
func (v *Vault) SetDependencies(ctx context.Context, caller domain.Account, market domain.MarketID, deps []domain.MarketID) error {
	return v.configure(ctx, caller, fmt.Sprintf("set dependencies of market %s", market), func(t *txn) error {
		return v.registry.SetDependencies(t.State(), market, deps)
	})
}

// SetExposureLimit sets a market cap in basis points. Nil removes the cap.
func (v *Vault) SetExposureLimit(ctx context.Context, caller domain.Account, market domain.MarketID, capBps *int64) error {
	return v.configure(ctx, caller, fmt.Sprintf("set exposure limit of market %s", market), func(t *txn) error {
		return v.guard.SetExposureLimit(t.State(), market, capBps)
	})
}

func (v *Vault) ActivateLimits(ctx context.Context, caller domain.Account, active bool) error {
	return v.configure(ctx, caller, fmt.Sprintf("set limits active to %t", active), func(t *txn) error {
		v.guard.Activate(t.State(), active)
		return nil
	})
}

// SetWithdrawalRoute replaces the ordered fallback withdrawal route
func (v *Vault) SetWithdrawalRoute(ctx context.Context, caller domain.Account, route []state.RouteEntry) error {
	return v.configure(ctx, caller, "set withdrawal route", func(t *txn) error {
		return v.router.SetRoute(t.State(), route)
	})
}

// SetPerformanceFee changes the performance fee after realizing what accrued
// under the previous configuration.
func (v *Vault) SetPerformanceFee(ctx context.Context, caller domain.Account, rateBps int64, recipient domain.Account) error {
	return v.configure(ctx, caller, "set performance fee", func(t *txn) error {
		if err := validateFee(rateBps, recipient); err != nil {
			return err
		}
		if err := v.accrue(t); err != nil {
			return err
		}
		fs := &t.State().Fees
		fs.PerformanceFeeBps = rateBps
		fs.PerformanceRecipient = recipient
		return nil
	})
}

// SetManagementFee changes the management fee after realizing what accrued
// under the previous configuration.
func (v *Vault) SetManagementFee(ctx context.Context, caller domain.Account, rateBps int64, recipient domain.Account) error {
	return v.configure(ctx, caller, "set management fee", func(t *txn) error {
		if err := validateFee(rateBps, recipient); err != nil {
			return err
		}
		if err := v.accrue(t); err != nil {
			return err
		}
		fs := &t.State().Fees
		fs.ManagementFeeBps = rateBps
		fs.ManagementRecipient = recipient
		return nil
	})
}

// SetSupplyCap caps total shares for deposits and mints. Zero removes the cap.
func (v *Vault) SetSupplyCap(ctx context.Context, caller domain.Account, supplyCap decimal.Decimal) error {
	return v.configure(ctx, caller, "set supply cap", func(t *txn) error {
		if supplyCap.IsNegative() {
			return fmt.Errorf("negative supply cap %s: %w", supplyCap, domain.ErrInvalidConfig)
		}
		t.State().SupplyCap = supplyCap
		return nil
	})
}

func validateFee(rateBps int64, recipient domain.Account) error {
	if rateBps < 0 || rateBps > formulas.BasisPoints {
		return fmt.Errorf("fee rate %d bps out of range: %w", rateBps, domain.ErrInvalidConfig)
	}
	if rateBps > 0 && recipient == "" {
		return fmt.Errorf("fee rate %d bps without recipient: %w", rateBps, domain.ErrInvalidConfig)
	}
	return nil
}
