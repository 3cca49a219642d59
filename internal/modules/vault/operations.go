package vault

import (
	"context"
	"fmt"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/events"
	"github.com/aristath/sentinel-vault/internal/modules/dispatch"
	"github.com/aristath/sentinel-vault/internal/state"
	"github.com/aristath/sentinel-vault/pkg/formulas"
	"github.com/shopspring/decimal"
)

const (
	ReasonDeposit  = "deposit"
	ReasonMint     = "mint"
	ReasonWithdraw = "withdraw"
	ReasonRedeem   = "redeem"
)

// Execute dispatches an allocation batch as one unit of work
func (v *Vault) Execute(ctx context.Context, caller domain.Account, batch []dispatch.Instruction) (dispatch.Report, error) {
	var report dispatch.Report
	err := v.run(ctx, caller, domain.OpExecute, func(t *txn) error {
		if err := v.accrue(t); err != nil {
			return err
		}
		r, err := v.dispatcher.Execute(t.Unit, batch)
		if err != nil {
			return err
		}
		report = r
		t.emit(&events.BatchExecutedData{
			UnitID:       t.ID().String(),
			Caller:       string(caller),
			Instructions: r.Instructions,
			Markets:      marketIDs(r.Touched),
			TotalAssets:  r.TotalAssets.String(),
		})
		return nil
	})
	if err != nil {
		return dispatch.Report{}, err
	}
	return report, nil
}

// RefreshBalances re-values the given markets, or every market when ids is
// empty, and returns the new total assets.
func (v *Vault) RefreshBalances(ctx context.Context, caller domain.Account, ids []domain.MarketID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := v.run(ctx, caller, domain.OpRefresh, func(t *txn) error {
		if err := v.accrue(t); err != nil {
			return err
		}
		targets := ids
		if len(targets) == 0 {
			targets = t.State().MarketIDs()
		}
		tot, err := v.cache.Refresh(t.Unit, ids)
		if err != nil {
			return err
		}
		total = tot
		t.emit(&events.BalancesRefreshedData{
			UnitID:      t.ID().String(),
			Markets:     marketIDs(targets),
			TotalAssets: tot.String(),
		})
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// Deposit takes assets into idle and mints shares to receiver, rounding down
func (v *Vault) Deposit(ctx context.Context, caller domain.Account, assets decimal.Decimal, receiver domain.Account) (decimal.Decimal, error) {
	var shares decimal.Decimal
	err := v.run(ctx, caller, domain.OpDeposit, func(t *txn) error {
		if !assets.IsPositive() {
			return domain.ErrZeroAmount
		}
		if err := v.accrue(t); err != nil {
			return err
		}
		st := t.State()
		s, err := convertToShares(st, assets, formulas.Down)
		if err != nil {
			return err
		}
		if !s.IsPositive() {
			return fmt.Errorf("deposit of %s mints no shares: %w", assets, domain.ErrZeroAmount)
		}
		if err := checkSupplyCap(st, s); err != nil {
			return err
		}
		st.CreditIdle(assets)
		t.Mint(receiver, s, ReasonDeposit)
		shares = s
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return shares, nil
}

// Mint mints exactly shares to receiver and takes the assets they cost, rounding up
func (v *Vault) Mint(ctx context.Context, caller domain.Account, shares decimal.Decimal, receiver domain.Account) (decimal.Decimal, error) {
	var assets decimal.Decimal
	err := v.run(ctx, caller, domain.OpMint, func(t *txn) error {
		if !shares.IsPositive() {
			return domain.ErrZeroAmount
		}
		if err := v.accrue(t); err != nil {
			return err
		}
		st := t.State()
		a, err := convertToAssets(st, shares, formulas.Up)
		if err != nil {
			return err
		}
		if err := checkSupplyCap(st, shares); err != nil {
			return err
		}
		st.CreditIdle(a)
		t.Mint(receiver, shares, ReasonMint)
		assets = a
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return assets, nil
}

// Withdraw pays out exactly assets to receiver and burns the caller's shares,
// rounding up. A short idle balance is covered through the withdrawal route.
func (v *Vault) Withdraw(ctx context.Context, caller domain.Account, assets decimal.Decimal, receiver domain.Account) (decimal.Decimal, error) {
	var shares decimal.Decimal
	err := v.run(ctx, caller, domain.OpWithdraw, func(t *txn) error {
		if !assets.IsPositive() {
			return domain.ErrZeroAmount
		}
		if err := v.accrue(t); err != nil {
			return err
		}
		s, err := convertToShares(t.State(), assets, formulas.Up)
		if err != nil {
			return err
		}
		if err := v.payOut(t, s, assets, receiver, ReasonWithdraw); err != nil {
			return err
		}
		shares = s
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return shares, nil
}

// Redeem burns exactly shares from the caller and pays their value to
// receiver, rounding down.
func (v *Vault) Redeem(ctx context.Context, caller domain.Account, shares decimal.Decimal, receiver domain.Account) (decimal.Decimal, error) {
	var assets decimal.Decimal
	err := v.run(ctx, caller, domain.OpRedeem, func(t *txn) error {
		if !shares.IsPositive() {
			return domain.ErrZeroAmount
		}
		if err := v.accrue(t); err != nil {
			return err
		}
		a, err := convertToAssets(t.State(), shares, formulas.Down)
		if err != nil {
			return err
		}
		if !a.IsPositive() {
			return fmt.Errorf("redeem of %s shares pays nothing: %w", shares, domain.ErrZeroAmount)
		}
		if err := v.payOut(t, shares, a, receiver, ReasonRedeem); err != nil {
			return err
		}
		assets = a
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return assets, nil
}

// payOut burns the caller's shares and releases assets from idle, raising
// liquidity through the route first when idle is short.
func (v *Vault) payOut(t *txn, shares, assets decimal.Decimal, receiver domain.Account, reason string) error {
	st := t.State()
	owner := t.Caller()
	if st.BalanceOf(owner).LessThan(shares) {
		return fmt.Errorf("%s holds %s shares, needs %s: %w", owner, st.BalanceOf(owner), shares, domain.ErrInsufficientShares)
	}

	if st.Idle.LessThan(assets) {
		shortfall := assets.Sub(st.Idle)
		raised, err := v.router.RaiseLiquidity(t.Unit, shortfall)
		if err != nil {
			return err
		}
		t.emit(&events.LiquidityRaisedData{
			UnitID:    t.ID().String(),
			Shortfall: shortfall.String(),
			Raised:    raised.String(),
		})
	}

	if err := t.Burn(owner, shares, reason); err != nil {
		return err
	}
	if err := st.DebitIdle(assets); err != nil {
		return err
	}

	v.log.Debug().
		Str("owner", string(owner)).
		Str("receiver", string(receiver)).
		Str("assets", assets.String()).
		Str("shares", shares.String()).
		Str("reason", reason).
		Msg("Assets paid out")
	return nil
}

func convertToShares(st *state.State, assets decimal.Decimal, rounding formulas.Rounding) (decimal.Decimal, error) {
	if st.TotalSupply.IsZero() {
		return assets, nil
	}
	total := st.TotalAssets()
	if !total.IsPositive() {
		return decimal.Zero, domain.ErrNoAssets
	}
	return formulas.MulDiv(assets, st.TotalSupply, total, rounding)
}

func convertToAssets(st *state.State, shares decimal.Decimal, rounding formulas.Rounding) (decimal.Decimal, error) {
	if st.TotalSupply.IsZero() {
		return shares, nil
	}
	return formulas.MulDiv(shares, st.TotalAssets(), st.TotalSupply, rounding)
}

func checkSupplyCap(st *state.State, minted decimal.Decimal) error {
	if !st.SupplyCap.IsPositive() {
		return nil
	}
	if st.TotalSupply.Add(minted).GreaterThan(st.SupplyCap) {
		return fmt.Errorf("supply %s plus %s over cap %s: %w", st.TotalSupply, minted, st.SupplyCap, domain.ErrSupplyCapExceeded)
	}
	return nil
}

func marketIDs(ids []domain.MarketID) []uint64 {
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out
}
