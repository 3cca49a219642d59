package vault

import (
	"context"
	"time"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/state"
	"github.com/aristath/sentinel-vault/pkg/formulas"
	"github.com/shopspring/decimal"
)

// Views read the committed state only. Previews additionally realize pending
// fees on a throwaway copy so they quote what the operation would do now.

func (v *Vault) TotalAssets() decimal.Decimal {
	return v.cache.TotalAssets(v.committed())
}

func (v *Vault) ValuationOf(id domain.MarketID) (decimal.Decimal, error) {
	return v.cache.ValuationOf(v.committed(), id)
}

func (v *Vault) IdleBalance() decimal.Decimal {
	return v.committed().Idle
}

func (v *Vault) TotalSupply() decimal.Decimal {
	return v.committed().TotalSupply
}

func (v *Vault) BalanceOf(account domain.Account) decimal.Decimal {
	return v.committed().BalanceOf(account)
}

func (v *Vault) FeeState() state.FeeState {
	return v.committed().Fees
}

func (v *Vault) Route() []state.RouteEntry {
	route := v.committed().Route
	out := make([]state.RouteEntry, len(route))
	for i, e := range route {
		out[i] = state.RouteEntry{Adapter: e.Adapter, Params: append([]byte(nil), e.Params...)}
	}
	return out
}

// Snapshot returns a deep copy of the committed state
func (v *Vault) Snapshot() *state.State {
	return v.committed().Clone()
}

// Summary builds the operator read model of the committed state
func (v *Vault) Summary() domain.VaultSummary {
	st := v.committed()
	return domain.VaultSummary{
		Asset:         st.Asset,
		TotalAssets:   st.TotalAssets(),
		IdleBalance:   st.Idle,
		TotalSupply:   st.TotalSupply,
		SupplyCap:     st.SupplyCap,
		SharePrice:    st.SharePrice(),
		HighWaterMark: st.Fees.HighWaterMark,
		LastAccrual:   st.Fees.LastAccrual,
		LimitsActive:  st.LimitsActive,
		Markets:       v.markets(st),
	}
}

// Markets lists every market valuation in id order
func (v *Vault) Markets() []domain.MarketValuation {
	return v.markets(v.committed())
}

// Market returns one market valuation
func (v *Vault) Market(id domain.MarketID) (domain.MarketValuation, error) {
	st := v.committed()
	val, err := v.cache.ValuationOf(st, id)
	if err != nil {
		return domain.MarketValuation{}, err
	}
	return valuation(st, id, val), nil
}

func (v *Vault) markets(st *state.State) []domain.MarketValuation {
	ids := st.MarketIDs()
	out := make([]domain.MarketValuation, 0, len(ids))
	for _, id := range ids {
		out = append(out, valuation(st, id, st.Cache[id]))
	}
	return out
}

func valuation(st *state.State, id domain.MarketID, val decimal.Decimal) domain.MarketValuation {
	mv := domain.MarketValuation{
		MarketID:  id,
		Valuation: val,
		Share:     formulas.Ratio(val, st.TotalAssets()),
	}
	if c, ok := st.Limits[id]; ok {
		capBps := c
		mv.CapBps = &capBps
	}
	return mv
}

// ConvertToShares converts at the committed price, rounding down
func (v *Vault) ConvertToShares(assets decimal.Decimal) (decimal.Decimal, error) {
	return convertToShares(v.committed(), assets, formulas.Down)
}

// ConvertToAssets converts at the committed price, rounding down
func (v *Vault) ConvertToAssets(shares decimal.Decimal) (decimal.Decimal, error) {
	return convertToAssets(v.committed(), shares, formulas.Down)
}

func (v *Vault) PreviewDeposit(assets decimal.Decimal) (decimal.Decimal, error) {
	return v.preview(func(st *state.State) (decimal.Decimal, error) {
		return convertToShares(st, assets, formulas.Down)
	})
}

func (v *Vault) PreviewMint(shares decimal.Decimal) (decimal.Decimal, error) {
	return v.preview(func(st *state.State) (decimal.Decimal, error) {
		return convertToAssets(st, shares, formulas.Up)
	})
}

func (v *Vault) PreviewWithdraw(assets decimal.Decimal) (decimal.Decimal, error) {
	return v.preview(func(st *state.State) (decimal.Decimal, error) {
		return convertToShares(st, assets, formulas.Up)
	})
}

func (v *Vault) PreviewRedeem(shares decimal.Decimal) (decimal.Decimal, error) {
	return v.preview(func(st *state.State) (decimal.Decimal, error) {
		return convertToAssets(st, shares, formulas.Down)
	})
}

// MaxWithdraw is the value of the owner's shares after pending fees
func (v *Vault) MaxWithdraw(owner domain.Account) (decimal.Decimal, error) {
	return v.preview(func(st *state.State) (decimal.Decimal, error) {
		return convertToAssets(st, st.BalanceOf(owner), formulas.Down)
	})
}

// preview realizes pending fees on a discarded unit and evaluates fn on it
func (v *Vault) preview(fn func(st *state.State) (decimal.Decimal, error)) (decimal.Decimal, error) {
	u := state.NewUnit(context.Background(), domain.OpRefresh, "", v.committed(), v.now())
	defer u.Rollback()
	if _, err := v.fees.Accrue(u); err != nil {
		return decimal.Zero, err
	}
	return fn(u.State())
}

// LastAccrual is the time fees were last realized
func (v *Vault) LastAccrual() time.Time {
	return v.committed().Fees.LastAccrual
}
