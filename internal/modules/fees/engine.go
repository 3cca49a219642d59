// Package fees implements the fee accrual engine. Fees are realized by
// minting shares to the recipients, never by moving assets.
package fees

import (
	"time"

	"github.com/aristath/sentinel-vault/internal/state"
	"github.com/aristath/sentinel-vault/pkg/formulas"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Year is the management fee period
const Year = 365 * 24 * time.Hour

// yearBps is Year in nanoseconds times the bps denominator. It does not fit in an int64.
var yearBps = decimal.NewFromInt(formulas.BasisPoints).Mul(decimal.NewFromInt(int64(Year)))

const (
	ReasonManagementFee  = "management_fee"
	ReasonPerformanceFee = "performance_fee"
)

// Realization describes what one checkpoint charged
type Realization struct {
	Elapsed               time.Duration
	TotalAssets           decimal.Decimal
	ManagementAssets      decimal.Decimal
	ManagementShares      decimal.Decimal
	PerformanceAssets     decimal.Decimal
	PerformanceShares     decimal.Decimal
	PreviousHighWaterMark decimal.Decimal
	HighWaterMark         decimal.Decimal
}

// Minted reports whether any fee shares were created
func (r Realization) Minted() bool {
	return r.ManagementShares.IsPositive() || r.PerformanceShares.IsPositive()
}

// Engine realizes management and performance fees at checkpoints
type Engine struct {
	log zerolog.Logger
}

// New creates a fee engine
func New(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("service", "fees").Logger()}
}

// Accrue realizes fees owed since the last checkpoint against the unit's
// working state, using the cached total assets.
//
// The management fee accrues on total assets pro rata over time. The
// performance fee is charged on the per-share gain above the high-water mark,
// which is then raised to the post-fee share price. When no time has passed
// nothing is minted and the mark only moves up on a new high.
func (e *Engine) Accrue(u *state.Unit) (Realization, error) {
	st := u.State()
	fs := &st.Fees
	now := u.Now()

	r := Realization{
		TotalAssets:           st.TotalAssets(),
		ManagementAssets:      decimal.Zero,
		ManagementShares:      decimal.Zero,
		PerformanceAssets:     decimal.Zero,
		PerformanceShares:     decimal.Zero,
		PreviousHighWaterMark: fs.HighWaterMark,
		HighWaterMark:         fs.HighWaterMark,
	}

	if fs.LastAccrual.IsZero() || !now.After(fs.LastAccrual) {
		if fs.LastAccrual.IsZero() {
			fs.LastAccrual = now
		}
		e.raiseMark(st)
		r.HighWaterMark = fs.HighWaterMark
		return r, nil
	}

	r.Elapsed = now.Sub(fs.LastAccrual)
	fs.LastAccrual = now

	totalAssets := r.TotalAssets
	if st.TotalSupply.IsZero() || !totalAssets.IsPositive() {
		return r, nil
	}

	if fs.ManagementFeeBps > 0 && fs.ManagementRecipient != "" {
		fee, err := formulas.MulDiv(
			totalAssets.Mul(decimal.NewFromInt(fs.ManagementFeeBps)),
			decimal.NewFromInt(r.Elapsed.Nanoseconds()),
			yearBps,
			formulas.Down,
		)
		if err != nil {
			return r, err
		}
		shares, err := feeShares(fee, totalAssets, st.TotalSupply)
		if err != nil {
			return r, err
		}
		if shares.IsPositive() {
			u.Mint(fs.ManagementRecipient, shares, ReasonManagementFee)
			r.ManagementAssets = fee
			r.ManagementShares = shares
		}
	}

	if fs.PerformanceFeeBps > 0 && fs.PerformanceRecipient != "" {
		price := formulas.MustMulDiv(totalAssets, decimal.NewFromInt(1), st.TotalSupply, formulas.Down)
		if price.GreaterThan(fs.HighWaterMark) {
			profit := price.Sub(fs.HighWaterMark).Mul(st.TotalSupply)
			fee := formulas.ApplyBps(profit, fs.PerformanceFeeBps)
			shares, err := feeShares(fee, totalAssets, st.TotalSupply)
			if err != nil {
				return r, err
			}
			if shares.IsPositive() {
				u.Mint(fs.PerformanceRecipient, shares, ReasonPerformanceFee)
				r.PerformanceAssets = fee
				r.PerformanceShares = shares
			}
		}
	}

	e.raiseMark(st)
	r.HighWaterMark = fs.HighWaterMark

	if r.Minted() {
		e.log.Info().
			Dur("elapsed", r.Elapsed).
			Str("management_shares", r.ManagementShares.String()).
			Str("performance_shares", r.PerformanceShares.String()).
			Str("high_water_mark", r.HighWaterMark.String()).
			Msg("Fees realized")
	}
	return r, nil
}

// raiseMark lifts the high-water mark to the current share price if higher
func (e *Engine) raiseMark(st *state.State) {
	if st.TotalSupply.IsZero() {
		return
	}
	price := formulas.MustMulDiv(st.TotalAssets(), decimal.NewFromInt(1), st.TotalSupply, formulas.Down)
	if price.GreaterThan(st.Fees.HighWaterMark) {
		st.Fees.HighWaterMark = price
	}
}

// feeShares returns the shares worth fee after they are minted:
// shares = fee * supply / (totalAssets - fee), rounded down.
func feeShares(fee, totalAssets, supply decimal.Decimal) (decimal.Decimal, error) {
	if !fee.IsPositive() {
		return decimal.Zero, nil
	}
	rest := totalAssets.Sub(fee)
	if !rest.IsPositive() {
		return decimal.Zero, nil
	}
	return formulas.MulDiv(fee, supply, rest, formulas.Down)
}
