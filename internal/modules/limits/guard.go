// Package limits implements the exposure limit guard
package limits

import (
	"fmt"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/state"
	"github.com/aristath/sentinel-vault/pkg/formulas"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Guard checks per-market exposure caps after dispatch
type Guard struct {
	log zerolog.Logger
}

// New creates an exposure limit guard
func New(log zerolog.Logger) *Guard {
	return &Guard{log: log.With().Str("service", "limits").Logger()}
}

// CheckLimits verifies cache[m]/totalAssets <= cap for every touched market
// that has a cap. Untouched markets are not re-checked. Nothing is checked
// while limits are globally inactive.
func (g *Guard) CheckLimits(st *state.State, touched []domain.MarketID) error {
	if !st.LimitsActive {
		return nil
	}
	total := st.TotalAssets()
	if !total.IsPositive() {
		return nil
	}

	for _, id := range touched {
		capBps, ok := st.Limits[id]
		if !ok {
			continue
		}
		value := st.Cache[id]
		// value/total <= cap/10000, compared without rounding
		if value.Mul(decimal.NewFromInt(formulas.BasisPoints)).LessThanOrEqual(total.Mul(decimal.NewFromInt(capBps))) {
			continue
		}

		err := &domain.LimitViolationError{
			Market:   id,
			Observed: formulas.Ratio(value, total),
			Cap:      formulas.BpsToRatio(capBps),
		}
		g.log.Warn().
			Stringer("market", id).
			Str("observed", err.Observed.String()).
			Str("cap", err.Cap.String()).
			Msg("Exposure limit exceeded")
		return err
	}
	return nil
}

// SetExposureLimit sets or clears (capBps nil) a market's cap
func (g *Guard) SetExposureLimit(st *state.State, id domain.MarketID, capBps *int64) error {
	if _, ok := st.Markets[id]; !ok {
		return fmt.Errorf("market %s: %w", id, domain.ErrUnknownMarket)
	}
	if capBps == nil {
		delete(st.Limits, id)
		return nil
	}
	if *capBps < 0 || *capBps > formulas.BasisPoints {
		return fmt.Errorf("cap %d bps out of range: %w", *capBps, domain.ErrInvalidConfig)
	}
	st.Limits[id] = *capBps
	return nil
}

// Activate toggles all checks without touching configured caps
func (g *Guard) Activate(st *state.State, active bool) {
	st.LimitsActive = active
}
