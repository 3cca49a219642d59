// Package balances implements the balance cache: per-market valuations that
// are only updated by an explicit refresh.
package balances

import (
	"fmt"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/modules/registry"
	"github.com/aristath/sentinel-vault/internal/state"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Cache refreshes and reads market valuations held in a state
type Cache struct {
	registry *registry.Registry
	log      zerolog.Logger
}

// New creates a balance cache service
func New(reg *registry.Registry, log zerolog.Logger) *Cache {
	return &Cache{
		registry: reg,
		log:      log.With().Str("service", "balances").Logger(),
	}
}

// Refresh recomputes the valuation of the given markets through their balance
// reporters and returns total assets afterwards.
//
// An empty list refreshes every configured market. Zero ids are dropped from a
// non-empty list; if nothing remains the call is a no-op.
func (c *Cache) Refresh(u *state.Unit, ids []domain.MarketID) (decimal.Decimal, error) {
	st := u.State()

	targets := st.MarketIDs()
	if len(ids) > 0 {
		targets = dedupe(ids)
		if len(targets) == 0 {
			return st.TotalAssets(), nil
		}
	}

	for i, id := range targets {
		reporter, err := c.registry.BalanceReporterFor(st, id)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to refresh market %s: %w", id, err)
		}

		value, err := reporter.ReportBalance(u)
		if err != nil {
			return decimal.Zero, &domain.AdapterError{Index: i, Adapter: reporter.ID(), Market: id, Err: err}
		}
		if value.IsNegative() {
			return decimal.Zero, &domain.AdapterError{
				Index:   i,
				Adapter: reporter.ID(),
				Market:  id,
				Err:     fmt.Errorf("negative valuation %s", value),
			}
		}

		if prev := st.Cache[id]; !prev.Equal(value) {
			c.log.Debug().
				Stringer("market", id).
				Str("previous", prev.String()).
				Str("current", value.String()).
				Msg("Valuation changed")
		}
		st.Cache[id] = value
	}

	return st.TotalAssets(), nil
}

// ValuationOf returns the last cached valuation of a market. It may be stale.
func (c *Cache) ValuationOf(st *state.State, id domain.MarketID) (decimal.Decimal, error) {
	if _, ok := st.Markets[id]; !ok {
		return decimal.Zero, fmt.Errorf("market %s: %w", id, domain.ErrUnknownMarket)
	}
	return st.Cache[id], nil
}

// TotalAssets returns idle plus all cached valuations
func (c *Cache) TotalAssets(st *state.State) decimal.Decimal {
	return st.TotalAssets()
}

func dedupe(ids []domain.MarketID) []domain.MarketID {
	seen := make(map[domain.MarketID]struct{}, len(ids))
	out := make([]domain.MarketID, 0, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
