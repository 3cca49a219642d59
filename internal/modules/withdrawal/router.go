// Package withdrawal implements the fallback withdrawal router
package withdrawal

import (
	"fmt"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/modules/adapters"
	"github.com/aristath/sentinel-vault/internal/modules/balances"
	"github.com/aristath/sentinel-vault/internal/modules/registry"
	"github.com/aristath/sentinel-vault/internal/state"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Router raises idle liquidity by walking the configured route in order
type Router struct {
	registry *registry.Registry
	cache    *balances.Cache
	auth     domain.Authorizer
	log      zerolog.Logger
}

// New creates a withdrawal router
func New(reg *registry.Registry, cache *balances.Cache, auth domain.Authorizer, log zerolog.Logger) *Router {
	return &Router{
		registry: reg,
		cache:    cache,
		auth:     auth,
		log:      log.With().Str("service", "withdrawal").Logger(),
	}
}

// RaiseLiquidity asks each route step, in order, for what is still missing
// and stops as soon as idle covers the shortfall. Running out of steps fails
// the whole operation. Returns the amount raised.
func (r *Router) RaiseLiquidity(u *state.Unit, shortfall decimal.Decimal) (decimal.Decimal, error) {
	if !shortfall.IsPositive() {
		return decimal.Zero, nil
	}
	if !r.auth.IsAuthorized(u.Caller(), u.Operation()) {
		return decimal.Zero, &domain.UnauthorizedError{Caller: u.Caller(), Operation: u.Operation()}
	}

	st := u.State()
	target := st.Idle.Add(shortfall)
	raised := decimal.Zero
	var touched []domain.MarketID

	for i, entry := range st.Route {
		if st.Idle.GreaterThanOrEqual(target) {
			break
		}
		need := target.Sub(st.Idle)

		plugin, market, err := r.registry.ResolveBound(st, entry.Adapter)
		if err != nil {
			return raised, fmt.Errorf("route step %d rejected: %w", i, err)
		}
		withdrawer, ok := plugin.(adapters.InstantWithdrawer)
		if !ok {
			return raised, fmt.Errorf("route step %d adapter %q: %w", i, entry.Adapter, domain.ErrCapabilityMissing)
		}

		before := st.Idle
		if err := withdrawer.InstantWithdraw(u, need, entry.Params); err != nil {
			return raised, &domain.AdapterError{Index: i, Adapter: entry.Adapter, Market: market, Err: err}
		}
		freed := st.Idle.Sub(before)
		if freed.IsNegative() {
			return raised, &domain.AdapterError{
				Index:   i,
				Adapter: entry.Adapter,
				Market:  market,
				Err:     fmt.Errorf("idle balance decreased by %s", freed.Neg()),
			}
		}

		raised = raised.Add(freed)
		u.Touch(market)
		touched = append(touched, market)

		r.log.Debug().
			Int("step", i).
			Str("adapter", string(entry.Adapter)).
			Str("requested", need.String()).
			Str("freed", freed.String()).
			Msg("Route step")
	}

	if len(touched) > 0 {
		if _, err := r.cache.Refresh(u, r.registry.WithDependents(st, touched)); err != nil {
			return raised, fmt.Errorf("failed to refresh route markets: %w", err)
		}
	}

	if st.Idle.LessThan(target) {
		return raised, &domain.LiquidityShortfallError{Requested: shortfall, Available: raised}
	}
	return raised, nil
}

// SetRoute replaces the route wholesale. Every step must name a bound adapter
// that can withdraw instantly.
func (r *Router) SetRoute(st *state.State, route []state.RouteEntry) error {
	out := make([]state.RouteEntry, 0, len(route))
	for i, entry := range route {
		plugin, _, err := r.registry.ResolveBound(st, entry.Adapter)
		if err != nil {
			return fmt.Errorf("route step %d: %w", i, err)
		}
		if _, ok := plugin.(adapters.InstantWithdrawer); !ok {
			return fmt.Errorf("route step %d adapter %q: %w", i, entry.Adapter, domain.ErrCapabilityMissing)
		}
		out = append(out, state.RouteEntry{Adapter: entry.Adapter, Params: append([]byte(nil), entry.Params...)})
	}
	st.Route = out
	return nil
}
