// Package registry implements the market registry: configured markets, their
// substrates, adapter bindings and the balance dependency graph.
package registry

import (
	"fmt"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/modules/adapters"
	"github.com/aristath/sentinel-vault/internal/state"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Registry validates and mutates registry configuration held in a state.
// It keeps no state of its own besides the plugin catalog.
type Registry struct {
	catalog *adapters.Catalog
	log     zerolog.Logger
}

// New creates a registry over the given catalog
func New(catalog *adapters.Catalog, log zerolog.Logger) *Registry {
	return &Registry{
		catalog: catalog,
		log:     log.With().Str("service", "registry").Logger(),
	}
}

// Catalog returns the plugin catalog
func (r *Registry) Catalog() *adapters.Catalog {
	return r.catalog
}

// IsAdapterAuthorized reports whether adapter is bound to market
func (r *Registry) IsAdapterAuthorized(st *state.State, market domain.MarketID, adapter domain.AdapterID) bool {
	bound, ok := st.Bindings[adapter]
	return ok && bound == market && !market.IsZero()
}

// SubstratesOf returns the substrates a market may touch
func (r *Registry) SubstratesOf(st *state.State, market domain.MarketID) ([]domain.Substrate, error) {
	m, ok := st.Markets[market]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", market, domain.ErrUnknownMarket)
	}
	return m.SortedSubstrates(), nil
}

// Resolve returns the plugin for adapter after verifying it is bound to market.
// It is called immediately before every invocation.
func (r *Registry) Resolve(st *state.State, adapter domain.AdapterID, market domain.MarketID) (adapters.Adapter, error) {
	plugin, ok := r.catalog.Get(adapter)
	if !ok {
		return nil, &domain.AdapterBindingError{Adapter: adapter, Market: market, Reason: domain.ErrUnknownAdapter}
	}
	if !r.IsAdapterAuthorized(st, market, adapter) || plugin.MarketID() != market {
		return nil, &domain.AdapterBindingError{Adapter: adapter, Market: market, Reason: domain.ErrAdapterNotBound}
	}
	return plugin, nil
}

// ResolveBound returns the plugin for adapter and the market it is bound to
func (r *Registry) ResolveBound(st *state.State, adapter domain.AdapterID) (adapters.Adapter, domain.MarketID, error) {
	market, ok := st.Bindings[adapter]
	if !ok {
		if _, known := r.catalog.Get(adapter); !known {
			return nil, 0, &domain.AdapterBindingError{Adapter: adapter, Reason: domain.ErrUnknownAdapter}
		}
		return nil, 0, &domain.AdapterBindingError{Adapter: adapter, Reason: domain.ErrAdapterNotBound}
	}
	plugin, err := r.Resolve(st, adapter, market)
	if err != nil {
		return nil, 0, err
	}
	return plugin, market, nil
}

// AddMarket configures a new market with its initial substrates
func (r *Registry) AddMarket(st *state.State, id domain.MarketID, substrates []domain.Substrate) error {
	if id.IsZero() {
		return fmt.Errorf("market id 0 is reserved: %w", domain.ErrInvalidConfig)
	}
	if _, exists := st.Markets[id]; exists {
		return fmt.Errorf("market %s: %w", id, domain.ErrMarketExists)
	}

	m := &state.Market{ID: id, Substrates: make(map[domain.Substrate]struct{}, len(substrates))}
	for _, s := range substrates {
		m.Substrates[s] = struct{}{}
	}
	st.Markets[id] = m
	if _, ok := st.Cache[id]; !ok {
		st.Cache[id] = decimal.Zero
	}

	r.log.Debug().Stringer("market", id).Int("substrates", len(substrates)).Msg("Market added")
	return nil
}

// GrantSubstrates adds substrates to a market
func (r *Registry) GrantSubstrates(st *state.State, id domain.MarketID, substrates []domain.Substrate) error {
	m, ok := st.Markets[id]
	if !ok {
		return fmt.Errorf("market %s: %w", id, domain.ErrUnknownMarket)
	}
	for _, s := range substrates {
		m.Substrates[s] = struct{}{}
	}
	return nil
}

// RevokeSubstrates removes substrates from a market
func (r *Registry) RevokeSubstrates(st *state.State, id domain.MarketID, substrates []domain.Substrate) error {
	m, ok := st.Markets[id]
	if !ok {
		return fmt.Errorf("market %s: %w", id, domain.ErrUnknownMarket)
	}
	for _, s := range substrates {
		delete(m.Substrates, s)
	}
	return nil
}

// RegisterAdapter binds a catalog plugin to the market it was built for.
// Re-registering an existing binding is a no-op.
func (r *Registry) RegisterAdapter(st *state.State, market domain.MarketID, adapter domain.AdapterID) error {
	if _, ok := st.Markets[market]; !ok {
		return fmt.Errorf("register %q: market %s: %w", adapter, market, domain.ErrUnknownMarket)
	}
	plugin, ok := r.catalog.Get(adapter)
	if !ok {
		return &domain.AdapterBindingError{Adapter: adapter, Market: market, Reason: domain.ErrUnknownAdapter}
	}
	if plugin.MarketID() != market {
		return &domain.AdapterBindingError{Adapter: adapter, Market: market, Reason: domain.ErrAdapterNotBound}
	}
	if bound, exists := st.Bindings[adapter]; exists && bound != market {
		return &domain.AdapterBindingError{Adapter: adapter, Market: market, Reason: domain.ErrAdapterNotBound}
	}

	st.Bindings[adapter] = market
	r.log.Info().Str("adapter", string(adapter)).Stringer("market", market).Msg("Adapter registered")
	return nil
}

// DeregisterAdapter removes a binding. A market whose balance adapter is
// removed has no reporter until a new one is set.
func (r *Registry) DeregisterAdapter(st *state.State, adapter domain.AdapterID) error {
	market, ok := st.Bindings[adapter]
	if !ok {
		return &domain.AdapterBindingError{Adapter: adapter, Reason: domain.ErrAdapterNotBound}
	}
	delete(st.Bindings, adapter)
	if st.BalanceAdapters[market] == adapter {
		delete(st.BalanceAdapters, market)
	}

	r.log.Info().Str("adapter", string(adapter)).Stringer("market", market).Msg("Adapter deregistered")
	return nil
}

// SetBalanceAdapter selects the adapter that reports a market's valuation
func (r *Registry) SetBalanceAdapter(st *state.State, market domain.MarketID, adapter domain.AdapterID) error {
	plugin, err := r.Resolve(st, adapter, market)
	if err != nil {
		return err
	}
	if _, ok := plugin.(adapters.BalanceReporter); !ok {
		return fmt.Errorf("adapter %q cannot report balances: %w", adapter, domain.ErrCapabilityMissing)
	}
	st.BalanceAdapters[market] = adapter
	return nil
}

// BalanceReporterFor returns the balance reporter of a market
func (r *Registry) BalanceReporterFor(st *state.State, market domain.MarketID) (adapters.BalanceReporter, error) {
	if _, ok := st.Markets[market]; !ok {
		return nil, fmt.Errorf("market %s: %w", market, domain.ErrUnknownMarket)
	}
	id, ok := st.BalanceAdapters[market]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", market, domain.ErrNoBalanceAdapter)
	}
	plugin, err := r.Resolve(st, id, market)
	if err != nil {
		return nil, err
	}
	reporter, ok := plugin.(adapters.BalanceReporter)
	if !ok {
		return nil, fmt.Errorf("adapter %q cannot report balances: %w", id, domain.ErrCapabilityMissing)
	}
	return reporter, nil
}

// SetDependencies replaces the dependents of a market
func (r *Registry) SetDependencies(st *state.State, market domain.MarketID, deps []domain.MarketID) error {
	m, ok := st.Markets[market]
	if !ok {
		return fmt.Errorf("market %s: %w", market, domain.ErrUnknownMarket)
	}

	seen := make(map[domain.MarketID]struct{}, len(deps))
	out := make([]domain.MarketID, 0, len(deps))
	for _, dep := range deps {
		if dep == market {
			return fmt.Errorf("market %s cannot depend on itself: %w", market, domain.ErrInvalidConfig)
		}
		if _, ok := st.Markets[dep]; !ok {
			return fmt.Errorf("dependency %s: %w", dep, domain.ErrUnknownMarket)
		}
		if _, dup := seen[dep]; dup {
			continue
		}
		seen[dep] = struct{}{}
		out = append(out, dep)
	}
	m.Dependencies = out
	return nil
}

// WithDependents returns ids followed by every market reachable through the
// dependency graph, each once, in breadth-first order. Zero ids are dropped.
func (r *Registry) WithDependents(st *state.State, ids []domain.MarketID) []domain.MarketID {
	seen := make(map[domain.MarketID]struct{})
	var out []domain.MarketID
	queue := make([]domain.MarketID, 0, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			continue
		}
		queue = append(queue, id)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if m, ok := st.Markets[id]; ok {
			queue = append(queue, m.Dependencies...)
		}
	}
	return out
}
