// Package di provides dependency injection for the vault engine services.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/sentinel-vault/internal/config"
	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/events"
	"github.com/aristath/sentinel-vault/internal/modules/access"
	"github.com/aristath/sentinel-vault/internal/modules/adapters"
	"github.com/aristath/sentinel-vault/internal/modules/adapters/supply"
	"github.com/aristath/sentinel-vault/internal/modules/adapters/venue"
	"github.com/aristath/sentinel-vault/internal/modules/balances"
	"github.com/aristath/sentinel-vault/internal/modules/dispatch"
	"github.com/aristath/sentinel-vault/internal/modules/fees"
	"github.com/aristath/sentinel-vault/internal/modules/limits"
	"github.com/aristath/sentinel-vault/internal/modules/pricing"
	"github.com/aristath/sentinel-vault/internal/modules/registry"
	"github.com/aristath/sentinel-vault/internal/modules/vault"
	"github.com/aristath/sentinel-vault/internal/modules/withdrawal"
	"github.com/aristath/sentinel-vault/internal/state"
	"github.com/rs/zerolog"
)

// devMarkets are the simulated venues wired in dev mode
var devMarkets = []struct {
	market  domain.MarketID
	adapter domain.AdapterID
	pool    string
}{
	{1, "supply-1", "alpha"},
	{2, "supply-2", "beta"},
}

// InitializeServices builds the engine on top of the initialized databases
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	// ==========================================
	// STEP 1: Events
	// ==========================================
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)
	container.SupplySink = events.NewSupplySink(container.EventManager)

	// ==========================================
	// STEP 2: Boundaries
	// ==========================================
	container.Access = access.NewTable(log)
	container.Access.GrantOperator(SystemAccount)
	container.Access.Grant(KeeperAccount, domain.OpRefresh)
	for _, op := range cfg.Operators {
		container.Access.GrantOperator(op)
	}
	container.Pricing = pricing.NewStaticConverter(cfg.Asset, log)

	// ==========================================
	// STEP 3: Adapters
	// ==========================================
	catalog, err := adapters.NewCatalog()
	if err != nil {
		return fmt.Errorf("failed to create adapter catalog: %w", err)
	}
	container.Catalog = catalog
	if cfg.DevMode {
		container.Venues = make(map[domain.MarketID]*venue.Pool, len(devMarkets))
		for _, m := range devMarkets {
			pool := venue.NewPool(m.pool, cfg.Asset, log)
			adapter := supply.New(supply.Config{ID: m.adapter, Market: m.market, VaultAccount: VenueAccount}, pool, container.Pricing, log)
			if err := catalog.Add(adapter); err != nil {
				return fmt.Errorf("failed to add adapter %s: %w", m.adapter, err)
			}
			container.Venues[m.market] = pool
		}
		log.Warn().Int("venues", len(devMarkets)).Msg("DEV_MODE: simulated venues wired")
	}

	// ==========================================
	// STEP 4: Engine
	// ==========================================
	container.Registry = registry.New(catalog, log)
	container.Balances = balances.New(container.Registry, log)
	container.Fees = fees.New(log)
	container.Limits = limits.New(log)
	container.Dispatcher = dispatch.New(container.Registry, container.Balances, container.Limits, container.Access, log)
	container.Router = withdrawal.New(container.Registry, container.Balances, container.Access, log)

	// ==========================================
	// STEP 5: Committed state
	// ==========================================
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	initial, found, err := container.StateRepo.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load vault state: %w", err)
	}
	if found {
		if initial.Asset != cfg.Asset {
			return fmt.Errorf("stored vault asset %s does not match VAULT_ASSET %s: %w", initial.Asset, cfg.Asset, domain.ErrInvalidConfig)
		}
		log.Info().
			Str("total_supply", initial.TotalSupply.String()).
			Int("markets", len(initial.Markets)).
			Msg("Vault state loaded")
	} else {
		initial = freshState(cfg)
		log.Info().Str("asset", string(cfg.Asset)).Msg("No stored vault state, starting empty")
	}

	container.Vault = vault.New(initial, vault.Deps{
		Registry:   container.Registry,
		Cache:      container.Balances,
		Fees:       container.Fees,
		Guard:      container.Limits,
		Dispatcher: container.Dispatcher,
		Router:     container.Router,
		Authorizer: container.Access,
		Sink:       container.SupplySink,
		Store:      container.StateRepo,
		Events:     container.EventManager,
	}, log)

	if cfg.DevMode {
		if found {
			if err := seedDevVenues(container.Venues, initial, log); err != nil {
				return fmt.Errorf("failed to seed dev venues: %w", err)
			}
		} else if err := bootstrapDevMarkets(ctx, container.Vault, cfg.Asset); err != nil {
			return fmt.Errorf("failed to bootstrap dev markets: %w", err)
		}
	}

	log.Info().Msg("Vault services initialized")
	return nil
}

// freshState applies the configured fees and cap to an empty state. Later
// changes go through the vault's configuration operations.
func freshState(cfg *config.Config) *state.State {
	st := state.New(cfg.Asset)
	st.SupplyCap = cfg.SupplyCap
	st.Fees.PerformanceFeeBps = cfg.PerformanceFeeBps
	st.Fees.PerformanceRecipient = cfg.PerformanceFeeRecipient
	st.Fees.ManagementFeeBps = cfg.ManagementFeeBps
	st.Fees.ManagementRecipient = cfg.ManagementFeeRecipient
	st.Fees.LastAccrual = time.Now().UTC()
	return st
}

// seedDevVenues restores the vault's positions at the in-memory venues from
// the stored cache
func seedDevVenues(venues map[domain.MarketID]*venue.Pool, st *state.State, log zerolog.Logger) error {
	for id, pool := range venues {
		cached := st.Cache[id]
		if !cached.IsPositive() {
			continue
		}
		if err := pool.SetPosition(VenueAccount, cached); err != nil {
			return err
		}
		log.Warn().
			Str("market", id.String()).
			Str("position", cached.String()).
			Msg("DEV_MODE: simulated venue seeded from stored cache")
	}
	return nil
}

// bootstrapDevMarkets adds the simulated markets and routes withdrawals
// through them in order
func bootstrapDevMarkets(ctx context.Context, v *vault.Vault, asset domain.AssetID) error {
	substrates := []domain.Substrate{domain.SubstrateFromAsset(asset)}
	params, err := supply.EncodeRouteParams(nil)
	if err != nil {
		return err
	}

	var route []state.RouteEntry
	for _, m := range devMarkets {
		if err := v.AddMarket(ctx, SystemAccount, m.market, substrates); err != nil {
			return err
		}
		if err := v.RegisterAdapter(ctx, SystemAccount, m.market, m.adapter); err != nil {
			return err
		}
		if err := v.SetBalanceAdapter(ctx, SystemAccount, m.market, m.adapter); err != nil {
			return err
		}
		route = append(route, state.RouteEntry{Adapter: m.adapter, Params: params})
	}
	return v.SetWithdrawalRoute(ctx, SystemAccount, route)
}
