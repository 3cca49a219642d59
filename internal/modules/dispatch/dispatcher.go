// Package dispatch implements the allocation dispatcher: ordered batches of
// adapter instructions executed inside one unit of work.
package dispatch

import (
	"fmt"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/modules/adapters"
	"github.com/aristath/sentinel-vault/internal/modules/balances"
	"github.com/aristath/sentinel-vault/internal/modules/limits"
	"github.com/aristath/sentinel-vault/internal/modules/registry"
	"github.com/aristath/sentinel-vault/internal/state"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Action selects the adapter capability an instruction invokes
type Action string

const (
	ActionEnter Action = "enter"
	ActionExit  Action = "exit"
)

// Instruction is one batch entry. Data is opaque to the dispatcher and
// decoded by the adapter.
type Instruction struct {
	Adapter domain.AdapterID `json:"adapter"`
	Market  domain.MarketID  `json:"market"`
	Action  Action           `json:"action"`
	Data    []byte           `json:"data"`
}

// Report summarises a dispatched batch
type Report struct {
	Instructions int
	Touched      []domain.MarketID
	Refreshed    []domain.MarketID
	TotalAssets  decimal.Decimal
}

// Dispatcher executes batches against a unit's working state
type Dispatcher struct {
	registry *registry.Registry
	cache    *balances.Cache
	guard    *limits.Guard
	auth     domain.Authorizer
	log      zerolog.Logger
}

// New creates a dispatcher
func New(
	reg *registry.Registry,
	cache *balances.Cache,
	guard *limits.Guard,
	auth domain.Authorizer,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		cache:    cache,
		guard:    guard,
		auth:     auth,
		log:      log.With().Str("service", "dispatch").Logger(),
	}
}

// Execute runs the batch in order. Every pairing is validated before the
// first instruction runs and re-verified right before its own invocation.
// Touched markets and their dependents are refreshed afterwards and the
// exposure limits checked. Any error leaves the unit to be rolled back.
func (d *Dispatcher) Execute(u *state.Unit, batch []Instruction) (Report, error) {
	if len(batch) == 0 {
		return Report{}, domain.ErrEmptyBatch
	}
	if !d.auth.IsAuthorized(u.Caller(), domain.OpExecute) {
		return Report{}, &domain.UnauthorizedError{Caller: u.Caller(), Operation: domain.OpExecute}
	}

	st := u.State()
	for i, in := range batch {
		if _, err := d.resolve(st, in); err != nil {
			return Report{}, fmt.Errorf("batch entry %d rejected: %w", i, err)
		}
	}

	for i, in := range batch {
		call, err := d.resolve(st, in)
		if err != nil {
			return Report{}, fmt.Errorf("batch entry %d rejected: %w", i, err)
		}
		if err := call(u, in.Data); err != nil {
			return Report{}, &domain.AdapterError{Index: i, Adapter: in.Adapter, Market: in.Market, Err: err}
		}
		u.Touch(in.Market)
	}

	touched := u.Touched()
	refreshed := d.registry.WithDependents(st, touched)
	total, err := d.cache.Refresh(u, refreshed)
	if err != nil {
		return Report{}, fmt.Errorf("failed to refresh touched markets: %w", err)
	}

	if err := d.guard.CheckLimits(st, touched); err != nil {
		return Report{}, err
	}

	d.log.Debug().
		Int("instructions", len(batch)).
		Int("touched", len(touched)).
		Str("total_assets", total.String()).
		Msg("Batch dispatched")

	return Report{
		Instructions: len(batch),
		Touched:      touched,
		Refreshed:    refreshed,
		TotalAssets:  total,
	}, nil
}

// resolve verifies the binding and returns the capability to invoke
func (d *Dispatcher) resolve(st *state.State, in Instruction) (func(*state.Unit, []byte) error, error) {
	plugin, err := d.registry.Resolve(st, in.Adapter, in.Market)
	if err != nil {
		return nil, err
	}

	switch in.Action {
	case ActionEnter:
		if e, ok := plugin.(adapters.Enterer); ok {
			return e.Enter, nil
		}
	case ActionExit:
		if e, ok := plugin.(adapters.Exiter); ok {
			return e.Exit, nil
		}
	default:
		return nil, fmt.Errorf("unknown action %q: %w", in.Action, domain.ErrInvalidConfig)
	}
	return nil, fmt.Errorf("adapter %q cannot %s: %w", in.Adapter, in.Action, domain.ErrCapabilityMissing)
}
