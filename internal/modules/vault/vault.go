// Package vault is the operational surface of the engine. Every mutating call
// runs as one serialized unit of work over a copy of the committed state and
// either commits as a whole or rolls back as a whole.
package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/events"
	"github.com/aristath/sentinel-vault/internal/modules/balances"
	"github.com/aristath/sentinel-vault/internal/modules/dispatch"
	"github.com/aristath/sentinel-vault/internal/modules/fees"
	"github.com/aristath/sentinel-vault/internal/modules/limits"
	"github.com/aristath/sentinel-vault/internal/modules/persistence"
	"github.com/aristath/sentinel-vault/internal/modules/registry"
	"github.com/aristath/sentinel-vault/internal/modules/withdrawal"
	"github.com/aristath/sentinel-vault/internal/state"
	"github.com/rs/zerolog"
)

const module = "vault"

// Store persists a committed state together with its journal entry
type Store interface {
	Save(ctx context.Context, st *state.State, entry persistence.JournalEntry) error
}

// EventEmitter publishes vault events
type EventEmitter interface {
	EmitTyped(module string, data events.EventData)
}

// Deps are the collaborators of a vault. Store, Events and Sink are optional.
type Deps struct {
	Registry   *registry.Registry
	Cache      *balances.Cache
	Fees       *fees.Engine
	Guard      *limits.Guard
	Dispatcher *dispatch.Dispatcher
	Router     *withdrawal.Router
	Authorizer domain.Authorizer
	Sink       domain.SupplySink
	Store      Store
	Events     EventEmitter
	Clock      func() time.Time
}

// Vault owns the committed state
type Vault struct {
	unitMu sync.Mutex   // serializes units of work
	stMu   sync.RWMutex // guards the committed state pointer
	st     *state.State

	registry   *registry.Registry
	cache      *balances.Cache
	fees       *fees.Engine
	guard      *limits.Guard
	dispatcher *dispatch.Dispatcher
	router     *withdrawal.Router
	auth       domain.Authorizer
	sink       domain.SupplySink
	store      Store
	events     EventEmitter
	now        func() time.Time
	log        zerolog.Logger
}

// New creates a vault over an initial committed state
func New(initial *state.State, deps Deps, log zerolog.Logger) *Vault {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Vault{
		st:         initial,
		registry:   deps.Registry,
		cache:      deps.Cache,
		fees:       deps.Fees,
		guard:      deps.Guard,
		dispatcher: deps.Dispatcher,
		router:     deps.Router,
		auth:       deps.Authorizer,
		sink:       deps.Sink,
		store:      deps.Store,
		events:     deps.Events,
		now:        clock,
		log:        log.With().Str("service", "vault").Logger(),
	}
}

// txn is a unit of work plus the events it will publish if it commits
type txn struct {
	*state.Unit
	pending []events.EventData
}

func (t *txn) emit(data events.EventData) {
	t.pending = append(t.pending, data)
}

// run executes fn as one unit of work
func (v *Vault) run(ctx context.Context, caller domain.Account, op domain.Operation, fn func(t *txn) error) error {
	v.unitMu.Lock()
	defer v.unitMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if !v.auth.IsAuthorized(caller, op) {
		return &domain.UnauthorizedError{Caller: caller, Operation: op}
	}

	t := &txn{Unit: state.NewUnit(ctx, op, caller, v.committed(), v.now())}
	if err := v.invoke(t, fn); err != nil {
		v.rollback(t, err)
		return err
	}

	st := t.State()
	entry := persistence.JournalEntry{
		UnitID:        t.ID(),
		Operation:     op,
		Caller:        caller,
		TotalAssets:   st.TotalAssets(),
		TotalSupply:   st.TotalSupply,
		SupplyChanges: len(t.SupplyChanges()),
		CommittedAt:   t.Now(),
	}
	if v.store != nil {
		if err := v.store.Save(ctx, st, entry); err != nil {
			v.rollback(t, err)
			return err
		}
	}

	v.stMu.Lock()
	v.st = st
	v.stMu.Unlock()

	v.publish(t)
	v.log.Debug().
		Str("unit", t.ID().String()).
		Str("operation", string(op)).
		Str("caller", string(caller)).
		Str("total_assets", entry.TotalAssets.String()).
		Str("total_supply", entry.TotalSupply.String()).
		Msg("Unit committed")
	return nil
}

// invoke calls fn and converts a panic into an error
func (v *Vault) invoke(t *txn, fn func(t *txn) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic in unit %s: %v", domain.ErrAdapterFailed, t.ID(), r)
		}
	}()
	return fn(t)
}

func (v *Vault) rollback(t *txn, cause error) {
	failures := t.Rollback()
	ev := v.log.Warn()
	if failures > 0 {
		ev = v.log.Error().Int("failed_compensations", failures)
	}
	ev.Err(cause).
		Str("unit", t.ID().String()).
		Str("operation", string(t.Operation())).
		Str("caller", string(t.Caller())).
		Msg("Unit rolled back")

	if v.events != nil {
		v.events.EmitTyped(module, &events.UnitRolledBackData{
			UnitID:    t.ID().String(),
			Operation: string(t.Operation()),
			Caller:    string(t.Caller()),
			Error:     cause.Error(),
		})
	}
}

func (v *Vault) publish(t *txn) {
	if v.sink != nil {
		for _, change := range t.SupplyChanges() {
			v.sink.OnSupplyChange(change)
		}
	}
	if v.events != nil {
		for _, data := range t.pending {
			v.events.EmitTyped(module, data)
		}
	}
}

// accrue realizes fees as the first step of a unit that moves assets or supply
func (v *Vault) accrue(t *txn) error {
	r, err := v.fees.Accrue(t.Unit)
	if err != nil {
		return fmt.Errorf("failed to accrue fees: %w", err)
	}
	if r.Minted() {
		t.emit(&events.FeesRealizedData{
			UnitID:            t.ID().String(),
			ManagementShares:  r.ManagementShares.String(),
			PerformanceShares: r.PerformanceShares.String(),
			HighWaterMark:     r.HighWaterMark.String(),
			ElapsedSeconds:    int64(r.Elapsed / time.Second),
		})
	}
	return nil
}

// committed returns the committed state. It is never mutated after commit.
func (v *Vault) committed() *state.State {
	v.stMu.RLock()
	defer v.stMu.RUnlock()
	return v.st
}
