package state

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Unit is one serialized unit of work. Everything a unit changes lives in its
// working copy of the state; external side effects register a compensation
// so the unit can be rolled back as a whole.
type Unit struct {
	id     uuid.UUID
	ctx    context.Context
	op     domain.Operation
	caller domain.Account
	now    time.Time

	state         *State
	touched       map[domain.MarketID]struct{}
	touchOrder    []domain.MarketID
	compensations []func()
	supply        []domain.SupplyChange
}

// NewUnit starts a unit over a working copy. The caller owns base and must
// not mutate it while the unit runs.
func NewUnit(ctx context.Context, op domain.Operation, caller domain.Account, base *State, now time.Time) *Unit {
	return &Unit{
		id:      uuid.New(),
		ctx:     ctx,
		op:      op,
		caller:  caller,
		now:     now.UTC(),
		state:   base.Clone(),
		touched: make(map[domain.MarketID]struct{}),
	}
}

// ID returns the unit id
func (u *Unit) ID() uuid.UUID { return u.id }

// Context returns the unit's context
func (u *Unit) Context() context.Context { return u.ctx }

// Operation returns the operation the unit was started for
func (u *Unit) Operation() domain.Operation { return u.op }

// Caller returns the account that started the unit
func (u *Unit) Caller() domain.Account { return u.caller }

// Now is the unit's clock. It is fixed for the whole unit.
func (u *Unit) Now() time.Time { return u.now }

// State returns the working copy
func (u *Unit) State() *State { return u.state }

// Touch marks a market as affected by this unit
func (u *Unit) Touch(id domain.MarketID) {
	if id.IsZero() {
		return
	}
	if _, ok := u.touched[id]; ok {
		return
	}
	u.touched[id] = struct{}{}
	u.touchOrder = append(u.touchOrder, id)
}

// Touched returns touched markets in first-touch order
func (u *Unit) Touched() []domain.MarketID {
	return append([]domain.MarketID(nil), u.touchOrder...)
}

// OnRollback registers a compensation for an external side effect.
// Compensations run in reverse registration order.
func (u *Unit) OnRollback(fn func()) {
	if fn != nil {
		u.compensations = append(u.compensations, fn)
	}
}

// Rollback runs all compensations, newest first, and discards the working
// copy. A panicking compensation does not stop the others.
func (u *Unit) Rollback() (failures int) {
	for i := len(u.compensations) - 1; i >= 0; i-- {
		func() {
			defer func() {
				if r := recover(); r != nil {
					failures++
				}
			}()
			u.compensations[i]()
		}()
	}
	u.compensations = nil
	u.supply = nil
	u.state = nil
	return failures
}

// Mint credits new shares to an account
func (u *Unit) Mint(account domain.Account, shares decimal.Decimal, reason string) {
	if !shares.IsPositive() {
		return
	}
	st := u.state
	st.Shares[account] = st.BalanceOf(account).Add(shares)
	st.TotalSupply = st.TotalSupply.Add(shares)
	u.supply = append(u.supply, domain.SupplyChange{
		Account:     account,
		Delta:       shares,
		TotalSupply: st.TotalSupply,
		Reason:      reason,
		At:          u.now,
	})
}

// Burn destroys shares held by an account
func (u *Unit) Burn(account domain.Account, shares decimal.Decimal, reason string) error {
	if !shares.IsPositive() {
		return nil
	}
	st := u.state
	balance := st.BalanceOf(account)
	if shares.GreaterThan(balance) {
		return fmt.Errorf("burn %s from %q holding %s: %w", shares, account, balance, domain.ErrInsufficientShares)
	}
	remaining := balance.Sub(shares)
	if remaining.IsZero() {
		delete(st.Shares, account)
	} else {
		st.Shares[account] = remaining
	}
	st.TotalSupply = st.TotalSupply.Sub(shares)
	u.supply = append(u.supply, domain.SupplyChange{
		Account:     account,
		Delta:       shares.Neg(),
		TotalSupply: st.TotalSupply,
		Reason:      reason,
		At:          u.now,
	})
	return nil
}

// SupplyChanges returns mints and burns recorded so far
func (u *Unit) SupplyChanges() []domain.SupplyChange {
	return append([]domain.SupplyChange(nil), u.supply...)
}
