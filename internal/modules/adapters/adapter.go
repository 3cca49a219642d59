// Package adapters defines the capability interfaces of market adapters and
// the in-process catalog the vault resolves them from.
//
// Adapters are trusted code. They receive the unit of work and may mutate the
// vault's working state and move custodied assets. Each adapter is bound to
// exactly one market and implements only the capabilities it supports.
package adapters

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/state"
	"github.com/shopspring/decimal"
)

// Adapter is the identity every adapter plugin carries
type Adapter interface {
	ID() domain.AdapterID
	MarketID() domain.MarketID
}

// Enterer moves idle assets into its market
type Enterer interface {
	Adapter
	Enter(u *state.Unit, data []byte) error
}

// Exiter moves assets out of its market back to idle
type Exiter interface {
	Adapter
	Exit(u *state.Unit, data []byte) error
}

// BalanceReporter values the vault's position in its market in the unit of account
type BalanceReporter interface {
	Adapter
	ReportBalance(u *state.Unit) (decimal.Decimal, error)
}

// InstantWithdrawer frees up to amount of liquidity into idle for the
// withdrawal route. It may free less than asked, never more.
type InstantWithdrawer interface {
	Adapter
	InstantWithdraw(u *state.Unit, amount decimal.Decimal, params []byte) error
}

// Catalog is the set of adapter plugins compiled into the process.
// Registering an adapter with the vault requires it to be present here.
type Catalog struct {
	mu       sync.RWMutex
	adapters map[domain.AdapterID]Adapter
}

// NewCatalog creates a catalog from the given plugins
func NewCatalog(plugins ...Adapter) (*Catalog, error) {
	c := &Catalog{adapters: make(map[domain.AdapterID]Adapter)}
	for _, p := range plugins {
		if err := c.Add(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add installs a plugin. IDs are unique.
func (c *Catalog) Add(a Adapter) error {
	if a == nil || a.ID() == "" {
		return fmt.Errorf("adapter without id: %w", domain.ErrInvalidConfig)
	}
	if a.MarketID().IsZero() {
		return fmt.Errorf("adapter %q declares the zero market: %w", a.ID(), domain.ErrInvalidConfig)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.adapters[a.ID()]; exists {
		return fmt.Errorf("adapter %q already in catalog: %w", a.ID(), domain.ErrInvalidConfig)
	}
	c.adapters[a.ID()] = a
	return nil
}

// Get returns the plugin with the given id
func (c *Catalog) Get(id domain.AdapterID) (Adapter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.adapters[id]
	return a, ok
}

// IDs lists plugin ids in lexical order
func (c *Catalog) IDs() []domain.AdapterID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]domain.AdapterID, 0, len(c.adapters))
	for id := range c.adapters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Capabilities describes which interfaces a plugin implements
func Capabilities(a Adapter) []string {
	var caps []string
	if _, ok := a.(Enterer); ok {
		caps = append(caps, "enter")
	}
	if _, ok := a.(Exiter); ok {
		caps = append(caps, "exit")
	}
	if _, ok := a.(BalanceReporter); ok {
		caps = append(caps, "report_balance")
	}
	if _, ok := a.(InstantWithdrawer); ok {
		caps = append(caps, "instant_withdraw")
	}
	return caps
}
