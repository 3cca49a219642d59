// Package state holds the durable accounting state of the vault and the unit
// of work that mutates it.
package state

import (
	"fmt"
	"sort"
	"time"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/shopspring/decimal"
)

// Market is a configured market. Markets are never deleted, only zeroed.
type Market struct {
	ID           domain.MarketID
	Substrates   map[domain.Substrate]struct{}
	Dependencies []domain.MarketID // Markets whose valuation moves with this one
}

// HasSubstrate reports whether the market may touch the substrate
func (m *Market) HasSubstrate(s domain.Substrate) bool {
	_, ok := m.Substrates[s]
	return ok
}

// SortedSubstrates returns the market's substrates in byte order
func (m *Market) SortedSubstrates() []domain.Substrate {
	out := make([]domain.Substrate, 0, len(m.Substrates))
	for s := range m.Substrates {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i][:]) < string(out[j][:])
	})
	return out
}

func (m *Market) clone() *Market {
	c := &Market{
		ID:           m.ID,
		Substrates:   make(map[domain.Substrate]struct{}, len(m.Substrates)),
		Dependencies: append([]domain.MarketID(nil), m.Dependencies...),
	}
	for s := range m.Substrates {
		c.Substrates[s] = struct{}{}
	}
	return c
}

// FeeState is the per-vault fee singleton.
type FeeState struct {
	LastAccrual          time.Time       `json:"last_accrual"`
	HighWaterMark        decimal.Decimal `json:"high_water_mark"` // Best historical assets-per-share
	PerformanceFeeBps    int64           `json:"performance_fee_bps"`
	ManagementFeeBps     int64           `json:"management_fee_bps"`
	PerformanceRecipient domain.Account  `json:"performance_recipient"`
	ManagementRecipient  domain.Account  `json:"management_recipient"`
}

// RouteEntry is one step of the fallback withdrawal route.
// Params is opaque to the router and decoded by the adapter.
type RouteEntry struct {
	Adapter domain.AdapterID
	Params  []byte
}

// State is the complete durable accounting state. It is only ever mutated
// through a Unit's working copy.
type State struct {
	Asset       domain.AssetID
	Idle        decimal.Decimal
	TotalSupply decimal.Decimal
	SupplyCap   decimal.Decimal // Zero means uncapped
	Shares      map[domain.Account]decimal.Decimal

	Markets         map[domain.MarketID]*Market
	Bindings        map[domain.AdapterID]domain.MarketID
	BalanceAdapters map[domain.MarketID]domain.AdapterID
	Cache           map[domain.MarketID]decimal.Decimal

	LimitsActive bool
	Limits       map[domain.MarketID]int64 // Cap in basis points of total assets

	Route []RouteEntry
	Fees  FeeState
}

// New returns an empty state for the given underlying asset.
func New(asset domain.AssetID) *State {
	return &State{
		Asset:           asset,
		Idle:            decimal.Zero,
		TotalSupply:     decimal.Zero,
		SupplyCap:       decimal.Zero,
		Shares:          make(map[domain.Account]decimal.Decimal),
		Markets:         make(map[domain.MarketID]*Market),
		Bindings:        make(map[domain.AdapterID]domain.MarketID),
		BalanceAdapters: make(map[domain.MarketID]domain.AdapterID),
		Cache:           make(map[domain.MarketID]decimal.Decimal),
		Limits:          make(map[domain.MarketID]int64),
		Fees: FeeState{
			HighWaterMark: decimal.NewFromInt(1),
		},
	}
}

// Clone returns a deep copy. Decimals are immutable values and are shared.
func (s *State) Clone() *State {
	c := &State{
		Asset:           s.Asset,
		Idle:            s.Idle,
		TotalSupply:     s.TotalSupply,
		SupplyCap:       s.SupplyCap,
		Shares:          make(map[domain.Account]decimal.Decimal, len(s.Shares)),
		Markets:         make(map[domain.MarketID]*Market, len(s.Markets)),
		Bindings:        make(map[domain.AdapterID]domain.MarketID, len(s.Bindings)),
		BalanceAdapters: make(map[domain.MarketID]domain.AdapterID, len(s.BalanceAdapters)),
		Cache:           make(map[domain.MarketID]decimal.Decimal, len(s.Cache)),
		LimitsActive:    s.LimitsActive,
		Limits:          make(map[domain.MarketID]int64, len(s.Limits)),
		Route:           make([]RouteEntry, len(s.Route)),
		Fees:            s.Fees,
	}
	for k, v := range s.Shares {
		c.Shares[k] = v
	}
	for k, v := range s.Markets {
		c.Markets[k] = v.clone()
	}
	for k, v := range s.Bindings {
		c.Bindings[k] = v
	}
	for k, v := range s.BalanceAdapters {
		c.BalanceAdapters[k] = v
	}
	for k, v := range s.Cache {
		c.Cache[k] = v
	}
	for k, v := range s.Limits {
		c.Limits[k] = v
	}
	for i, e := range s.Route {
		c.Route[i] = RouteEntry{Adapter: e.Adapter, Params: append([]byte(nil), e.Params...)}
	}
	return c
}

// TotalAssets returns idle + sum of cached valuations. It is only exact
// immediately after a full refresh.
func (s *State) TotalAssets() decimal.Decimal {
	total := s.Idle
	for _, v := range s.Cache {
		total = total.Add(v)
	}
	return total
}

// MarketIDs returns configured market ids in ascending order
func (s *State) MarketIDs() []domain.MarketID {
	ids := make([]domain.MarketID, 0, len(s.Markets))
	for id := range s.Markets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// BalanceOf returns the share balance of an account
func (s *State) BalanceOf(account domain.Account) decimal.Decimal {
	if v, ok := s.Shares[account]; ok {
		return v
	}
	return decimal.Zero
}

// SharePrice returns assets per share, or one for an empty vault.
func (s *State) SharePrice() decimal.Decimal {
	if s.TotalSupply.IsZero() {
		return decimal.NewFromInt(1)
	}
	return s.TotalAssets().DivRound(s.TotalSupply, 18)
}

// CreditIdle adds amount to the idle balance
func (s *State) CreditIdle(amount decimal.Decimal) {
	s.Idle = s.Idle.Add(amount)
}

// DebitIdle removes amount from the idle balance, failing when idle is short.
func (s *State) DebitIdle(amount decimal.Decimal) error {
	if amount.GreaterThan(s.Idle) {
		return fmt.Errorf("debit %s from idle %s: %w", amount, s.Idle, domain.ErrInsufficientLiquidity)
	}
	s.Idle = s.Idle.Sub(amount)
	return nil
}

// Equal reports whether two states hold the same accounting values.
func (s *State) Equal(o *State) bool {
	if s.Asset != o.Asset || !s.Idle.Equal(o.Idle) || !s.TotalSupply.Equal(o.TotalSupply) ||
		!s.SupplyCap.Equal(o.SupplyCap) || s.LimitsActive != o.LimitsActive {
		return false
	}
	if !decimalMapsEqual(s.Shares, o.Shares) || !decimalMapsEqual(s.Cache, o.Cache) {
		return false
	}
	if len(s.Markets) != len(o.Markets) || len(s.Bindings) != len(o.Bindings) ||
		len(s.BalanceAdapters) != len(o.BalanceAdapters) || len(s.Limits) != len(o.Limits) ||
		len(s.Route) != len(o.Route) {
		return false
	}
	for id, m := range s.Markets {
		om, ok := o.Markets[id]
		if !ok || len(m.Substrates) != len(om.Substrates) || len(m.Dependencies) != len(om.Dependencies) {
			return false
		}
		for sub := range m.Substrates {
			if !om.HasSubstrate(sub) {
				return false
			}
		}
		for i := range m.Dependencies {
			if m.Dependencies[i] != om.Dependencies[i] {
				return false
			}
		}
	}
	for k, v := range s.Bindings {
		if o.Bindings[k] != v {
			return false
		}
	}
	for k, v := range s.BalanceAdapters {
		if o.BalanceAdapters[k] != v {
			return false
		}
	}
	for k, v := range s.Limits {
		if ov, ok := o.Limits[k]; !ok || ov != v {
			return false
		}
	}
	for i := range s.Route {
		if s.Route[i].Adapter != o.Route[i].Adapter || string(s.Route[i].Params) != string(o.Route[i].Params) {
			return false
		}
	}
	f, of := s.Fees, o.Fees
	return f.LastAccrual.Equal(of.LastAccrual) && f.HighWaterMark.Equal(of.HighWaterMark) &&
		f.PerformanceFeeBps == of.PerformanceFeeBps && f.ManagementFeeBps == of.ManagementFeeBps &&
		f.PerformanceRecipient == of.PerformanceRecipient && f.ManagementRecipient == of.ManagementRecipient
}

func decimalMapsEqual[K comparable](a, b map[K]decimal.Decimal) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
