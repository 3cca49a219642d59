package testing

import (
	"errors"
	"time"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/state"
	"github.com/shopspring/decimal"
)

// ErrInjected is the failure returned by FaultyAdapter
var ErrInjected = errors.New("injected adapter failure")

// FaultyAdapter is an enter/exit adapter that mutates idle like a real one
// and can be told to fail or panic.
type FaultyAdapter struct {
	AdapterID domain.AdapterID
	Market    domain.MarketID
	Fail      bool
	Panic     bool
	Calls     int
}

// ID returns the adapter id
func (f *FaultyAdapter) ID() domain.AdapterID { return f.AdapterID }

// MarketID returns the market
func (f *FaultyAdapter) MarketID() domain.MarketID { return f.Market }

// Enter moves one unit of idle into the market's cache entry, then fails if asked
func (f *FaultyAdapter) Enter(u *state.Unit, data []byte) error {
	f.Calls++
	st := u.State()
	one := decimal.NewFromInt(1)
	if err := st.DebitIdle(one); err != nil {
		return err
	}
	st.Cache[f.Market] = st.Cache[f.Market].Add(one)
	if f.Panic {
		panic("faulty adapter panicked")
	}
	if f.Fail {
		return ErrInjected
	}
	return nil
}

// Exit always fails
func (f *FaultyAdapter) Exit(u *state.Unit, data []byte) error {
	f.Calls++
	return ErrInjected
}

// ReportBalance returns the cached value unchanged
func (f *FaultyAdapter) ReportBalance(u *state.Unit) (decimal.Decimal, error) {
	return u.State().Cache[f.Market], nil
}

// Clock is a manually advanced time source
type Clock struct {
	T time.Time
}

// NewClock starts a clock at t
func NewClock(t time.Time) *Clock {
	return &Clock{T: t}
}

// Now returns the current time
func (c *Clock) Now() time.Time { return c.T }

// Advance moves the clock forward
func (c *Clock) Advance(d time.Duration) { c.T = c.T.Add(d) }
