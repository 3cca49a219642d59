package registry

import (
	"errors"
	"testing"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/modules/adapters"
	"github.com/aristath/sentinel-vault/internal/state"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plain struct {
	id     domain.AdapterID
	market domain.MarketID
}

func (p plain) ID() domain.AdapterID      { return p.id }
func (p plain) MarketID() domain.MarketID { return p.market }

type reporting struct{ plain }

func (reporting) ReportBalance(u *state.Unit) (decimal.Decimal, error) { return decimal.Zero, nil }

func setup(t *testing.T) (*Registry, *state.State) {
	t.Helper()
	catalog, err := adapters.NewCatalog(
		reporting{plain{"rep-1", 1}},
		plain{"enter-1", 1},
		plain{"enter-2", 2},
	)
	require.NoError(t, err)

	r := New(catalog, zerolog.Nop())
	st := state.New("USDC")
	require.NoError(t, r.AddMarket(st, 1, []domain.Substrate{domain.SubstrateFromAsset("USDC")}))
	require.NoError(t, r.AddMarket(st, 2, nil))
	require.NoError(t, r.AddMarket(st, 3, nil))
	return r, st
}

func TestAddMarket(t *testing.T) {
	r, st := setup(t)

	assert.ErrorIs(t, r.AddMarket(st, 1, nil), domain.ErrMarketExists)
	assert.ErrorIs(t, r.AddMarket(st, 0, nil), domain.ErrInvalidConfig)
	assert.True(t, st.Cache[2].IsZero())

	subs, err := r.SubstratesOf(st, 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.Substrate{domain.SubstrateFromAsset("USDC")}, subs)

	_, err = r.SubstratesOf(st, 9)
	assert.ErrorIs(t, err, domain.ErrUnknownMarket)
}

func TestGrantRevokeSubstrates(t *testing.T) {
	r, st := setup(t)
	dai := domain.SubstrateFromAsset("DAI")

	require.NoError(t, r.GrantSubstrates(st, 2, []domain.Substrate{dai}))
	assert.True(t, st.Markets[2].HasSubstrate(dai))

	require.NoError(t, r.RevokeSubstrates(st, 2, []domain.Substrate{dai}))
	assert.False(t, st.Markets[2].HasSubstrate(dai))

	assert.ErrorIs(t, r.GrantSubstrates(st, 9, nil), domain.ErrUnknownMarket)
}

func TestRegisterAdapter(t *testing.T) {
	r, st := setup(t)

	require.NoError(t, r.RegisterAdapter(st, 1, "enter-1"))
	require.NoError(t, r.RegisterAdapter(st, 1, "enter-1"))
	assert.True(t, r.IsAdapterAuthorized(st, 1, "enter-1"))
	assert.False(t, r.IsAdapterAuthorized(st, 2, "enter-1"))

	err := r.RegisterAdapter(st, 1, "enter-2")
	var bindErr *domain.AdapterBindingError
	require.True(t, errors.As(err, &bindErr))
	assert.ErrorIs(t, err, domain.ErrAdapterNotBound)

	assert.ErrorIs(t, r.RegisterAdapter(st, 1, "ghost"), domain.ErrUnknownAdapter)
	assert.ErrorIs(t, r.RegisterAdapter(st, 9, "enter-1"), domain.ErrUnknownMarket)
}

func TestResolve(t *testing.T) {
	r, st := setup(t)
	require.NoError(t, r.RegisterAdapter(st, 1, "enter-1"))

	plugin, err := r.Resolve(st, "enter-1", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.AdapterID("enter-1"), plugin.ID())

	_, err = r.Resolve(st, "enter-1", 2)
	assert.ErrorIs(t, err, domain.ErrAdapterNotBound)

	_, err = r.Resolve(st, "enter-2", 2)
	assert.ErrorIs(t, err, domain.ErrAdapterNotBound)

	_, err = r.Resolve(st, "ghost", 1)
	assert.ErrorIs(t, err, domain.ErrUnknownAdapter)

	_, market, err := r.ResolveBound(st, "enter-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketID(1), market)

	_, _, err = r.ResolveBound(st, "enter-2")
	assert.ErrorIs(t, err, domain.ErrAdapterNotBound)
}

func TestBalanceAdapter(t *testing.T) {
	r, st := setup(t)
	require.NoError(t, r.RegisterAdapter(st, 1, "enter-1"))
	require.NoError(t, r.RegisterAdapter(st, 1, "rep-1"))

	assert.ErrorIs(t, r.SetBalanceAdapter(st, 1, "enter-1"), domain.ErrCapabilityMissing)
	require.NoError(t, r.SetBalanceAdapter(st, 1, "rep-1"))

	rep, err := r.BalanceReporterFor(st, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.AdapterID("rep-1"), rep.ID())

	_, err = r.BalanceReporterFor(st, 2)
	assert.ErrorIs(t, err, domain.ErrNoBalanceAdapter)

	require.NoError(t, r.DeregisterAdapter(st, "rep-1"))
	_, err = r.BalanceReporterFor(st, 1)
	assert.ErrorIs(t, err, domain.ErrNoBalanceAdapter)
	assert.ErrorIs(t, r.DeregisterAdapter(st, "rep-1"), domain.ErrAdapterNotBound)
}

func TestDependencies(t *testing.T) {
	r, st := setup(t)

	require.NoError(t, r.SetDependencies(st, 1, []domain.MarketID{2, 2}))
	require.NoError(t, r.SetDependencies(st, 2, []domain.MarketID{3, 1}))
	assert.Equal(t, []domain.MarketID{2}, st.Markets[1].Dependencies)

	assert.ErrorIs(t, r.SetDependencies(st, 1, []domain.MarketID{1}), domain.ErrInvalidConfig)
	assert.ErrorIs(t, r.SetDependencies(st, 1, []domain.MarketID{9}), domain.ErrUnknownMarket)

	assert.Equal(t, []domain.MarketID{1, 2, 3}, r.WithDependents(st, []domain.MarketID{1}))
	assert.Equal(t, []domain.MarketID{3}, r.WithDependents(st, []domain.MarketID{0, 3}))
	assert.Empty(t, r.WithDependents(st, nil))
}
