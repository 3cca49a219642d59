package supply

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/modules/adapters"
	"github.com/aristath/sentinel-vault/internal/modules/adapters/venue"
	"github.com/aristath/sentinel-vault/internal/modules/pricing"
	"github.com/aristath/sentinel-vault/internal/state"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	_ adapters.Enterer           = (*Adapter)(nil)
	_ adapters.Exiter            = (*Adapter)(nil)
	_ adapters.BalanceReporter   = (*Adapter)(nil)
	_ adapters.InstantWithdrawer = (*Adapter)(nil)
)

func setup(t *testing.T) (*Adapter, *venue.Pool, *state.Unit) {
	t.Helper()
	pool := venue.NewPool("pool", "USDC", zerolog.Nop())
	a := New(Config{ID: "supply-1", Market: 1, VaultAccount: "vault"}, pool,
		pricing.NewStaticConverter("USDC", zerolog.Nop()), zerolog.Nop())

	st := state.New("USDC")
	st.Idle = d("100")
	st.Markets[1] = &state.Market{ID: 1, Substrates: map[domain.Substrate]struct{}{domain.SubstrateFromAsset("USDC"): {}}}
	u := state.NewUnit(context.Background(), domain.OpExecute, "op", st, time.Unix(1, 0))
	return a, pool, u
}

func enter(t *testing.T, amount string) []byte {
	t.Helper()
	data, err := EncodeEnter(d(amount))
	require.NoError(t, err)
	return data
}

func TestEnter_MovesIdleIntoVenue(t *testing.T) {
	a, pool, u := setup(t)

	require.NoError(t, a.Enter(u, enter(t, "60")))

	assert.True(t, d("40").Equal(u.State().Idle))
	assert.True(t, d("60").Equal(pool.BalanceOf("vault")))
	assert.True(t, d("60").Equal(u.State().Cache[1]))
	assert.Equal(t, []domain.MarketID{1}, u.Touched())
}

func TestEnter_RejectsMissingSubstrate(t *testing.T) {
	a, pool, u := setup(t)
	u.State().Markets[1].Substrates = map[domain.Substrate]struct{}{}

	err := a.Enter(u, enter(t, "10"))
	assert.ErrorIs(t, err, domain.ErrSubstrateNotFound)
	assert.True(t, pool.BalanceOf("vault").IsZero())
}

func TestEnter_RejectsOverdraw(t *testing.T) {
	a, pool, u := setup(t)
	err := a.Enter(u, enter(t, "101"))
	assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)
	assert.True(t, pool.BalanceOf("vault").IsZero())
}

func TestEnter_RejectsGarbage(t *testing.T) {
	a, _, u := setup(t)
	assert.Error(t, a.Enter(u, []byte{0xc1}))
	assert.ErrorIs(t, a.Enter(u, enter(t, "0")), domain.ErrZeroAmount)
}

func TestRollback_RestoresVenue(t *testing.T) {
	a, pool, u := setup(t)
	require.NoError(t, a.Enter(u, enter(t, "30")))
	require.NoError(t, a.Enter(u, enter(t, "20")))
	assert.True(t, d("50").Equal(pool.BalanceOf("vault")))

	assert.Zero(t, u.Rollback())
	assert.True(t, pool.BalanceOf("vault").IsZero())
}

// plainVenue hides the pool's checkpoint so rollback uses the inverse call
type plainVenue struct{ Venue }

func TestRollback_InverseCall(t *testing.T) {
	_, pool, u := setup(t)
	a := New(Config{ID: "supply-1", Market: 1, VaultAccount: "vault"}, plainVenue{pool},
		pricing.NewStaticConverter("USDC", zerolog.Nop()), zerolog.Nop())
	require.NoError(t, a.Enter(u, enter(t, "30")))

	assert.Zero(t, u.Rollback())
	assert.True(t, pool.BalanceOf("vault").IsZero())
}

func TestRollback_FailedInverseCallIsCounted(t *testing.T) {
	_, pool, u := setup(t)
	a := New(Config{ID: "supply-1", Market: 1, VaultAccount: "vault"}, plainVenue{pool},
		pricing.NewStaticConverter("USDC", zerolog.Nop()), zerolog.Nop())
	require.NoError(t, a.Enter(u, enter(t, "30")))
	pool.SetPaused(true)

	assert.Equal(t, 1, u.Rollback())
	assert.True(t, d("30").Equal(pool.BalanceOf("vault")))
}

func TestExit(t *testing.T) {
	a, pool, u := setup(t)
	require.NoError(t, a.Enter(u, enter(t, "80")))

	data, err := EncodeExit(d("30"))
	require.NoError(t, err)
	require.NoError(t, a.Exit(u, data))
	assert.True(t, d("50").Equal(u.State().Idle))
	assert.True(t, d("50").Equal(pool.BalanceOf("vault")))

	data, err = EncodeExitAll()
	require.NoError(t, err)
	require.NoError(t, a.Exit(u, data))
	assert.True(t, d("100").Equal(u.State().Idle))
	assert.True(t, u.State().Cache[1].IsZero())
}

func TestExit_FailsWhenVenueReleasesLess(t *testing.T) {
	a, pool, u := setup(t)
	require.NoError(t, a.Enter(u, enter(t, "80")))
	limit := d("10")
	pool.LimitLiquidity(&limit)

	data, err := EncodeExit(d("30"))
	require.NoError(t, err)
	assert.ErrorIs(t, a.Exit(u, data), domain.ErrInsufficientLiquidity)
}

func TestInstantWithdraw_RespectsRouteBound(t *testing.T) {
	a, pool, u := setup(t)
	require.NoError(t, a.Enter(u, enter(t, "80")))

	max := d("15")
	params, err := EncodeRouteParams(&max)
	require.NoError(t, err)

	require.NoError(t, a.InstantWithdraw(u, d("40"), params))
	assert.True(t, d("35").Equal(u.State().Idle))
	assert.True(t, d("65").Equal(pool.BalanceOf("vault")))

	require.NoError(t, a.InstantWithdraw(u, d("5"), nil))
	assert.True(t, d("40").Equal(u.State().Idle))
}

func TestReportBalance_IncludesYield(t *testing.T) {
	a, pool, u := setup(t)
	require.NoError(t, a.Enter(u, enter(t, "100")))
	pool.Accrue(1000)

	v, err := a.ReportBalance(u)
	require.NoError(t, err)
	assert.True(t, d("110").Equal(v))
}

func TestAssetMismatch(t *testing.T) {
	a, _, u := setup(t)
	u.State().Asset = "DAI"
	assert.ErrorIs(t, a.Enter(u, enter(t, "1")), domain.ErrInvalidConfig)
}
