package limits

import (
	"errors"
	"testing"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/state"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func capped(t *testing.T) (*Guard, *state.State) {
	t.Helper()
	g := New(zerolog.Nop())
	st := state.New("USDC")
	st.Idle = d("400")
	for _, id := range []domain.MarketID{1, 2} {
		st.Markets[id] = &state.Market{ID: id, Substrates: map[domain.Substrate]struct{}{}}
	}
	st.Cache[1] = d("600")
	st.Cache[2] = d("0")
	half := int64(5000)
	require.NoError(t, g.SetExposureLimit(st, 1, &half))
	g.Activate(st, true)
	return g, st
}

func TestCheckLimits_Violation(t *testing.T) {
	g, st := capped(t)

	err := g.CheckLimits(st, []domain.MarketID{1})
	require.Error(t, err)

	var violation *domain.LimitViolationError
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, domain.MarketID(1), violation.Market)
	assert.True(t, d("0.6").Equal(violation.Observed))
	assert.True(t, d("0.5").Equal(violation.Cap))
	assert.ErrorIs(t, err, domain.ErrLimitViolation)
}

func TestCheckLimits_UntouchedMarketsAreSkipped(t *testing.T) {
	g, st := capped(t)
	assert.NoError(t, g.CheckLimits(st, []domain.MarketID{2}))
	assert.NoError(t, g.CheckLimits(st, nil))
}

func TestCheckLimits_ExactlyAtCap(t *testing.T) {
	g, st := capped(t)
	st.Idle = d("600")
	assert.NoError(t, g.CheckLimits(st, []domain.MarketID{1}))
}

func TestCheckLimits_InactiveKeepsCaps(t *testing.T) {
	g, st := capped(t)
	g.Activate(st, false)
	assert.NoError(t, g.CheckLimits(st, []domain.MarketID{1}))
	assert.Equal(t, int64(5000), st.Limits[1])
}

func TestCheckLimits_EmptyVault(t *testing.T) {
	g, st := capped(t)
	st.Idle = decimal.Zero
	st.Cache[1] = decimal.Zero
	assert.NoError(t, g.CheckLimits(st, []domain.MarketID{1}))
}

func TestSetExposureLimit(t *testing.T) {
	g, st := capped(t)

	bad := int64(10001)
	assert.ErrorIs(t, g.SetExposureLimit(st, 1, &bad), domain.ErrInvalidConfig)
	assert.ErrorIs(t, g.SetExposureLimit(st, 9, nil), domain.ErrUnknownMarket)

	require.NoError(t, g.SetExposureLimit(st, 1, nil))
	assert.NoError(t, g.CheckLimits(st, []domain.MarketID{1}))
}
