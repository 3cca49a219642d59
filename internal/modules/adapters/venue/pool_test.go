package venue

import (
	"testing"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPool_SupplyWithdraw(t *testing.T) {
	p := NewPool("aave", "USDC", zerolog.Nop())
	require.NoError(t, p.Supply("vault", d("100")))
	assert.True(t, d("100").Equal(p.BalanceOf("vault")))

	out, err := p.Withdraw("vault", d("150"))
	require.NoError(t, err)
	assert.True(t, d("100").Equal(out))
	assert.True(t, p.BalanceOf("vault").IsZero())

	assert.ErrorIs(t, p.Supply("vault", decimal.Zero), domain.ErrZeroAmount)
}

func TestPool_Accrue(t *testing.T) {
	p := NewPool("aave", "USDC", zerolog.Nop())
	require.NoError(t, p.Supply("vault", d("1000")))
	p.Accrue(1000)
	assert.True(t, d("1100").Equal(p.BalanceOf("vault")))
	p.Accrue(-500)
	assert.True(t, d("1045").Equal(p.BalanceOf("vault")))
}

func TestPool_LiquidityLimit(t *testing.T) {
	p := NewPool("aave", "USDC", zerolog.Nop())
	require.NoError(t, p.Supply("vault", d("100")))
	limit := d("15")
	p.LimitLiquidity(&limit)

	out, err := p.Withdraw("vault", d("40"))
	require.NoError(t, err)
	assert.True(t, d("15").Equal(out))

	out, err = p.Withdraw("vault", d("40"))
	require.NoError(t, err)
	assert.True(t, out.IsZero())
	assert.True(t, d("85").Equal(p.BalanceOf("vault")))
}

func TestPool_Paused(t *testing.T) {
	p := NewPool("aave", "USDC", zerolog.Nop())
	p.SetPaused(true)
	assert.ErrorIs(t, p.Supply("vault", d("1")), ErrPaused)
	_, err := p.Withdraw("vault", d("1"))
	assert.ErrorIs(t, err, ErrPaused)
}

func TestPool_CheckpointRestores(t *testing.T) {
	p := NewPool("aave", "USDC", zerolog.Nop())
	require.NoError(t, p.Supply("vault", d("50")))

	restore := p.Checkpoint()
	require.NoError(t, p.Supply("vault", d("25")))
	require.NoError(t, p.SetPosition("other", d("7")))
	restore()

	assert.True(t, d("50").Equal(p.BalanceOf("vault")))
	assert.True(t, p.BalanceOf("other").IsZero())
}
