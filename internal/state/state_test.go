package state

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleState() *State {
	st := New("USDC")
	st.Idle = d("100")
	st.Markets[1] = &Market{
		ID:           1,
		Substrates:   map[domain.Substrate]struct{}{domain.SubstrateFromAsset("USDC"): {}},
		Dependencies: []domain.MarketID{2},
	}
	st.Markets[2] = &Market{ID: 2, Substrates: map[domain.Substrate]struct{}{}}
	st.Bindings["supply-1"] = 1
	st.BalanceAdapters[1] = "supply-1"
	st.Cache[1] = d("250")
	st.Cache[2] = d("50")
	st.Limits[1] = 5000
	st.Route = []RouteEntry{{Adapter: "supply-1", Params: []byte{1, 2}}}
	st.Shares["alice"] = d("400")
	st.TotalSupply = d("400")
	return st
}

func TestTotalAssets_IsIdlePlusCache(t *testing.T) {
	st := sampleState()
	assert.True(t, d("400").Equal(st.TotalAssets()))
	assert.True(t, d("1").Equal(st.SharePrice()))
}

func TestSharePrice_EmptyVaultIsOne(t *testing.T) {
	assert.True(t, decimal.NewFromInt(1).Equal(New("USDC").SharePrice()))
}

func TestClone_IsDeep(t *testing.T) {
	st := sampleState()
	c := st.Clone()
	require.True(t, st.Equal(c))

	c.Markets[1].Substrates[domain.SubstrateFromAsset("DAI")] = struct{}{}
	c.Markets[1].Dependencies[0] = 9
	c.Route[0].Params[0] = 42
	c.Cache[1] = d("1")
	c.Shares["bob"] = d("1")

	assert.Len(t, st.Markets[1].Substrates, 1)
	assert.Equal(t, domain.MarketID(2), st.Markets[1].Dependencies[0])
	assert.Equal(t, byte(1), st.Route[0].Params[0])
	assert.True(t, d("250").Equal(st.Cache[1]))
	assert.False(t, st.Equal(c))
}

func TestMarketIDs_Sorted(t *testing.T) {
	st := New("USDC")
	for _, id := range []domain.MarketID{7, 3, 5} {
		st.Markets[id] = &Market{ID: id, Substrates: map[domain.Substrate]struct{}{}}
	}
	assert.Equal(t, []domain.MarketID{3, 5, 7}, st.MarketIDs())
}

func TestDebitIdle(t *testing.T) {
	st := New("USDC")
	st.CreditIdle(d("10"))
	require.NoError(t, st.DebitIdle(d("4")))
	assert.True(t, d("6").Equal(st.Idle))

	err := st.DebitIdle(d("7"))
	assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)
	assert.True(t, d("6").Equal(st.Idle))
}

func TestUnit_WorksOnCopy(t *testing.T) {
	base := sampleState()
	u := NewUnit(context.Background(), domain.OpDeposit, "alice", base, time.Unix(100, 0))

	u.State().CreditIdle(d("5"))
	u.Mint("bob", d("5"), "deposit")

	assert.True(t, d("100").Equal(base.Idle))
	assert.True(t, d("400").Equal(base.TotalSupply))
	assert.True(t, d("405").Equal(u.State().TotalSupply))
	assert.NotEqual(t, [16]byte{}, [16]byte(u.ID()))
}

func TestUnit_MintBurnRecordsSupplyChanges(t *testing.T) {
	u := NewUnit(context.Background(), domain.OpRedeem, "alice", sampleState(), time.Unix(100, 0))

	u.Mint("fees", d("2"), "performance_fee")
	require.NoError(t, u.Burn("alice", d("400"), "redeem"))

	changes := u.SupplyChanges()
	require.Len(t, changes, 2)
	assert.True(t, d("2").Equal(changes[0].Delta))
	assert.True(t, d("402").Equal(changes[0].TotalSupply))
	assert.True(t, d("-400").Equal(changes[1].Delta))
	assert.True(t, d("2").Equal(changes[1].TotalSupply))
	_, held := u.State().Shares["alice"]
	assert.False(t, held)
}

func TestUnit_BurnMoreThanHeld(t *testing.T) {
	u := NewUnit(context.Background(), domain.OpRedeem, "alice", sampleState(), time.Unix(100, 0))
	err := u.Burn("alice", d("401"), "redeem")
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)
	assert.Empty(t, u.SupplyChanges())
}

func TestUnit_TouchDedupesAndKeepsOrder(t *testing.T) {
	u := NewUnit(context.Background(), domain.OpExecute, "op", sampleState(), time.Now())
	u.Touch(2)
	u.Touch(1)
	u.Touch(2)
	u.Touch(0)
	assert.Equal(t, []domain.MarketID{2, 1}, u.Touched())
}

func TestUnit_RollbackRunsCompensationsInReverse(t *testing.T) {
	u := NewUnit(context.Background(), domain.OpExecute, "op", sampleState(), time.Now())

	var order []int
	u.OnRollback(func() { order = append(order, 1) })
	u.OnRollback(func() { panic("broken") })
	u.OnRollback(func() { order = append(order, 3) })

	failures := u.Rollback()
	assert.Equal(t, 1, failures)
	assert.Equal(t, []int{3, 1}, order)
	assert.Nil(t, u.State())
}
