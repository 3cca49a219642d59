package vault

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/events"
	"github.com/aristath/sentinel-vault/internal/modules/access"
	"github.com/aristath/sentinel-vault/internal/modules/adapters"
	"github.com/aristath/sentinel-vault/internal/modules/adapters/supply"
	"github.com/aristath/sentinel-vault/internal/modules/adapters/venue"
	"github.com/aristath/sentinel-vault/internal/modules/balances"
	"github.com/aristath/sentinel-vault/internal/modules/dispatch"
	"github.com/aristath/sentinel-vault/internal/modules/fees"
	"github.com/aristath/sentinel-vault/internal/modules/limits"
	"github.com/aristath/sentinel-vault/internal/modules/persistence"
	"github.com/aristath/sentinel-vault/internal/modules/pricing"
	"github.com/aristath/sentinel-vault/internal/modules/registry"
	"github.com/aristath/sentinel-vault/internal/modules/withdrawal"
	"github.com/aristath/sentinel-vault/internal/state"
	testingpkg "github.com/aristath/sentinel-vault/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	operator domain.Account = "operator"
	alice    domain.Account = "alice"
	treasury domain.Account = "treasury"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s", want, got)
}

type fixture struct {
	vault  *Vault
	pools  map[domain.MarketID]*venue.Pool
	faulty *testingpkg.FaultyAdapter
	clock  *testingpkg.Clock
	sink   *testingpkg.RecordingSupplySink
	events *events.Manager
	ctx    context.Context
}

type options struct {
	auth  domain.Authorizer
	store Store
}

func newFixture(t *testing.T, opts options) *fixture {
	t.Helper()
	log := zerolog.Nop()
	if opts.auth == nil {
		opts.auth = testingpkg.AllowAll()
	}

	converter := pricing.NewStaticConverter("USDC", log)
	pools := map[domain.MarketID]*venue.Pool{
		1: venue.NewPool("alpha", "USDC", log),
		2: venue.NewPool("beta", "USDC", log),
	}
	faulty := &testingpkg.FaultyAdapter{AdapterID: "faulty-3", Market: 3, Fail: true}
	catalog, err := adapters.NewCatalog(
		supply.New(supply.Config{ID: "supply-1", Market: 1, VaultAccount: "vault"}, pools[1], converter, log),
		supply.New(supply.Config{ID: "supply-2", Market: 2, VaultAccount: "vault"}, pools[2], converter, log),
		faulty,
	)
	require.NoError(t, err)

	reg := registry.New(catalog, log)
	cache := balances.New(reg, log)
	guard := limits.New(log)
	clock := testingpkg.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	sink := &testingpkg.RecordingSupplySink{}
	manager := events.NewManager(events.NewBus(log), log)

	v := New(state.New("USDC"), Deps{
		Registry:   reg,
		Cache:      cache,
		Fees:       fees.New(log),
		Guard:      guard,
		Dispatcher: dispatch.New(reg, cache, guard, opts.auth, log),
		Router:     withdrawal.New(reg, cache, opts.auth, log),
		Authorizer: opts.auth,
		Sink:       sink,
		Store:      opts.store,
		Events:     manager,
		Clock:      clock.Now,
	}, log)

	f := &fixture{vault: v, pools: pools, faulty: faulty, clock: clock, sink: sink, events: manager, ctx: context.Background()}

	usdc := []domain.Substrate{domain.SubstrateFromAsset("USDC")}
	for _, b := range []struct {
		market  domain.MarketID
		adapter domain.AdapterID
	}{{1, "supply-1"}, {2, "supply-2"}, {3, "faulty-3"}} {
		require.NoError(t, v.AddMarket(f.ctx, operator, b.market, usdc))
		require.NoError(t, v.RegisterAdapter(f.ctx, operator, b.market, b.adapter))
		require.NoError(t, v.SetBalanceAdapter(f.ctx, operator, b.market, b.adapter))
	}
	return f
}

func (f *fixture) enter(t *testing.T, adapter domain.AdapterID, market domain.MarketID, amount string) dispatch.Instruction {
	t.Helper()
	data, err := supply.EncodeEnter(d(amount))
	require.NoError(t, err)
	return dispatch.Instruction{Adapter: adapter, Market: market, Action: dispatch.ActionEnter, Data: data}
}

func TestDepositAndRedeem(t *testing.T) {
	f := newFixture(t, options{})

	shares, err := f.vault.Deposit(f.ctx, alice, d("1000"), alice)
	require.NoError(t, err)
	assertDecimal(t, "1000", shares)
	assertDecimal(t, "1000", f.vault.TotalAssets())
	assertDecimal(t, "1000", f.vault.IdleBalance())
	assertDecimal(t, "1000", f.vault.BalanceOf(alice))

	assets, err := f.vault.Redeem(f.ctx, alice, d("400"), alice)
	require.NoError(t, err)
	assertDecimal(t, "400", assets)
	assertDecimal(t, "600", f.vault.TotalSupply())
	assertDecimal(t, "600", f.vault.IdleBalance())

	changes := f.sink.Changes()
	require.Len(t, changes, 2)
	assertDecimal(t, "1000", changes[0].Delta)
	assert.Equal(t, ReasonDeposit, changes[0].Reason)
	assertDecimal(t, "-400", changes[1].Delta)
	assertDecimal(t, "600", changes[1].TotalSupply)
}

func TestZeroAmounts(t *testing.T) {
	f := newFixture(t, options{})

	_, err := f.vault.Deposit(f.ctx, alice, decimal.Zero, alice)
	assert.ErrorIs(t, err, domain.ErrZeroAmount)
	_, err = f.vault.Redeem(f.ctx, alice, decimal.Zero, alice)
	assert.ErrorIs(t, err, domain.ErrZeroAmount)
}

func TestConversionsRoundInFavourOfTheVault(t *testing.T) {
	f := newFixture(t, options{})

	_, err := f.vault.Deposit(f.ctx, alice, d("100"), alice)
	require.NoError(t, err)
	_, err = f.vault.Execute(f.ctx, operator, []dispatch.Instruction{f.enter(t, "supply-1", 1, "100")})
	require.NoError(t, err)
	require.NoError(t, f.pools[1].SetPosition("vault", d("300")))
	_, err = f.vault.RefreshBalances(f.ctx, operator, nil)
	require.NoError(t, err)
	assertDecimal(t, "300", f.vault.TotalAssets())

	down, err := f.vault.ConvertToShares(d("100"))
	require.NoError(t, err)
	assertDecimal(t, "33.333333333333333333", down)

	up, err := f.vault.PreviewWithdraw(d("100"))
	require.NoError(t, err)
	assertDecimal(t, "33.333333333333333334", up)

	deposit, err := f.vault.PreviewDeposit(d("100"))
	require.NoError(t, err)
	assertDecimal(t, "33.333333333333333333", deposit)

	redeem, err := f.vault.PreviewRedeem(d("10"))
	require.NoError(t, err)
	assertDecimal(t, "30", redeem)

	max, err := f.vault.MaxWithdraw(alice)
	require.NoError(t, err)
	assertDecimal(t, "300", max)

	assets, err := f.vault.Mint(f.ctx, alice, d("1"), alice)
	require.NoError(t, err)
	assertDecimal(t, "3", assets)
}

func TestSupplyCap(t *testing.T) {
	f := newFixture(t, options{})
	require.NoError(t, f.vault.SetSupplyCap(f.ctx, operator, d("150")))

	_, err := f.vault.Deposit(f.ctx, alice, d("100"), alice)
	require.NoError(t, err)

	_, err = f.vault.Deposit(f.ctx, alice, d("60"), alice)
	assert.ErrorIs(t, err, domain.ErrSupplyCapExceeded)
	assertDecimal(t, "100", f.vault.TotalSupply())

	_, err = f.vault.Mint(f.ctx, alice, d("50"), alice)
	assert.NoError(t, err)
}

func TestExecute_CommitsAllocation(t *testing.T) {
	f := newFixture(t, options{})
	_, err := f.vault.Deposit(f.ctx, alice, d("1000"), alice)
	require.NoError(t, err)

	report, err := f.vault.Execute(f.ctx, operator, []dispatch.Instruction{
		f.enter(t, "supply-1", 1, "300"),
		f.enter(t, "supply-2", 2, "200"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Instructions)

	assertDecimal(t, "500", f.vault.IdleBalance())
	v1, err := f.vault.ValuationOf(1)
	require.NoError(t, err)
	assertDecimal(t, "300", v1)
	assertDecimal(t, "1000", f.vault.TotalAssets())
	assertDecimal(t, "300", f.pools[1].BalanceOf("vault"))
}

func TestExecute_UnregisteredAdapterChangesNothing(t *testing.T) {
	f := newFixture(t, options{})
	_, err := f.vault.Deposit(f.ctx, alice, d("1000"), alice)
	require.NoError(t, err)
	before := f.vault.Snapshot()

	_, err = f.vault.Execute(f.ctx, operator, []dispatch.Instruction{f.enter(t, "supply-2", 1, "100")})
	assert.ErrorIs(t, err, domain.ErrAdapterNotBound)
	assert.True(t, before.Equal(f.vault.Snapshot()))
	assert.True(t, f.pools[1].BalanceOf("vault").IsZero())
	assert.True(t, f.pools[2].BalanceOf("vault").IsZero())
}

func TestExecute_FailingInstructionRollsBackEarlierOnes(t *testing.T) {
	f := newFixture(t, options{})
	_, err := f.vault.Deposit(f.ctx, alice, d("1000"), alice)
	require.NoError(t, err)
	before := f.vault.Snapshot()

	var rolledBack []events.Event
	f.events.Bus().Subscribe(events.UnitRolledBack, func(e events.Event) {
		rolledBack = append(rolledBack, e)
	})

	_, err = f.vault.Execute(f.ctx, operator, []dispatch.Instruction{
		f.enter(t, "supply-1", 1, "100"),
		f.enter(t, "supply-2", 2, "100"),
		{Adapter: "faulty-3", Market: 3, Action: dispatch.ActionEnter},
	})
	var adapterErr *domain.AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, 2, adapterErr.Index)
	assert.ErrorIs(t, err, testingpkg.ErrInjected)

	assert.True(t, before.Equal(f.vault.Snapshot()))
	assert.True(t, f.pools[1].BalanceOf("vault").IsZero())
	assert.True(t, f.pools[2].BalanceOf("vault").IsZero())
	require.Len(t, rolledBack, 1)
	assert.Equal(t, string(domain.OpExecute), rolledBack[0].Data["operation"])
	assert.Len(t, f.sink.Changes(), 1, "only the deposit reached the sink")
}

func TestExecute_AdapterPanicRollsBack(t *testing.T) {
	f := newFixture(t, options{})
	_, err := f.vault.Deposit(f.ctx, alice, d("1000"), alice)
	require.NoError(t, err)
	before := f.vault.Snapshot()
	f.faulty.Panic = true

	_, err = f.vault.Execute(f.ctx, operator, []dispatch.Instruction{
		f.enter(t, "supply-1", 1, "100"),
		{Adapter: "faulty-3", Market: 3, Action: dispatch.ActionEnter},
	})
	assert.ErrorIs(t, err, domain.ErrAdapterFailed)
	assert.True(t, before.Equal(f.vault.Snapshot()))
	assert.True(t, f.pools[1].BalanceOf("vault").IsZero())
}

func TestExecute_ExposureLimitRevertsBatch(t *testing.T) {
	f := newFixture(t, options{})
	capBps := int64(5000)
	require.NoError(t, f.vault.SetExposureLimit(f.ctx, operator, 1, &capBps))
	require.NoError(t, f.vault.ActivateLimits(f.ctx, operator, true))
	_, err := f.vault.Deposit(f.ctx, alice, d("1000"), alice)
	require.NoError(t, err)
	before := f.vault.Snapshot()

	_, err = f.vault.Execute(f.ctx, operator, []dispatch.Instruction{f.enter(t, "supply-1", 1, "600")})
	var limitErr *domain.LimitViolationError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, domain.MarketID(1), limitErr.Market)
	assertDecimal(t, "0.6", limitErr.Observed)
	assertDecimal(t, "0.5", limitErr.Cap)

	assert.True(t, before.Equal(f.vault.Snapshot()))
	assert.True(t, f.pools[1].BalanceOf("vault").IsZero())

	_, err = f.vault.Execute(f.ctx, operator, []dispatch.Instruction{f.enter(t, "supply-1", 1, "500")})
	assert.NoError(t, err)
}

func TestRefreshBalances_IsIdempotent(t *testing.T) {
	f := newFixture(t, options{})
	_, err := f.vault.Deposit(f.ctx, alice, d("1000"), alice)
	require.NoError(t, err)
	_, err = f.vault.Execute(f.ctx, operator, []dispatch.Instruction{f.enter(t, "supply-1", 1, "400")})
	require.NoError(t, err)
	f.pools[1].Accrue(500)

	first, err := f.vault.RefreshBalances(f.ctx, operator, nil)
	require.NoError(t, err)
	second, err := f.vault.RefreshBalances(f.ctx, operator, nil)
	require.NoError(t, err)

	assertDecimal(t, "1020", first)
	assert.True(t, first.Equal(second))
	st := f.vault.Snapshot()
	assert.True(t, st.TotalAssets().Equal(st.Idle.Add(st.Cache[1]).Add(st.Cache[2]).Add(st.Cache[3])))
}

func TestWithdraw_RaisesLiquidityThroughRoute(t *testing.T) {
	f := newFixture(t, options{})
	_, err := f.vault.Deposit(f.ctx, alice, d("45"), alice)
	require.NoError(t, err)
	_, err = f.vault.Execute(f.ctx, operator, []dispatch.Instruction{
		f.enter(t, "supply-1", 1, "15"),
		f.enter(t, "supply-2", 2, "20"),
	})
	require.NoError(t, err)
	require.NoError(t, f.vault.SetWithdrawalRoute(f.ctx, operator, []state.RouteEntry{
		{Adapter: "supply-1"},
		{Adapter: "supply-2"},
	}))
	assertDecimal(t, "10", f.vault.IdleBalance())

	shares, err := f.vault.Withdraw(f.ctx, alice, d("30"), alice)
	require.NoError(t, err)
	assertDecimal(t, "30", shares)

	assertDecimal(t, "0", f.vault.IdleBalance())
	assertDecimal(t, "15", f.vault.TotalAssets())
	assertDecimal(t, "15", f.vault.BalanceOf(alice))
	assert.True(t, f.pools[1].BalanceOf("vault").IsZero())
	assertDecimal(t, "15", f.pools[2].BalanceOf("vault"))
}

func TestWithdraw_ExhaustedRouteChangesNothing(t *testing.T) {
	f := newFixture(t, options{})
	_, err := f.vault.Deposit(f.ctx, alice, d("45"), alice)
	require.NoError(t, err)
	_, err = f.vault.Execute(f.ctx, operator, []dispatch.Instruction{
		f.enter(t, "supply-1", 1, "15"),
		f.enter(t, "supply-2", 2, "20"),
	})
	require.NoError(t, err)
	require.NoError(t, f.vault.SetWithdrawalRoute(f.ctx, operator, []state.RouteEntry{
		{Adapter: "supply-1"},
		{Adapter: "supply-2"},
	}))
	limit := d("2")
	f.pools[2].LimitLiquidity(&limit)
	before := f.vault.Snapshot()

	_, err = f.vault.Withdraw(f.ctx, alice, d("30"), alice)
	var shortfall *domain.LiquidityShortfallError
	require.ErrorAs(t, err, &shortfall)
	assertDecimal(t, "20", shortfall.Requested)
	assertDecimal(t, "17", shortfall.Available)

	assert.True(t, before.Equal(f.vault.Snapshot()))
	assertDecimal(t, "15", f.pools[1].BalanceOf("vault"))
	assertDecimal(t, "20", f.pools[2].BalanceOf("vault"))
}

func TestWithdraw_MoreThanOwned(t *testing.T) {
	f := newFixture(t, options{})
	_, err := f.vault.Deposit(f.ctx, alice, d("10"), alice)
	require.NoError(t, err)

	_, err = f.vault.Withdraw(f.ctx, "bob", d("5"), "bob")
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)
}

func TestPerformanceFee(t *testing.T) {
	f := newFixture(t, options{})
	require.NoError(t, f.vault.SetPerformanceFee(f.ctx, operator, 1000, treasury))

	var realized []events.Event
	f.events.Bus().Subscribe(events.FeesRealized, func(e events.Event) {
		realized = append(realized, e)
	})

	_, err := f.vault.Deposit(f.ctx, alice, d("1000"), alice)
	require.NoError(t, err)
	_, err = f.vault.Execute(f.ctx, operator, []dispatch.Instruction{f.enter(t, "supply-1", 1, "1000")})
	require.NoError(t, err)

	f.pools[1].Accrue(1000)
	f.clock.Advance(time.Hour)
	_, err = f.vault.RefreshBalances(f.ctx, operator, nil)
	require.NoError(t, err)
	assertDecimal(t, "1100", f.vault.TotalAssets())
	assert.True(t, f.vault.BalanceOf(treasury).IsZero(), "the gain is charged on the next unit")

	f.clock.Advance(time.Hour)
	_, err = f.vault.RefreshBalances(f.ctx, operator, nil)
	require.NoError(t, err)
	assertDecimal(t, "9.174311926605504587", f.vault.BalanceOf(treasury))
	require.Len(t, realized, 1)

	hwm := f.vault.FeeState().HighWaterMark
	assert.True(t, hwm.Sub(d("1.09")).Abs().LessThan(d("0.000000000000001")), "hwm %s", hwm)

	f.clock.Advance(time.Hour)
	_, err = f.vault.RefreshBalances(f.ctx, operator, nil)
	require.NoError(t, err)
	assertDecimal(t, "9.174311926605504587", f.vault.BalanceOf(treasury))

	require.NoError(t, f.pools[1].SetPosition("vault", d("900")))
	f.clock.Advance(time.Hour)
	_, err = f.vault.RefreshBalances(f.ctx, operator, nil)
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = f.vault.RefreshBalances(f.ctx, operator, nil)
	require.NoError(t, err)
	assert.True(t, hwm.Equal(f.vault.FeeState().HighWaterMark), "mark never moves down")
	assertDecimal(t, "9.174311926605504587", f.vault.BalanceOf(treasury))
}

func TestPerformanceFee_SharedAcrossDepositors(t *testing.T) {
	f := newFixture(t, options{})
	require.NoError(t, f.vault.SetPerformanceFee(f.ctx, operator, 1000, treasury))

	_, err := f.vault.Deposit(f.ctx, alice, d("500"), alice)
	require.NoError(t, err)
	_, err = f.vault.Deposit(f.ctx, "bob", d("500"), "bob")
	require.NoError(t, err)
	_, err = f.vault.Execute(f.ctx, operator, []dispatch.Instruction{f.enter(t, "supply-1", 1, "1000")})
	require.NoError(t, err)

	f.pools[1].Accrue(1000)
	f.clock.Advance(time.Hour)
	_, err = f.vault.RefreshBalances(f.ctx, operator, nil)
	require.NoError(t, err)

	assertWithin := func(want string, owner domain.Account) {
		t.Helper()
		got, err := f.vault.MaxWithdraw(owner)
		require.NoError(t, err)
		assert.True(t, got.Sub(d(want)).Abs().LessThan(d("0.000000000000001")), "%s: %s", owner, got)
		assert.True(t, got.LessThanOrEqual(d(want)), "%s rounds down: %s", owner, got)
	}

	// Pending fee is already reflected in the preview
	assertWithin("545", alice)
	assertWithin("545", "bob")
	assertWithin("10", treasury)

	f.clock.Advance(time.Hour)
	_, err = f.vault.RefreshBalances(f.ctx, operator, nil)
	require.NoError(t, err)
	assertWithin("545", alice)
	assertWithin("545", "bob")
	assertWithin("10", treasury)
	assertDecimal(t, "1100", f.vault.TotalAssets())
}

func TestSetPerformanceFee_RealizesUnderOldRateFirst(t *testing.T) {
	f := newFixture(t, options{})
	require.NoError(t, f.vault.SetPerformanceFee(f.ctx, operator, 1000, treasury))
	_, err := f.vault.Deposit(f.ctx, alice, d("1000"), alice)
	require.NoError(t, err)
	_, err = f.vault.Execute(f.ctx, operator, []dispatch.Instruction{f.enter(t, "supply-1", 1, "1000")})
	require.NoError(t, err)
	f.pools[1].Accrue(1000)
	f.clock.Advance(time.Hour)
	_, err = f.vault.RefreshBalances(f.ctx, operator, nil)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.vault.SetPerformanceFee(f.ctx, operator, 0, ""))
	assertDecimal(t, "9.174311926605504587", f.vault.BalanceOf(treasury))
	assert.Zero(t, f.vault.FeeState().PerformanceFeeBps)
}

func TestSetFee_Validation(t *testing.T) {
	f := newFixture(t, options{})
	assert.ErrorIs(t, f.vault.SetPerformanceFee(f.ctx, operator, 10001, treasury), domain.ErrInvalidConfig)
	assert.ErrorIs(t, f.vault.SetManagementFee(f.ctx, operator, 100, ""), domain.ErrInvalidConfig)
	assert.NoError(t, f.vault.SetManagementFee(f.ctx, operator, 100, treasury))
}

func TestAuthorization(t *testing.T) {
	table := access.NewTable(zerolog.Nop())
	table.GrantOperator(operator)
	f := newFixture(t, options{auth: table})

	_, err := f.vault.Deposit(f.ctx, "mallory", d("10"), "mallory")
	require.NoError(t, err, "deposits are public")

	_, err = f.vault.Execute(f.ctx, "mallory", []dispatch.Instruction{f.enter(t, "supply-1", 1, "5")})
	var authErr *domain.UnauthorizedError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, domain.OpExecute, authErr.Operation)

	assert.ErrorIs(t, f.vault.SetSupplyCap(f.ctx, "mallory", d("1")), domain.ErrUnauthorized)
	_, err = f.vault.RefreshBalances(f.ctx, "mallory", nil)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t, options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.vault.Deposit(ctx, alice, d("10"), alice)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, f.vault.TotalSupply().IsZero())
}

type failingStore struct{}

func (failingStore) Save(ctx context.Context, st *state.State, entry persistence.JournalEntry) error {
	return errors.New("disk full")
}

func TestStoreFailureRollsBack(t *testing.T) {
	f := newFixture(t, options{})
	before := f.vault.Snapshot()
	f.vault.store = failingStore{}

	_, err := f.vault.Deposit(f.ctx, alice, d("10"), alice)
	assert.EqualError(t, err, "disk full")
	assert.True(t, before.Equal(f.vault.Snapshot()))
	assert.Empty(t, f.sink.Changes())
}

func TestCommittedStateIsPersisted(t *testing.T) {
	db := testingpkg.NewTestDB(t, "vault")
	repo, err := persistence.NewStateRepository(db.Conn(), persistence.DefaultLayout(), zerolog.Nop())
	require.NoError(t, err)

	f := newFixture(t, options{store: repo})
	_, err = f.vault.Deposit(f.ctx, alice, d("1000"), alice)
	require.NoError(t, err)
	_, err = f.vault.Execute(f.ctx, operator, []dispatch.Instruction{f.enter(t, "supply-1", 1, "250")})
	require.NoError(t, err)

	loaded, found, err := repo.Load(f.ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, loaded.Equal(f.vault.Snapshot()))

	journal, err := repo.Journal(f.ctx, 2)
	require.NoError(t, err)
	require.Len(t, journal, 2)
	assert.Equal(t, domain.OpExecute, journal[0].Operation)
	assert.Equal(t, domain.OpDeposit, journal[1].Operation)
	assertDecimal(t, "1000", journal[0].TotalAssets)
}

func TestSummary(t *testing.T) {
	f := newFixture(t, options{})
	capBps := int64(8000)
	require.NoError(t, f.vault.SetExposureLimit(f.ctx, operator, 2, &capBps))
	_, err := f.vault.Deposit(f.ctx, alice, d("100"), alice)
	require.NoError(t, err)
	_, err = f.vault.Execute(f.ctx, operator, []dispatch.Instruction{f.enter(t, "supply-2", 2, "25")})
	require.NoError(t, err)

	s := f.vault.Summary()
	assert.Equal(t, domain.AssetID("USDC"), s.Asset)
	assertDecimal(t, "75", s.IdleBalance)
	assertDecimal(t, "1", s.SharePrice)
	require.Len(t, s.Markets, 3)
	assert.Equal(t, domain.MarketID(2), s.Markets[1].MarketID)
	assertDecimal(t, "0.25", s.Markets[1].Share)
	require.NotNil(t, s.Markets[1].CapBps)
	assert.Equal(t, int64(8000), *s.Markets[1].CapBps)

	_, err = f.vault.Market(9)
	assert.ErrorIs(t, err, domain.ErrUnknownMarket)
}
