// Package supply implements an adapter for lending-pool style venues: idle
// assets are supplied to the venue and withdrawn back, and the position is
// valued through the price converter.
package supply

import (
	"fmt"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/state"
	"github.com/aristath/sentinel-vault/pkg/formulas"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// Venue is the external market the adapter moves assets into and out of
type Venue interface {
	Asset() domain.AssetID
	Supply(account domain.Account, amount decimal.Decimal) error
	Withdraw(account domain.Account, amount decimal.Decimal) (decimal.Decimal, error)
	BalanceOf(account domain.Account) decimal.Decimal
}

// Checkpointer is implemented by venues that can snapshot and restore
// themselves. Other venues are compensated with the inverse call.
type Checkpointer interface {
	Checkpoint() func()
}

// Config identifies the adapter and the vault's account at the venue
type Config struct {
	ID           domain.AdapterID
	Market       domain.MarketID
	VaultAccount domain.Account
}

// Adapter implements Enterer, Exiter, BalanceReporter and InstantWithdrawer
type Adapter struct {
	cfg       Config
	venue     Venue
	converter domain.PriceConverter
	log       zerolog.Logger
}

// New creates a supply adapter
func New(cfg Config, venue Venue, converter domain.PriceConverter, log zerolog.Logger) *Adapter {
	return &Adapter{
		cfg:       cfg,
		venue:     venue,
		converter: converter,
		log: log.With().
			Str("component", "supply_adapter").
			Str("adapter", string(cfg.ID)).
			Stringer("market", cfg.Market).
			Logger(),
	}
}

// ID returns the adapter id
func (a *Adapter) ID() domain.AdapterID { return a.cfg.ID }

// MarketID returns the market the adapter is built for
func (a *Adapter) MarketID() domain.MarketID { return a.cfg.Market }

// Enter supplies idle assets to the venue
func (a *Adapter) Enter(u *state.Unit, data []byte) error {
	var in EnterInstruction
	if err := msgpack.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to decode enter instruction: %w", err)
	}
	amount, err := decodeAmount(in.Amount)
	if err != nil {
		return err
	}
	if !amount.IsPositive() {
		return domain.ErrZeroAmount
	}

	st := u.State()
	if err := a.checkAsset(st); err != nil {
		return err
	}
	market, ok := st.Markets[a.cfg.Market]
	if !ok {
		return fmt.Errorf("market %s: %w", a.cfg.Market, domain.ErrUnknownMarket)
	}
	if sub := domain.SubstrateFromAsset(a.venue.Asset()); !market.HasSubstrate(sub) {
		return fmt.Errorf("asset %s (%s) on market %s: %w", a.venue.Asset(), sub, a.cfg.Market, domain.ErrSubstrateNotFound)
	}
	if err := st.DebitIdle(amount); err != nil {
		return err
	}

	restore := a.checkpoint()
	if err := a.venue.Supply(a.cfg.VaultAccount, amount); err != nil {
		return fmt.Errorf("venue supply failed: %w", err)
	}
	u.OnRollback(a.compensation(restore, func() {
		if _, err := a.venue.Withdraw(a.cfg.VaultAccount, amount); err != nil {
			a.compensationFailed("withdraw", amount, err)
		}
	}))

	u.Touch(a.cfg.Market)
	a.log.Debug().Str("amount", amount.String()).Msg("Entered market")
	return a.updateCache(u)
}

// Exit withdraws from the venue back to idle
func (a *Adapter) Exit(u *state.Unit, data []byte) error {
	var in ExitInstruction
	if err := msgpack.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to decode exit instruction: %w", err)
	}
	if err := a.checkAsset(u.State()); err != nil {
		return err
	}

	var amount decimal.Decimal
	if in.All {
		amount = a.venue.BalanceOf(a.cfg.VaultAccount)
		if amount.IsZero() {
			u.Touch(a.cfg.Market)
			return a.updateCache(u)
		}
	} else {
		var err error
		if amount, err = decodeAmount(in.Amount); err != nil {
			return err
		}
		if !amount.IsPositive() {
			return domain.ErrZeroAmount
		}
	}

	withdrawn, err := a.withdraw(u, amount)
	if err != nil {
		return err
	}
	if !in.All && withdrawn.LessThan(amount) {
		return fmt.Errorf("venue released %s of %s: %w", withdrawn, amount, domain.ErrInsufficientLiquidity)
	}

	a.log.Debug().Str("amount", withdrawn.String()).Msg("Exited market")
	return a.updateCache(u)
}

// InstantWithdraw frees up to amount for the withdrawal route, bounded by the
// route step's MaxAmount. Freeing less than asked is not an error.
func (a *Adapter) InstantWithdraw(u *state.Unit, amount decimal.Decimal, params []byte) error {
	if err := a.checkAsset(u.State()); err != nil {
		return err
	}
	if len(params) > 0 {
		var p RouteParams
		if err := msgpack.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("failed to decode route params: %w", err)
		}
		if p.MaxAmount != "" {
			max, err := decodeAmount(p.MaxAmount)
			if err != nil {
				return err
			}
			amount = formulas.Min(amount, max)
		}
	}
	if !amount.IsPositive() {
		return nil
	}

	withdrawn, err := a.withdraw(u, amount)
	if err != nil {
		return err
	}

	a.log.Debug().
		Str("requested", amount.String()).
		Str("withdrawn", withdrawn.String()).
		Msg("Instant withdrawal")
	return a.updateCache(u)
}

// ReportBalance values the vault's venue position in the unit of account
func (a *Adapter) ReportBalance(u *state.Unit) (decimal.Decimal, error) {
	position := a.venue.BalanceOf(a.cfg.VaultAccount)
	value, err := a.converter.Convert(a.venue.Asset(), position)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to value %s position: %w", a.venue.Asset(), err)
	}
	return value, nil
}

func (a *Adapter) withdraw(u *state.Unit, amount decimal.Decimal) (decimal.Decimal, error) {
	restore := a.checkpoint()
	withdrawn, err := a.venue.Withdraw(a.cfg.VaultAccount, amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("venue withdraw failed: %w", err)
	}
	u.Touch(a.cfg.Market)
	if withdrawn.IsZero() {
		return withdrawn, nil
	}

	u.OnRollback(a.compensation(restore, func() {
		if err := a.venue.Supply(a.cfg.VaultAccount, withdrawn); err != nil {
			a.compensationFailed("supply", withdrawn, err)
		}
	}))
	u.State().CreditIdle(withdrawn)
	return withdrawn, nil
}

// updateCache writes the market's valuation as a side effect of moving funds
func (a *Adapter) updateCache(u *state.Unit) error {
	value, err := a.ReportBalance(u)
	if err != nil {
		return err
	}
	u.State().Cache[a.cfg.Market] = value
	return nil
}

func (a *Adapter) checkAsset(st *state.State) error {
	if a.venue.Asset() != st.Asset {
		return fmt.Errorf("venue asset %s differs from vault asset %s: %w", a.venue.Asset(), st.Asset, domain.ErrInvalidConfig)
	}
	return nil
}

func (a *Adapter) checkpoint() func() {
	if cp, ok := a.venue.(Checkpointer); ok {
		return cp.Checkpoint()
	}
	return nil
}

// compensationFailed reports an inverse call the venue refused. It panics so
// the unit counts the failed compensation.
func (a *Adapter) compensationFailed(call string, amount decimal.Decimal, err error) {
	a.log.Error().Err(err).
		Str("call", call).
		Str("amount", amount.String()).
		Msg("Venue compensation failed, custody and idle balance diverge")
	panic(fmt.Sprintf("supply adapter %s: compensating %s of %s failed: %v", a.cfg.ID, call, amount, err))
}

func (a *Adapter) compensation(restore, inverse func()) func() {
	if restore != nil {
		return restore
	}
	return inverse
}
