// Package venue provides an in-memory lending pool used as the external
// market behind the supply adapter in development mode and tests.
package venue

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/pkg/formulas"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrPaused is returned by every mutating call while the pool is paused
var ErrPaused = errors.New("venue is paused")

// Pool is a single-asset lending pool. Deposits earn yield through Accrue.
// Withdrawals are limited by the pool's available liquidity.
type Pool struct {
	mu        sync.Mutex
	name      string
	asset     domain.AssetID
	deposits  map[domain.Account]decimal.Decimal
	liquidity *decimal.Decimal // nil means unlimited
	paused    bool
	log       zerolog.Logger
}

// NewPool creates an empty pool for asset
func NewPool(name string, asset domain.AssetID, log zerolog.Logger) *Pool {
	return &Pool{
		name:     name,
		asset:    asset,
		deposits: make(map[domain.Account]decimal.Decimal),
		log:      log.With().Str("component", "venue").Str("venue", name).Logger(),
	}
}

// Name returns the pool name
func (p *Pool) Name() string {
	return p.name
}

// Asset returns the pool's asset
func (p *Pool) Asset() domain.AssetID {
	return p.asset
}

// Supply deposits amount for account
func (p *Pool) Supply(account domain.Account, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.ErrZeroAmount
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.paused {
		return ErrPaused
	}
	p.deposits[account] = p.balance(account).Add(amount)
	if p.liquidity != nil {
		l := p.liquidity.Add(amount)
		p.liquidity = &l
	}

	p.log.Debug().Str("account", string(account)).Str("amount", amount.String()).Msg("Supplied")
	return nil
}

// Withdraw takes up to amount from account's position and returns what was
// actually withdrawn, bounded by the position and the pool's liquidity.
func (p *Pool) Withdraw(account domain.Account, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, domain.ErrZeroAmount
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.paused {
		return decimal.Zero, ErrPaused
	}

	out := formulas.Min(amount, p.balance(account))
	if p.liquidity != nil {
		out = formulas.Min(out, *p.liquidity)
		l := p.liquidity.Sub(out)
		p.liquidity = &l
	}
	if out.IsZero() {
		return decimal.Zero, nil
	}

	remaining := p.balance(account).Sub(out)
	if remaining.IsZero() {
		delete(p.deposits, account)
	} else {
		p.deposits[account] = remaining
	}

	p.log.Debug().Str("account", string(account)).Str("amount", out.String()).Msg("Withdrawn")
	return out, nil
}

// BalanceOf returns account's position including accrued yield
func (p *Pool) BalanceOf(account domain.Account) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance(account)
}

func (p *Pool) balance(account domain.Account) decimal.Decimal {
	if v, ok := p.deposits[account]; ok {
		return v
	}
	return decimal.Zero
}

// Accrue grows every position by rateBps basis points. Negative rates model losses.
func (p *Pool) Accrue(rateBps int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	factor := decimal.NewFromInt(formulas.BasisPoints + rateBps)
	base := decimal.NewFromInt(formulas.BasisPoints)
	for account, v := range p.deposits {
		p.deposits[account] = formulas.MustMulDiv(v, factor, base, formulas.Down)
	}
}

// SetPosition overwrites account's position. Used to model external gains or losses.
func (p *Pool) SetPosition(account domain.Account, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("negative position %s", amount)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if amount.IsZero() {
		delete(p.deposits, account)
		return nil
	}
	p.deposits[account] = amount
	return nil
}

// LimitLiquidity caps what can be withdrawn until more is supplied.
// A nil limit removes the cap.
func (p *Pool) LimitLiquidity(limit *decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if limit == nil {
		p.liquidity = nil
		return
	}
	l := *limit
	p.liquidity = &l
}

// SetPaused pauses or resumes the pool
func (p *Pool) SetPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = paused
}

// Checkpoint snapshots the pool and returns a function restoring it
func (p *Pool) Checkpoint() func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	deposits := make(map[domain.Account]decimal.Decimal, len(p.deposits))
	for k, v := range p.deposits {
		deposits[k] = v
	}
	var liquidity *decimal.Decimal
	if p.liquidity != nil {
		l := *p.liquidity
		liquidity = &l
	}

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.deposits = deposits
		p.liquidity = liquidity
		p.log.Debug().Msg("Restored checkpoint")
	}
}
