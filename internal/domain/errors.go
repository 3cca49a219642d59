package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Configuration errors: fatal to the enclosing unit, never retried.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrEmptyBatch        = errors.New("execution batch is empty")
	ErrUnknownAdapter    = errors.New("unknown adapter")
	ErrAdapterNotBound   = errors.New("adapter not bound to market")
	ErrUnknownMarket     = errors.New("unknown market")
	ErrMarketExists      = errors.New("market already configured")
	ErrNoBalanceAdapter  = errors.New("market has no balance-reporting adapter")
	ErrCapabilityMissing = errors.New("adapter does not support the requested action")
	ErrSubstrateNotFound = errors.New("substrate not granted to market")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

// Limit, liquidity and accounting errors.
var (
	ErrLimitViolation        = errors.New("exposure limit exceeded")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInsufficientShares    = errors.New("insufficient shares")
	ErrSupplyCapExceeded     = errors.New("total supply cap exceeded")
	ErrZeroAmount            = errors.New("amount must be positive")
	ErrNoAssets              = errors.New("vault has shares outstanding but no assets")
	ErrAdapterFailed         = errors.New("adapter execution failed")
	ErrNoPrice               = errors.New("no conversion rate for asset")
)

// UnauthorizedError is returned when the authorization layer rejects a caller.
type UnauthorizedError struct {
	Caller    Account
	Operation Operation
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: caller %q may not %s", e.Caller, e.Operation)
}

// Unwrap returns ErrUnauthorized
func (e *UnauthorizedError) Unwrap() error {
	return ErrUnauthorized
}

// AdapterBindingError is returned when an adapter is not bound to the market it claims.
type AdapterBindingError struct {
	Adapter AdapterID
	Market  MarketID
	Reason  error // ErrUnknownAdapter or ErrAdapterNotBound
}

func (e *AdapterBindingError) Error() string {
	return fmt.Sprintf("adapter %q for market %s: %v", e.Adapter, e.Market, e.Reason)
}

// Unwrap returns the categorical reason
func (e *AdapterBindingError) Unwrap() error {
	return e.Reason
}

// LimitViolationError identifies the market, the observed share of total
// assets and the configured cap, both as fractions (0.60, 0.50).
type LimitViolationError struct {
	Market   MarketID
	Observed decimal.Decimal
	Cap      decimal.Decimal
}

func (e *LimitViolationError) Error() string {
	return fmt.Sprintf("exposure limit exceeded for market %s: observed %s, cap %s",
		e.Market, e.Observed.String(), e.Cap.String())
}

// Unwrap returns ErrLimitViolation
func (e *LimitViolationError) Unwrap() error {
	return ErrLimitViolation
}

// LiquidityShortfallError is returned when the withdrawal route is exhausted
// before idle balance covers the request.
type LiquidityShortfallError struct {
	Requested decimal.Decimal // Shortfall the route was asked to raise
	Available decimal.Decimal // What the route actually freed
}

func (e *LiquidityShortfallError) Error() string {
	return fmt.Sprintf("insufficient liquidity: needed %s, raised %s",
		e.Requested.String(), e.Available.String())
}

// Unwrap returns ErrInsufficientLiquidity
func (e *LiquidityShortfallError) Unwrap() error {
	return ErrInsufficientLiquidity
}

// AdapterError wraps a failure raised inside an adapter invocation.
// Index is the position of the instruction in its batch or route.
type AdapterError struct {
	Index   int
	Adapter AdapterID
	Market  MarketID
	Err     error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %q (market %s, step %d): %v", e.Adapter, e.Market, e.Index, e.Err)
}

// Unwrap exposes the adapter's own error.
func (e *AdapterError) Unwrap() error {
	return e.Err
}

// Is matches ErrAdapterFailed in addition to the wrapped error
func (e *AdapterError) Is(target error) bool {
	return target == ErrAdapterFailed
}
