// Package domain provides the core identifiers and value types of the vault.
package domain

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// MarketID identifies an external yield-bearing market. Zero is the sentinel
// value and never names a configured market.
type MarketID uint64

// IsZero reports whether the id is the sentinel value.
func (id MarketID) IsZero() bool {
	return id == 0
}

// String returns the decimal form of the id
func (id MarketID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseMarketID parses a decimal market id.
func ParseMarketID(s string) (MarketID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid market id %q: %w", s, err)
	}
	return MarketID(v), nil
}

// Substrate is an opaque 32-byte identifier of an asset or sub-pool a market may touch.
type Substrate [32]byte

// SubstrateFromAsset derives the substrate of an asset. The asset identifier is
// right-aligned in the 32 bytes, truncated on the left when longer.
func SubstrateFromAsset(asset AssetID) Substrate {
	var s Substrate
	b := []byte(asset)
	if len(b) > len(s) {
		b = b[len(b)-len(s):]
	}
	copy(s[len(s)-len(b):], b)
	return s
}

// String returns the 0x-prefixed hex form
func (s Substrate) String() string {
	return "0x" + hex.EncodeToString(s[:])
}

// ParseSubstrate parses the 0x-prefixed hex form produced by String.
func ParseSubstrate(s string) (Substrate, error) {
	var out Substrate
	if len(s) >= 2 && s[:2] == "0x" {
		s = s[2:]
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("invalid substrate %q: %w", s, err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("invalid substrate length %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// AdapterID names an adapter plugin.
type AdapterID string

// AssetID names an asset (the vault underlying or a market asset).
type AssetID string

// Account is the identity of a caller, share holder or fee recipient.
type Account string

// Operation names a unit of work for the authorization layer.
type Operation string

const (
	OpExecute   Operation = "execute"
	OpRefresh   Operation = "refresh_balances"
	OpDeposit   Operation = "deposit"
	OpMint      Operation = "mint"
	OpWithdraw  Operation = "withdraw"
	OpRedeem    Operation = "redeem"
	OpConfigure Operation = "configure"
)

// SupplyChange describes one mint or burn of accounting-token units.
type SupplyChange struct {
	Account     Account         `json:"account"`
	Delta       decimal.Decimal `json:"delta"` // Positive on mint, negative on burn
	TotalSupply decimal.Decimal `json:"total_supply"`
	Reason      string          `json:"reason"`
	At          time.Time       `json:"at"`
}

// MarketValuation is a read model of one balance cache entry.
type MarketValuation struct {
	MarketID  MarketID        `json:"market_id"`
	Valuation decimal.Decimal `json:"valuation"`
	Share     decimal.Decimal `json:"share"` // Fraction of total assets
	CapBps    *int64          `json:"cap_bps,omitempty"`
}

// VaultSummary is a read model of the committed vault state.
type VaultSummary struct {
	Asset         AssetID           `json:"asset"`
	TotalAssets   decimal.Decimal   `json:"total_assets"`
	IdleBalance   decimal.Decimal   `json:"idle_balance"`
	TotalSupply   decimal.Decimal   `json:"total_supply"`
	SupplyCap     decimal.Decimal   `json:"supply_cap"`
	SharePrice    decimal.Decimal   `json:"share_price"`
	HighWaterMark decimal.Decimal   `json:"high_water_mark"`
	LastAccrual   time.Time         `json:"last_accrual"`
	LimitsActive  bool              `json:"limits_active"`
	Markets       []MarketValuation `json:"markets"`
}
