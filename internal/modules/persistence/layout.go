// Package persistence stores the vault's durable accounting state in SQLite.
package persistence

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/aristath/sentinel-vault/internal/domain"
)

// Logical table names. Physical names come from a Layout.
const (
	TableSettings           = "settings"
	TableMarkets            = "markets"
	TableMarketSubstrates   = "market_substrates"
	TableAdapterBindings    = "adapter_bindings"
	TableBalanceAdapters    = "balance_adapters"
	TableMarketDependencies = "market_dependencies"
	TableBalanceCache       = "balance_cache"
	TableFeeState           = "fee_state"
	TableExposureLimits     = "exposure_limits"
	TableWithdrawalRoute    = "withdrawal_route"
	TableShareBalances      = "share_balances"
	TableUnitJournal        = "unit_journal"
)

// LogicalTables lists every table the vault persists
var LogicalTables = []string{
	TableSettings,
	TableMarkets,
	TableMarketSubstrates,
	TableAdapterBindings,
	TableBalanceAdapters,
	TableMarketDependencies,
	TableBalanceCache,
	TableFeeState,
	TableExposureLimits,
	TableWithdrawalRoute,
	TableShareBalances,
	TableUnitJournal,
}

// DefaultPrefix is prepended to logical names without an override
const DefaultPrefix = "vault_"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Layout maps logical table names to physical ones. A table's physical name
// is Prefix+logical unless Overrides names it explicitly, so a fixed legacy
// name and a derived name can coexist.
type Layout struct {
	Prefix    string
	Overrides map[string]string
}

// DefaultLayout uses DefaultPrefix and no overrides
func DefaultLayout() Layout {
	return Layout{Prefix: DefaultPrefix}
}

// Table returns the physical name of a logical table
func (l Layout) Table(logical string) string {
	if physical, ok := l.Overrides[logical]; ok {
		return physical
	}
	return l.Prefix + logical
}

// Validate checks that every physical name is a plain identifier, overrides
// only name known tables and no two tables collide.
func (l Layout) Validate() error {
	known := make(map[string]struct{}, len(LogicalTables))
	for _, t := range LogicalTables {
		known[t] = struct{}{}
	}
	for logical := range l.Overrides {
		if _, ok := known[logical]; !ok {
			return fmt.Errorf("override for unknown table %q: %w", logical, domain.ErrInvalidConfig)
		}
	}

	seen := make(map[string]string, len(LogicalTables))
	for _, logical := range LogicalTables {
		physical := l.Table(logical)
		if !identifier.MatchString(physical) {
			return fmt.Errorf("invalid table name %q for %s: %w", physical, logical, domain.ErrInvalidConfig)
		}
		key := strings.ToLower(physical)
		if other, dup := seen[key]; dup {
			return fmt.Errorf("tables %s and %s both map to %q: %w", other, logical, physical, domain.ErrInvalidConfig)
		}
		seen[key] = logical
	}
	return nil
}

// ParseOverrides parses "logical=physical,logical=physical"
func ParseOverrides(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		logical, physical, ok := strings.Cut(pair, "=")
		logical, physical = strings.TrimSpace(logical), strings.TrimSpace(physical)
		if !ok || logical == "" || physical == "" {
			return nil, fmt.Errorf("malformed table override %q: %w", pair, domain.ErrInvalidConfig)
		}
		out[logical] = physical
	}
	return out, nil
}

// String renders the layout as logical=physical pairs
func (l Layout) String() string {
	pairs := make([]string, 0, len(LogicalTables))
	for _, t := range LogicalTables {
		pairs = append(pairs, t+"="+l.Table(t))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}
