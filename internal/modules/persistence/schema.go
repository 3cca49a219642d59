package persistence

import (
	"fmt"
	"strings"
)

// Schema returns idempotent DDL for every table of the layout.
// Amounts are stored as decimal TEXT so no precision is lost.
func Schema(l Layout) string {
	q := func(logical string) string { return quote(l.Table(logical)) }

	var b strings.Builder
	fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %s (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`, q(TableSettings))

	fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %s (
    market_id INTEGER PRIMARY KEY
);
`, q(TableMarkets))

	fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %s (
    market_id INTEGER NOT NULL,
    substrate TEXT NOT NULL,
    PRIMARY KEY (market_id, substrate)
);
`, q(TableMarketSubstrates))

	fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %s (
    adapter_id TEXT PRIMARY KEY,
    market_id INTEGER NOT NULL
);
`, q(TableAdapterBindings))

	fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %s (
    market_id INTEGER PRIMARY KEY,
    adapter_id TEXT NOT NULL
);
`, q(TableBalanceAdapters))

	fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %s (
    market_id INTEGER NOT NULL,
    dependency_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (market_id, dependency_id)
);
`, q(TableMarketDependencies))

	fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %s (
    market_id INTEGER PRIMARY KEY,
    valuation TEXT NOT NULL
);
`, q(TableBalanceCache))

	fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %s (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    last_accrual INTEGER NOT NULL,
    high_water_mark TEXT NOT NULL,
    performance_fee_bps INTEGER NOT NULL,
    management_fee_bps INTEGER NOT NULL,
    performance_recipient TEXT NOT NULL,
    management_recipient TEXT NOT NULL
);
`, q(TableFeeState))

	fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %s (
    market_id INTEGER PRIMARY KEY,
    cap_bps INTEGER NOT NULL
);
`, q(TableExposureLimits))

	fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %s (
    position INTEGER PRIMARY KEY,
    adapter_id TEXT NOT NULL,
    params BLOB
);
`, q(TableWithdrawalRoute))

	fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %s (
    account TEXT PRIMARY KEY,
    shares TEXT NOT NULL
);
`, q(TableShareBalances))

	fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %s (
    unit_id TEXT PRIMARY KEY,
    operation TEXT NOT NULL,
    caller TEXT NOT NULL,
    total_assets TEXT NOT NULL,
    total_supply TEXT NOT NULL,
    supply_changes INTEGER NOT NULL,
    committed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS %s ON %s (committed_at);
`, q(TableUnitJournal), quote(l.Table(TableUnitJournal)+"_committed_at"), q(TableUnitJournal))

	return b.String()
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
