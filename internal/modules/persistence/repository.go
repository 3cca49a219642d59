package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/aristath/sentinel-vault/internal/database"
	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/state"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	settingAsset        = "asset"
	settingIdle         = "idle"
	settingTotalSupply  = "total_supply"
	settingSupplyCap    = "supply_cap"
	settingLimitsActive = "limits_active"
)

// JournalEntry records one committed unit of work
type JournalEntry struct {
	UnitID        uuid.UUID        `json:"unit_id"`
	Operation     domain.Operation `json:"operation"`
	Caller        domain.Account   `json:"caller"`
	TotalAssets   decimal.Decimal  `json:"total_assets"`
	TotalSupply   decimal.Decimal  `json:"total_supply"`
	SupplyChanges int              `json:"supply_changes"`
	CommittedAt   time.Time        `json:"committed_at"`
}

// StateRepository persists the full vault state. Every save rewrites the
// state tables and appends a journal entry in one transaction.
type StateRepository struct {
	db     *sql.DB
	layout Layout
	log    zerolog.Logger
}

// NewStateRepository creates a repository over db using layout
func NewStateRepository(db *sql.DB, layout Layout, log zerolog.Logger) (*StateRepository, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &StateRepository{
		db:     db,
		layout: layout,
		log:    log.With().Str("repo", "vault_state").Logger(),
	}, nil
}

// Layout returns the table layout
func (r *StateRepository) Layout() Layout {
	return r.layout
}

// Migrate creates the tables of the layout
func (r *StateRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema(r.layout)); err != nil {
		return fmt.Errorf("failed to migrate vault schema: %w", err)
	}
	return nil
}

func (r *StateRepository) t(logical string) string {
	return quote(r.layout.Table(logical))
}

// Save writes st and appends entry
func (r *StateRepository) Save(ctx context.Context, st *state.State, entry JournalEntry) error {
	err := database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		for _, logical := range LogicalTables {
			if logical == TableUnitJournal {
				continue
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+r.t(logical)); err != nil {
				return fmt.Errorf("failed to clear %s: %w", logical, err)
			}
		}

		if err := r.saveSettings(ctx, tx, st); err != nil {
			return err
		}
		if err := r.saveMarkets(ctx, tx, st); err != nil {
			return err
		}
		if err := r.saveFees(ctx, tx, st.Fees); err != nil {
			return err
		}
		if err := r.saveRoute(ctx, tx, st.Route); err != nil {
			return err
		}
		for account, shares := range st.Shares {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO "+r.t(TableShareBalances)+" (account, shares) VALUES (?, ?)",
				string(account), shares.String(),
			); err != nil {
				return fmt.Errorf("failed to save shares of %s: %w", account, err)
			}
		}

		_, err := tx.ExecContext(ctx,
			"INSERT INTO "+r.t(TableUnitJournal)+
				" (unit_id, operation, caller, total_assets, total_supply, supply_changes, committed_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			entry.UnitID.String(),
			string(entry.Operation),
			string(entry.Caller),
			entry.TotalAssets.String(),
			entry.TotalSupply.String(),
			entry.SupplyChanges,
			entry.CommittedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("failed to append journal entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save vault state: %w", err)
	}

	r.log.Debug().Str("unit", entry.UnitID.String()).Str("operation", string(entry.Operation)).Msg("State saved")
	return nil
}

func (r *StateRepository) saveSettings(ctx context.Context, tx *sql.Tx, st *state.State) error {
	settings := map[string]string{
		settingAsset:        string(st.Asset),
		settingIdle:         st.Idle.String(),
		settingTotalSupply:  st.TotalSupply.String(),
		settingSupplyCap:    st.SupplyCap.String(),
		settingLimitsActive: strconv.FormatBool(st.LimitsActive),
	}
	for k, v := range settings {
		if _, err := tx.ExecContext(ctx, "INSERT INTO "+r.t(TableSettings)+" (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("failed to save setting %s: %w", k, err)
		}
	}
	return nil
}

func (r *StateRepository) saveMarkets(ctx context.Context, tx *sql.Tx, st *state.State) error {
	for _, id := range st.MarketIDs() {
		m := st.Markets[id]
		key := int64(id)
		if _, err := tx.ExecContext(ctx, "INSERT INTO "+r.t(TableMarkets)+" (market_id) VALUES (?)", key); err != nil {
			return fmt.Errorf("failed to save market %s: %w", id, err)
		}
		for _, s := range m.SortedSubstrates() {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO "+r.t(TableMarketSubstrates)+" (market_id, substrate) VALUES (?, ?)", key, s.String(),
			); err != nil {
				return fmt.Errorf("failed to save substrate of market %s: %w", id, err)
			}
		}
		for pos, dep := range m.Dependencies {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO "+r.t(TableMarketDependencies)+" (market_id, dependency_id, position) VALUES (?, ?, ?)",
				key, int64(dep), pos,
			); err != nil {
				return fmt.Errorf("failed to save dependency of market %s: %w", id, err)
			}
		}
		if v, ok := st.Cache[id]; ok {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO "+r.t(TableBalanceCache)+" (market_id, valuation) VALUES (?, ?)", key, v.String(),
			); err != nil {
				return fmt.Errorf("failed to save valuation of market %s: %w", id, err)
			}
		}
		if capBps, ok := st.Limits[id]; ok {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO "+r.t(TableExposureLimits)+" (market_id, cap_bps) VALUES (?, ?)", key, capBps,
			); err != nil {
				return fmt.Errorf("failed to save limit of market %s: %w", id, err)
			}
		}
		if adapter, ok := st.BalanceAdapters[id]; ok {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO "+r.t(TableBalanceAdapters)+" (market_id, adapter_id) VALUES (?, ?)", key, string(adapter),
			); err != nil {
				return fmt.Errorf("failed to save balance adapter of market %s: %w", id, err)
			}
		}
	}

	for adapter, market := range st.Bindings {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+r.t(TableAdapterBindings)+" (adapter_id, market_id) VALUES (?, ?)", string(adapter), int64(market),
		); err != nil {
			return fmt.Errorf("failed to save binding of %s: %w", adapter, err)
		}
	}
	return nil
}

func (r *StateRepository) saveFees(ctx context.Context, tx *sql.Tx, fs state.FeeState) error {
	var lastAccrual int64
	if !fs.LastAccrual.IsZero() {
		lastAccrual = fs.LastAccrual.UnixNano()
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO "+r.t(TableFeeState)+
			" (id, last_accrual, high_water_mark, performance_fee_bps, management_fee_bps, performance_recipient, management_recipient)"+
			" VALUES (1, ?, ?, ?, ?, ?, ?)",
		lastAccrual,
		fs.HighWaterMark.String(),
		fs.PerformanceFeeBps,
		fs.ManagementFeeBps,
		string(fs.PerformanceRecipient),
		string(fs.ManagementRecipient),
	)
	if err != nil {
		return fmt.Errorf("failed to save fee state: %w", err)
	}
	return nil
}

func (r *StateRepository) saveRoute(ctx context.Context, tx *sql.Tx, route []state.RouteEntry) error {
	for pos, entry := range route {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+r.t(TableWithdrawalRoute)+" (position, adapter_id, params) VALUES (?, ?, ?)",
			pos, string(entry.Adapter), entry.Params,
		); err != nil {
			return fmt.Errorf("failed to save route step %d: %w", pos, err)
		}
	}
	return nil
}

// Load reads the persisted state. found is false when nothing was saved yet.
func (r *StateRepository) Load(ctx context.Context) (st *state.State, found bool, err error) {
	settings, err := r.loadSettings(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(settings) == 0 {
		return nil, false, nil
	}

	st = state.New(domain.AssetID(settings[settingAsset]))
	if st.Idle, err = parseDecimal(settings, settingIdle); err != nil {
		return nil, false, err
	}
	if st.TotalSupply, err = parseDecimal(settings, settingTotalSupply); err != nil {
		return nil, false, err
	}
	if st.SupplyCap, err = parseDecimal(settings, settingSupplyCap); err != nil {
		return nil, false, err
	}
	st.LimitsActive = settings[settingLimitsActive] == "true"

	if err := r.loadMarkets(ctx, st); err != nil {
		return nil, false, err
	}
	if err := r.loadFees(ctx, st); err != nil {
		return nil, false, err
	}
	if err := r.loadRoute(ctx, st); err != nil {
		return nil, false, err
	}
	if err := r.loadShares(ctx, st); err != nil {
		return nil, false, err
	}
	return st, true, nil
}

func (r *StateRepository) loadSettings(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT key, value FROM "+r.t(TableSettings))
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}
	return out, nil
}

func (r *StateRepository) loadMarkets(ctx context.Context, st *state.State) error {
	if err := r.each(ctx, "SELECT market_id FROM "+r.t(TableMarkets), func(rows *sql.Rows) error {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		mid := domain.MarketID(id)
		st.Markets[mid] = &state.Market{ID: mid, Substrates: make(map[domain.Substrate]struct{})}
		return nil
	}); err != nil {
		return fmt.Errorf("failed to load markets: %w", err)
	}

	if err := r.each(ctx, "SELECT market_id, substrate FROM "+r.t(TableMarketSubstrates), func(rows *sql.Rows) error {
		var id int64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return err
		}
		s, err := domain.ParseSubstrate(raw)
		if err != nil {
			return err
		}
		m, ok := st.Markets[domain.MarketID(id)]
		if !ok {
			return fmt.Errorf("substrate for unknown market %d", id)
		}
		m.Substrates[s] = struct{}{}
		return nil
	}); err != nil {
		return fmt.Errorf("failed to load substrates: %w", err)
	}

	if err := r.each(ctx,
		"SELECT market_id, dependency_id FROM "+r.t(TableMarketDependencies)+" ORDER BY market_id, position",
		func(rows *sql.Rows) error {
			var id, dep int64
			if err := rows.Scan(&id, &dep); err != nil {
				return err
			}
			m, ok := st.Markets[domain.MarketID(id)]
			if !ok {
				return fmt.Errorf("dependency for unknown market %d", id)
			}
			m.Dependencies = append(m.Dependencies, domain.MarketID(dep))
			return nil
		}); err != nil {
		return fmt.Errorf("failed to load dependencies: %w", err)
	}

	if err := r.each(ctx, "SELECT market_id, valuation FROM "+r.t(TableBalanceCache), func(rows *sql.Rows) error {
		var id int64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return err
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return err
		}
		st.Cache[domain.MarketID(id)] = v
		return nil
	}); err != nil {
		return fmt.Errorf("failed to load balance cache: %w", err)
	}

	if err := r.each(ctx, "SELECT market_id, cap_bps FROM "+r.t(TableExposureLimits), func(rows *sql.Rows) error {
		var id, capBps int64
		if err := rows.Scan(&id, &capBps); err != nil {
			return err
		}
		st.Limits[domain.MarketID(id)] = capBps
		return nil
	}); err != nil {
		return fmt.Errorf("failed to load exposure limits: %w", err)
	}

	if err := r.each(ctx, "SELECT adapter_id, market_id FROM "+r.t(TableAdapterBindings), func(rows *sql.Rows) error {
		var adapter string
		var id int64
		if err := rows.Scan(&adapter, &id); err != nil {
			return err
		}
		st.Bindings[domain.AdapterID(adapter)] = domain.MarketID(id)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to load adapter bindings: %w", err)
	}

	if err := r.each(ctx, "SELECT market_id, adapter_id FROM "+r.t(TableBalanceAdapters), func(rows *sql.Rows) error {
		var id int64
		var adapter string
		if err := rows.Scan(&id, &adapter); err != nil {
			return err
		}
		st.BalanceAdapters[domain.MarketID(id)] = domain.AdapterID(adapter)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to load balance adapters: %w", err)
	}
	return nil
}

func (r *StateRepository) loadFees(ctx context.Context, st *state.State) error {
	var (
		lastAccrual   int64
		hwm           string
		perfRecipient string
		mgmtRecipient string
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT last_accrual, high_water_mark, performance_fee_bps, management_fee_bps, performance_recipient, management_recipient FROM "+
			r.t(TableFeeState)+" WHERE id = 1",
	).Scan(&lastAccrual, &hwm, &st.Fees.PerformanceFeeBps, &st.Fees.ManagementFeeBps, &perfRecipient, &mgmtRecipient)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load fee state: %w", err)
	}

	if st.Fees.HighWaterMark, err = decimal.NewFromString(hwm); err != nil {
		return fmt.Errorf("invalid high-water mark %q: %w", hwm, err)
	}
	if lastAccrual != 0 {
		st.Fees.LastAccrual = time.Unix(0, lastAccrual).UTC()
	}
	st.Fees.PerformanceRecipient = domain.Account(perfRecipient)
	st.Fees.ManagementRecipient = domain.Account(mgmtRecipient)
	return nil
}

func (r *StateRepository) loadRoute(ctx context.Context, st *state.State) error {
	err := r.each(ctx, "SELECT adapter_id, params FROM "+r.t(TableWithdrawalRoute)+" ORDER BY position", func(rows *sql.Rows) error {
		var adapter string
		var params []byte
		if err := rows.Scan(&adapter, &params); err != nil {
			return err
		}
		st.Route = append(st.Route, state.RouteEntry{Adapter: domain.AdapterID(adapter), Params: params})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to load withdrawal route: %w", err)
	}
	return nil
}

func (r *StateRepository) loadShares(ctx context.Context, st *state.State) error {
	err := r.each(ctx, "SELECT account, shares FROM "+r.t(TableShareBalances), func(rows *sql.Rows) error {
		var account, raw string
		if err := rows.Scan(&account, &raw); err != nil {
			return err
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return err
		}
		st.Shares[domain.Account(account)] = v
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to load share balances: %w", err)
	}
	return nil
}

// Journal returns the most recent journal entries, newest first
func (r *StateRepository) Journal(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []JournalEntry
	err := r.each(ctx,
		"SELECT unit_id, operation, caller, total_assets, total_supply, supply_changes, committed_at FROM "+
			r.t(TableUnitJournal)+" ORDER BY committed_at DESC, rowid DESC LIMIT "+strconv.Itoa(limit),
		func(rows *sql.Rows) error {
			var (
				e              JournalEntry
				id, op, caller string
				assets, supply string
				committedAt    int64
			)
			if err := rows.Scan(&id, &op, &caller, &assets, &supply, &e.SupplyChanges, &committedAt); err != nil {
				return err
			}
			var err error
			if e.UnitID, err = uuid.Parse(id); err != nil {
				return err
			}
			if e.TotalAssets, err = decimal.NewFromString(assets); err != nil {
				return err
			}
			if e.TotalSupply, err = decimal.NewFromString(supply); err != nil {
				return err
			}
			e.Operation = domain.Operation(op)
			e.Caller = domain.Account(caller)
			e.CommittedAt = time.Unix(0, committedAt).UTC()
			entries = append(entries, e)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to load journal: %w", err)
	}
	return entries, nil
}

func (r *StateRepository) each(ctx context.Context, query string, fn func(*sql.Rows) error) error {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func parseDecimal(settings map[string]string, key string) (decimal.Decimal, error) {
	raw, ok := settings[key]
	if !ok {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
