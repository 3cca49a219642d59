package config

import (
	"testing"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VAULT_DATA_DIR", dir)
	t.Setenv("VAULT_ASSET", "DAI")
	t.Setenv("VAULT_PERFORMANCE_FEE_BPS", "1000")
	t.Setenv("VAULT_PERFORMANCE_FEE_RECIPIENT", "treasury")
	t.Setenv("VAULT_OPERATORS", "keeper, curator")
	t.Setenv("VAULT_SUPPLY_CAP", "1000000")
	t.Setenv("VAULT_TABLE_OVERRIDES", "balance_cache=legacy_market_balances")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, domain.AssetID("DAI"), cfg.Asset)
	assert.Equal(t, int64(1000), cfg.PerformanceFeeBps)
	assert.Equal(t, []domain.Account{"keeper", "curator"}, cfg.Operators)
	assert.True(t, decimal.NewFromInt(1000000).Equal(cfg.SupplyCap))
	assert.Equal(t, "legacy_market_balances", cfg.Layout().Table("balance_cache"))
	assert.Equal(t, "vault_fee_state", cfg.Layout().Table("fee_state"))
	assert.Equal(t, 8010, cfg.Port)
	assert.False(t, cfg.Backup.Enabled)
}

func TestLoad_RejectsMalformedOverrides(t *testing.T) {
	t.Setenv("VAULT_DATA_DIR", t.TempDir())
	t.Setenv("VAULT_TABLE_OVERRIDES", "balance_cache")

	_, err := Load()
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Asset:           "USDC",
		TablePrefix:     "vault_",
		RefreshSchedule: "0 */15 * * * *",
		Backup:          &BackupConfig{},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(c *Config) {}, ok: true},
		{name: "fee above 10000 bps", mutate: func(c *Config) {
			c.ManagementFeeBps = 10001
			c.ManagementFeeRecipient = "treasury"
		}},
		{name: "fee without recipient", mutate: func(c *Config) { c.PerformanceFeeBps = 100 }},
		{name: "negative supply cap", mutate: func(c *Config) { c.SupplyCap = decimal.NewFromInt(-1) }},
		{name: "bad cron", mutate: func(c *Config) { c.RefreshSchedule = "every minute" }},
		{name: "bad prefix", mutate: func(c *Config) { c.TablePrefix = "drop table;" }},
		{name: "backup without bucket", mutate: func(c *Config) {
			c.Backup.Enabled = true
			c.Backup.Schedule = "0 0 3 * * *"
		}},
		{name: "backup with bucket", mutate: func(c *Config) {
			c.Backup.Enabled = true
			c.Backup.Bucket = "vault-backups"
			c.Backup.Schedule = "0 0 3 * * *"
		}, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
