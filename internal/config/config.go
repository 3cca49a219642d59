// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/modules/persistence"
	"github.com/aristath/sentinel-vault/internal/utils"
	"github.com/aristath/sentinel-vault/pkg/formulas"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the state database (always absolute)
	LogLevel string
	Port     int
	DevMode  bool // Wires simulated venues instead of real ones

	Asset                   domain.AssetID
	PerformanceFeeBps       int64
	ManagementFeeBps        int64
	PerformanceFeeRecipient domain.Account
	ManagementFeeRecipient  domain.Account
	SupplyCap               decimal.Decimal // Zero means uncapped
	Operators               []domain.Account

	RefreshSchedule string // Cron spec of the keeper balance refresh
	TablePrefix     string
	TableOverrides  map[string]string // logical -> physical table names

	Backup *BackupConfig
}

// BackupConfig holds S3-compatible backup settings
type BackupConfig struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string // Empty uses the AWS endpoint for Region
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	Schedule        string
	Retention       int // Backups kept in the bucket, 0 keeps all
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("VAULT_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	supplyCap, err := decimal.NewFromString(getEnv("VAULT_SUPPLY_CAP", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid VAULT_SUPPLY_CAP: %w", err)
	}
	overrides, err := persistence.ParseOverrides(getEnv("VAULT_TABLE_OVERRIDES", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid VAULT_TABLE_OVERRIDES: %w", err)
	}

	var operators []domain.Account
	for _, op := range utils.SplitList(getEnv("VAULT_OPERATORS", "")) {
		operators = append(operators, domain.Account(op))
	}

	cfg := &Config{
		DataDir:                 absDataDir,
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		Port:                    getEnvAsInt("VAULT_PORT", 8010),
		DevMode:                 getEnvAsBool("DEV_MODE", false),
		Asset:                   domain.AssetID(getEnv("VAULT_ASSET", "USDC")),
		PerformanceFeeBps:       int64(getEnvAsInt("VAULT_PERFORMANCE_FEE_BPS", 0)),
		ManagementFeeBps:        int64(getEnvAsInt("VAULT_MANAGEMENT_FEE_BPS", 0)),
		PerformanceFeeRecipient: domain.Account(getEnv("VAULT_PERFORMANCE_FEE_RECIPIENT", "")),
		ManagementFeeRecipient:  domain.Account(getEnv("VAULT_MANAGEMENT_FEE_RECIPIENT", "")),
		SupplyCap:               supplyCap,
		Operators:               operators,
		RefreshSchedule:         getEnv("VAULT_REFRESH_SCHEDULE", "0 */15 * * * *"),
		TablePrefix:             getEnv("VAULT_TABLE_PREFIX", persistence.DefaultPrefix),
		TableOverrides:          overrides,
		Backup:                  loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Layout returns the persistence table layout
func (c *Config) Layout() persistence.Layout {
	return persistence.Layout{Prefix: c.TablePrefix, Overrides: c.TableOverrides}
}

// StatePath is the path of the state database
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "vault.db")
}

// Validate checks the configuration for values the vault cannot run with
func (c *Config) Validate() error {
	if c.Asset == "" {
		return fmt.Errorf("VAULT_ASSET is required: %w", domain.ErrInvalidConfig)
	}
	for name, bps := range map[string]int64{
		"VAULT_PERFORMANCE_FEE_BPS": c.PerformanceFeeBps,
		"VAULT_MANAGEMENT_FEE_BPS":  c.ManagementFeeBps,
	} {
		if bps < 0 || bps > formulas.BasisPoints {
			return fmt.Errorf("%s=%d outside 0..%d: %w", name, bps, formulas.BasisPoints, domain.ErrInvalidConfig)
		}
	}
	if c.PerformanceFeeBps > 0 && c.PerformanceFeeRecipient == "" {
		return fmt.Errorf("VAULT_PERFORMANCE_FEE_RECIPIENT is required with a performance fee: %w", domain.ErrInvalidConfig)
	}
	if c.ManagementFeeBps > 0 && c.ManagementFeeRecipient == "" {
		return fmt.Errorf("VAULT_MANAGEMENT_FEE_RECIPIENT is required with a management fee: %w", domain.ErrInvalidConfig)
	}
	if c.SupplyCap.IsNegative() {
		return fmt.Errorf("VAULT_SUPPLY_CAP is negative: %w", domain.ErrInvalidConfig)
	}
	if err := c.Layout().Validate(); err != nil {
		return fmt.Errorf("invalid table layout: %w", err)
	}
	if _, err := cronParser.Parse(c.RefreshSchedule); err != nil {
		return fmt.Errorf("invalid VAULT_REFRESH_SCHEDULE %q: %w", c.RefreshSchedule, err)
	}
	if c.Backup != nil && c.Backup.Enabled {
		if c.Backup.Bucket == "" {
			return fmt.Errorf("BACKUP_BUCKET is required when backups are enabled: %w", domain.ErrInvalidConfig)
		}
		if _, err := cronParser.Parse(c.Backup.Schedule); err != nil {
			return fmt.Errorf("invalid BACKUP_SCHEDULE %q: %w", c.Backup.Schedule, err)
		}
	}
	return nil
}

// cronParser accepts the six-field specs the scheduler runs with
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
		Bucket:          getEnv("BACKUP_BUCKET", ""),
		Region:          getEnv("BACKUP_REGION", "auto"),
		Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
		AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
		Prefix:          getEnv("BACKUP_PREFIX", "sentinel-vault/"),
		Schedule:        getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),
		Retention:       getEnvAsInt("BACKUP_RETENTION", 14),
	}
}
