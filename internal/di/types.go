/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to the server and the scheduler.
 */
package di

import (
	"github.com/aristath/sentinel-vault/internal/database"
	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/events"
	"github.com/aristath/sentinel-vault/internal/modules/access"
	"github.com/aristath/sentinel-vault/internal/modules/adapters"
	"github.com/aristath/sentinel-vault/internal/modules/adapters/venue"
	"github.com/aristath/sentinel-vault/internal/modules/balances"
	"github.com/aristath/sentinel-vault/internal/modules/dispatch"
	"github.com/aristath/sentinel-vault/internal/modules/fees"
	"github.com/aristath/sentinel-vault/internal/modules/limits"
	"github.com/aristath/sentinel-vault/internal/modules/persistence"
	"github.com/aristath/sentinel-vault/internal/modules/pricing"
	"github.com/aristath/sentinel-vault/internal/modules/registry"
	"github.com/aristath/sentinel-vault/internal/modules/vault"
	"github.com/aristath/sentinel-vault/internal/modules/withdrawal"
	"github.com/aristath/sentinel-vault/internal/reliability"
	"github.com/aristath/sentinel-vault/internal/scheduler"
)

const (
	// SystemAccount performs startup configuration (dev-mode markets)
	SystemAccount domain.Account = "system"
	// KeeperAccount drives the scheduled balance refresh
	KeeperAccount domain.Account = "keeper"
	// VenueAccount is the vault's own account at the simulated venues
	VenueAccount domain.Account = "vault"
)

// Container holds all application dependencies
type Container struct {
	// Database
	StateDB *database.DB

	// Repositories
	StateRepo *persistence.StateRepository

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager
	SupplySink   *events.SupplySink

	// Boundaries
	Access  *access.Table
	Pricing *pricing.StaticConverter

	// Adapters. Venues is only populated in dev mode.
	Catalog *adapters.Catalog
	Venues  map[domain.MarketID]*venue.Pool

	// Engine
	Registry   *registry.Registry
	Balances   *balances.Cache
	Fees       *fees.Engine
	Limits     *limits.Guard
	Dispatcher *dispatch.Dispatcher
	Router     *withdrawal.Router
	Vault      *vault.Vault

	// Operations
	Scheduler     *scheduler.Scheduler
	BackupService *reliability.BackupService // nil when backups are disabled
}

// JobInstances holds the registered jobs for manual triggering
type JobInstances struct {
	RefreshBalances scheduler.Job
	CheckWAL        scheduler.Job
	Maintenance     scheduler.Job
	Backup          scheduler.Job // nil when backups are disabled
}

// Close stops the scheduler and closes the state database
func (c *Container) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.StateDB != nil {
		return c.StateDB.Close()
	}
	return nil
}
