// Package di provides dependency injection for scheduler jobs.
package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aristath/sentinel-vault/internal/config"
	"github.com/aristath/sentinel-vault/internal/database"
	"github.com/aristath/sentinel-vault/internal/reliability"
	"github.com/aristath/sentinel-vault/internal/scheduler"
	"github.com/rs/zerolog"
)

const (
	walCheckSchedule    = "0 */30 * * * *"
	maintenanceSchedule = "0 30 4 * * *"
)

// RegisterJobs creates the scheduler and registers all jobs with it.
// Returns JobInstances for manual triggering.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	sched := scheduler.New(log)
	container.Scheduler = sched
	instances := &JobInstances{}

	// ==========================================
	// Keeper balance refresh
	// ==========================================
	refresh := scheduler.NewRefreshBalancesJob(container.Vault, KeeperAccount)
	refresh.SetLogger(log.With().Str("job", "refresh_balances").Logger())
	if err := sched.AddJob(cfg.RefreshSchedule, refresh); err != nil {
		return nil, err
	}
	instances.RefreshBalances = refresh

	// ==========================================
	// Database health
	// ==========================================
	walCheck := scheduler.NewCheckWALCheckpointsJob(map[string]*database.DB{
		"vault": container.StateDB,
	})
	walCheck.SetLogger(log.With().Str("job", "check_wal_checkpoints").Logger())
	if err := sched.AddJob(walCheckSchedule, walCheck); err != nil {
		return nil, err
	}
	instances.CheckWAL = walCheck

	maintenance := reliability.NewMaintenanceJob(container.StateDB, cfg.DataDir, log)
	if err := sched.AddJob(maintenanceSchedule, maintenance); err != nil {
		return nil, err
	}
	instances.Maintenance = maintenance

	// ==========================================
	// Object storage backups (optional)
	// ==========================================
	if cfg.Backup != nil && cfg.Backup.Enabled {
		store, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
			Bucket:          cfg.Backup.Bucket,
			Region:          cfg.Backup.Region,
			Endpoint:        cfg.Backup.Endpoint,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create backup client: %w", err)
		}

		container.BackupService = reliability.NewBackupService(
			container.StateDB,
			store,
			filepath.Join(cfg.DataDir, "backups"),
			cfg.Backup.Prefix,
			cfg.Backup.Retention,
			log,
		)

		backup := scheduler.NewBackupJob(container.BackupService)
		backup.SetLogger(log.With().Str("job", "state_backup").Logger())
		if err := sched.AddJob(cfg.Backup.Schedule, backup); err != nil {
			return nil, err
		}
		instances.Backup = backup
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("State backups enabled")
	}

	log.Info().Msg("Jobs registered")
	return instances, nil
}
