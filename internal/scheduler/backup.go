package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Backupper creates and uploads a backup, then prunes old ones
type Backupper interface {
	CreateAndUpload(ctx context.Context) (string, error)
	Rotate(ctx context.Context) (int, error)
}

// BackupJob backs up the state database to object storage
type BackupJob struct {
	JobBase
	backups Backupper
}

// NewBackupJob creates a new BackupJob
func NewBackupJob(backups Backupper) *BackupJob {
	return &BackupJob{
		JobBase: JobBase{log: zerolog.Nop(), timeout: DefaultJobTimeout * 5},
		backups: backups,
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "state_backup"
}

// Run uploads a backup. A failed rotation is logged but does not fail the job.
func (j *BackupJob) Run() error {
	ctx, cancel := j.runContext()
	defer cancel()

	key, err := j.backups.CreateAndUpload(ctx)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	deleted, err := j.backups.Rotate(ctx)
	if err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	j.log.Info().
		Str("key", key).
		Int("rotated", deleted).
		Msg("Backup completed")
	return nil
}
