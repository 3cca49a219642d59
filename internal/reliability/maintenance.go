package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/sentinel-vault/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

const (
	// diskWarnFreeBytes logs a warning below 1 GiB free
	diskWarnFreeBytes uint64 = 1 << 30
	// diskCriticalFreeBytes fails the job below 100 MiB free
	diskCriticalFreeBytes uint64 = 100 << 20
)

// MaintenanceJob checks the state database and the disk it lives on
type MaintenanceJob struct {
	db      *database.DB
	dataDir string
	log     zerolog.Logger
}

// NewMaintenanceJob creates a maintenance job for db stored under dataDir
func NewMaintenanceJob(db *database.DB, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:      db,
		dataDir: dataDir,
		log:     log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run checks integrity, truncates the WAL and checks free disk space
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var result string
	if err := j.db.Conn().QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed to run: %w", err)
	}
	if result != "ok" {
		j.log.Error().Str("result", result).Msg("CRITICAL: state database failed integrity check")
		return fmt.Errorf("state database integrity check: %s", result)
	}

	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	stats, err := j.db.GetStats()
	if err == nil {
		j.log.Info().
			Int64("size_bytes", stats.SizeBytes).
			Int64("wal_size_bytes", stats.WALSizeBytes).
			Msg("Maintenance completed")
	}
	return nil
}

func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		j.log.Warn().Err(err).Str("path", j.dataDir).Msg("Failed to read disk usage")
		return nil
	}

	switch {
	case usage.Free < diskCriticalFreeBytes:
		j.log.Error().Uint64("free_bytes", usage.Free).Msg("CRITICAL: disk almost full")
		return fmt.Errorf("only %d bytes free under %s", usage.Free, j.dataDir)
	case usage.Free < diskWarnFreeBytes:
		j.log.Warn().Uint64("free_bytes", usage.Free).Float64("used_percent", usage.UsedPercent).Msg("Disk space low")
	default:
		j.log.Debug().Uint64("free_bytes", usage.Free).Msg("Disk space OK")
	}
	return nil
}
