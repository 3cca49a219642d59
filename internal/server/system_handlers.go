package server

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/sentinel-vault/internal/database"
)

// HealthResponse is the body of GET /api/health
type HealthResponse struct {
	Status        string  `json:"status"`
	Database      string  `json:"database"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DBSizeBytes   int64   `json:"db_size_bytes,omitempty"`
	WALSizeBytes  int64   `json:"wal_size_bytes,omitempty"`
}

// SystemHandlers serves process and host health
type SystemHandlers struct {
	db        *database.DB
	startedAt time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates system handlers. db may be nil.
func NewSystemHandlers(db *database.DB, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		db:        db,
		startedAt: time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// HandleHealth handles GET /api/health. An unreachable state database
// answers 503.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Database:      "not configured",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}
	resp.CPUPercent, resp.MemoryPercent = h.hostUsage()

	status := http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.HealthCheck(ctx); err != nil {
			h.log.Warn().Err(err).Msg("State database health check failed")
			resp.Status = "degraded"
			resp.Database = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
			if stats, err := h.db.GetStats(); err == nil {
				resp.DBSizeBytes = stats.SizeBytes
				resp.WALSizeBytes = stats.WALSizeBytes
			}
		}
	}

	writeJSON(w, h.log, status, resp)
}

// hostUsage returns CPU and RAM usage percentages. Failures read as zero.
func (h *SystemHandlers) hostUsage() (float64, float64) {
	// Interval 0 compares against the previous call and does not block
	cpuPercent, err := cpu.Percent(0, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = nil
	}
	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuAvg, 0
	}
	return cpuAvg, memStat.UsedPercent
}
