package handlers

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/version"
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/process"
)

// StatusHandler handles status-related endpoints
type StatusHandler struct {
	svc       SyncService
	startedAt time.Time
}

// NewStatusHandler creates a new status handler. svc may be nil while the
// engine is still starting.
func NewStatusHandler(svc SyncService) *StatusHandler {
	return &StatusHandler{
		svc:       svc,
		startedAt: time.Now(),
	}
}

// Status returns the health of the process and a summary of the sync engine
//
//	@Summary		Get status
//	@Tags			status
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Router			/v1/status [get]
func (h *StatusHandler) Status(ctx *gin.Context) {
	resp := &StatusResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   version.Version,
		Revision:  version.Revision,
		BuildDate: version.BuildDate,
		Runtime:   h.runtimeInfo(),
	}

	if h.svc != nil {
		resp.Sync = syncInfo(h.svc)
	}

	ctx.PureJSON(http.StatusOK, resp)
}

func syncInfo(svc SyncService) *SyncInfo {
	status := svc.Status()
	info := &SyncInfo{
		Running:    svc.IsRunning(),
		Syncing:    status.GetSyncingFileCount(),
		Errors:     status.GetErrorFileCount(),
		Conflicted: status.GetConflictedFileCount(),
		LastCycle:  svc.LastReport(),
	}
	if next := svc.NextCycleAt(); !next.IsZero() {
		info.NextCycleAt = &next
	}
	return info
}

// runtimeInfo is best effort: process stats that cannot be read stay zero
func (h *StatusHandler) runtimeInfo() *RuntimeInfo {
	info := &RuntimeInfo{
		PID:        os.Getpid(),
		StartedAt:  h.startedAt.UTC().Format(time.RFC3339),
		Uptime:     time.Since(h.startedAt).Truncate(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
	}

	proc, err := process.NewProcess(int32(info.PID))
	if err != nil {
		return info
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		info.MemRSS = mem.RSS
		info.MemRSSText = humanize.IBytes(mem.RSS)
	}
	if pct, err := proc.MemoryPercent(); err == nil {
		info.MemPercent = pct
	}
	if pct, err := proc.CPUPercent(); err == nil {
		info.CPUPercent = pct
	}
	return info
}
