package handlers

import (
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/client/sync"
)

// StatusResponse represents the health status of the service.
type StatusResponse struct {
	Status    string       `json:"status"`    // health status ("ok").
	Timestamp string       `json:"ts"`        // timestamp when health check was performed.
	Version   string       `json:"version"`   // version of the client.
	Revision  string       `json:"revision"`  // revision of the client.
	BuildDate string       `json:"buildDate"` // build date of the client.
	Sync      *SyncInfo    `json:"sync,omitempty"`
	Runtime   *RuntimeInfo `json:"runtime"`
}

type SyncInfo struct {
	Running     bool              `json:"running"`
	NextCycleAt *time.Time        `json:"nextCycleAt,omitempty"`
	Syncing     int               `json:"syncing"`
	Errors      int               `json:"errors"`
	Conflicted  int               `json:"conflicted"`
	LastCycle   *sync.CycleReport `json:"lastCycle,omitempty"`
}

type RuntimeInfo struct {
	PID        int     `json:"pid"`
	StartedAt  string  `json:"startedAt"`
	Uptime     string  `json:"uptime"`
	Goroutines int     `json:"goroutines"`
	MemRSS     uint64  `json:"memRss"`
	MemRSSText string  `json:"memRssText,omitempty"`
	MemPercent float32 `json:"memPercent"`
	CPUPercent float64 `json:"cpuPercent"`
}
