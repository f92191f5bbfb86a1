package sync

import (
	"sync"
	"time"
)

// CycleReport summarizes one full reconciliation cycle
type CycleReport struct {
	StartedAt      time.Time          `json:"startedAt"`
	Duration       time.Duration      `json:"duration"`
	LocalEntries   int                `json:"localEntries"`
	RemoteEntries  int                `json:"remoteEntries"`
	FoldersCreated int                `json:"foldersCreated"`
	Actions        map[SyncAction]int `json:"actions"`
	Skipped        int                `json:"skipped"`
	Failed         int                `json:"failed"`
	Errors         []string           `json:"errors,omitempty"`

	ScanTime   time.Duration `json:"scanTime"`
	FolderTime time.Duration `json:"folderTime"`
	TaskTime   time.Duration `json:"taskTime"`

	mu sync.Mutex
}

func newCycleReport() *CycleReport {
	return &CycleReport{
		StartedAt: time.Now(),
		Actions:   make(map[SyncAction]int),
	}
}

func (r *CycleReport) addAction(action SyncAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Actions[action]++
}

func (r *CycleReport) addFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed++
	r.Errors = append(r.Errors, err.Error())
}

// Tasks is the number of non-skip tasks the cycle scheduled
func (r *CycleReport) Tasks() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, c := range r.Actions {
		n += c
	}
	return n
}

// Clone returns a copy that can be read without locking
func (r *CycleReport) Clone() *CycleReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := &CycleReport{
		StartedAt:      r.StartedAt,
		Duration:       r.Duration,
		LocalEntries:   r.LocalEntries,
		RemoteEntries:  r.RemoteEntries,
		FoldersCreated: r.FoldersCreated,
		Actions:        make(map[SyncAction]int, len(r.Actions)),
		Skipped:        r.Skipped,
		Failed:         r.Failed,
		Errors:         append([]string(nil), r.Errors...),
		ScanTime:       r.ScanTime,
		FolderTime:     r.FolderTime,
		TaskTime:       r.TaskTime,
	}
	for a, c := range r.Actions {
		cp.Actions[a] = c
	}
	return cp
}
