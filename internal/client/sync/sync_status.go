package sync

import (
	"fmt"
	"sync"
	"time"
)

const (
	progressMin         = 0.0
	progressMax         = 100.0
	syncEventBufferSize = 16
)

// SyncState represents the state of a sync operation
type SyncState string

const (
	SyncStatePending   SyncState = "pending"
	SyncStateSyncing   SyncState = "syncing"
	SyncStateCompleted SyncState = "completed"
	SyncStateError     SyncState = "error"
)

// ConflictState represents the condition of a file
type ConflictState string

const (
	ConflictStateNone ConflictState = "none"
	// local content overwrote a remote edit
	ConflictStateConflicted ConflictState = "conflicted"
)

// PathStatus represents the complete status of a file
type PathStatus struct {
	SyncState     SyncState     `json:"syncState"`
	ConflictState ConflictState `json:"conflictState"`
	Action        SyncAction    `json:"action,omitempty"`
	Progress      float64       `json:"progress"`
	Error         error         `json:"-"`
	ErrorMessage  string        `json:"error,omitempty"`
	ErrorCount    int           `json:"errorCount"`
	LastUpdated   time.Time     `json:"lastUpdated"`
}

func (s *PathStatus) String() string {
	return fmt.Sprintf("SyncState: %s, ConflictState: %s, Action: %s, Progress: %f, Error: %v, ErrorCount: %d", s.SyncState, s.ConflictState, s.Action, s.Progress, s.Error, s.ErrorCount)
}

// SyncStatusEvent represents a status change event for broadcasting
type SyncStatusEvent struct {
	Path   string      `json:"path"`
	Status *PathStatus `json:"status"`
}

// SyncStatus tracks in-flight and failed paths. The full cycle uses it to
// skip paths the watcher is already handling.
type SyncStatus struct {
	files map[string]*PathStatus
	mu    sync.RWMutex

	eventSubs []chan *SyncStatusEvent
	eventMu   sync.RWMutex
}

func NewSyncStatus() *SyncStatus {
	return &SyncStatus{
		files:     make(map[string]*PathStatus),
		eventSubs: make([]chan *SyncStatusEvent, 0),
	}
}

// Subscribe returns a channel for receiving sync status events
func (s *SyncStatus) Subscribe() <-chan *SyncStatusEvent {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	ch := make(chan *SyncStatusEvent, syncEventBufferSize)
	s.eventSubs = append(s.eventSubs, ch)
	return ch
}

// Unsubscribe removes a subscription channel
func (s *SyncStatus) Unsubscribe(ch <-chan *SyncStatusEvent) {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	for i, sub := range s.eventSubs {
		if sub == ch {
			close(sub)
			s.eventSubs = append(s.eventSubs[:i], s.eventSubs[i+1:]...)
			break
		}
	}
}

// broadcastEvent sends a copy of status to all subscribers without blocking
func (s *SyncStatus) broadcastEvent(path string, status *PathStatus) {
	s.eventMu.RLock()
	defer s.eventMu.RUnlock()

	cp := *status
	event := &SyncStatusEvent{Path: path, Status: &cp}
	for _, sub := range s.eventSubs {
		select {
		case sub <- event:
		default:
			// Channel is full, skip to avoid blocking
		}
	}
}

// getOrCreateStatus gets existing status or creates a new one
func (s *SyncStatus) getOrCreateStatus(path string) *PathStatus {
	if status, exists := s.files[path]; exists {
		return status
	}

	status := &PathStatus{
		SyncState:     SyncStatePending,
		ConflictState: ConflictStateNone,
		Progress:      progressMin,
		LastUpdated:   time.Now(),
	}
	s.files[path] = status
	return status
}

// TrySetSyncing marks path as syncing unless another worker already owns it
func (s *SyncStatus) TrySetSyncing(path string, action SyncAction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.getOrCreateStatus(path)
	if status.SyncState == SyncStateSyncing {
		return false
	}

	status.SyncState = SyncStateSyncing
	status.Action = action
	status.Progress = progressMin
	status.Error = nil
	status.ErrorMessage = ""
	status.LastUpdated = time.Now()

	s.broadcastEvent(path, status)
	return true
}

// SetCompleted ends a sync. Clean paths stop being tracked; conflicted ones stay visible.
func (s *SyncStatus) SetCompleted(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.getOrCreateStatus(path)
	status.SyncState = SyncStateCompleted
	status.Progress = progressMax
	status.Error = nil
	status.ErrorMessage = ""
	status.ErrorCount = 0
	status.LastUpdated = time.Now()

	if status.Action == ActionUploadConflict {
		status.ConflictState = ConflictStateConflicted
	}

	s.broadcastEvent(path, status)
	if status.ConflictState == ConflictStateNone {
		delete(s.files, path)
	}
}

// SetError sets a file to error state
func (s *SyncStatus) SetError(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.getOrCreateStatus(path)
	status.SyncState = SyncStateError
	status.Error = err
	if err != nil {
		status.ErrorMessage = err.Error()
	}
	status.ErrorCount++
	status.LastUpdated = time.Now()

	s.broadcastEvent(path, status)
}

// IsSyncing reports whether a worker currently owns path
func (s *SyncStatus) IsSyncing(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.files[path]
	return ok && status.SyncState == SyncStateSyncing
}

// GetStatus returns a copy of the status of a specific file
func (s *SyncStatus) GetStatus(path string) (*PathStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, exists := s.files[path]
	if !exists {
		return nil, false
	}
	cp := *status
	return &cp, true
}

// GetSyncingFileCount returns the number of files currently syncing
func (s *SyncStatus) GetSyncingFileCount() int {
	return s.count(func(ps *PathStatus) bool { return ps.SyncState == SyncStateSyncing })
}

func (s *SyncStatus) GetErrorFileCount() int {
	return s.count(func(ps *PathStatus) bool { return ps.SyncState == SyncStateError })
}

// GetConflictedFileCount returns the number of conflicted files
func (s *SyncStatus) GetConflictedFileCount() int {
	return s.count(func(ps *PathStatus) bool { return ps.ConflictState == ConflictStateConflicted })
}

func (s *SyncStatus) count(match func(*PathStatus) bool) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, status := range s.files {
		if match(status) {
			n++
		}
	}
	return n
}

// GetAllStatus returns a copy of all file statuses
func (s *SyncStatus) GetAllStatus() map[string]*PathStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*PathStatus, len(s.files))
	for path, status := range s.files {
		statusCopy := *status
		result[path] = &statusCopy
	}
	return result
}

// Cleanup removes settled entries older than maxAge
func (s *SyncStatus) Cleanup(maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for path, status := range s.files {
		if status.SyncState != SyncStateSyncing && status.LastUpdated.Before(cutoff) {
			delete(s.files, path)
		}
	}
}

func (s *SyncStatus) Close() {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	for _, sub := range s.eventSubs {
		close(sub)
	}
	s.eventSubs = make([]chan *SyncStatusEvent, 0)

	s.mu.Lock()
	s.files = make(map[string]*PathStatus)
	s.mu.Unlock()
}
