package sync

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/AzPepoze/gdrive-bisync/internal/utils"
)

// journalEntry is the on-disk value of one record
type journalEntry struct {
	RemoteMD5 string `json:"remoteMd5Checksum"`
}

// SyncJournal holds the last synced remote hash per path. It is loaded from
// and saved to a JSON file of [path, {"remoteMd5Checksum": hash}] pairs.
type SyncJournal struct {
	path    string
	records map[string]*SyncRecord
	mu      sync.RWMutex

	// changes counts mutations; saved is the value at the last successful Save or Load.
	// File IO happens under mu so a write and a re-read never interleave.
	changes uint64
	saved   uint64
}

func NewSyncJournal(path string) *SyncJournal {
	return &SyncJournal{
		path:    path,
		records: make(map[string]*SyncRecord),
	}
}

// Load replaces the in-memory records with the file contents.
// A missing file leaves the journal empty and is not an error.
func (s *SyncJournal) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Reload writes unsaved changes and then re-reads the file under a single
// lock, so a concurrent Set lands either before the write or after the read.
// If the write fails the in-memory records are kept.
func (s *SyncJournal) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.changes != s.saved {
		if err := s.writeLocked(); err != nil {
			return err
		}
	}
	return s.loadLocked()
}

func (s *SyncJournal) loadLocked() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.resetLocked(nil)
		return nil
	} else if err != nil {
		s.resetLocked(nil)
		return fmt.Errorf("read journal: %w", err)
	}

	records, err := decodeJournal(data)
	if err != nil {
		s.resetLocked(nil)
		return fmt.Errorf("decode journal %s: %w", s.path, err)
	}

	s.resetLocked(records)
	return nil
}

// Save writes every record to the journal file atomically
func (s *SyncJournal) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked()
}

func (s *SyncJournal) writeLocked() error {
	data, err := encodeJournal(s.records)
	if err != nil {
		return fmt.Errorf("encode journal: %w", err)
	}
	if err := s.writeFile(data); err != nil {
		return err
	}
	s.saved = s.changes
	return nil
}

func (s *SyncJournal) writeFile(data []byte) error {
	if err := utils.EnsureParent(s.path); err != nil {
		return fmt.Errorf("journal dir: %w", err)
	}
	if err := utils.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

// Dirty reports in-memory changes that have not been saved yet
func (s *SyncJournal) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changes != s.saved
}

func (s *SyncJournal) Get(path string) (*SyncRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[path]
	if !ok {
		return nil, false
	}
	cp := *rec
	return &cp, true
}

func (s *SyncJournal) Set(path, remoteHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[path] = &SyncRecord{Path: path, RemoteHash: remoteHash}
	s.changes++
}

func (s *SyncJournal) Delete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[path]; ok {
		delete(s.records, path)
		s.changes++
	}
}

// DeletePrefix removes path and every record below it
func (s *SyncJournal) DeletePrefix(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for p := range s.records {
		if isSameOrChild(p, path) {
			delete(s.records, p)
			n++
		}
	}
	if n > 0 {
		s.changes++
	}
	return n
}

// Snapshot returns a copy safe to read without locking
func (s *SyncJournal) Snapshot() map[string]*SyncRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*SyncRecord, len(s.records))
	for p, rec := range s.records {
		cp := *rec
		out[p] = &cp
	}
	return out
}

func (s *SyncJournal) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *SyncJournal) resetLocked(records map[string]*SyncRecord) {
	if records == nil {
		records = make(map[string]*SyncRecord)
	}
	s.records = records
	s.saved = s.changes
}

// decodeJournal is permissive: malformed pairs are logged and dropped
func decodeJournal(data []byte) (map[string]*SyncRecord, error) {
	var pairs [][]rawJSON
	if err := jsonUnmarshal(data, &pairs); err != nil {
		return nil, err
	}

	records := make(map[string]*SyncRecord, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			slog.Warn("journal entry skipped", "index", i, "reason", "not a pair")
			continue
		}

		var path string
		if err := jsonUnmarshal(pair[0], &path); err != nil || path == "" {
			slog.Warn("journal entry skipped", "index", i, "reason", "bad path")
			continue
		}

		var entry journalEntry
		if err := jsonUnmarshal(pair[1], &entry); err != nil {
			slog.Warn("journal entry skipped", "index", i, "path", path, "error", err)
			continue
		}

		records[path] = &SyncRecord{Path: path, RemoteHash: entry.RemoteMD5}
	}
	return records, nil
}

func encodeJournal(records map[string]*SyncRecord) ([]byte, error) {
	paths := make([]string, 0, len(records))
	for p := range records {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	pairs := make([][2]any, 0, len(paths))
	for _, p := range paths {
		pairs = append(pairs, [2]any{p, journalEntry{RemoteMD5: records[p].RemoteHash}})
	}
	return jsonMarshal(pairs)
}

// rawJSON defers decoding of one array element
type rawJSON []byte

func (r *rawJSON) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}
