package sync

import (
	"fmt"
	"strings"
	"sync"
)

// RemoteTree caches the last remote scan keyed by relative path. The full
// cycle replaces it wholesale; folder creation, tasks and the watcher patch
// individual entries.
type RemoteTree struct {
	entries map[string]*RemoteEntry
	mu      sync.RWMutex
}

func NewRemoteTree() *RemoteTree {
	return &RemoteTree{
		entries: make(map[string]*RemoteEntry),
	}
}

func (t *RemoteTree) Get(path string) (*RemoteEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.entries[path]
	return entry, ok
}

func (t *RemoteTree) Set(entry *RemoteEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[entry.Path] = entry
}

func (t *RemoteTree) Delete(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, path)
}

// DeletePrefix removes path and all cached descendants
func (t *RemoteTree) DeletePrefix(path string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for p := range t.entries {
		if isSameOrChild(p, path) {
			delete(t.entries, p)
			n++
		}
	}
	return n
}

func (t *RemoteTree) Replace(entries map[string]*RemoteEntry) {
	if entries == nil {
		entries = make(map[string]*RemoteEntry)
	}
	t.mu.Lock()
	t.entries = entries
	t.mu.Unlock()
}

// Snapshot returns a shallow copy of the path index
func (t *RemoteTree) Snapshot() map[string]*RemoteEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]*RemoteEntry, len(t.entries))
	for p, e := range t.entries {
		out[p] = e
	}
	return out
}

func (t *RemoteTree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// ResolveParent returns the remote folder ID that holds path. Top-level
// entries resolve to rootID.
func (t *RemoteTree) ResolveParent(path, rootID string) (string, error) {
	parent := parentOf(path)
	if parent == rootPath {
		return rootID, nil
	}

	entry, ok := t.Get(parent)
	if !ok || !entry.IsDir {
		return "", Permanent(fmt.Errorf("%w: %s", ErrParentNotFound, parent))
	}
	return entry.ID, nil
}

func isSameOrChild(p, dir string) bool {
	return p == dir || strings.HasPrefix(p, dir+"/")
}
